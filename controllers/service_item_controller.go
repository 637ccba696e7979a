package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/shopspring/decimal"
)

// CreateServiceItemRequest represents the request body for adding a
// service to the catalog
type CreateServiceItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	DurationMin int             `json:"duration_min" binding:"required,gte=1"`
}

// UpdateServiceItemRequest updates catalog fields; nil fields are untouched
type UpdateServiceItemRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	DurationMin *int             `json:"duration_min"`
	Active      *bool            `json:"active"`
}

// CreateServiceItem handles POST /api/v1/services (staff only)
func CreateServiceItem(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleStaff {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can manage the service catalog",
			},
		})
		return
	}

	var req CreateServiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	item := models.ServiceItem{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		DurationMin: req.DurationMin,
		Active:      true,
	}

	if err := config.GetDB().Create(&item).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_EXISTS",
				"message": "A service with this name already exists",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    item,
	})
}

// ListServiceItems handles GET /api/v1/services - active catalog entries.
// Staff see inactive entries too.
func ListServiceItems(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := config.GetDB().Order("name")
	if user.Role != models.RoleStaff {
		query = query.Where("active = ?", true)
	}

	var items []models.ServiceItem
	if err := query.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list services",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
	})
}

// UpdateServiceItem handles PUT /api/v1/services/:id (staff only)
func UpdateServiceItem(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if user.Role != models.RoleStaff {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can manage the service catalog",
			},
		})
		return
	}

	var req UpdateServiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	db := config.GetDB()
	var item models.ServiceItem
	if err := db.First(&item, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Service not found",
			},
		})
		return
	}

	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	if req.DurationMin != nil {
		item.DurationMin = *req.DurationMin
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	if err := db.Save(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update service",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    item,
	})
}
