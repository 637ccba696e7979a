package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
	"github.com/shopspring/decimal"
)

// CreatePartRequest represents the request body for adding a part to the catalog
type CreatePartRequest struct {
	SKU          string          `json:"sku" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	UnitPrice    decimal.Decimal `json:"unit_price" binding:"required"`
	CurrentStock int             `json:"current_stock" binding:"gte=0"`
	ReorderPoint int             `json:"reorder_point" binding:"gte=0"`
}

// AdjustStockRequest applies a manual stock correction
type AdjustStockRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// CreatePart handles POST /api/v1/parts (staff only)
func CreatePart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleStaff {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can manage the parts catalog",
			},
		})
		return
	}

	var req CreatePartRequest
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

	part := models.Part{
		SKU:          req.SKU,
		Name:         req.Name,
		UnitPrice:    req.UnitPrice,
		CurrentStock: req.CurrentStock,
		ReorderPoint: req.ReorderPoint,
	}

	if err := config.GetDB().Create(&part).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PART_EXISTS",
				"message": "A part with this SKU already exists",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    part,
	})
}

// ListParts handles GET /api/v1/parts
func ListParts(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role == models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Customers cannot browse the parts inventory",
			},
		})
		return
	}

	var parts []models.Part
	if err := config.GetDB().Order("sku").Find(&parts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list parts",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    parts,
	})
}

// GetPart handles GET /api/v1/parts/:id - part details with reservations
func GetPart(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if user.Role == models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Customers cannot browse the parts inventory",
			},
		})
		return
	}

	var part models.Part
	if err := config.GetDB().Preload("Reservations").First(&part, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Part not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    part,
	})
}

// AdjustStock handles POST /api/v1/parts/:id/adjust
func AdjustStock(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AdjustStockRequest
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

	adjustment, err := services.AdjustStock(config.GetDB(), user, id, req.Delta, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    adjustment,
	})
}

// ListStockAdjustments handles GET /api/v1/parts/:id/adjustments - audit trail
func ListStockAdjustments(c *gin.Context) {
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
				"message": "Only staff can view the adjustment audit trail",
			},
		})
		return
	}

	var adjustments []models.StockAdjustment
	if err := config.GetDB().
		Where("part_id = ?", id).
		Order("id DESC").
		Find(&adjustments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list stock adjustments",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    adjustments,
	})
}
