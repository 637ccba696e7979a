package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
)

// CreateVehicleRequest represents the request body for registering a vehicle
type CreateVehicleRequest struct {
	Make         string `json:"make" binding:"required"`
	Model        string `json:"model" binding:"required"`
	Year         int    `json:"year" binding:"omitempty,gte=1900"`
	LicensePlate string `json:"license_plate" binding:"required"`
	VIN          string `json:"vin" binding:"omitempty"`
	Mileage      int    `json:"mileage" binding:"omitempty,gte=0"`
}

// CreateVehicle handles POST /api/v1/vehicles - registers a vehicle for the current customer
func CreateVehicle(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only customers can register vehicles",
			},
		})
		return
	}

	var req CreateVehicleRequest
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

	vehicle := models.Vehicle{
		OwnerID:      user.ID,
		Make:         req.Make,
		Model:        req.Model,
		Year:         req.Year,
		LicensePlate: req.LicensePlate,
		VIN:          req.VIN,
		Mileage:      req.Mileage,
	}

	db := config.GetDB()
	if err := db.Create(&vehicle).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to register vehicle",
			},
		})
		return
	}

	if err := db.Preload("Owner").First(&vehicle, vehicle.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load vehicle details",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    vehicle,
	})
}

// ListMyVehicles handles GET /api/v1/vehicles - lists the current customer's vehicles
func ListMyVehicles(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	var vehicles []models.Vehicle

	query := db.Order("id")
	if user.Role == models.RoleCustomer {
		query = query.Where("owner_id = ?", user.ID)
	}

	if err := query.Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list vehicles",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    vehicles,
	})
}
