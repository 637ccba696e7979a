package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/middleware"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
)

// currentUser resolves the authenticated actor to a user profile.
// Writes the error response and returns false when that fails.
func currentUser(c *gin.Context) (*models.User, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()
	var user models.User
	if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USER_NOT_FOUND",
				"message": "User profile not found. Please create a profile first.",
			},
		})
		return nil, false
	}

	return &user, true
}

// respondServiceError maps a service-layer error onto the response envelope
func respondServiceError(c *gin.Context, err error) {
	svcErr := services.AsServiceError(err)
	body := gin.H{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	c.JSON(svcErr.HTTPStatus(), gin.H{
		"success": false,
		"error":   body,
	})
}

// pathID parses a numeric id path parameter. Writes the error response
// and returns false on bad input.
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid " + name + " parameter",
			},
		})
		return 0, false
	}
	return uint(id), true
}

// parseUint parses a numeric query parameter the same way pathID does
func parseUint(c *gin.Context, raw, name string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid " + name + " parameter",
			},
		})
		return 0, false
	}
	return uint(id), true
}
