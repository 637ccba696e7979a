package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
)

// MarkDeliveredRequest identifies the notifications a consumer has processed
type MarkDeliveredRequest struct {
	IDs []uint `json:"ids" binding:"required,min=1"`
}

// ListNotifications handles GET /api/v1/notifications?type=&limit= -
// undelivered outbox entries, oldest first (staff only)
func ListNotifications(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleStaff {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can read the notification outbox",
			},
		})
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, ok := parseUint(c, raw, "limit")
		if !ok {
			return
		}
		limit = int(n)
	}

	notifications, err := services.ListNotifications(config.GetDB(), c.Query("type"), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    notifications,
	})
}

// MarkNotificationsDelivered handles POST /api/v1/notifications/delivered
func MarkNotificationsDelivered(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role != models.RoleStaff {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only staff can read the notification outbox",
			},
		})
		return
	}

	var req MarkDeliveredRequest
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

	if err := services.MarkNotificationsDelivered(config.GetDB(), req.IDs); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"marked": len(req.IDs)},
	})
}
