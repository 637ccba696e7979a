package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
)

// RejectRequestBody carries the staff note on a rejected part request
type RejectRequestBody struct {
	Note string `json:"note"`
}

// conflictViewer resolves the caller and checks view access through
// the capability table
func conflictViewer(c *gin.Context) (*models.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		return nil, false
	}
	if err := services.CheckPolicy(config.GetDB(), user, services.ActionViewConflicts, nil); err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	return user, true
}

// ListConflicts handles GET /api/v1/conflicts?status=
func ListConflicts(c *gin.Context) {
	if _, ok := conflictViewer(c); !ok {
		return
	}

	status := c.DefaultQuery("status", models.ConflictStatusOpen)

	var conflicts []models.PartConflict
	if err := config.GetDB().
		Preload("Requests").
		Preload("Part").
		Where("status = ?", status).
		Order("id").
		Find(&conflicts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list conflicts",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conflicts,
	})
}

// GetConflict handles GET /api/v1/conflicts/:id
func GetConflict(c *gin.Context) {
	if _, ok := conflictViewer(c); !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var conflict models.PartConflict
	if err := config.GetDB().
		Preload("Requests").
		Preload("Part").
		First(&conflict, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Conflict not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conflict,
	})
}

// SuggestResolution handles GET /api/v1/conflicts/:id/suggestion -
// the submission-order allocation staff can apply or override
func SuggestResolution(c *gin.Context) {
	if _, ok := conflictViewer(c); !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	suggestions, err := services.SuggestResolution(config.GetDB(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    suggestions,
	})
}

// ApproveConflictRequest handles POST /api/v1/conflicts/:id/requests/:requestId/approve
func ApproveConflictRequest(c *gin.Context) {
	// ApproveRequest enforces the resolve_conflict capability itself.
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestId")
	if !ok {
		return
	}

	conflict, err := services.ApproveRequest(config.GetDB(), user, id, requestID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conflict,
	})
}

// RejectConflictRequest handles POST /api/v1/conflicts/:id/requests/:requestId/reject
func RejectConflictRequest(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestId")
	if !ok {
		return
	}

	var body RejectRequestBody
	if err := c.ShouldBindJSON(&body); err != nil && err.Error() != "EOF" {
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

	conflict, err := services.RejectRequest(config.GetDB(), user, id, requestID, body.Note)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    conflict,
	})
}
