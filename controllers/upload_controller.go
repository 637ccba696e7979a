package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
	"github.com/marlowe-motors/garage-api/utils"
)

// UploadInspectionPhoto handles POST /api/v1/uploads/photos - stores an
// inspection photo and returns the key to reference from a reception
func UploadInspectionPhoto(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if user.Role == models.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only workshop staff and technicians can upload inspection photos",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A photo file is required",
			},
		})
		return
	}

	photoService := services.GetPhotoService()
	if photoService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Photo storage is not configured",
			},
		})
		return
	}

	key, err := photoService.UploadPhoto(fileHeader)
	if err != nil {
		if uploadErr, ok := err.(*utils.FileUploadError); ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    uploadErr.Code,
					"message": uploadErr.Message,
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": "Failed to store photo",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    gin.H{"photo_key": key},
	})
}

// GetInspectionPhotoURL handles GET /api/v1/uploads/photos/url?key= -
// returns a short-lived presigned URL for an inspection photo
func GetInspectionPhotoURL(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "key query parameter is required",
			},
		})
		return
	}

	photoService := services.GetPhotoService()
	if photoService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Photo storage is not configured",
			},
		})
		return
	}

	url, err := photoService.GetPhotoURL(key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "URL_GENERATION_FAILED",
				"message": "Failed to generate photo URL",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"url": url},
	})
}
