package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/middleware"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone" binding:"omitempty"`
}

// CreateUser handles POST /api/v1/users - creates a new user from Auth0 userinfo
// This endpoint requires authentication and fetches user data from Auth0's /userinfo endpoint
func CreateUser(c *gin.Context) {
	// Get the Auth0 user ID from the validated JWT
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user ID from token",
			},
		})
		return
	}

	// Get the access token to call Auth0's /userinfo endpoint
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TOKEN",
				"message": "Access token not found",
			},
		})
		return
	}

	// Fetch user info from Auth0
	cfg := config.GetConfig()
	auth0Service := services.NewAuth0Service(cfg)
	userInfo, err := auth0Service.GetUserInfo(accessToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "AUTH0_ERROR",
				"message": "Failed to fetch user information from Auth0",
			},
		})
		return
	}

	if userInfo.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_EMAIL",
				"message": "Email not provided by Auth0",
			},
		})
		return
	}

	if userInfo.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_NAME",
				"message": "Name not provided by Auth0",
			},
		})
		return
	}

	// The garage role comes from the token's custom claims
	role := middleware.GetRole(c)
	if role != models.RoleCustomer && role != models.RoleStaff && role != models.RoleTechnician {
		role = models.RoleCustomer
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Role:    role,
	}

	db := config.GetDB()
	if err := db.Create(&user).Error; err != nil {
		// Check for duplicate Auth0ID or email (works with both PostgreSQL and SQLite)
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "duplicate") ||
			strings.Contains(errMsg, "unique constraint") ||
			strings.Contains(errMsg, "unique") {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_EXISTS",
					"message": "A user with this Auth0 ID or email already exists",
				},
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create user",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    user,
	})
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
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

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if req.Phone != "" {
		updates["phone"] = req.Phone
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    user,
		})
		return
	}

	db := config.GetDB()
	if err := db.Model(user).Updates(updates).Error; err != nil {
		errMsg := strings.ToLower(err.Error())
		if strings.Contains(errMsg, "duplicate") ||
			strings.Contains(errMsg, "unique constraint") ||
			strings.Contains(errMsg, "unique") {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EMAIL_EXISTS",
					"message": "A user with this email already exists",
				},
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to update user profile",
			},
		})
		return
	}

	if err := db.First(user, user.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to fetch updated profile",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    user,
	})
}
