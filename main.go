package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/controllers"
	"github.com/marlowe-motors/garage-api/middleware"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
)

func main() {
	log.Println("Starting Marlowe Motors garage API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	db := config.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Photo storage is optional; reception photo uploads are rejected
	// with STORAGE_UNAVAILABLE when no bucket is configured.
	if cfg.AWSS3Bucket != "" {
		s3Service, err := services.InitS3Service()
		if err != nil {
			log.Fatalf("Failed to initialize S3 service: %v", err)
		}
		services.InitPhotoService(s3Service)
		log.Printf("Photo storage enabled (bucket %s)", cfg.AWSS3Bucket)
	} else {
		log.Println("AWS_S3_BUCKET not set, photo uploads disabled")
	}

	router := setupRouter(cfg)

	// Expired booking, payment and reception holds are swept in the
	// background so abandoned appointments release their seats and parts.
	stop := make(chan struct{})
	defer close(stop)
	go services.RunHoldExpirySweep(db, time.Minute, stop)

	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter wires the full API surface
func setupRouter(cfg *config.Config) *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)

		authenticated := v1.Group("")
		authenticated.Use(middleware.EnsureValidToken(cfg))
		{
			authenticated.POST("/users", controllers.CreateUser)
			authenticated.GET("/users/me", controllers.GetMyProfile)
			authenticated.PUT("/users/me", controllers.UpdateMyProfile)

			authenticated.POST("/vehicles", controllers.CreateVehicle)
			authenticated.GET("/vehicles", controllers.ListMyVehicles)

			authenticated.POST("/services", controllers.CreateServiceItem)
			authenticated.GET("/services", controllers.ListServiceItems)
			authenticated.PUT("/services/:id", controllers.UpdateServiceItem)

			authenticated.POST("/slots", controllers.CreateSlot)
			authenticated.GET("/slots", controllers.ListSlots)
			authenticated.PUT("/slots/:id/technicians", controllers.AssignTechnicians)
			authenticated.POST("/slots/:id/technicians/auto", controllers.AutoAssignTechnicians)
			authenticated.POST("/slots/:id/disable", controllers.DisableSlot)

			authenticated.POST("/appointments", controllers.CreateAppointment)
			authenticated.GET("/appointments", controllers.ListAppointments)
			authenticated.GET("/appointments/:id", controllers.GetAppointment)
			authenticated.POST("/appointments/:id/confirm", controllers.ConfirmAppointment)
			authenticated.POST("/appointments/:id/reject", controllers.RejectAppointment)
			authenticated.POST("/appointments/:id/arrived", controllers.MarkArrived)
			authenticated.POST("/appointments/:id/reception", controllers.SubmitReception)
			authenticated.POST("/appointments/:id/reception/review", controllers.ReviewReception)
			authenticated.POST("/appointments/:id/payment/confirm", controllers.ConfirmPayment)
			authenticated.POST("/appointments/:id/complete", controllers.CompleteAppointment)
			authenticated.POST("/appointments/:id/cancel", controllers.RequestCancellation)
			authenticated.POST("/appointments/:id/cancel/approve", controllers.ApproveCancellation)
			authenticated.POST("/appointments/:id/reschedule", controllers.RescheduleAppointment)

			authenticated.POST("/parts", controllers.CreatePart)
			authenticated.GET("/parts", controllers.ListParts)
			authenticated.GET("/parts/:id", controllers.GetPart)
			authenticated.POST("/parts/:id/adjust", controllers.AdjustStock)
			authenticated.GET("/parts/:id/adjustments", controllers.ListStockAdjustments)

			authenticated.GET("/conflicts", controllers.ListConflicts)
			authenticated.GET("/conflicts/:id", controllers.GetConflict)
			authenticated.GET("/conflicts/:id/suggestion", controllers.SuggestResolution)
			authenticated.POST("/conflicts/:id/requests/:requestId/approve", controllers.ApproveConflictRequest)
			authenticated.POST("/conflicts/:id/requests/:requestId/reject", controllers.RejectConflictRequest)

			authenticated.POST("/uploads/photos", controllers.UploadInspectionPhoto)
			authenticated.GET("/uploads/photos/url", controllers.GetInspectionPhotoURL)

			authenticated.GET("/notifications", controllers.ListNotifications)
			authenticated.POST("/notifications/delivered", controllers.MarkNotificationsDelivered)
		}
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Marlowe Motors garage API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	var tables []string
	if err := db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
