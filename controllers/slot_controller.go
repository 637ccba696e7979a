package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/services"
)

// CreateSlotRequest represents the request body for opening a slot
type CreateSlotRequest struct {
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
	Capacity int       `json:"capacity" binding:"required,gte=1"`
}

// AssignTechniciansRequest replaces a slot's technician set
type AssignTechniciansRequest struct {
	TechnicianIDs []uint `json:"technician_ids"`
	Capacity      *int   `json:"capacity"`
}

// CreateSlot handles POST /api/v1/slots
func CreateSlot(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateSlotRequest
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

	slot, err := services.CreateSlot(config.GetDB(), user, req.StartsAt, req.EndsAt, req.Capacity)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    slot,
	})
}

// ListSlots handles GET /api/v1/slots?from=&to=&technician_id=
// The window defaults to the next 14 days.
func ListSlots(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	from := time.Now()
	to := from.Add(14 * 24 * time.Hour)
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "from must be RFC3339",
				},
			})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "to must be RFC3339",
				},
			})
			return
		}
		to = parsed
	}

	var technicianID *uint
	if raw := c.Query("technician_id"); raw != "" {
		id, ok := parseUint(c, raw, "technician_id")
		if !ok {
			return
		}
		technicianID = &id
	}

	slots, err := services.ListSlots(config.GetDB(), from, to, technicianID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    slots,
	})
}

// AssignTechnicians handles PUT /api/v1/slots/:id/technicians
func AssignTechnicians(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AssignTechniciansRequest
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

	slot, err := services.AssignTechnicians(config.GetDB(), user, id, req.TechnicianIDs, req.Capacity)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    slot,
	})
}

// AutoAssignTechnicians handles POST /api/v1/slots/:id/technicians/auto
func AutoAssignTechnicians(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	slot, err := services.AutoAssignTechnicians(config.GetDB(), user, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    slot,
	})
}

// DisableSlot handles POST /api/v1/slots/:id/disable
func DisableSlot(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := services.DisableSlot(config.GetDB(), user, id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"message": "Slot disabled"},
	})
}
