package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/marlowe-motors/garage-api/services"
	"github.com/shopspring/decimal"
)

// CreateAppointmentRequest represents the request body for booking an appointment
type CreateAppointmentRequest struct {
	CustomerID uint                 `json:"customer_id"`
	VehicleID  uint                 `json:"vehicle_id" binding:"required"`
	SlotID     uint                 `json:"slot_id" binding:"required"`
	Services   []ServiceLineRequest `json:"services" binding:"required,min=1,dive"`
	Comment    string               `json:"comment"`
}

// ServiceLineRequest is one requested service on a booking
type ServiceLineRequest struct {
	ServiceItemID uint `json:"service_item_id" binding:"required"`
	Quantity      int  `json:"quantity" binding:"required,gte=1"`
}

// ConfirmAppointmentRequest optionally assigns a technician at confirmation
type ConfirmAppointmentRequest struct {
	TechnicianID *uint `json:"technician_id"`
}

// RejectAppointmentRequest carries the staff rejection reason
type RejectAppointmentRequest struct {
	Reason string `json:"reason"`
}

// SubmitReceptionRequest is the technician's intake payload
type SubmitReceptionRequest struct {
	Findings     string               `json:"findings" binding:"required"`
	Recommended  string               `json:"recommended"`
	PhotoKeys    []string             `json:"photo_keys"`
	PartRequests []PartRequestPayload `json:"part_requests" binding:"omitempty,dive"`
}

// PartRequestPayload is one part claim raised during reception
type PartRequestPayload struct {
	PartID   uint `json:"part_id" binding:"required"`
	Quantity int  `json:"quantity" binding:"required,gte=1"`
}

// ReviewReceptionRequest is the staff decision on a submitted reception
type ReviewReceptionRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// ConfirmPaymentRequest carries the payment-success fact from the gateway
type ConfirmPaymentRequest struct {
	Reference string          `json:"reference" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
}

// CompleteAppointmentRequest reports actual part consumption at completion
type CompleteAppointmentRequest struct {
	Usage []PartUsagePayload `json:"usage" binding:"omitempty,dive"`
}

// PartUsagePayload is one part's actual consumption
type PartUsagePayload struct {
	PartID       uint `json:"part_id" binding:"required"`
	QuantityUsed int  `json:"quantity_used" binding:"gte=0"`
}

// CancelAppointmentRequest carries the cancellation reason
type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

// RescheduleAppointmentRequest moves the booking to a new slot
type RescheduleAppointmentRequest struct {
	SlotID uint `json:"slot_id" binding:"required"`
}

// CreateAppointment handles POST /api/v1/appointments
func CreateAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateAppointmentRequest
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

	lines := make([]services.ServiceLineInput, len(req.Services))
	for i, s := range req.Services {
		lines[i] = services.ServiceLineInput{ServiceItemID: s.ServiceItemID, Quantity: s.Quantity}
	}

	appt, err := services.CreateAppointment(config.GetDB(), user, services.CreateAppointmentInput{
		CustomerID: req.CustomerID,
		VehicleID:  req.VehicleID,
		SlotID:     req.SlotID,
		Services:   lines,
		Comment:    req.Comment,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    appt,
	})
}

// GetAppointment handles GET /api/v1/appointments/:id
func GetAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	appt, err := services.GetAppointment(config.GetDB(), user, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// ListAppointments handles GET /api/v1/appointments - scoped by role:
// customers see their own bookings, technicians their assignments,
// staff everything. Optional ?status= filters on the coarse stage.
func ListAppointments(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	db := config.GetDB()
	query := db.
		Preload("Customer").
		Preload("Vehicle").
		Preload("Slot").
		Preload("Technician").
		Order("id DESC")

	switch user.Role {
	case models.RoleCustomer:
		query = query.Where("customer_id = ?", user.ID)
	case models.RoleTechnician:
		query = query.Where("technician_id = ?", user.ID)
	}

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list appointments",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appointments,
	})
}

// ConfirmAppointment handles POST /api/v1/appointments/:id/confirm
func ConfirmAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ConfirmAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
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

	appt, err := services.StaffConfirm(config.GetDB(), user, id, req.TechnicianID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// RejectAppointment handles POST /api/v1/appointments/:id/reject
func RejectAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req RejectAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
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

	appt, err := services.StaffReject(config.GetDB(), user, id, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// MarkArrived handles POST /api/v1/appointments/:id/arrived
func MarkArrived(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	appt, err := services.MarkCustomerArrived(config.GetDB(), user, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// SubmitReception handles POST /api/v1/appointments/:id/reception
func SubmitReception(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req SubmitReceptionRequest
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

	parts := make([]services.PartRequestInput, len(req.PartRequests))
	for i, p := range req.PartRequests {
		parts[i] = services.PartRequestInput{PartID: p.PartID, Quantity: p.Quantity}
	}

	appt, err := services.SubmitReception(config.GetDB(), user, id, services.ReceptionInput{
		Findings:     req.Findings,
		Recommended:  req.Recommended,
		PhotoKeys:    req.PhotoKeys,
		PartRequests: parts,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// ReviewReception handles POST /api/v1/appointments/:id/reception/review
func ReviewReception(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ReviewReceptionRequest
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

	appt, err := services.ReviewReception(config.GetDB(), user, id, req.Approve, req.Note)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// ConfirmPayment handles POST /api/v1/appointments/:id/payment/confirm
func ConfirmPayment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
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

	appt, err := services.ConfirmPayment(config.GetDB(), user, id, req.Reference, req.Amount)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// CompleteAppointment handles POST /api/v1/appointments/:id/complete
func CompleteAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CompleteAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
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

	usage := make([]services.PartUsageInput, len(req.Usage))
	for i, u := range req.Usage {
		usage[i] = services.PartUsageInput{PartID: u.PartID, QuantityUsed: u.QuantityUsed}
	}

	appt, err := services.CompleteAppointment(config.GetDB(), user, id, usage)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// RequestCancellation handles POST /api/v1/appointments/:id/cancel
func RequestCancellation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
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

	appt, err := services.RequestCancellation(config.GetDB(), user, id, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// ApproveCancellation handles POST /api/v1/appointments/:id/cancel/approve
func ApproveCancellation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	appt, err := services.ApproveCancellation(config.GetDB(), user, id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}

// RescheduleAppointment handles POST /api/v1/appointments/:id/reschedule
func RescheduleAppointment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req RescheduleAppointmentRequest
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

	appt, err := services.RescheduleAppointment(config.GetDB(), user, id, req.SlotID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    appt,
	})
}
