package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Detailed appointment statuses. These are the states of the workflow
// engine; DetailedStatus is always one of these and Status is the
// coarse lifecycle stage it maps to (see StageFor).
const (
	DetailedPendingConfirmation = "pending_confirmation"
	DetailedConfirmed           = "confirmed"
	DetailedCustomerArrived     = "customer_arrived"
	DetailedReceptionSubmitted  = "reception_submitted"
	DetailedPendingPayment      = "reception_approved_pending_payment"
	DetailedInProgress          = "in_progress"
	DetailedCompleted           = "completed"
	DetailedRejected            = "rejected"
	DetailedCancelRequested     = "cancel_requested"
	DetailedCancelApproved      = "cancel_approved"
)

// Coarse lifecycle stages
const (
	StageScheduled = "scheduled"
	StageInService = "in_service"
	StageCompleted = "completed"
	StageCancelled = "cancelled"
	StageRejected  = "rejected"
)

// StageFor maps a detailed status to its coarse lifecycle stage
func StageFor(detailed string) string {
	switch detailed {
	case DetailedPendingConfirmation, DetailedConfirmed:
		return StageScheduled
	case DetailedCustomerArrived, DetailedReceptionSubmitted, DetailedPendingPayment, DetailedInProgress:
		return StageInService
	case DetailedCompleted:
		return StageCompleted
	case DetailedCancelRequested, DetailedCancelApproved:
		return StageCancelled
	case DetailedRejected:
		return StageRejected
	}
	return ""
}

// IsTerminalStatus reports whether a detailed status ends the workflow
func IsTerminalStatus(detailed string) bool {
	return detailed == DetailedCompleted ||
		detailed == DetailedCancelApproved ||
		detailed == DetailedRejected
}

// Appointment represents a service appointment moving through the
// booking workflow. It is never physically deleted; cancellation and
// rejection are terminal statuses.
type Appointment struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	CustomerID uint    `gorm:"not null;index" json:"customer_id"`
	Customer   User    `gorm:"foreignKey:CustomerID" json:"customer"`
	VehicleID  uint    `gorm:"not null;index" json:"vehicle_id"`
	Vehicle    Vehicle `gorm:"foreignKey:VehicleID" json:"vehicle"`
	SlotID     uint    `gorm:"not null;index" json:"slot_id"`
	Slot       Slot    `gorm:"foreignKey:SlotID" json:"slot"`

	// TechnicianID is set by staff at confirmation; at most one
	// technician is assigned per appointment.
	TechnicianID *uint `gorm:"index" json:"technician_id"`
	Technician   *User `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`

	Status         string `gorm:"not null;index" json:"status"`
	DetailedStatus string `gorm:"not null;index" json:"detailed_status"`

	// Version is bumped on every persisted transition; used for
	// optimistic concurrency (stale writes are retried, then surfaced).
	Version int `gorm:"not null;default:0" json:"version"`

	Services  []AppointmentService `gorm:"foreignKey:AppointmentID" json:"services"`
	Reception *Reception           `gorm:"foreignKey:AppointmentID" json:"reception,omitempty"`

	AmountDue  *decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount_due"`
	PaymentRef *string          `gorm:"index" json:"payment_ref"`

	Comment      string `json:"comment"`
	CancelReason string `json:"cancel_reason,omitempty"`

	// SeatHoldExpiresAt bounds how long an unconfirmed booking may hold
	// its seat before the expiry sweep reclaims it.
	SeatHoldExpiresAt *time.Time `gorm:"index" json:"seat_hold_expires_at,omitempty"`

	// RescheduledFromSlotID records the previous slot after a reschedule.
	RescheduledFromSlotID *uint `json:"rescheduled_from_slot_id,omitempty"`

	// Transition timestamps
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
	ArrivedAt           *time.Time `json:"arrived_at,omitempty"`
	ReceptionReviewedAt *time.Time `json:"reception_reviewed_at,omitempty"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Appointment model
func (Appointment) TableName() string {
	return "appointments"
}

// SetDetailedStatus updates the detailed status and keeps the coarse
// stage in sync with it
func (a *Appointment) SetDetailedStatus(detailed string) {
	a.DetailedStatus = detailed
	a.Status = StageFor(detailed)
}

// Reception is the technician's documented intake of the vehicle:
// inspection findings, recommended work and any part requests raised
// during the inspection. Owned exclusively by its appointment.
type Reception struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	AppointmentID uint   `gorm:"not null;uniqueIndex" json:"appointment_id"`
	SubmittedByID uint   `gorm:"not null" json:"submitted_by_id"`
	SubmittedBy   User   `gorm:"foreignKey:SubmittedByID" json:"submitted_by"`
	Findings      string `gorm:"not null" json:"findings"`
	Recommended   string `json:"recommended"`

	// PhotoKeys holds comma-separated storage keys of inspection photos.
	PhotoKeys string `json:"photo_keys,omitempty"`

	Status       string     `gorm:"not null;default:'submitted'" json:"status"` // submitted, approved, rejected
	ReviewNote   string     `json:"review_note,omitempty"`
	ReviewedByID *uint      `json:"reviewed_by_id,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Reception model
func (Reception) TableName() string {
	return "receptions"
}
