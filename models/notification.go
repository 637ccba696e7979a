package models

import (
	"time"
)

// Notification types consumed by the external collaborators
// (chat/notification transport, billing, reporting)
const (
	NotificationStatusChanged    = "appointment_status_changed"
	NotificationInvoiceRequested = "invoice_requested"
	NotificationLowStock         = "low_stock"
)

// Notification is a durable outbound event record. The core only
// writes these; delivery to chat, billing and reporting is the
// consumers' problem.
type Notification struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Type          string `gorm:"not null;index" json:"type"`
	AppointmentID *uint  `gorm:"index" json:"appointment_id,omitempty"`
	PartID        *uint  `gorm:"index" json:"part_id,omitempty"`

	// Payload is a JSON document describing the event.
	Payload string `gorm:"not null" json:"payload"`

	Delivered bool      `gorm:"not null;default:false;index" json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
