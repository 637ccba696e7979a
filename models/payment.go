package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment intent statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusExpired   = "expired"
	PaymentStatusCancelled = "cancelled"
)

// PaymentIntent is the durable record of an amount awaiting payment
// for one appointment. The payment gateway confirms against the
// Reference; pending intents expire after a bounded hold so seats and
// parts are not starved by abandoned payments.
type PaymentIntent struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AppointmentID uint            `gorm:"not null;index" json:"appointment_id"`
	Reference     string          `gorm:"uniqueIndex;not null" json:"reference"` // uuid, the gateway correlation ref
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status        string          `gorm:"not null;default:'pending';index" json:"status"`
	ExpiresAt     time.Time       `gorm:"not null;index" json:"expires_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PaymentIntent model
func (PaymentIntent) TableName() string {
	return "payment_intents"
}
