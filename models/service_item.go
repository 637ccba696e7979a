package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ServiceItem is a priced entry in the workshop's service catalog
// (oil change, brake inspection, ...)
type ServiceItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"uniqueIndex;not null" json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	DurationMin int             `json:"duration_min"` // estimated duration in minutes
	Active      bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the ServiceItem model
func (ServiceItem) TableName() string {
	return "service_items"
}

// AppointmentService is a requested service line on an appointment.
// Price is snapshotted from the catalog at booking time.
type AppointmentService struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	AppointmentID uint            `gorm:"not null;index" json:"appointment_id"`
	ServiceItemID uint            `gorm:"not null;index" json:"service_item_id"`
	ServiceItem   ServiceItem     `gorm:"foreignKey:ServiceItemID" json:"service_item"`
	Quantity      int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TableName specifies the table name for the AppointmentService model
func (AppointmentService) TableName() string {
	return "appointment_services"
}
