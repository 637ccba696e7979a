package models

import (
	"time"

	"gorm.io/gorm"
)

// Vehicle represents a customer-owned vehicle brought in for service
type Vehicle struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	OwnerID      uint           `gorm:"not null;index" json:"owner_id"`
	Owner        User           `gorm:"foreignKey:OwnerID" json:"owner"`
	Make         string         `gorm:"not null" json:"make"`
	Model        string         `gorm:"not null" json:"model"`
	Year         int            `json:"year"`
	LicensePlate string         `gorm:"uniqueIndex;not null" json:"license_plate"`
	VIN          string         `json:"vin"`
	Mileage      int            `json:"mileage"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Vehicle model
func (Vehicle) TableName() string {
	return "vehicles"
}
