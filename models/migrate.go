package models

import "gorm.io/gorm"

// AutoMigrate migrates every model in dependency order
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Vehicle{},
		&ServiceItem{},
		&Slot{},
		&Appointment{},
		&AppointmentService{},
		&Reception{},
		&Part{},
		&PartReservation{},
		&StockAdjustment{},
		&PartRequest{},
		&PartConflict{},
		&PaymentIntent{},
		&Notification{},
	)
}
