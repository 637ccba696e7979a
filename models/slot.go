package models

import (
	"time"

	"gorm.io/gorm"
)

// Slot statuses, recomputed from booked_count/capacity on every
// reserve and release.
const (
	SlotStatusAvailable       = "available"
	SlotStatusPartiallyBooked = "partially_booked"
	SlotStatusFull            = "full"
)

// Slot is a bounded-capacity time window bookable by customers and
// staffable by technicians. BookedCount never exceeds Capacity; the
// scheduler enforces that with a conditional check-and-increment.
// Slots referenced by bookings are never deleted, only disabled.
type Slot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StartsAt    time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt      time.Time `gorm:"not null" json:"ends_at"`
	Capacity    int       `gorm:"not null;check:capacity > 0" json:"capacity"`
	BookedCount int       `gorm:"not null;default:0" json:"booked_count"`
	Status      string    `gorm:"not null;default:'available'" json:"status"`
	Disabled    bool      `gorm:"not null;default:false" json:"disabled"`

	Technicians []User `gorm:"many2many:slot_technicians" json:"technicians"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Slot model
func (Slot) TableName() string {
	return "slots"
}

// StatusForCount returns the slot status for a given booked count
func (s *Slot) StatusForCount(booked int) string {
	switch {
	case booked >= s.Capacity:
		return SlotStatusFull
	case booked > 0:
		return SlotStatusPartiallyBooked
	default:
		return SlotStatusAvailable
	}
}

// IsFull returns true if the slot has no remaining seats
func (s *Slot) IsFull() bool {
	return s.BookedCount >= s.Capacity
}

// AvailableSeats returns the number of seats still open
func (s *Slot) AvailableSeats() int {
	if s.BookedCount > s.Capacity {
		return 0
	}
	return s.Capacity - s.BookedCount
}

// HasTechnician reports whether the given user is in the slot's
// technician set
func (s *Slot) HasTechnician(userID uint) bool {
	for _, t := range s.Technicians {
		if t.ID == userID {
			return true
		}
	}
	return false
}
