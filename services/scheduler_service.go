package services

import (
	"time"

	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// The scheduler owns slot capacity. Reserving a seat is a single
// conditional check-and-increment so two concurrent bookings can never
// both take the last seat; callers run it inside their transaction.

// ReserveSeat atomically claims one seat in the slot. Returns SLOT_FULL
// when no seat remains and SLOT_UNAVAILABLE for disabled or missing slots.
func ReserveSeat(db *gorm.DB, slotID uint) error {
	var slot models.Slot
	if err := db.First(&slot, slotID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return NewError(CodeSlotUnavailable, "Slot not found")
		}
		return err
	}
	if slot.Disabled {
		return NewError(CodeSlotUnavailable, "Slot is disabled").
			WithDetail("slot_id", slot.ID)
	}

	// Check-and-increment in one statement; the WHERE clause is the
	// capacity guard.
	res := db.Model(&models.Slot{}).
		Where("id = ? AND booked_count < capacity", slotID).
		UpdateColumn("booked_count", gorm.Expr("booked_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NewError(CodeSlotFull, "Slot has no remaining seats").
			WithDetail("slot_id", slot.ID).
			WithDetail("capacity", slot.Capacity).
			WithDetail("booked_count", slot.BookedCount)
	}

	return recomputeSlotStatus(db, slotID)
}

// ReleaseSeat returns one seat to the slot. The scheduler does not
// deduplicate releases; callers track reservation identity and must
// not double-release. A release against an empty slot is a mismatch.
func ReleaseSeat(db *gorm.DB, slotID uint) error {
	res := db.Model(&models.Slot{}).
		Where("id = ? AND booked_count > 0", slotID).
		UpdateColumn("booked_count", gorm.Expr("booked_count - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NewError(CodeResourceReleaseMismatch, "No booked seat to release").
			WithDetail("slot_id", slotID)
	}

	return recomputeSlotStatus(db, slotID)
}

// recomputeSlotStatus derives the slot status from the fresh counters
func recomputeSlotStatus(db *gorm.DB, slotID uint) error {
	var slot models.Slot
	if err := db.First(&slot, slotID).Error; err != nil {
		return err
	}
	status := slot.StatusForCount(slot.BookedCount)
	if status == slot.Status {
		return nil
	}
	return db.Model(&models.Slot{}).
		Where("id = ?", slotID).
		UpdateColumn("status", status).Error
}

// CreateSlot creates a slot explicitly (staff action)
func CreateSlot(db *gorm.DB, actor *models.User, startsAt, endsAt time.Time, capacity int) (*models.Slot, error) {
	if err := CheckPolicy(db, actor, ActionManageSlots, nil); err != nil {
		return nil, err
	}
	if !endsAt.After(startsAt) {
		return nil, NewError(CodeValidation, "Slot must end after it starts")
	}
	if capacity <= 0 {
		return nil, NewError(CodeValidation, "Slot capacity must be positive")
	}

	slot := models.Slot{
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Capacity: capacity,
		Status:   models.SlotStatusAvailable,
	}
	if err := db.Create(&slot).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

// AssignTechnicians replaces the slot's technician set and optionally
// its capacity. Staff only. Does not touch booked_count.
func AssignTechnicians(db *gorm.DB, actor *models.User, slotID uint, technicianIDs []uint, capacity *int) (*models.Slot, error) {
	if err := CheckPolicy(db, actor, ActionManageSlots, nil); err != nil {
		return nil, err
	}

	var slot models.Slot
	if err := db.Preload("Technicians").First(&slot, slotID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Slot not found")
		}
		return nil, err
	}

	var technicians []models.User
	if len(technicianIDs) > 0 {
		if err := db.Where("id IN ? AND role = ?", technicianIDs, models.RoleTechnician).
			Find(&technicians).Error; err != nil {
			return nil, err
		}
		if len(technicians) != len(uniqueIDs(technicianIDs)) {
			return nil, NewError(CodeValidation, "One or more technician ids are unknown or not technicians")
		}
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&slot).Association("Technicians").Replace(technicians); err != nil {
			return err
		}
		if capacity != nil {
			if *capacity <= 0 {
				return NewError(CodeValidation, "Slot capacity must be positive")
			}
			if *capacity < slot.BookedCount {
				return NewError(CodeValidation, "Capacity cannot drop below current bookings").
					WithDetail("booked_count", slot.BookedCount)
			}
			if err := tx.Model(&models.Slot{}).Where("id = ?", slot.ID).
				UpdateColumn("capacity", *capacity).Error; err != nil {
				return err
			}
			slot.Capacity = *capacity
		}
		return recomputeSlotStatus(tx, slot.ID)
	})
	if err != nil {
		return nil, err
	}

	if err := db.Preload("Technicians").First(&slot, slotID).Error; err != nil {
		return nil, err
	}
	return &slot, nil
}

// AutoAssignTechnicians assigns the full technician roster to the slot
// and sets capacity to the roster size. Bulk staffing convenience.
func AutoAssignTechnicians(db *gorm.DB, actor *models.User, slotID uint) (*models.Slot, error) {
	if err := CheckPolicy(db, actor, ActionManageSlots, nil); err != nil {
		return nil, err
	}

	var roster []models.User
	if err := db.Where("role = ?", models.RoleTechnician).Order("id").Find(&roster).Error; err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, NewError(CodeValidation, "No technicians on the roster")
	}

	ids := make([]uint, len(roster))
	for i, t := range roster {
		ids[i] = t.ID
	}
	capacity := len(roster)
	return AssignTechnicians(db, actor, slotID, ids, &capacity)
}

// ListSlots returns slots in the window, optionally only those a given
// technician is assigned to. Read-only projection.
func ListSlots(db *gorm.DB, from, to time.Time, technicianID *uint) ([]models.Slot, error) {
	query := db.Model(&models.Slot{}).
		Preload("Technicians").
		Where("starts_at >= ? AND starts_at < ? AND disabled = ?", from, to, false).
		Order("starts_at")

	if technicianID != nil {
		query = query.
			Joins("JOIN slot_technicians ON slot_technicians.slot_id = slots.id").
			Where("slot_technicians.user_id = ?", *technicianID)
	}

	var slots []models.Slot
	if err := query.Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

// DisableSlot soft-disables a slot so it takes no new bookings.
// Existing bookings keep referencing it.
func DisableSlot(db *gorm.DB, actor *models.User, slotID uint) error {
	if err := CheckPolicy(db, actor, ActionManageSlots, nil); err != nil {
		return err
	}
	res := db.Model(&models.Slot{}).Where("id = ?", slotID).UpdateColumn("disabled", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NewError(CodeNotFound, "Slot not found")
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
