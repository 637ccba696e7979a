package services

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// The inventory ledger is the single source of truth for part stock.
// Every reserve, use and release is a conserved transfer between the
// current/reserved/used buckets; only AdjustStock changes the total,
// and always with an audit entry.

// ReservePart atomically claims quantity units of a part for an
// appointment. Fails INSUFFICIENT_STOCK when the shelf cannot cover
// the quantity; the check-and-decrement is one conditional update so
// concurrent reservations cannot oversell.
func ReservePart(db *gorm.DB, partID, appointmentID uint, quantity int, actorID uint) (*models.PartReservation, error) {
	if quantity <= 0 {
		return nil, NewError(CodeValidation, "Reservation quantity must be positive")
	}

	var part models.Part
	if err := db.First(&part, partID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Part not found")
		}
		return nil, err
	}

	res := db.Model(&models.Part{}).
		Where("id = ? AND current_stock >= ?", partID, quantity).
		UpdateColumns(map[string]interface{}{
			"current_stock":  gorm.Expr("current_stock - ?", quantity),
			"reserved_stock": gorm.Expr("reserved_stock + ?", quantity),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, NewError(CodeInsufficientStock, "Not enough stock to reserve").
			WithDetail("part_id", part.ID).
			WithDetail("current_stock", part.CurrentStock).
			WithDetail("requested", quantity)
	}

	reservation := models.PartReservation{
		Reference:     uuid.NewString(),
		PartID:        partID,
		AppointmentID: appointmentID,
		Quantity:      quantity,
		Status:        models.ReservationStatusReserved,
		ReservedByID:  actorID,
	}
	if err := db.Create(&reservation).Error; err != nil {
		return nil, err
	}

	if err := checkLowStock(db, partID); err != nil {
		return nil, err
	}
	return &reservation, nil
}

// MarkPartUsed closes the appointment's open reservation of the part,
// recording how much was actually consumed. The unused remainder goes
// back on the shelf: reserved -= reservedQty, used += usedQty,
// current += reservedQty - usedQty.
func MarkPartUsed(db *gorm.DB, partID, appointmentID uint, quantityUsed int) (*models.PartReservation, error) {
	reservation, err := openReservation(db, partID, appointmentID)
	if err != nil {
		return nil, err
	}
	if quantityUsed < 0 || quantityUsed > reservation.Quantity {
		return nil, NewError(CodeValidation, "Quantity used must be between 0 and the reserved quantity").
			WithDetail("reserved", reservation.Quantity).
			WithDetail("quantity_used", quantityUsed)
	}

	remainder := reservation.Quantity - quantityUsed
	if err := db.Model(&models.Part{}).
		Where("id = ?", partID).
		UpdateColumns(map[string]interface{}{
			"reserved_stock": gorm.Expr("reserved_stock - ?", reservation.Quantity),
			"used_stock":     gorm.Expr("used_stock + ?", quantityUsed),
			"current_stock":  gorm.Expr("current_stock + ?", remainder),
		}).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	reservation.Status = models.ReservationStatusUsed
	reservation.QuantityUsed = quantityUsed
	reservation.ClosedAt = &now
	if err := db.Save(reservation).Error; err != nil {
		return nil, err
	}

	// Rolling usage average for demand forecasting. Best effort,
	// never gates a reservation.
	if err := updateUsageAverage(db, partID, quantityUsed); err != nil {
		return nil, err
	}

	return reservation, nil
}

// ReleasePart cancels the appointment's open reservation of the part
// without usage; the full quantity returns to the shelf. Releasing a
// reservation that was already used or released is a mismatch and
// moves no stock.
func ReleasePart(db *gorm.DB, partID, appointmentID uint) (*models.PartReservation, error) {
	reservation, err := openReservation(db, partID, appointmentID)
	if err != nil {
		return nil, err
	}

	if err := db.Model(&models.Part{}).
		Where("id = ?", partID).
		UpdateColumns(map[string]interface{}{
			"reserved_stock": gorm.Expr("reserved_stock - ?", reservation.Quantity),
			"current_stock":  gorm.Expr("current_stock + ?", reservation.Quantity),
		}).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	reservation.Status = models.ReservationStatusReturned
	reservation.ClosedAt = &now
	if err := db.Save(reservation).Error; err != nil {
		return nil, err
	}
	return reservation, nil
}

// ReleaseAppointmentParts releases every open reservation held by the
// appointment. Used by cancellation and reception rejection.
func ReleaseAppointmentParts(db *gorm.DB, appointmentID uint) error {
	var reservations []models.PartReservation
	if err := db.Where("appointment_id = ? AND status = ?",
		appointmentID, models.ReservationStatusReserved).
		Find(&reservations).Error; err != nil {
		return err
	}
	for _, r := range reservations {
		if _, err := ReleasePart(db, r.PartID, appointmentID); err != nil {
			return err
		}
	}
	return nil
}

// MarkAppointmentPartsInProgress flags the appointment's open
// reservations as active work. Status marker only; no quantities move.
func MarkAppointmentPartsInProgress(db *gorm.DB, appointmentID uint) error {
	return db.Model(&models.PartReservation{}).
		Where("appointment_id = ? AND status = ? AND work_started_at IS NULL",
			appointmentID, models.ReservationStatusReserved).
		UpdateColumn("work_started_at", time.Now()).Error
}

// AdjustStock applies a manual correction to a part's shelf stock and
// records the audit entry. The only operation allowed to change the
// three-bucket total. Negative deltas cannot take the shelf below zero.
func AdjustStock(db *gorm.DB, actor *models.User, partID uint, delta int, reason string) (*models.StockAdjustment, error) {
	if err := CheckPolicy(db, actor, ActionAdjustStock, nil); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, NewError(CodeValidation, "Adjustment delta cannot be zero")
	}
	if reason == "" {
		return nil, NewError(CodeValidation, "Adjustment reason is required")
	}

	var adjustment *models.StockAdjustment
	err := db.Transaction(func(tx *gorm.DB) error {
		var part models.Part
		if err := tx.First(&part, partID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewError(CodeNotFound, "Part not found")
			}
			return err
		}

		newStock := part.CurrentStock + delta
		if newStock < 0 {
			return NewError(CodeValidation, "Adjustment would take stock below zero").
				WithDetail("current_stock", part.CurrentStock).
				WithDetail("delta", delta)
		}

		if err := tx.Model(&models.Part{}).Where("id = ?", partID).
			UpdateColumn("current_stock", newStock).Error; err != nil {
			return err
		}

		adjustment = &models.StockAdjustment{
			PartID:        partID,
			Delta:         delta,
			PreviousStock: part.CurrentStock,
			NewStock:      newStock,
			Reason:        reason,
			ActorID:       actor.ID,
		}
		if err := tx.Create(adjustment).Error; err != nil {
			return err
		}

		return checkLowStock(tx, partID)
	})
	if err != nil {
		return nil, err
	}
	return adjustment, nil
}

// openReservation finds the appointment's reserved record for the
// part, surfacing a mismatch when only closed records (or none) exist
func openReservation(db *gorm.DB, partID, appointmentID uint) (*models.PartReservation, error) {
	var reservation models.PartReservation
	err := db.Where("part_id = ? AND appointment_id = ? AND status = ?",
		partID, appointmentID, models.ReservationStatusReserved).
		Order("id").
		First(&reservation).Error
	if err == nil {
		return &reservation, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	return nil, NewError(CodeResourceReleaseMismatch, "No open reservation for this part and appointment").
		WithDetail("part_id", partID).
		WithDetail("appointment_id", appointmentID)
}

// updateUsageAverage applies exponential smoothing with weight 0.1 on
// the new observation: new = round(old*0.9 + observed*0.1)
func updateUsageAverage(db *gorm.DB, partID uint, observed int) error {
	var part models.Part
	if err := db.First(&part, partID).Error; err != nil {
		return err
	}
	smoothed := int(math.Round(float64(part.AvgUsage)*0.9 + float64(observed)*0.1))
	return db.Model(&models.Part{}).Where("id = ?", partID).
		UpdateColumn("avg_usage", smoothed).Error
}

// checkLowStock raises a low-stock notification when the shelf drops
// to or below the reorder point
func checkLowStock(db *gorm.DB, partID uint) error {
	var part models.Part
	if err := db.First(&part, partID).Error; err != nil {
		return err
	}
	if part.ReorderPoint <= 0 || part.CurrentStock > part.ReorderPoint {
		return nil
	}
	return NotifyLowStock(db, &part)
}
