package services

import (
	"log"
	"time"

	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// Held resources are bounded: a seat waiting for confirmation, a
// payment intent, and part reservations waiting for reception review
// all expire after their configured hold, so abandoned bookings cannot
// starve other customers. The sweep runs periodically from main.

// ExpireOverdueHolds releases every overdue hold and returns how many
// appointments were touched
func ExpireOverdueHolds(db *gorm.DB, now time.Time) (int, error) {
	touched := 0

	// Unconfirmed bookings past their seat hold.
	var stale []models.Appointment
	if err := db.Where("detailed_status = ? AND seat_hold_expires_at IS NOT NULL AND seat_hold_expires_at < ?",
		models.DetailedPendingConfirmation, now).
		Find(&stale).Error; err != nil {
		return touched, err
	}
	for i := range stale {
		if err := expireSeatHold(db, &stale[i]); err != nil {
			return touched, err
		}
		touched++
	}

	// Payment intents past their expiry. The appointment loses its
	// seat and parts; the customer has to rebook.
	var intents []models.PaymentIntent
	if err := db.Where("status = ? AND expires_at < ?", models.PaymentStatusPending, now).
		Find(&intents).Error; err != nil {
		return touched, err
	}
	for i := range intents {
		if err := expirePaymentHold(db, &intents[i]); err != nil {
			return touched, err
		}
		touched++
	}

	// Part reservations held pending reception review past their hold.
	partHold := time.Duration(config.GetConfig().PartHoldHours) * time.Hour
	var overdue []models.Appointment
	if err := db.Where("detailed_status = ? AND updated_at < ?",
		models.DetailedReceptionSubmitted, now.Add(-partHold)).
		Find(&overdue).Error; err != nil {
		return touched, err
	}
	for i := range overdue {
		if err := expireReceptionHold(db, &overdue[i]); err != nil {
			return touched, err
		}
		touched++
	}

	return touched, nil
}

// expireSeatHold cancels an unconfirmed booking and frees its seat
func expireSeatHold(db *gorm.DB, appt *models.Appointment) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ReleaseSeat(tx, appt.SlotID); err != nil {
			return err
		}
		now := time.Now()
		previous := appt.DetailedStatus
		appt.CancelReason = "booking hold expired"
		appt.CancelledAt = &now
		appt.SeatHoldExpiresAt = nil
		appt.SetDetailedStatus(models.DetailedCancelApproved)
		if err := saveAppointment(tx, appt); err != nil {
			return err
		}
		return NotifyStatusChanged(tx, appt, previous)
	})
}

// expirePaymentHold expires the intent and cancels the appointment,
// releasing its seat and part reservations
func expirePaymentHold(db *gorm.DB, intent *models.PaymentIntent) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PaymentIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.PaymentStatusPending).
			UpdateColumn("status", models.PaymentStatusExpired).Error; err != nil {
			return err
		}

		var appt models.Appointment
		if err := tx.First(&appt, intent.AppointmentID).Error; err != nil {
			return err
		}
		if appt.DetailedStatus != models.DetailedPendingPayment {
			// Paid or cancelled through another path while we swept.
			return nil
		}

		if err := ReleaseSeat(tx, appt.SlotID); err != nil {
			return err
		}
		if err := ReleaseAppointmentParts(tx, appt.ID); err != nil {
			return err
		}

		now := time.Now()
		previous := appt.DetailedStatus
		appt.CancelReason = "payment hold expired"
		appt.CancelledAt = &now
		appt.SetDetailedStatus(models.DetailedCancelApproved)
		if err := saveAppointment(tx, &appt); err != nil {
			return err
		}
		return NotifyStatusChanged(tx, &appt, previous)
	})
}

// expireReceptionHold withdraws a reception that staff never reviewed:
// reservations are released, requests rejected, and the appointment
// returns to customer_arrived for a fresh intake
func expireReceptionHold(db *gorm.DB, appt *models.Appointment) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ReleaseAppointmentParts(tx, appt.ID); err != nil {
			return err
		}
		now := time.Now()
		if err := tx.Model(&models.PartRequest{}).
			Where("appointment_id = ? AND status IN ?", appt.ID,
				[]string{models.RequestStatusPending, models.RequestStatusApproved}).
			UpdateColumns(map[string]interface{}{
				"status":        models.RequestStatusRejected,
				"decided_at":    now,
				"decision_note": "reception review hold expired",
			}).Error; err != nil {
			return err
		}
		if err := closeDecidedConflictsFor(tx, appt.ID); err != nil {
			return err
		}
		if err := tx.Where("appointment_id = ?", appt.ID).
			Delete(&models.Reception{}).Error; err != nil {
			return err
		}

		previous := appt.DetailedStatus
		appt.SetDetailedStatus(models.DetailedCustomerArrived)
		if err := saveAppointment(tx, appt); err != nil {
			return err
		}
		return NotifyStatusChanged(tx, appt, previous)
	})
}

// RunHoldExpirySweep runs the sweep every interval until stop is
// closed
func RunHoldExpirySweep(db *gorm.DB, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n, err := ExpireOverdueHolds(db, time.Now()); err != nil {
				log.Printf("Hold expiry sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Hold expiry sweep released %d overdue holds", n)
			}
		}
	}
}
