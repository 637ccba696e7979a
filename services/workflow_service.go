package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marlowe-motors/garage-api/config"
	"github.com/marlowe-motors/garage-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The workflow engine owns the appointment state machine. Transition
// legality comes from one table, authorization from the capability
// table, and every transition runs in a single transaction so a
// resource failure leaves both the appointment and the resource
// untouched.

// legalTransitions maps each workflow action to the detailed statuses
// it may be invoked from.
var legalTransitions = map[string][]string{
	ActionStaffConfirm:        {models.DetailedPendingConfirmation},
	ActionStaffReject:         {models.DetailedPendingConfirmation},
	ActionCustomerArrived:     {models.DetailedConfirmed},
	ActionSubmitReception:     {models.DetailedCustomerArrived},
	ActionReviewReception:     {models.DetailedReceptionSubmitted},
	ActionConfirmPayment:      {models.DetailedPendingPayment},
	ActionCompleteAppointment: {models.DetailedInProgress},
	ActionReschedule:          {models.DetailedPendingConfirmation, models.DetailedConfirmed},
	ActionRequestCancellation: {
		models.DetailedPendingConfirmation,
		models.DetailedConfirmed,
		models.DetailedCustomerArrived,
		models.DetailedReceptionSubmitted,
		models.DetailedPendingPayment,
		models.DetailedInProgress,
	},
	ActionApproveCancellation: {models.DetailedCancelRequested},
}

// checkTransition validates action legality for the appointment's
// current detailed status. Illegal pairs leave the status unchanged
// and surface the current state.
func checkTransition(action string, appt *models.Appointment) error {
	for _, from := range legalTransitions[action] {
		if appt.DetailedStatus == from {
			return nil
		}
	}
	return NewError(CodeInvalidStateTransition, "Action is not legal for the current appointment status").
		WithDetail("action", action).
		WithDetail("status", appt.Status).
		WithDetail("detailed_status", appt.DetailedStatus)
}

// CreateAppointmentInput is the booking request
type CreateAppointmentInput struct {
	CustomerID uint // required when a staff member books on behalf of a customer
	VehicleID  uint
	SlotID     uint
	Services   []ServiceLineInput
	Comment    string
}

// ServiceLineInput is one requested service on a booking
type ServiceLineInput struct {
	ServiceItemID uint
	Quantity      int
}

// PartRequestInput is one part claim raised during reception
type PartRequestInput struct {
	PartID   uint
	Quantity int
}

// ReceptionInput is the technician's intake payload
type ReceptionInput struct {
	Findings     string
	Recommended  string
	PhotoKeys    []string
	PartRequests []PartRequestInput
}

// PartUsageInput reports actual consumption of one reserved part at
// completion time
type PartUsageInput struct {
	PartID       uint
	QuantityUsed int
}

// CreateAppointment books a slot seat and creates the appointment in
// pending_confirmation. When no seat is available nothing is persisted.
func CreateAppointment(db *gorm.DB, actor *models.User, input CreateAppointmentInput) (*models.Appointment, error) {
	if err := CheckPolicy(db, actor, ActionCreateAppointment, nil); err != nil {
		return nil, err
	}

	customerID := actor.ID
	if actor.Role == models.RoleStaff {
		if input.CustomerID == 0 {
			return nil, NewError(CodeValidation, "customer_id is required when staff book on behalf of a customer")
		}
		customerID = input.CustomerID
	}

	var vehicle models.Vehicle
	if err := db.First(&vehicle, input.VehicleID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Vehicle not found")
		}
		return nil, err
	}
	if vehicle.OwnerID != customerID {
		return nil, NewError(CodeVehicleNotOwned, "Vehicle does not belong to the booking customer")
	}

	if len(input.Services) == 0 {
		return nil, NewError(CodeValidation, "At least one service must be requested")
	}

	var appt *models.Appointment
	err := db.Transaction(func(tx *gorm.DB) error {
		var slot models.Slot
		if err := tx.First(&slot, input.SlotID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewError(CodeSlotUnavailable, "Slot not found")
			}
			return err
		}
		if !slot.StartsAt.After(time.Now()) {
			return NewError(CodeValidation, "Slot is in the past")
		}

		if err := ReserveSeat(tx, slot.ID); err != nil {
			return err
		}

		holdExpiry := time.Now().Add(time.Duration(config.GetConfig().SlotHoldMinutes) * time.Minute)
		appt = &models.Appointment{
			CustomerID:        customerID,
			VehicleID:         vehicle.ID,
			SlotID:            slot.ID,
			Comment:           input.Comment,
			SeatHoldExpiresAt: &holdExpiry,
		}
		appt.SetDetailedStatus(models.DetailedPendingConfirmation)
		if err := tx.Create(appt).Error; err != nil {
			return err
		}

		for _, line := range input.Services {
			if line.Quantity <= 0 {
				return NewError(CodeValidation, "Service quantity must be positive")
			}
			var item models.ServiceItem
			if err := tx.First(&item, line.ServiceItemID).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return NewError(CodeNotFound, "Service item not found").
						WithDetail("service_item_id", line.ServiceItemID)
				}
				return err
			}
			if !item.Active {
				return NewError(CodeValidation, "Service item is not offered").
					WithDetail("service_item_id", item.ID)
			}
			if err := tx.Create(&models.AppointmentService{
				AppointmentID: appt.ID,
				ServiceItemID: item.ID,
				Quantity:      line.Quantity,
				Price:         item.Price,
			}).Error; err != nil {
				return err
			}
		}

		return NotifyStatusChanged(tx, appt, "")
	})
	if err != nil {
		return nil, err
	}
	return GetAppointment(db, actor, appt.ID)
}

// StaffConfirm confirms a pending booking, optionally assigning a
// technician from the slot's technician set
func StaffConfirm(db *gorm.DB, actor *models.User, appointmentID uint, technicianID *uint) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionStaffConfirm, func(tx *gorm.DB, appt *models.Appointment) error {
		if technicianID != nil {
			var slot models.Slot
			if err := tx.Preload("Technicians").First(&slot, appt.SlotID).Error; err != nil {
				return err
			}
			if !slot.HasTechnician(*technicianID) {
				return NewError(CodeTechnicianNotInSlot, "Technician is not assigned to the appointment's slot").
					WithDetail("technician_id", *technicianID).
					WithDetail("slot_id", slot.ID)
			}
			appt.TechnicianID = technicianID
		}
		now := time.Now()
		appt.ConfirmedAt = &now
		appt.SeatHoldExpiresAt = nil
		appt.SetDetailedStatus(models.DetailedConfirmed)
		return nil
	})
}

// StaffReject rejects a pending booking and releases its seat
func StaffReject(db *gorm.DB, actor *models.User, appointmentID uint, reason string) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionStaffReject, func(tx *gorm.DB, appt *models.Appointment) error {
		if err := ReleaseSeat(tx, appt.SlotID); err != nil {
			return err
		}
		appt.CancelReason = reason
		appt.SeatHoldExpiresAt = nil
		appt.SetDetailedStatus(models.DetailedRejected)
		return nil
	})
}

// MarkCustomerArrived records the customer's arrival
func MarkCustomerArrived(db *gorm.DB, actor *models.User, appointmentID uint) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionCustomerArrived, func(tx *gorm.DB, appt *models.Appointment) error {
		now := time.Now()
		appt.ArrivedAt = &now
		appt.SetDetailedStatus(models.DetailedCustomerArrived)
		return nil
	})
}

// SubmitReception attaches the technician's inspection findings and
// part requests. Parts whose pending demand fits current stock are
// reserved immediately; over-committed parts raise a conflict and the
// requests stay pending for staff adjudication.
func SubmitReception(db *gorm.DB, actor *models.User, appointmentID uint, input ReceptionInput) (*models.Appointment, error) {
	if strings.TrimSpace(input.Findings) == "" {
		return nil, NewError(CodeValidation, "Reception findings are required")
	}
	return runTransition(db, actor, appointmentID, ActionSubmitReception, func(tx *gorm.DB, appt *models.Appointment) error {
		reception := models.Reception{
			AppointmentID: appt.ID,
			SubmittedByID: actor.ID,
			Findings:      input.Findings,
			Recommended:   input.Recommended,
			PhotoKeys:     strings.Join(input.PhotoKeys, ","),
			Status:        "submitted",
		}
		if err := tx.Create(&reception).Error; err != nil {
			return err
		}

		partIDs := make([]uint, 0, len(input.PartRequests))
		seen := make(map[uint]bool)
		for _, pr := range input.PartRequests {
			if pr.Quantity <= 0 {
				return NewError(CodeValidation, "Part request quantity must be positive")
			}
			if err := tx.Create(&models.PartRequest{
				AppointmentID: appt.ID,
				PartID:        pr.PartID,
				Quantity:      pr.Quantity,
				RequestedByID: actor.ID,
				Status:        models.RequestStatusPending,
			}).Error; err != nil {
				return err
			}
			if !seen[pr.PartID] {
				seen[pr.PartID] = true
				partIDs = append(partIDs, pr.PartID)
			}
		}

		// Reserve where demand fits, raise conflicts where it doesn't.
		for _, partID := range partIDs {
			conflict, err := DetectConflict(tx, partID)
			if err != nil {
				return err
			}
			if conflict != nil && conflict.Status == models.ConflictStatusOpen {
				continue
			}

			var requests []models.PartRequest
			if err := tx.Where("appointment_id = ? AND part_id = ? AND status = ?",
				appt.ID, partID, models.RequestStatusPending).
				Order("id").Find(&requests).Error; err != nil {
				return err
			}
			for i := range requests {
				reservation, err := ReservePart(tx, partID, appt.ID, requests[i].Quantity, actor.ID)
				if err != nil {
					return err
				}
				now := time.Now()
				requests[i].Status = models.RequestStatusApproved
				requests[i].ReservationID = &reservation.ID
				requests[i].DecidedByID = &actor.ID
				requests[i].DecidedAt = &now
				if err := tx.Save(&requests[i]).Error; err != nil {
					return err
				}
			}
		}

		appt.SetDetailedStatus(models.DetailedReceptionSubmitted)
		return nil
	})
}

// ReviewReception applies the staff decision on a submitted reception.
// Approval requires every part request resolved (no open conflicts)
// and opens the payment gate; rejection returns the appointment to
// customer_arrived and releases everything the submission reserved.
func ReviewReception(db *gorm.DB, actor *models.User, appointmentID uint, approve bool, note string) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionReviewReception, func(tx *gorm.DB, appt *models.Appointment) error {
		var reception models.Reception
		if err := tx.Where("appointment_id = ?", appt.ID).First(&reception).Error; err != nil {
			return err
		}
		now := time.Now()

		if !approve {
			if err := ReleaseAppointmentParts(tx, appt.ID); err != nil {
				return err
			}
			if err := tx.Model(&models.PartRequest{}).
				Where("appointment_id = ? AND status IN ?", appt.ID,
					[]string{models.RequestStatusPending, models.RequestStatusApproved}).
				UpdateColumns(map[string]interface{}{
					"status":        models.RequestStatusRejected,
					"decided_by_id": actor.ID,
					"decided_at":    now,
					"decision_note": "reception rejected",
				}).Error; err != nil {
				return err
			}
			if err := closeDecidedConflictsFor(tx, appt.ID); err != nil {
				return err
			}
			// The submission is withdrawn so the technician can redo
			// the intake from a clean slate.
			if err := tx.Delete(&reception).Error; err != nil {
				return err
			}
			appt.ReceptionReviewedAt = &now
			appt.SetDetailedStatus(models.DetailedCustomerArrived)
			return nil
		}

		open, err := HasOpenConflicts(tx, appt.ID)
		if err != nil {
			return err
		}
		if open {
			return NewError(CodeConflictUnresolved, "Part requests are still awaiting resolution").
				WithDetail("appointment_id", appt.ID).
				WithDetail("detailed_status", appt.DetailedStatus)
		}

		amount, err := amountDue(tx, appt.ID)
		if err != nil {
			return err
		}

		intent := models.PaymentIntent{
			AppointmentID: appt.ID,
			Reference:     uuid.NewString(),
			Amount:        amount,
			Status:        models.PaymentStatusPending,
			ExpiresAt:     now.Add(time.Duration(config.GetConfig().PaymentHoldMinutes) * time.Minute),
		}
		if err := tx.Create(&intent).Error; err != nil {
			return err
		}

		reception.Status = "approved"
		reception.ReviewNote = note
		reception.ReviewedByID = &actor.ID
		reception.ReviewedAt = &now
		if err := tx.Save(&reception).Error; err != nil {
			return err
		}

		appt.AmountDue = &amount
		appt.PaymentRef = &intent.Reference
		appt.ReceptionReviewedAt = &now
		appt.SetDetailedStatus(models.DetailedPendingPayment)
		return nil
	})
}

// ConfirmPayment consumes the payment-success fact from the gateway.
// The amount and correlation reference must match the open intent.
// On success work starts: reserved parts become active work-in-progress.
func ConfirmPayment(db *gorm.DB, actor *models.User, appointmentID uint, reference string, amount decimal.Decimal) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionConfirmPayment, func(tx *gorm.DB, appt *models.Appointment) error {
		var intent models.PaymentIntent
		err := tx.Where("appointment_id = ? AND reference = ?", appt.ID, reference).
			First(&intent).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewError(CodePaymentMismatch, "No payment intent with this reference").
					WithDetail("reference", reference)
			}
			return err
		}
		if intent.Status != models.PaymentStatusPending {
			return NewError(CodePaymentExpired, "Payment intent is no longer payable").
				WithDetail("intent_status", intent.Status)
		}
		if time.Now().After(intent.ExpiresAt) {
			return NewError(CodePaymentExpired, "Payment intent has expired").
				WithDetail("expired_at", intent.ExpiresAt)
		}
		if !intent.Amount.Equal(amount) {
			return NewError(CodePaymentMismatch, "Paid amount does not match the amount due").
				WithDetail("amount_due", intent.Amount.String()).
				WithDetail("amount_paid", amount.String())
		}

		now := time.Now()
		intent.Status = models.PaymentStatusConfirmed
		intent.ConfirmedAt = &now
		if err := tx.Save(&intent).Error; err != nil {
			return err
		}

		if err := MarkAppointmentPartsInProgress(tx, appt.ID); err != nil {
			return err
		}

		appt.PaidAt = &now
		appt.StartedAt = &now
		appt.SetDetailedStatus(models.DetailedInProgress)
		return NotifyInvoiceRequested(tx, appt, "payment_confirmed")
	})
}

// CompleteAppointment closes the work order. Every reserved part is
// either marked used with its actual consumption or released in full.
func CompleteAppointment(db *gorm.DB, actor *models.User, appointmentID uint, usage []PartUsageInput) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionCompleteAppointment, func(tx *gorm.DB, appt *models.Appointment) error {
		used := make(map[uint]int, len(usage))
		for _, u := range usage {
			used[u.PartID] = u.QuantityUsed
		}

		var reservations []models.PartReservation
		if err := tx.Where("appointment_id = ? AND status = ?",
			appt.ID, models.ReservationStatusReserved).
			Find(&reservations).Error; err != nil {
			return err
		}
		for _, r := range reservations {
			if qty, ok := used[r.PartID]; ok {
				if _, err := MarkPartUsed(tx, r.PartID, appt.ID, qty); err != nil {
					return err
				}
				delete(used, r.PartID)
			} else {
				if _, err := ReleasePart(tx, r.PartID, appt.ID); err != nil {
					return err
				}
			}
		}
		// Usage reported for a part this appointment never reserved.
		for partID := range used {
			return NewError(CodeResourceReleaseMismatch, "Usage reported for a part with no open reservation").
				WithDetail("part_id", partID)
		}

		now := time.Now()
		appt.CompletedAt = &now
		appt.SetDetailedStatus(models.DetailedCompleted)
		return NotifyInvoiceRequested(tx, appt, "completed")
	})
}

// RequestCancellation flags a non-terminal appointment for cancellation
func RequestCancellation(db *gorm.DB, actor *models.User, appointmentID uint, reason string) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionRequestCancellation, func(tx *gorm.DB, appt *models.Appointment) error {
		appt.CancelReason = reason
		appt.SetDetailedStatus(models.DetailedCancelRequested)
		return nil
	})
}

// ApproveCancellation releases the slot seat, open part reservations
// and any pending payment intent, then closes the appointment
func ApproveCancellation(db *gorm.DB, actor *models.User, appointmentID uint) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionApproveCancellation, func(tx *gorm.DB, appt *models.Appointment) error {
		if err := ReleaseSeat(tx, appt.SlotID); err != nil {
			return err
		}
		if err := ReleaseAppointmentParts(tx, appt.ID); err != nil {
			return err
		}
		if err := tx.Model(&models.PaymentIntent{}).
			Where("appointment_id = ? AND status = ?", appt.ID, models.PaymentStatusPending).
			UpdateColumn("status", models.PaymentStatusCancelled).Error; err != nil {
			return err
		}

		now := time.Now()
		appt.CancelledAt = &now
		appt.SeatHoldExpiresAt = nil
		appt.SetDetailedStatus(models.DetailedCancelApproved)
		return nil
	})
}

// RescheduleAppointment moves the booking to a new slot. The new seat
// is reserved before the old one is released so a full new slot aborts
// the whole transition with the old seat intact.
func RescheduleAppointment(db *gorm.DB, actor *models.User, appointmentID, newSlotID uint) (*models.Appointment, error) {
	return runTransition(db, actor, appointmentID, ActionReschedule, func(tx *gorm.DB, appt *models.Appointment) error {
		if newSlotID == appt.SlotID {
			return NewError(CodeValidation, "Appointment is already booked in this slot")
		}
		var newSlot models.Slot
		if err := tx.First(&newSlot, newSlotID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return NewError(CodeSlotUnavailable, "Slot not found")
			}
			return err
		}
		if !newSlot.StartsAt.After(time.Now()) {
			return NewError(CodeValidation, "Slot is in the past")
		}

		// Acquire first; failure here rolls back with the old seat held.
		if err := ReserveSeat(tx, newSlotID); err != nil {
			return err
		}
		if err := ReleaseSeat(tx, appt.SlotID); err != nil {
			return err
		}

		oldSlotID := appt.SlotID
		holdExpiry := time.Now().Add(time.Duration(config.GetConfig().SlotHoldMinutes) * time.Minute)
		appt.RescheduledFromSlotID = &oldSlotID
		appt.SlotID = newSlotID
		appt.TechnicianID = nil
		appt.ConfirmedAt = nil
		appt.SeatHoldExpiresAt = &holdExpiry
		appt.SetDetailedStatus(models.DetailedPendingConfirmation)
		return nil
	})
}

// GetAppointment loads an appointment with its associations, policy
// checked against the actor
func GetAppointment(db *gorm.DB, actor *models.User, appointmentID uint) (*models.Appointment, error) {
	appt, err := loadAppointment(db, appointmentID)
	if err != nil {
		return nil, err
	}
	if err := CheckPolicy(db, actor, ActionViewAppointment, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// runTransition is the shared shape of every workflow transition:
// load fresh state, check policy and legality, apply the action, save
// with an optimistic version guard, emit the status event. Stale
// writes retry the whole transaction a bounded number of times.
func runTransition(db *gorm.DB, actor *models.User, appointmentID uint, action string,
	apply func(tx *gorm.DB, appt *models.Appointment) error) (*models.Appointment, error) {

	retries := config.GetConfig().StaleWriteRetries
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			var appt models.Appointment
			if dbErr := tx.First(&appt, appointmentID).Error; dbErr != nil {
				if dbErr == gorm.ErrRecordNotFound {
					return NewError(CodeNotFound, "Appointment not found")
				}
				return dbErr
			}

			if polErr := CheckPolicy(tx, actor, action, &appt); polErr != nil {
				return polErr
			}
			if trErr := checkTransition(action, &appt); trErr != nil {
				return trErr
			}

			previous := appt.DetailedStatus
			if appErr := apply(tx, &appt); appErr != nil {
				return appErr
			}

			if saveErr := saveAppointment(tx, &appt); saveErr != nil {
				return saveErr
			}
			return NotifyStatusChanged(tx, &appt, previous)
		})
		if !IsCode(err, CodeStaleWrite) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return loadAppointment(db, appointmentID)
}

// saveAppointment persists the appointment guarded by its version;
// a concurrent transition since load surfaces as STALE_WRITE
func saveAppointment(tx *gorm.DB, appt *models.Appointment) error {
	expected := appt.Version
	appt.Version++
	res := tx.Model(&models.Appointment{}).
		Where("id = ? AND version = ?", appt.ID, expected).
		Select("status", "detailed_status", "version", "technician_id",
			"slot_id", "amount_due", "payment_ref", "comment", "cancel_reason",
			"seat_hold_expires_at", "rescheduled_from_slot_id",
			"confirmed_at", "arrived_at", "reception_reviewed_at",
			"paid_at", "started_at", "completed_at", "cancelled_at").
		Updates(appt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return NewError(CodeStaleWrite, "Appointment was modified concurrently").
			WithDetail("appointment_id", appt.ID)
	}
	return nil
}

// amountDue sums the service lines and the approved part requests
func amountDue(tx *gorm.DB, appointmentID uint) (decimal.Decimal, error) {
	total := decimal.Zero

	var lines []models.AppointmentService
	if err := tx.Where("appointment_id = ?", appointmentID).Find(&lines).Error; err != nil {
		return total, err
	}
	for _, line := range lines {
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	var requests []models.PartRequest
	if err := tx.Preload("Part").
		Where("appointment_id = ? AND status = ?", appointmentID, models.RequestStatusApproved).
		Find(&requests).Error; err != nil {
		return total, err
	}
	for _, req := range requests {
		total = total.Add(req.Part.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))))
	}

	return total, nil
}

func loadAppointment(db *gorm.DB, appointmentID uint) (*models.Appointment, error) {
	var appt models.Appointment
	err := db.
		Preload("Customer").
		Preload("Vehicle").
		Preload("Slot").
		Preload("Technician").
		Preload("Services.ServiceItem").
		Preload("Reception").
		First(&appt, appointmentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Appointment not found")
		}
		return nil, err
	}
	return &appt, nil
}
