package services

import (
	"time"

	"github.com/marlowe-motors/garage-api/models"
	"gorm.io/gorm"
)

// When pending part requests from different appointments together
// exceed a part's shelf stock, a conflict is raised for staff to
// adjudicate instead of letting reservations race each other silently.

// DetectConflict scans the part's pending requests. If their combined
// quantity exceeds current stock it opens (or refreshes) a conflict
// listing every contending request in submission order, and returns
// it. Returns nil when there is no over-commitment.
func DetectConflict(db *gorm.DB, partID uint) (*models.PartConflict, error) {
	var part models.Part
	if err := db.First(&part, partID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Part not found")
		}
		return nil, err
	}

	var pending []models.PartRequest
	if err := db.Where("part_id = ? AND status = ?", partID, models.RequestStatusPending).
		Order("created_at, id").
		Find(&pending).Error; err != nil {
		return nil, err
	}

	total := 0
	for _, req := range pending {
		total += req.Quantity
	}

	var conflict models.PartConflict
	err := db.Where("part_id = ? AND status = ?", partID, models.ConflictStatusOpen).
		First(&conflict).Error
	hasOpen := err == nil
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if total <= part.CurrentStock {
		// No over-commitment. An open conflict with undecided members
		// stays open for staff; one whose members were all decided
		// elsewhere is closed here so it cannot absorb later requests.
		if hasOpen {
			if err := closeIfDecided(db, conflict.ID); err != nil {
				return nil, err
			}
			refreshed, err := loadConflict(db, conflict.ID)
			if err != nil {
				return nil, err
			}
			if refreshed.Status == models.ConflictStatusOpen {
				return refreshed, nil
			}
		}
		return nil, nil
	}

	if !hasOpen {
		conflict = models.PartConflict{
			PartID: partID,
			Status: models.ConflictStatusOpen,
		}
		if err := db.Create(&conflict).Error; err != nil {
			return nil, err
		}
	}

	// Attach every contending pending request to the conflict.
	for _, req := range pending {
		if req.ConflictID == nil || *req.ConflictID != conflict.ID {
			if err := db.Model(&models.PartRequest{}).
				Where("id = ?", req.ID).
				UpdateColumn("conflict_id", conflict.ID).Error; err != nil {
				return nil, err
			}
		}
	}

	return loadConflict(db, conflict.ID)
}

// ResolutionSuggestion is one entry of the greedy suggestion produced
// by SuggestResolution
type ResolutionSuggestion struct {
	RequestID     uint `json:"request_id"`
	AppointmentID uint `json:"appointment_id"`
	Quantity      int  `json:"quantity"`
	Approve       bool `json:"approve"`
}

// SuggestResolution proposes approving requests greedily in submission
// order until stock runs out, rejecting the remainder. A suggestion
// only; staff apply decisions request by request.
func SuggestResolution(db *gorm.DB, conflictID uint) ([]ResolutionSuggestion, error) {
	conflict, err := loadConflict(db, conflictID)
	if err != nil {
		return nil, err
	}

	var part models.Part
	if err := db.First(&part, conflict.PartID).Error; err != nil {
		return nil, err
	}

	remaining := part.CurrentStock
	suggestions := make([]ResolutionSuggestion, 0, len(conflict.Requests))
	for _, req := range conflict.Requests {
		if req.Status != models.RequestStatusPending {
			continue
		}
		approve := req.Quantity <= remaining
		if approve {
			remaining -= req.Quantity
		}
		suggestions = append(suggestions, ResolutionSuggestion{
			RequestID:     req.ID,
			AppointmentID: req.AppointmentID,
			Quantity:      req.Quantity,
			Approve:       approve,
		})
	}
	return suggestions, nil
}

// ApproveRequest applies a staff approval to one member request: the
// ledger reserves its quantity. The reservation may still fail if an
// earlier approval consumed the stock; that failure is surfaced and
// the request stays pending.
func ApproveRequest(db *gorm.DB, actor *models.User, conflictID, requestID uint) (*models.PartConflict, error) {
	if err := CheckPolicy(db, actor, ActionResolveConflict, nil); err != nil {
		return nil, err
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		conflict, request, err := conflictMember(tx, conflictID, requestID)
		if err != nil {
			return err
		}

		reservation, err := ReservePart(tx, request.PartID, request.AppointmentID, request.Quantity, actor.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		request.Status = models.RequestStatusApproved
		request.ReservationID = &reservation.ID
		request.DecidedByID = &actor.ID
		request.DecidedAt = &now
		if err := tx.Save(request).Error; err != nil {
			return err
		}

		return closeIfDecided(tx, conflict.ID)
	})
	if err != nil {
		return nil, err
	}
	return loadConflict(db, conflictID)
}

// RejectRequest applies a staff rejection to one member request. No
// ledger effect.
func RejectRequest(db *gorm.DB, actor *models.User, conflictID, requestID uint, note string) (*models.PartConflict, error) {
	if err := CheckPolicy(db, actor, ActionResolveConflict, nil); err != nil {
		return nil, err
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		conflict, request, err := conflictMember(tx, conflictID, requestID)
		if err != nil {
			return err
		}

		now := time.Now()
		request.Status = models.RequestStatusRejected
		request.DecidedByID = &actor.ID
		request.DecidedAt = &now
		request.DecisionNote = note
		if err := tx.Save(request).Error; err != nil {
			return err
		}

		return closeIfDecided(tx, conflict.ID)
	})
	if err != nil {
		return nil, err
	}
	return loadConflict(db, conflictID)
}

// HasOpenConflicts reports whether any of the appointment's part
// requests are pending or contended in an open conflict
func HasOpenConflicts(db *gorm.DB, appointmentID uint) (bool, error) {
	var count int64
	err := db.Model(&models.PartRequest{}).
		Where("appointment_id = ? AND status = ?", appointmentID, models.RequestStatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// conflictMember loads the conflict and verifies the request is an
// undecided member of it
func conflictMember(db *gorm.DB, conflictID, requestID uint) (*models.PartConflict, *models.PartRequest, error) {
	var conflict models.PartConflict
	if err := db.First(&conflict, conflictID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, NewError(CodeNotFound, "Conflict not found")
		}
		return nil, nil, err
	}
	if conflict.Status == models.ConflictStatusResolved {
		return nil, nil, NewError(CodeConflictAlreadyResolved, "Conflict is already resolved")
	}

	var request models.PartRequest
	if err := db.Where("id = ? AND conflict_id = ?", requestID, conflictID).
		First(&request).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, NewError(CodeNotFound, "Request is not a member of this conflict")
		}
		return nil, nil, err
	}
	if request.IsDecided() {
		return nil, nil, NewError(CodeRequestAlreadyDecided, "Request already has a decision").
			WithDetail("status", request.Status)
	}

	return &conflict, &request, nil
}

// closeDecidedConflictsFor closes every conflict the appointment's
// part requests belong to once no pending members remain. Bulk
// rejections go through here so a conflict is never left open with
// nothing to adjudicate.
func closeDecidedConflictsFor(db *gorm.DB, appointmentID uint) error {
	var conflictIDs []uint
	err := db.Model(&models.PartRequest{}).
		Where("appointment_id = ? AND conflict_id IS NOT NULL", appointmentID).
		Distinct().
		Pluck("conflict_id", &conflictIDs).Error
	if err != nil {
		return err
	}
	for _, id := range conflictIDs {
		if err := closeIfDecided(db, id); err != nil {
			return err
		}
	}
	return nil
}

// closeIfDecided marks the conflict resolved once every member request
// has a terminal decision
func closeIfDecided(db *gorm.DB, conflictID uint) error {
	var pending int64
	err := db.Model(&models.PartRequest{}).
		Where("conflict_id = ? AND status = ?", conflictID, models.RequestStatusPending).
		Count(&pending).Error
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	return db.Model(&models.PartConflict{}).
		Where("id = ?", conflictID).
		UpdateColumns(map[string]interface{}{
			"status":      models.ConflictStatusResolved,
			"resolved_at": time.Now(),
		}).Error
}

func loadConflict(db *gorm.DB, conflictID uint) (*models.PartConflict, error) {
	var conflict models.PartConflict
	err := db.Preload("Requests", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at, id")
	}).Preload("Part").First(&conflict, conflictID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewError(CodeNotFound, "Conflict not found")
		}
		return nil, err
	}
	return &conflict, nil
}
