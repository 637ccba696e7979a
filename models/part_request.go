package models

import (
	"time"
)

// Part request approval statuses
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// Part conflict statuses
const (
	ConflictStatusOpen     = "open"
	ConflictStatusResolved = "resolved"
)

// PartRequest is a technician's claim for a quantity of a part raised
// during service reception. It stays pending until stock is reserved
// for it or staff reject it. CreatedAt ordering is the submission
// order used to tie-break conflict resolution suggestions.
type PartRequest struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	AppointmentID uint `gorm:"not null;index" json:"appointment_id"`
	PartID        uint `gorm:"not null;index" json:"part_id"`
	Part          Part `gorm:"foreignKey:PartID" json:"part"`
	Quantity      int  `gorm:"not null;check:quantity > 0" json:"quantity"`
	RequestedByID uint `gorm:"not null" json:"requested_by_id"`

	Status string `gorm:"not null;default:'pending';index" json:"status"`

	// ConflictID links the request to the conflict it is contended in,
	// if any.
	ConflictID *uint `gorm:"index" json:"conflict_id,omitempty"`

	// ReservationID links an approved request to the reservation that
	// satisfied it.
	ReservationID *uint      `json:"reservation_id,omitempty"`
	DecidedByID   *uint      `json:"decided_by_id,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	DecisionNote  string     `json:"decision_note,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PartRequest model
func (PartRequest) TableName() string {
	return "part_requests"
}

// IsDecided reports whether the request has a terminal decision
func (r *PartRequest) IsDecided() bool {
	return r.Status == RequestStatusApproved || r.Status == RequestStatusRejected
}

// PartConflict records that the pending requests for one part together
// exceed its available stock, and tracks the per-request staff
// decisions. A conflict can only resolve once every member request is
// decided.
type PartConflict struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	PartID     uint          `gorm:"not null;index" json:"part_id"`
	Part       Part          `gorm:"foreignKey:PartID" json:"part"`
	Status     string        `gorm:"not null;default:'open';index" json:"status"`
	Requests   []PartRequest `gorm:"foreignKey:ConflictID" json:"requests"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PartConflict model
func (PartConflict) TableName() string {
	return "part_conflicts"
}
