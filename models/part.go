package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Part reservation statuses
const (
	ReservationStatusReserved  = "reserved"
	ReservationStatusUsed      = "used"
	ReservationStatusReturned  = "returned"
	ReservationStatusCancelled = "cancelled"
)

// Part is a physical inventory item. Stock lives in three buckets:
// CurrentStock (on the shelf), ReservedStock (claimed by appointments)
// and UsedStock (consumed). Reserve, use and release only move
// quantity between buckets; only an explicit stock adjustment changes
// the total.
type Part struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"not null" json:"name"`
	SKU         string          `gorm:"uniqueIndex;not null" json:"sku"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`

	CurrentStock  int `gorm:"not null;default:0;check:current_stock >= 0" json:"current_stock"`
	ReservedStock int `gorm:"not null;default:0" json:"reserved_stock"`
	UsedStock     int `gorm:"not null;default:0" json:"used_stock"`

	// ReorderPoint triggers a low-stock notification when CurrentStock
	// drops to or below it.
	ReorderPoint int `gorm:"not null;default:0" json:"reorder_point"`

	// AvgUsage is an exponentially smoothed per-job usage statistic
	// (weight 0.1 on each new observation). Analytics only, never
	// consulted by reservation logic.
	AvgUsage int `gorm:"not null;default:0" json:"avg_usage"`

	Reservations []PartReservation `gorm:"foreignKey:PartID" json:"reservations,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Part model
func (Part) TableName() string {
	return "parts"
}

// StockTotal returns the conserved three-bucket sum
func (p *Part) StockTotal() int {
	return p.CurrentStock + p.ReservedStock + p.UsedStock
}

// PartReservation is a committed, reversible claim of a quantity of a
// part by one appointment
type PartReservation struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	Reference     string `gorm:"uniqueIndex;not null" json:"reference"` // uuid
	PartID        uint   `gorm:"not null;index" json:"part_id"`
	AppointmentID uint   `gorm:"not null;index" json:"appointment_id"`
	Quantity      int    `gorm:"not null;check:quantity > 0" json:"quantity"`
	QuantityUsed  int    `gorm:"not null;default:0" json:"quantity_used"`
	Status        string `gorm:"not null;default:'reserved';index" json:"status"`
	ReservedByID  uint   `gorm:"not null" json:"reserved_by_id"`

	// WorkStartedAt marks the reservation as active work-in-progress
	// once payment is confirmed. Status marker only, no quantity moves.
	WorkStartedAt *time.Time `json:"work_started_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PartReservation model
func (PartReservation) TableName() string {
	return "part_reservations"
}

// IsOpen reports whether the reservation still holds stock
func (r *PartReservation) IsOpen() bool {
	return r.Status == ReservationStatusReserved
}

// StockAdjustment is the audit entry for a manual stock correction
// (receiving a shipment, damage write-off, recount)
type StockAdjustment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PartID        uint      `gorm:"not null;index" json:"part_id"`
	Delta         int       `gorm:"not null" json:"delta"`
	PreviousStock int       `gorm:"not null" json:"previous_stock"`
	NewStock      int       `gorm:"not null" json:"new_stock"`
	Reason        string    `gorm:"not null" json:"reason"`
	ActorID       uint      `gorm:"not null" json:"actor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName specifies the table name for the StockAdjustment model
func (StockAdjustment) TableName() string {
	return "stock_adjustments"
}
