package services

import (
	"sync"
	"testing"

	"github.com/marlowe-motors/garage-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func createTestPart(t *testing.T, db *gorm.DB, sku string, stock int) *models.Part {
	part := models.Part{
		Name:         "Part " + sku,
		SKU:          sku,
		UnitPrice:    decimal.NewFromFloat(19.99),
		CurrentStock: stock,
	}
	if err := db.Create(&part).Error; err != nil {
		t.Fatalf("Failed to create test part: %v", err)
	}
	return &part
}

func reloadPart(t *testing.T, db *gorm.DB, id uint) *models.Part {
	var part models.Part
	if err := db.First(&part, id).Error; err != nil {
		t.Fatalf("Failed to reload part: %v", err)
	}
	return &part
}

func TestReservePartMovesStockBetweenBuckets(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "BRK-001", 10)

	reservation, err := ReservePart(db, part.ID, 1, 3, 1)
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReserved, reservation.Status)
	assert.Equal(t, 3, reservation.Quantity)
	assert.NotEmpty(t, reservation.Reference)

	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 7, reloaded.CurrentStock)
	assert.Equal(t, 3, reloaded.ReservedStock)
	assert.Equal(t, 0, reloaded.UsedStock)
	assert.Equal(t, 10, reloaded.StockTotal())
}

func TestReservePartInsufficientStock(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "BRK-002", 2)

	_, err := ReservePart(db, part.ID, 1, 5, 1)
	assert.Error(t, err)
	assert.True(t, IsCode(err, CodeInsufficientStock))

	// Nothing moved
	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 2, reloaded.CurrentStock)
	assert.Equal(t, 0, reloaded.ReservedStock)

	// Bad quantities are rejected up front
	_, err = ReservePart(db, part.ID, 1, 0, 1)
	assert.True(t, IsCode(err, CodeValidation))
	_, err = ReservePart(db, 9999, 1, 1, 1)
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestConcurrentPartReservations(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "OIL-001", 5)

	// Two appointments race for 3 units each with only 5 on the shelf;
	// the conditional decrement lets exactly one through.
	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := uint(1); i <= 2; i++ {
		wg.Add(1)
		go func(appointmentID uint) {
			defer wg.Done()
			_, err := ReservePart(db, part.ID, appointmentID, 3, 1)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes, insufficient int
	for err := range results {
		if err == nil {
			successes++
		} else if IsCode(err, CodeInsufficientStock) {
			insufficient++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, insufficient)

	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 2, reloaded.CurrentStock)
	assert.Equal(t, 3, reloaded.ReservedStock)
	assert.Equal(t, 5, reloaded.StockTotal())
}

func TestMarkPartUsedReturnsRemainder(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "FLT-001", 10)

	_, err := ReservePart(db, part.ID, 1, 4, 1)
	assert.NoError(t, err)

	// 3 of the 4 reserved units were consumed; 1 goes back on the shelf
	reservation, err := MarkPartUsed(db, part.ID, 1, 3)
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationStatusUsed, reservation.Status)
	assert.Equal(t, 3, reservation.QuantityUsed)
	assert.NotNil(t, reservation.ClosedAt)

	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 7, reloaded.CurrentStock)
	assert.Equal(t, 0, reloaded.ReservedStock)
	assert.Equal(t, 3, reloaded.UsedStock)
	assert.Equal(t, 10, reloaded.StockTotal())

	// The reservation is closed; a second usage report is a mismatch
	_, err = MarkPartUsed(db, part.ID, 1, 1)
	assert.True(t, IsCode(err, CodeResourceReleaseMismatch))
}

func TestMarkPartUsedValidatesQuantity(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "FLT-002", 10)

	_, err := ReservePart(db, part.ID, 1, 4, 1)
	assert.NoError(t, err)

	_, err = MarkPartUsed(db, part.ID, 1, 5)
	assert.True(t, IsCode(err, CodeValidation))
	_, err = MarkPartUsed(db, part.ID, 1, -1)
	assert.True(t, IsCode(err, CodeValidation))

	// Zero consumption is legal and returns everything
	reservation, err := MarkPartUsed(db, part.ID, 1, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, reservation.QuantityUsed)

	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 10, reloaded.CurrentStock)
	assert.Equal(t, 0, reloaded.UsedStock)
}

func TestReleasePart(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "SPK-001", 6)

	_, err := ReservePart(db, part.ID, 1, 4, 1)
	assert.NoError(t, err)

	reservation, err := ReleasePart(db, part.ID, 1)
	assert.NoError(t, err)
	assert.Equal(t, models.ReservationStatusReturned, reservation.Status)

	reloaded := reloadPart(t, db, part.ID)
	assert.Equal(t, 6, reloaded.CurrentStock)
	assert.Equal(t, 0, reloaded.ReservedStock)
	assert.Equal(t, 6, reloaded.StockTotal())

	// Double release is a mismatch and moves nothing
	_, err = ReleasePart(db, part.ID, 1)
	assert.True(t, IsCode(err, CodeResourceReleaseMismatch))
	reloaded = reloadPart(t, db, part.ID)
	assert.Equal(t, 6, reloaded.CurrentStock)
}

func TestReleaseAppointmentParts(t *testing.T) {
	db := setupServiceTestDB(t)
	partA := createTestPart(t, db, "REL-A", 5)
	partB := createTestPart(t, db, "REL-B", 5)

	_, err := ReservePart(db, partA.ID, 7, 2, 1)
	assert.NoError(t, err)
	_, err = ReservePart(db, partB.ID, 7, 3, 1)
	assert.NoError(t, err)
	// Another appointment's reservation must survive the release
	_, err = ReservePart(db, partA.ID, 8, 1, 1)
	assert.NoError(t, err)

	assert.NoError(t, ReleaseAppointmentParts(db, 7))

	assert.Equal(t, 4, reloadPart(t, db, partA.ID).CurrentStock)
	assert.Equal(t, 1, reloadPart(t, db, partA.ID).ReservedStock)
	assert.Equal(t, 5, reloadPart(t, db, partB.ID).CurrentStock)
}

func TestAdjustStock(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|inv-staff", models.RoleStaff)
	tech := createTestUser(t, db, "auth0|inv-tech", models.RoleTechnician)
	part := createTestPart(t, db, "ADJ-001", 5)

	adjustment, err := AdjustStock(db, staff, part.ID, 10, "delivery received")
	assert.NoError(t, err)
	assert.Equal(t, 5, adjustment.PreviousStock)
	assert.Equal(t, 15, adjustment.NewStock)
	assert.Equal(t, staff.ID, adjustment.ActorID)
	assert.Equal(t, 15, reloadPart(t, db, part.ID).CurrentStock)

	// Negative corrections work but cannot take the shelf below zero
	_, err = AdjustStock(db, staff, part.ID, -20, "shrinkage")
	assert.True(t, IsCode(err, CodeValidation))
	_, err = AdjustStock(db, staff, part.ID, -15, "annual writeoff")
	assert.NoError(t, err)
	assert.Equal(t, 0, reloadPart(t, db, part.ID).CurrentStock)

	// Technicians cannot adjust stock
	_, err = AdjustStock(db, tech, part.ID, 1, "found one")
	assert.True(t, IsCode(err, CodeForbidden))

	// Reason and non-zero delta are required
	_, err = AdjustStock(db, staff, part.ID, 0, "noop")
	assert.True(t, IsCode(err, CodeValidation))
	_, err = AdjustStock(db, staff, part.ID, 1, "")
	assert.True(t, IsCode(err, CodeValidation))

	var count int64
	db.Model(&models.StockAdjustment{}).Where("part_id = ?", part.ID).Count(&count)
	assert.Equal(t, int64(2), count)
}

func TestUsageAverageSmoothing(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "AVG-001", 100)

	// First observation from zero: round(0*0.9 + 10*0.1) = 1
	_, err := ReservePart(db, part.ID, 1, 10, 1)
	assert.NoError(t, err)
	_, err = MarkPartUsed(db, part.ID, 1, 10)
	assert.NoError(t, err)
	assert.Equal(t, 1, reloadPart(t, db, part.ID).AvgUsage)

	// Seed a history and observe again: round(20*0.9 + 10*0.1) = 19
	db.Model(&models.Part{}).Where("id = ?", part.ID).UpdateColumn("avg_usage", 20)
	_, err = ReservePart(db, part.ID, 2, 10, 1)
	assert.NoError(t, err)
	_, err = MarkPartUsed(db, part.ID, 2, 10)
	assert.NoError(t, err)
	assert.Equal(t, 19, reloadPart(t, db, part.ID).AvgUsage)
}

func TestLowStockNotification(t *testing.T) {
	db := setupServiceTestDB(t)
	part := createTestPart(t, db, "LOW-001", 5)
	db.Model(&models.Part{}).Where("id = ?", part.ID).UpdateColumn("reorder_point", 3)

	// Still above the reorder point
	_, err := ReservePart(db, part.ID, 1, 1, 1)
	assert.NoError(t, err)
	var count int64
	db.Model(&models.Notification{}).Where("type = ?", models.NotificationLowStock).Count(&count)
	assert.Equal(t, int64(0), count)

	// Drops the shelf to 2, which is at or below the reorder point
	_, err = ReservePart(db, part.ID, 2, 2, 1)
	assert.NoError(t, err)
	db.Model(&models.Notification{}).Where("type = ?", models.NotificationLowStock).Count(&count)
	assert.Equal(t, int64(1), count)
}
