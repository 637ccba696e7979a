package services

import (
	"sync"
	"testing"
	"time"

	"github.com/marlowe-motors/garage-api/models"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupServiceTestDB creates an in-memory database shared by the
// service-layer tests. Connections are capped at one so concurrent
// goroutines serialize on the same database instead of each opening a
// fresh empty :memory: copy.
func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, auth0ID, role string) *models.User {
	user := models.User{
		Auth0ID: auth0ID,
		Name:    "Test " + role,
		Email:   auth0ID + "@example.com",
		Role:    role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return &user
}

func createTestSlot(t *testing.T, db *gorm.DB, capacity int) *models.Slot {
	slot := models.Slot{
		StartsAt: time.Now().Add(24 * time.Hour),
		EndsAt:   time.Now().Add(26 * time.Hour),
		Capacity: capacity,
		Status:   models.SlotStatusAvailable,
	}
	if err := db.Create(&slot).Error; err != nil {
		t.Fatalf("Failed to create test slot: %v", err)
	}
	return &slot
}

func TestReserveSeatCapacity(t *testing.T) {
	db := setupServiceTestDB(t)
	slot := createTestSlot(t, db, 2)

	// Two seats available, two reservations succeed
	assert.NoError(t, ReserveSeat(db, slot.ID))
	assert.NoError(t, ReserveSeat(db, slot.ID))

	// Third reservation hits the capacity guard
	err := ReserveSeat(db, slot.ID)
	assert.Error(t, err)
	assert.True(t, IsCode(err, CodeSlotFull))

	var reloaded models.Slot
	db.First(&reloaded, slot.ID)
	assert.Equal(t, 2, reloaded.BookedCount)
	assert.Equal(t, models.SlotStatusFull, reloaded.Status)

	// Releasing a seat reopens the slot
	assert.NoError(t, ReleaseSeat(db, slot.ID))
	db.First(&reloaded, slot.ID)
	assert.Equal(t, 1, reloaded.BookedCount)
	assert.Equal(t, models.SlotStatusPartiallyBooked, reloaded.Status)

	assert.NoError(t, ReserveSeat(db, slot.ID))
}

func TestReserveSeatUnavailable(t *testing.T) {
	db := setupServiceTestDB(t)

	// Missing slot
	err := ReserveSeat(db, 12345)
	assert.True(t, IsCode(err, CodeSlotUnavailable))

	// Disabled slot
	slot := createTestSlot(t, db, 3)
	db.Model(&models.Slot{}).Where("id = ?", slot.ID).UpdateColumn("disabled", true)
	err = ReserveSeat(db, slot.ID)
	assert.True(t, IsCode(err, CodeSlotUnavailable))
}

func TestReleaseSeatMismatch(t *testing.T) {
	db := setupServiceTestDB(t)
	slot := createTestSlot(t, db, 2)

	// Nothing is booked, so there is no seat to return
	err := ReleaseSeat(db, slot.ID)
	assert.Error(t, err)
	assert.True(t, IsCode(err, CodeResourceReleaseMismatch))

	var reloaded models.Slot
	db.First(&reloaded, slot.ID)
	assert.Equal(t, 0, reloaded.BookedCount)
}

func TestConcurrentSeatReservations(t *testing.T) {
	db := setupServiceTestDB(t)
	slot := createTestSlot(t, db, 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ReserveSeat(db, slot.ID)
		}()
	}
	wg.Wait()
	close(results)

	var successes, slotFull int
	for err := range results {
		if err == nil {
			successes++
		} else if IsCode(err, CodeSlotFull) {
			slotFull++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Exactly one booking takes the last seat
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, slotFull)

	var reloaded models.Slot
	db.First(&reloaded, slot.ID)
	assert.Equal(t, 1, reloaded.BookedCount)
}

func TestCreateSlot(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|staff1", models.RoleStaff)
	customer := createTestUser(t, db, "auth0|cust1", models.RoleCustomer)

	starts := time.Now().Add(48 * time.Hour)
	ends := starts.Add(2 * time.Hour)

	slot, err := CreateSlot(db, staff, starts, ends, 3)
	assert.NoError(t, err)
	assert.Equal(t, 3, slot.Capacity)
	assert.Equal(t, models.SlotStatusAvailable, slot.Status)

	// Customers cannot open slots
	_, err = CreateSlot(db, customer, starts, ends, 3)
	assert.True(t, IsCode(err, CodeForbidden))

	// End must come after start
	_, err = CreateSlot(db, staff, ends, starts, 3)
	assert.True(t, IsCode(err, CodeValidation))

	// Capacity must be positive
	_, err = CreateSlot(db, staff, starts, ends, 0)
	assert.True(t, IsCode(err, CodeValidation))
}

func TestAssignTechnicians(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|staff2", models.RoleStaff)
	tech1 := createTestUser(t, db, "auth0|tech1", models.RoleTechnician)
	tech2 := createTestUser(t, db, "auth0|tech2", models.RoleTechnician)
	customer := createTestUser(t, db, "auth0|cust2", models.RoleCustomer)
	slot := createTestSlot(t, db, 1)

	updated, err := AssignTechnicians(db, staff, slot.ID, []uint{tech1.ID, tech2.ID}, nil)
	assert.NoError(t, err)
	assert.Len(t, updated.Technicians, 2)
	assert.True(t, updated.HasTechnician(tech1.ID))
	assert.True(t, updated.HasTechnician(tech2.ID))

	// A customer id is not a valid technician
	_, err = AssignTechnicians(db, staff, slot.ID, []uint{customer.ID}, nil)
	assert.True(t, IsCode(err, CodeValidation))

	// Capacity can grow with the roster
	capacity := 2
	updated, err = AssignTechnicians(db, staff, slot.ID, []uint{tech1.ID, tech2.ID}, &capacity)
	assert.NoError(t, err)
	assert.Equal(t, 2, updated.Capacity)

	// Capacity cannot drop below existing bookings
	assert.NoError(t, ReserveSeat(db, slot.ID))
	assert.NoError(t, ReserveSeat(db, slot.ID))
	capacity = 1
	_, err = AssignTechnicians(db, staff, slot.ID, []uint{tech1.ID}, &capacity)
	assert.True(t, IsCode(err, CodeValidation))
}

func TestAutoAssignTechnicians(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|staff3", models.RoleStaff)
	slot := createTestSlot(t, db, 1)

	// Empty roster refuses the bulk assignment
	_, err := AutoAssignTechnicians(db, staff, slot.ID)
	assert.True(t, IsCode(err, CodeValidation))

	createTestUser(t, db, "auth0|tech3", models.RoleTechnician)
	createTestUser(t, db, "auth0|tech4", models.RoleTechnician)
	createTestUser(t, db, "auth0|tech5", models.RoleTechnician)

	updated, err := AutoAssignTechnicians(db, staff, slot.ID)
	assert.NoError(t, err)
	assert.Len(t, updated.Technicians, 3)
	assert.Equal(t, 3, updated.Capacity)
}

func TestListSlots(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|staff4", models.RoleStaff)
	tech := createTestUser(t, db, "auth0|tech6", models.RoleTechnician)

	inWindow := createTestSlot(t, db, 2)
	_, err := AssignTechnicians(db, staff, inWindow.ID, []uint{tech.ID}, nil)
	assert.NoError(t, err)

	// Outside the query window
	outside := models.Slot{
		StartsAt: time.Now().Add(40 * 24 * time.Hour),
		EndsAt:   time.Now().Add(40*24*time.Hour + 2*time.Hour),
		Capacity: 2,
		Status:   models.SlotStatusAvailable,
	}
	db.Create(&outside)

	// Disabled slots are hidden
	disabled := createTestSlot(t, db, 2)
	assert.NoError(t, DisableSlot(db, staff, disabled.ID))

	from := time.Now()
	to := from.Add(7 * 24 * time.Hour)

	slots, err := ListSlots(db, from, to, nil)
	assert.NoError(t, err)
	assert.Len(t, slots, 1)
	assert.Equal(t, inWindow.ID, slots[0].ID)

	// Technician filter
	slots, err = ListSlots(db, from, to, &tech.ID)
	assert.NoError(t, err)
	assert.Len(t, slots, 1)

	other := createTestUser(t, db, "auth0|tech7", models.RoleTechnician)
	slots, err = ListSlots(db, from, to, &other.ID)
	assert.NoError(t, err)
	assert.Len(t, slots, 0)
}

func TestDisableSlot(t *testing.T) {
	db := setupServiceTestDB(t)
	staff := createTestUser(t, db, "auth0|staff5", models.RoleStaff)
	customer := createTestUser(t, db, "auth0|cust3", models.RoleCustomer)
	slot := createTestSlot(t, db, 2)

	err := DisableSlot(db, customer, slot.ID)
	assert.True(t, IsCode(err, CodeForbidden))

	assert.NoError(t, DisableSlot(db, staff, slot.ID))
	err = ReserveSeat(db, slot.ID)
	assert.True(t, IsCode(err, CodeSlotUnavailable))

	err = DisableSlot(db, staff, 9999)
	assert.True(t, IsCode(err, CodeNotFound))
}
