package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payment-service/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps the in-memory database shared and writes
	// serialized under concurrent tests.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Transaction{}, &models.CallbackLog{}, &models.NotificationLog{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM transactions")
		db.Exec("DELETE FROM callback_logs")
		db.Exec("DELETE FROM notification_logs")
	})
	return db
}

func newPending(orderID string) *models.Transaction {
	return &models.Transaction{
		OrderID:     orderID,
		Amount:      decimal.NewFromFloat(150.00),
		Email:       "payer@example.com",
		PhoneNumber: "+254700000000",
		Status:      models.StatusPending,
		Description: "Payment for goods",
	}
}

func TestCreate_DuplicateOrderID(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPending("order-1")))

	err := s.Create(ctx, newPending("order-1"))
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestGetByOrderID_NotFound(t *testing.T) {
	s := NewStore(setupTestDB(t))

	_, err := s.GetByOrderID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByTrackingID(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPending("order-2")))
	require.NoError(t, s.SetTrackingID(ctx, "order-2", "T-100"))

	got, err := s.GetByTrackingID(ctx, "T-100")
	require.NoError(t, err)
	assert.Equal(t, "order-2", got.OrderID)

	_, err = s.GetByTrackingID(ctx, "T-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetTrackingID_OnlyOnce(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPending("order-3")))
	require.NoError(t, s.SetTrackingID(ctx, "order-3", "T-1"))

	// Second assignment finds no row with a null tracking id.
	err := s.SetTrackingID(ctx, "order-3", "T-2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetByOrderID(ctx, "order-3")
	require.NoError(t, err)
	require.NotNil(t, got.TrackingID)
	assert.Equal(t, "T-1", *got.TrackingID)
}

func TestCompareAndSetStatus_Mismatch(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPending("order-4")))

	swapped, err := s.CompareAndSetStatus(ctx, "order-4", models.StatusPending, models.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, swapped)

	// Record is no longer PENDING; further attempts are silent no-ops.
	swapped, err = s.CompareAndSetStatus(ctx, "order-4", models.StatusPending, models.StatusFailed)
	require.NoError(t, err)
	assert.False(t, swapped)

	got, err := s.GetByOrderID(ctx, "order-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestCompareAndSetStatus_ConcurrentWriters(t *testing.T) {
	s := NewStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newPending("order-5")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for _, next := range []string{models.StatusCompleted, models.StatusFailed} {
		wg.Add(1)
		go func(next string) {
			defer wg.Done()
			swapped, err := s.CompareAndSetStatus(ctx, "order-5", models.StatusPending, next)
			assert.NoError(t, err)
			if swapped {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(next)
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one writer should win the CAS")

	got, err := s.GetByOrderID(ctx, "order-5")
	require.NoError(t, err)
	assert.True(t, models.IsTerminal(got.Status))
}

func TestListStalePending(t *testing.T) {
	db := setupTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	// Stale pending with tracking id: the only sweep candidate.
	stale := newPending("stale-1")
	require.NoError(t, s.Create(ctx, stale))
	require.NoError(t, s.SetTrackingID(ctx, "stale-1", "T-stale"))
	db.Model(&models.Transaction{}).Where("order_id = ?", "stale-1").
		Update("created_at", time.Now().Add(-30*time.Minute))

	// Stale pending without tracking id: gateway never accepted it.
	noTracking := newPending("stale-2")
	require.NoError(t, s.Create(ctx, noTracking))
	db.Model(&models.Transaction{}).Where("order_id = ?", "stale-2").
		Update("created_at", time.Now().Add(-30*time.Minute))

	// Fresh pending: webhook still has a chance.
	fresh := newPending("fresh-1")
	require.NoError(t, s.Create(ctx, fresh))
	require.NoError(t, s.SetTrackingID(ctx, "fresh-1", "T-fresh"))

	// Stale but already terminal.
	done := newPending("done-1")
	require.NoError(t, s.Create(ctx, done))
	require.NoError(t, s.SetTrackingID(ctx, "done-1", "T-done"))
	db.Model(&models.Transaction{}).Where("order_id = ?", "done-1").
		Updates(map[string]interface{}{"status": models.StatusCompleted, "created_at": time.Now().Add(-30 * time.Minute)})

	out, err := s.ListStalePending(ctx, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "stale-1", out[0].OrderID)
}
