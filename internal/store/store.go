package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"payment-service/internal/models"
)

var (
	// ErrNotFound means no transaction matched the given identifier.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateOrderID means a transaction with the order id already exists.
	ErrDuplicateOrderID = errors.New("duplicate order id")
)

// Store is the persistence layer for payment transactions. Concurrency
// control is the conditional UPDATE in CompareAndSetStatus; nothing here
// takes row or table locks.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and test fixtures.
func (s *Store) DB(ctx context.Context) *gorm.DB { return s.db.WithContext(ctx) }

func (s *Store) Create(ctx context.Context, t *models.Transaction) error {
	err := s.db.WithContext(ctx).Create(t).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateErr(err) {
		return ErrDuplicateOrderID
	}
	return err
}

func (s *Store) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetByTrackingID(ctx context.Context, trackingID string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.WithContext(ctx).Where("order_tracking_id = ?", trackingID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetTrackingID stores the gateway-assigned tracking id. Plain update: at
// this point the record is freshly PENDING and no reconciliation path can
// have seen it, since reconciliation keys off the tracking id.
func (s *Store) SetTrackingID(ctx context.Context, orderID, trackingID string) error {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("order_id = ? AND order_tracking_id IS NULL", orderID).
		Updates(map[string]interface{}{
			"order_tracking_id": trackingID,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetStatus transitions orderID from expected to next in a single
// conditional UPDATE. It reports (false, nil) when the stored status no
// longer equals expected; a concurrent writer won and its transition stands.
func (s *Store) CompareAndSetStatus(ctx context.Context, orderID, expected, next string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("order_id = ? AND status = ?", orderID, expected).
		Updates(map[string]interface{}{
			"status":     next,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed is the initiation error path: PENDING straight to FAILED.
func (s *Store) MarkFailed(ctx context.Context, orderID string) error {
	_, err := s.CompareAndSetStatus(ctx, orderID, models.StatusPending, models.StatusFailed)
	return err
}

// ListStalePending returns PENDING transactions that received a tracking id
// but have had no terminal outcome for longer than olderThan. These are the
// sweep candidates: old enough that the webhook has had its chance.
func (s *Store) ListStalePending(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	var out []models.Transaction
	cutoff := time.Now().Add(-olderThan)
	err := s.db.WithContext(ctx).
		Where("status = ? AND order_tracking_id IS NOT NULL AND created_at < ?", models.StatusPending, cutoff).
		Find(&out).Error
	return out, err
}

func (s *Store) LogCallback(ctx context.Context, entry *models.CallbackLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// isDuplicateErr matches driver-specific unique violation text for the
// drivers in use (MySQL in production, SQLite in tests).
func isDuplicateErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}
