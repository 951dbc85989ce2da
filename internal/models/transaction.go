package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses. PENDING is the only non-terminal state.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

type Transaction struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     string          `gorm:"column:order_id;size:100;not null;uniqueIndex" json:"order_id"`
	TrackingID  *string         `gorm:"column:order_tracking_id;size:100;index" json:"order_tracking_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Email       string          `gorm:"column:email;size:255;not null" json:"email"`
	PhoneNumber string          `gorm:"column:phone_number;size:20" json:"phone_number"`
	Status      string          `gorm:"column:status;size:20;not null;default:PENDING;index:idx_status_created" json:"status"`
	Description string          `gorm:"column:description;size:255;default:Payment for goods" json:"description"`
	// UserID is informational only; the record outlives the user.
	UserID    *int      `gorm:"column:user_id" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index:idx_status_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}
