package models

import (
	"time"
)

// NotificationLog is the delivery-side dedupe table for confirmation emails.
// The worker claims a row before sending; the unique index on order_id makes
// redelivered queue tasks a no-op.
type NotificationLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string    `gorm:"column:order_id;size:100;not null;uniqueIndex" json:"order_id"`
	Email     string    `gorm:"column:email;size:255" json:"email"`
	SentAt    time.Time `gorm:"column:sent_at" json:"sent_at"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (NotificationLog) TableName() string {
	return "notification_logs"
}
