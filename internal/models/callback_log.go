package models

import (
	"time"
)

// CallbackLog records every webhook delivery and sweep verification, whether
// or not it caused a transition. Purely an audit trail.
type CallbackLog struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     string    `gorm:"column:order_id;size:100;index" json:"order_id"`
	TrackingID  string    `gorm:"column:order_tracking_id;size:100" json:"order_tracking_id"`
	Request     string    `gorm:"column:request;type:longtext" json:"request"`
	Response    string    `gorm:"column:response;type:longtext" json:"response"`
	Outcome     string    `gorm:"column:outcome;size:255" json:"outcome"`
	RequestType string    `gorm:"column:request_type;size:50" json:"request_type"` // Callback, Sweep or StatusCheck
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CallbackLog) TableName() string {
	return "callback_logs"
}
