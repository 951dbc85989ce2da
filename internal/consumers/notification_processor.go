package consumers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"payment-service/internal/models"
)

// Mailer is the delivery port. Actual SMTP/provider wiring lives outside
// this service; LogMailer stands in where none is configured.
type Mailer interface {
	SendPaymentConfirmation(ctx context.Context, email, orderID, amount string) error
}

type LogMailer struct {
	Log *zap.SugaredLogger
}

func (m *LogMailer) SendPaymentConfirmation(ctx context.Context, email, orderID, amount string) error {
	m.Log.Infow("confirmation email dispatched", "email", email, "orderId", orderID, "amount", amount)
	return nil
}

// ConfirmationEmailDTO mirrors services.ConfirmationEmailPayload.
type ConfirmationEmailDTO struct {
	OrderID string `json:"orderId"`
}

// NotificationProcessor sends the payment confirmation for a completed
// transaction. The queue delivers at-least-once; the notification_logs
// unique index makes repeat deliveries no-ops.
type NotificationProcessor struct {
	DB     *gorm.DB
	Mailer Mailer
	Log    *zap.SugaredLogger
}

func NewNotificationProcessor(db *gorm.DB, mailer Mailer, log *zap.SugaredLogger) *NotificationProcessor {
	return &NotificationProcessor{DB: db, Mailer: mailer, Log: log}
}

func (p *NotificationProcessor) ProcessConfirmationEmail(ctx context.Context, dto ConfirmationEmailDTO) error {
	var trx models.Transaction
	err := p.DB.WithContext(ctx).Where("order_id = ?", dto.OrderID).First(&trx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.Log.Errorw("cannot send confirmation, transaction missing", "orderId", dto.OrderID)
		return nil // nothing to retry against
	}
	if err != nil {
		return err
	}

	if trx.Status != models.StatusCompleted {
		p.Log.Warnw("skipping confirmation for non-completed transaction",
			"orderId", dto.OrderID, "status", trx.Status)
		return nil
	}

	// Claim before sending. A duplicate key here means another delivery of
	// the same task already handled it.
	claim := models.NotificationLog{
		OrderID: trx.OrderID,
		Email:   trx.Email,
		SentAt:  time.Now(),
	}
	if err := p.DB.WithContext(ctx).Create(&claim).Error; err != nil {
		p.Log.Infow("confirmation already sent", "orderId", dto.OrderID)
		return nil
	}

	if err := p.Mailer.SendPaymentConfirmation(ctx, trx.Email, trx.OrderID, trx.Amount.StringFixed(2)); err != nil {
		// Release the claim so the queue's retry can try again.
		p.DB.WithContext(ctx).Delete(&claim)
		return fmt.Errorf("send confirmation for %s: %w", trx.OrderID, err)
	}

	return nil
}
