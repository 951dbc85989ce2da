package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// EventSink receives the completed-payment event. The reconciler fires it
// exactly once per transition into COMPLETED, from the CAS winner only.
type EventSink interface {
	PaymentCompleted(ctx context.Context, orderID string) error
}

// Task type and payload shape (copied from worker/tasks.go to avoid cycle)
const TypeConfirmationEmail = "confirmation-email"

type ConfirmationEmailPayload struct {
	OrderID string `json:"orderId"`
}

// QueueEventSink enqueues the confirmation-email task on Redis. The task id
// is derived from the order id so a re-enqueue of the same order is dropped
// by the queue rather than delivered twice.
type QueueEventSink struct {
	Client *asynq.Client
}

func NewQueueEventSink(client *asynq.Client) *QueueEventSink {
	return &QueueEventSink{Client: client}
}

func (s *QueueEventSink) PaymentCompleted(ctx context.Context, orderID string) error {
	data, err := json.Marshal(ConfirmationEmailPayload{OrderID: orderID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeConfirmationEmail, data)
	_, err = s.Client.EnqueueContext(ctx, task, asynq.TaskID(fmt.Sprintf("%s:%s", TypeConfirmationEmail, orderID)))
	if err != nil {
		return err
	}
	return nil
}

// LogEventSink is a fallback sink for deployments without Redis; it only
// records the event.
type LogEventSink struct {
	Log *zap.SugaredLogger
}

func (s *LogEventSink) PaymentCompleted(ctx context.Context, orderID string) error {
	s.Log.Infow("payment completed", "orderId", orderID)
	return nil
}
