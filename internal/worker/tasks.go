package worker

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"payment-service/internal/consumers"
)

// Task Types
const (
	TypeConfirmationEmail = "confirmation-email"
)

// Task Creators

func NewConfirmationEmailTask(payload consumers.ConfirmationEmailDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeConfirmationEmail, data), nil
}
