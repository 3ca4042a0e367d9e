package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/service"
)

const (
	TypeEmailSend          = "email:send"
	TypeLicenseGraceExpire = "license:grace:expire"
	TypeTrialPurge         = "trial:purge"
	TypeWebhookPurge       = "webhook:purge"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type EmailPayload struct {
	TransactionalID string         `json:"transactional_id"`
	Address         string         `json:"address"`
	DataVariables   map[string]any `json:"data_variables,omitempty"`
	IdempotencyKey  string         `json:"idempotency_key"`
}

func (p EmailPayload) Email() service.Email {
	return service.Email{
		TransactionalID: p.TransactionalID,
		Address:         p.Address,
		DataVariables:   p.DataVariables,
		IdempotencyKey:  p.IdempotencyKey,
	}
}

// NewEmailTask uses the idempotency key as task id, so a second enqueue of the
// same message is rejected by the queue.
func NewEmailTask(email service.Email, opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(EmailPayload{
		TransactionalID: email.TransactionalID,
		Address:         email.Address,
		DataVariables:   email.DataVariables,
		IdempotencyKey:  email.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	allOpts := []asynq.Option{asynq.Queue(QueueCritical)}
	if email.IdempotencyKey != "" {
		allOpts = append(allOpts, asynq.TaskID(email.IdempotencyKey))
	}
	allOpts = append(allOpts, opts...)
	return asynq.NewTask(TypeEmailSend, payloadBytes, allOpts...), nil
}

func NewLicenseGraceExpireTask(opts ...asynq.Option) *asynq.Task {
	allOpts := append([]asynq.Option{asynq.Unique(time.Hour), asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(TypeLicenseGraceExpire, nil, allOpts...)
}

func NewTrialPurgeTask(opts ...asynq.Option) *asynq.Task {
	allOpts := append([]asynq.Option{asynq.Unique(12 * time.Hour), asynq.Queue(QueueLow)}, opts...)
	return asynq.NewTask(TypeTrialPurge, nil, allOpts...)
}

func NewWebhookPurgeTask(opts ...asynq.Option) *asynq.Task {
	allOpts := append([]asynq.Option{asynq.Unique(12 * time.Hour), asynq.Queue(QueueLow)}, opts...)
	return asynq.NewTask(TypeWebhookPurge, nil, allOpts...)
}
