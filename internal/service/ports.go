package service

import (
	"context"
)

// Email is one transactional message. IdempotencyKey lets the transport
// collapse repeated sends of the same message.
type Email struct {
	TransactionalID string
	Address         string
	DataVariables   map[string]any
	IdempotencyKey  string
}

type Notifier interface {
	SendTransactional(ctx context.Context, email Email) error
}

type PaymentProvider interface {
	CancelSubscription(ctx context.Context, subscriptionID string) error
}
