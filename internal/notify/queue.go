package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/internal/tasks"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier hands email to the worker queue so request paths never wait on
// the provider.
type QueueNotifier struct {
	client   Enqueuer
	maxRetry int
	logger   *zap.Logger
}

var _ service.Notifier = (*QueueNotifier)(nil)

func NewQueueNotifier(client Enqueuer, maxRetry int, logger *zap.Logger) *QueueNotifier {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &QueueNotifier{
		client:   client,
		maxRetry: maxRetry,
		logger:   logger.Named("QueueNotifier"),
	}
}

func (n *QueueNotifier) SendTransactional(ctx context.Context, email service.Email) error {
	task, err := tasks.NewEmailTask(email, asynq.MaxRetry(n.maxRetry))
	if err != nil {
		return fmt.Errorf("%w: failed to build email task: %v", ierr.ErrInternalServer, err)
	}

	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			n.logger.Info("Email already queued", zap.String("idempotency_key", email.IdempotencyKey))
			return nil
		}
		return fmt.Errorf("%w: failed to enqueue email: %v", ierr.ErrUnavailable, err)
	}
	n.logger.Debug("Email queued",
		zap.String("task_id", info.ID),
		zap.String("template", email.TransactionalID),
		zap.String("email", logger.MaskEmail(email.Address)),
	)
	return nil
}
