package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeQueue rejects a second task carrying an already seen payload idempotency key.
type fakeQueue struct {
	seen  map[string]bool
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	var p tasks.EmailPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return nil, err
	}
	if q.seen[p.IdempotencyKey] {
		return nil, asynq.ErrTaskIDConflict
	}
	q.seen[p.IdempotencyKey] = true
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: p.IdempotencyKey, Queue: tasks.QueueCritical}, nil
}

func TestQueueNotifier_EnqueuesOncePerKey(t *testing.T) {
	q := &fakeQueue{seen: map[string]bool{}}
	n := NewQueueNotifier(q, 5, zap.NewNop())

	require.NoError(t, n.SendTransactional(context.Background(), purchaseEmail))
	require.NoError(t, n.SendTransactional(context.Background(), purchaseEmail))

	require.Len(t, q.tasks, 1)
	assert.Equal(t, tasks.TypeEmailSend, q.tasks[0].Type())

	var p tasks.EmailPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, purchaseEmail.Address, p.Address)
	assert.Equal(t, purchaseEmail.TransactionalID, p.TransactionalID)
}

func TestQueueNotifier_QueueDown(t *testing.T) {
	n := NewQueueNotifier(&fakeQueue{err: errors.New("dial tcp: connection refused")}, 5, zap.NewNop())
	err := n.SendTransactional(context.Background(), purchaseEmail)
	assert.ErrorIs(t, err, ierr.ErrUnavailable)
}
