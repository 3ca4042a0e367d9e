package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/ierr"
)

type TrialRepository struct {
	mu     sync.RWMutex
	trials map[string]trial.Trial
}

func NewTrialRepository() *TrialRepository {
	return &TrialRepository{trials: make(map[string]trial.Trial)}
}

var _ trial.Repository = (*TrialRepository)(nil)

func (r *TrialRepository) Create(ctx context.Context, t *trial.Trial) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.trials[t.DeviceID]; exists {
		return ierr.ErrDuplicateTrial
	}
	r.trials[t.DeviceID] = *t
	return nil
}

func (r *TrialRepository) FindByDeviceID(ctx context.Context, deviceID string) (*trial.Trial, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.trials[deviceID]
	if !ok {
		return nil, ierr.ErrTrialNotFound
	}
	return &t, nil
}

func (r *TrialRepository) CountByEmail(ctx context.Context, email string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, t := range r.trials {
		if t.Email != nil && *t.Email == email {
			n++
		}
	}
	return n, nil
}

func (r *TrialRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, t := range r.trials {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.trials, id)
			n++
		}
	}
	return n, nil
}
