package trial

import (
	"context"
	"time"
)

type Repository interface {
	// Create fails with ierr.ErrDuplicateTrial when the device already has a trial.
	Create(ctx context.Context, t *Trial) error
	FindByDeviceID(ctx context.Context, deviceID string) (*Trial, error)
	CountByEmail(ctx context.Context, email string) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
