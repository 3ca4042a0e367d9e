package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"go.uber.org/zap"
)

type TrialRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewTrialRepository(db *pgxpool.Pool, logger *zap.Logger) *TrialRepository {
	return &TrialRepository{
		db:     db,
		logger: logger.Named("TrialRepository"),
	}
}

var _ trial.Repository = (*TrialRepository)(nil)

func (r *TrialRepository) Create(ctx context.Context, t *trial.Trial) error {
	query := `
		INSERT INTO trials (device_id, started_at, expires_at, email, app_version)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, t.DeviceID, t.StartedAt, t.ExpiresAt, t.Email, t.AppVersion)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return ierr.ErrDuplicateTrial
		}
		r.logger.Error("Failed to create trial", zap.Error(err))
		return fmt.Errorf("database error on create trial: %w", err)
	}
	return nil
}

func (r *TrialRepository) FindByDeviceID(ctx context.Context, deviceID string) (*trial.Trial, error) {
	query := `
		SELECT device_id, started_at, expires_at, email, app_version
		FROM trials
		WHERE device_id = $1
	`
	var t trial.Trial
	err := r.db.QueryRow(ctx, query, deviceID).Scan(&t.DeviceID, &t.StartedAt, &t.ExpiresAt, &t.Email, &t.AppVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ierr.ErrTrialNotFound
		}
		r.logger.Error("Failed to find trial", zap.Error(err))
		return nil, fmt.Errorf("database error on find trial: %w", err)
	}
	return &t, nil
}

func (r *TrialRepository) CountByEmail(ctx context.Context, email string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM trials WHERE email = $1`, email).Scan(&n); err != nil {
		return 0, fmt.Errorf("database error on count trials: %w", err)
	}
	return n, nil
}

func (r *TrialRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM trials WHERE expires_at < $1`, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge expired trials", zap.Error(err))
		return 0, fmt.Errorf("database error on purge trials: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
