package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/metrics"
	"go.uber.org/zap"
)

type TrialOptions struct {
	Email      string
	AppVersion string
}

type TrialResult struct {
	Success       bool
	Message       string
	DaysRemaining int
	ExpiresAt     time.Time
}

type TrialStatus struct {
	Found         bool
	Active        bool
	DaysRemaining int
	ExpiresAt     *time.Time
}

type TrialService struct {
	repo     trial.Repository
	duration time.Duration
	logger   *zap.Logger
	nowFn    func() time.Time
}

func NewTrialService(repo trial.Repository, durationDays int, logger *zap.Logger) *TrialService {
	if durationDays <= 0 {
		durationDays = trial.DefaultDurationDays
	}
	return &TrialService{
		repo:     repo,
		duration: time.Duration(durationDays) * 24 * time.Hour,
		logger:   logger.Named("TrialService"),
		nowFn:    time.Now,
	}
}

// StartTrial grants a trial once per device. A repeat request is not an error:
// it reports the original trial with Success=false.
func (s *TrialService) StartTrial(ctx context.Context, deviceID string, opts TrialOptions) (*TrialResult, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", ierr.ErrValidation)
	}

	now := s.nowFn().UTC()
	t := &trial.Trial{
		DeviceID:  deviceID,
		StartedAt: now,
		ExpiresAt: now.Add(s.duration),
	}
	if email := license.NormalizeEmail(opts.Email); email != "" {
		t.Email = &email
	}
	if v := strings.TrimSpace(opts.AppVersion); v != "" {
		t.AppVersion = &v
	}

	err := s.repo.Create(ctx, t)
	switch {
	case err == nil:
		metrics.TrialsStartedTotal.Inc()
		s.logger.Info("Trial started", zap.String("device_id", deviceID), zap.Time("expires_at", t.ExpiresAt))
		return &TrialResult{
			Success:       true,
			Message:       "Trial started",
			DaysRemaining: t.DaysRemaining(now),
			ExpiresAt:     t.ExpiresAt,
		}, nil
	case errors.Is(err, ierr.ErrDuplicateTrial):
		existing, findErr := s.repo.FindByDeviceID(ctx, deviceID)
		if findErr != nil {
			return nil, findErr
		}
		return &TrialResult{
			Success:       false,
			Message:       "Trial already used on this device",
			DaysRemaining: existing.DaysRemaining(now),
			ExpiresAt:     existing.ExpiresAt,
		}, nil
	default:
		s.logger.Error("Failed to start trial", zap.String("device_id", deviceID), zap.Error(err))
		return nil, err
	}
}

func (s *TrialService) CheckStatus(ctx context.Context, deviceID string) (*TrialStatus, error) {
	t, err := s.repo.FindByDeviceID(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		if errors.Is(err, ierr.ErrTrialNotFound) {
			return &TrialStatus{Found: false}, nil
		}
		return nil, err
	}
	now := s.nowFn()
	return &TrialStatus{
		Found:         true,
		Active:        t.IsActive(now),
		DaysRemaining: t.DaysRemaining(now),
		ExpiresAt:     &t.ExpiresAt,
	}, nil
}

// PurgeExpired deletes trials that ended more than retention ago.
func (s *TrialService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.nowFn().UTC().Add(-retention)
	n, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Purged expired trials", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}
