package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/entitlement-service/internal/cache"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/handler/dto"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

type ValidationResult struct {
	Valid            bool
	Status           license.LicenseStatus
	LicenseType      license.LicenseType
	MaxDevices       int
	DeviceRegistered bool
	ExpiresAt        *time.Time
	UpdatesEndDate   *time.Time
}

type LicenseService struct {
	repo     license.Repository
	cache    *cache.LicenseCache
	payments PaymentProvider
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewLicenseService wires the admin and account operations. payments may be nil when
// no provider is configured; subscription cancellation is then unavailable.
func NewLicenseService(repo license.Repository, cache *cache.LicenseCache, payments PaymentProvider, logger *zap.Logger) *LicenseService {
	return &LicenseService{
		repo:     repo,
		cache:    cache,
		payments: payments,
		logger:   logger.Named("LicenseService"),
		nowFn:    time.Now,
	}
}

func (s *LicenseService) CreateLicense(ctx context.Context, req *dto.CreateLicenseRequest) (*license.License, error) {
	plan := license.Plan{Type: req.LicenseType, MaxDevices: req.MaxDevices}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ierr.ErrValidation, err)
	}
	s.logger.Info("Attempting to create a new license", zap.String("type", string(req.LicenseType)), zap.Int("max_devices", req.MaxDevices))

	now := s.nowFn().UTC()
	lic := &license.License{
		Email:           license.NormalizeEmail(req.Email),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		Status:          license.StatusActive,
		Type:            plan.Type,
		MaxDevices:      plan.MaxDevices,
		ActiveDevices:   []license.Device{},
		ProductID:       req.ProductID,
		NextBillingDate: req.NextBillingDate,
		UpdatesEndDate:  plan.UpdatesEndDate(now),
	}
	if req.InitialStatus != nil {
		lic.Status = *req.InitialStatus
	}

	if err := createWithFreshKey(ctx, s.repo, lic); err != nil {
		s.logger.Error("Failed to create license via repository", zap.Error(err))
		return nil, err
	}

	s.logger.Info("License created successfully", zap.String("id", lic.ID.String()), zap.String("key", logger.MaskKey(lic.LicenseKey)))
	return lic, nil
}

func (s *LicenseService) GetLicense(ctx context.Context, key string) (*license.License, error) {
	key = license.NormalizeKey(key)
	if !license.IsValidKey(key) {
		return nil, ierr.ErrInvalidLicenseKey
	}
	return s.repo.FindByKey(ctx, key)
}

func (s *LicenseService) ListLicenses(ctx context.Context, req *dto.ListLicensesRequest) ([]*license.License, int64, error) {
	params := license.ListParams{
		Status: req.Status,
		Type:   req.LicenseType,
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if req.Email != nil {
		email := license.NormalizeEmail(*req.Email)
		params.Email = &email
	}

	licenses, total, err := s.repo.List(ctx, params)
	if err != nil {
		s.logger.Error("Failed to list licenses from repository", zap.Error(err))
		return nil, 0, fmt.Errorf("repository error listing licenses: %w", err)
	}
	return licenses, total, nil
}

// UpdateLicenseStatus is an operator override; it does not take part in provider event ordering.
func (s *LicenseService) UpdateLicenseStatus(ctx context.Context, key string, status license.LicenseStatus) (*license.License, error) {
	key = license.NormalizeKey(key)
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ierr.ErrValidation, status)
	}
	if err := s.repo.UpdateStatus(ctx, key, status); err != nil {
		return nil, err
	}
	s.cache.Invalidate(key)
	s.logger.Info("License status overridden", zap.String("key", logger.MaskKey(key)), zap.String("status", string(status)))
	return s.repo.FindByKey(ctx, key)
}

// Validate answers the desktop app's periodic license check. Results come from a short-lived
// cache; a miss reads the store and refreshes the device's last use.
func (s *LicenseService) Validate(ctx context.Context, key, deviceID string) (*ValidationResult, error) {
	key = license.NormalizeKey(key)
	if !license.IsValidKey(key) {
		return nil, ierr.ErrInvalidLicenseKey
	}

	lic, hit := s.cache.Get(key)
	if !hit {
		var err error
		lic, err = s.repo.FindByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if dev, ok := lic.DeviceByID(deviceID); ok {
			if err := s.repo.TouchDevice(ctx, key, dev.HardwareID, s.nowFn().UTC()); err != nil {
				s.logger.Warn("Failed to refresh device last use", zap.String("key", logger.MaskKey(key)), zap.Error(err))
			}
		}
		s.cache.Add(lic)
	}

	registered := false
	if deviceID != "" {
		_, registered = lic.DeviceByID(deviceID)
	}
	usable := lic.IsUsable(s.nowFn())

	return &ValidationResult{
		Valid:            usable && (deviceID == "" || registered),
		Status:           lic.Status,
		LicenseType:      lic.Type,
		MaxDevices:       lic.MaxDevices,
		DeviceRegistered: registered,
		ExpiresAt:        lic.ExpiresAt(),
		UpdatesEndDate:   lic.UpdatesEndDate,
	}, nil
}

// AccountInfo returns the license behind a dashboard session.
func (s *LicenseService) AccountInfo(ctx context.Context, sess Session) (*license.License, error) {
	lic, err := s.repo.FindByKeyAndEmail(ctx, sess.LicenseKey, sess.Email)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return nil, ierr.ErrInvalidSession
		}
		return nil, err
	}
	return lic, nil
}

// CancelSubscription asks the payment provider to stop renewal. The local status
// changes when the provider's cancellation webhook arrives.
func (s *LicenseService) CancelSubscription(ctx context.Context, sess Session) error {
	if s.payments == nil {
		return ierr.ErrFeatureDisabled
	}
	lic, err := s.AccountInfo(ctx, sess)
	if err != nil {
		return err
	}
	if lic.SubscriptionID == nil || lic.Status != license.StatusActive {
		return ierr.ErrNoSubscription
	}

	if err := s.payments.CancelSubscription(ctx, *lic.SubscriptionID); err != nil {
		s.logger.Error("Payment provider rejected subscription cancellation",
			zap.String("key", logger.MaskKey(lic.LicenseKey)),
			zap.String("email", logger.MaskEmail(lic.Email)),
			zap.Error(err),
		)
		return fmt.Errorf("%w: could not cancel subscription with the payment provider", ierr.ErrUpstream)
	}
	s.logger.Info("Subscription cancellation requested", zap.String("key", logger.MaskKey(lic.LicenseKey)))
	return nil
}

// ExpireLapsedSubscriptions moves cancelled subscriptions whose paid period ended to expired.
func (s *LicenseService) ExpireLapsedSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsed(ctx, s.nowFn().UTC())
	if err != nil {
		s.logger.Error("Failed to expire lapsed subscriptions", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired lapsed subscriptions", zap.Int64("count", n))
	}
	return n, nil
}
