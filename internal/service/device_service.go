package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/entitlement-service/internal/cache"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/metrics"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

// maxActivationAttempts bounds re-classification after losing a seat race.
const maxActivationAttempts = 3

type ActivateInput struct {
	LicenseKey string
	Hardware   license.HardwareInfo
	DeviceID   string
	DeviceName string
	Email      string
}

type ActivationResult struct {
	DeviceID      string
	LicenseType   license.LicenseType
	Status        license.LicenseStatus
	ExpiresAt     *time.Time
	MaxDevices    int
	ActiveDevices int
	AlreadyActive bool
}

type DeviceService struct {
	repo   license.Repository
	cache  *cache.LicenseCache
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewDeviceService(repo license.Repository, cache *cache.LicenseCache, logger *zap.Logger) *DeviceService {
	return &DeviceService{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("DeviceService"),
		nowFn:  time.Now,
	}
}

func (s *DeviceService) Activate(ctx context.Context, in ActivateInput) (*ActivationResult, error) {
	key := license.NormalizeKey(in.LicenseKey)
	if !license.IsValidKey(key) {
		return nil, ierr.ErrInvalidLicenseKey
	}
	log := s.logger.With(zap.String("license_key", logger.MaskKey(key)))
	hardwareID := in.Hardware.HardwareID()

	for attempt := 1; attempt <= maxActivationAttempts; attempt++ {
		lic, err := s.repo.FindByKey(ctx, key)
		if err != nil {
			if errors.Is(err, ierr.ErrLicenseNotFound) {
				metrics.RecordActivation("not_found")
			}
			return nil, err
		}
		if in.Email != "" && lic.Email != license.NormalizeEmail(in.Email) {
			metrics.RecordActivation("not_found")
			return nil, ierr.ErrInvalidLicense
		}

		now := s.nowFn().UTC()
		if !lic.IsUsable(now) {
			metrics.RecordActivation("inactive")
			log.Info("Activation refused for unusable license", zap.String("status", string(lic.Status)))
			return nil, ierr.ErrLicenseInactive
		}

		if existing, ok := lic.DeviceByHardwareID(hardwareID); ok {
			if err := s.repo.TouchDevice(ctx, key, hardwareID, now); err != nil {
				log.Warn("Failed to refresh device last use", zap.Error(err))
			}
			s.cache.Invalidate(key)
			metrics.RecordActivation("already_active")
			return activationResult(lic, existing.DeviceID, len(lic.ActiveDevices), true), nil
		}

		if len(lic.ActiveDevices) >= lic.MaxDevices {
			metrics.RecordActivation("max_devices")
			log.Info("Activation refused, all seats taken", zap.Int("max_devices", lic.MaxDevices))
			return nil, ierr.ErrMaxDevicesReached
		}

		dev := license.Device{
			DeviceID:    s.deviceID(lic, in.DeviceID),
			HardwareID:  hardwareID,
			DeviceName:  strings.TrimSpace(in.DeviceName),
			ActivatedAt: now,
			LastUsedAt:  now,
		}
		added, err := s.repo.AddDevice(ctx, key, dev, now)
		if err != nil {
			return nil, err
		}
		if added {
			s.cache.Invalidate(key)
			metrics.RecordActivation("activated")
			log.Info("Device activated", zap.String("device_id", dev.DeviceID), zap.Int("seats_used", len(lic.ActiveDevices)+1))
			return activationResult(lic, dev.DeviceID, len(lic.ActiveDevices)+1, false), nil
		}

		// The license changed between read and update; classify again from fresh state.
		log.Debug("Seat update did not match, retrying", zap.Int("attempt", attempt))
	}

	metrics.RecordActivation("contention")
	return nil, fmt.Errorf("%w: license is being modified concurrently, retry the activation", ierr.ErrConflict)
}

// deviceID keeps the client's id unless it is empty or already names another seat.
func (s *DeviceService) deviceID(lic *license.License, requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return uuid.NewString()
	}
	if _, taken := lic.DeviceByID(requested); taken {
		return uuid.NewString()
	}
	return requested
}

func activationResult(lic *license.License, deviceID string, seats int, already bool) *ActivationResult {
	return &ActivationResult{
		DeviceID:      deviceID,
		LicenseType:   lic.Type,
		Status:        lic.Status,
		ExpiresAt:     lic.ExpiresAt(),
		MaxDevices:    lic.MaxDevices,
		ActiveDevices: seats,
		AlreadyActive: already,
	}
}

// Deactivate frees the seat held by deviceID. Only the session's own license can be changed.
func (s *DeviceService) Deactivate(ctx context.Context, sess Session, licenseKey, deviceID string) error {
	key := license.NormalizeKey(licenseKey)
	if key != sess.LicenseKey {
		return fmt.Errorf("%w: session does not own this license", ierr.ErrForbidden)
	}
	if strings.TrimSpace(deviceID) == "" {
		return fmt.Errorf("%w: device id is required", ierr.ErrValidation)
	}

	removed, err := s.repo.RemoveDevice(ctx, key, deviceID)
	if err != nil {
		return err
	}
	if !removed {
		return ierr.ErrDeviceNotFound
	}
	s.cache.Invalidate(key)
	s.logger.Info("Device deactivated", zap.String("license_key", logger.MaskKey(key)), zap.String("device_id", deviceID))
	return nil
}

func (s *DeviceService) ListDevices(ctx context.Context, sess Session) ([]license.Device, error) {
	lic, err := s.repo.FindByKey(ctx, sess.LicenseKey)
	if err != nil {
		return nil, err
	}
	return lic.ActiveDevices, nil
}
