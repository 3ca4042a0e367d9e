package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 10
	bcryptMaxInput    = 72
	minPasswordLength = 8
	maxPasswordLength = 100
)

type SetPasswordInput struct {
	LicenseKey string
	Email      string
	Password   string
}

type LoginInput struct {
	Email      string
	Password   string
	LicenseKey string
}

type ResetPasswordInput struct {
	LicenseKey  string
	Email       string
	NewPassword string
}

// Account is the public projection returned after a successful login.
type Account struct {
	LicenseKey string
	Email      string
	Status     license.LicenseStatus
}

type CredentialService struct {
	repo      license.Repository
	logger    *zap.Logger
	nowFn     func() time.Time
	dummyHash []byte
}

func NewCredentialService(repo license.Repository, logger *zap.Logger) (*CredentialService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("entitlement-timing-placeholder"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}
	return &CredentialService{
		repo:      repo,
		logger:    logger.Named("CredentialService"),
		nowFn:     time.Now,
		dummyHash: dummy,
	}, nil
}

func (s *CredentialService) SetPassword(ctx context.Context, in SetPasswordInput) error {
	key, email := license.NormalizeKey(in.LicenseKey), license.NormalizeEmail(in.Email)
	if err := validatePassword(in.Password); err != nil {
		return err
	}

	lic, err := s.repo.FindByKeyAndEmail(ctx, key, email)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return ierr.ErrInvalidLicense
		}
		return err
	}
	if lic.PasswordSetAt != nil {
		return ierr.ErrPasswordAlreadySet
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return fmt.Errorf("%w: failed to hash password", ierr.ErrInternalServer)
	}

	set, err := s.repo.SetPasswordOnce(ctx, key, email, hash, s.nowFn().UTC())
	if err != nil {
		return err
	}
	if !set {
		return ierr.ErrPasswordAlreadySet
	}
	s.logger.Info("Password set", zap.String("license_key", logger.MaskKey(key)))
	return nil
}

// ValidatePassword checks a dashboard login and records it on success.
func (s *CredentialService) ValidatePassword(ctx context.Context, in LoginInput) (*Account, error) {
	key, email := license.NormalizeKey(in.LicenseKey), license.NormalizeEmail(in.Email)

	lic, err := s.repo.FindByKeyAndEmail(ctx, key, email)
	if err != nil && !errors.Is(err, ierr.ErrLicenseNotFound) {
		return nil, err
	}
	if lic == nil || !lic.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, passwordInput(in.Password))
		return nil, ierr.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(*lic.PasswordHash), passwordInput(in.Password)) != nil {
		s.logger.Info("Login failed", zap.String("license_key", logger.MaskKey(key)))
		return nil, ierr.ErrInvalidCredentials
	}

	if err := s.repo.RecordLogin(ctx, key, s.nowFn().UTC()); err != nil {
		return nil, err
	}
	return &Account{LicenseKey: lic.LicenseKey, Email: lic.Email, Status: lic.Status}, nil
}

// ResetPassword overwrites the hash for a matching key and email pair.
func (s *CredentialService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	key, email := license.NormalizeKey(in.LicenseKey), license.NormalizeEmail(in.Email)
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}

	hash, err := hashPassword(in.NewPassword)
	if err != nil {
		s.logger.Error("Failed to hash password", zap.Error(err))
		return fmt.Errorf("%w: failed to hash password", ierr.ErrInternalServer)
	}

	ok, err := s.repo.ResetPassword(ctx, key, email, hash, s.nowFn().UTC())
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return ierr.ErrInvalidLicense
		}
		return err
	}
	if !ok {
		return ierr.ErrInvalidLicense
	}
	s.logger.Info("Password reset", zap.String("license_key", logger.MaskKey(key)), zap.String("email", logger.MaskEmail(email)))
	return nil
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLength || n > maxPasswordLength {
		return ierr.ErrWeakPassword
	}
	return nil
}

// passwordInput pre-hashes passwords that exceed bcrypt's input limit.
func passwordInput(pw string) []byte {
	if len(pw) <= bcryptMaxInput {
		return []byte(pw)
	}
	sum := sha256.Sum256([]byte(pw))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(passwordInput(pw), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
