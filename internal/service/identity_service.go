package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	firebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

type FirebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Subject       string `json:"sub"`
}

// IdentityService links Firebase accounts to licenses and signs users in with them.
type IdentityService struct {
	verifier *oidc.IDTokenVerifier
	repo     license.Repository
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewIdentityService returns a disabled service when no Firebase project is configured.
func NewIdentityService(ctx context.Context, cfg *config.IdentityConfig, repo license.Repository, logger *zap.Logger) *IdentityService {
	log := logger.Named("IdentityService")
	if cfg.FirebaseProjectID == "" {
		log.Info("Firebase identity linking disabled")
		return &IdentityService{repo: repo, logger: log, nowFn: time.Now}
	}

	issuer := firebaseIssuerPrefix + cfg.FirebaseProjectID
	log.Info("Creating Firebase keyset", zap.String("issuer", issuer))
	keySet := oidc.NewRemoteKeySet(ctx, firebaseJWKSURL)
	verifier := oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: cfg.FirebaseProjectID})

	return NewIdentityServiceWithVerifier(verifier, repo, logger)
}

func NewIdentityServiceWithVerifier(verifier *oidc.IDTokenVerifier, repo license.Repository, logger *zap.Logger) *IdentityService {
	return &IdentityService{
		verifier: verifier,
		repo:     repo,
		logger:   logger.Named("IdentityService"),
		nowFn:    time.Now,
	}
}

func (s *IdentityService) Enabled() bool {
	return s.verifier != nil
}

func (s *IdentityService) VerifyToken(ctx context.Context, rawToken string) (*FirebaseClaims, error) {
	if !s.Enabled() {
		return nil, ierr.ErrFeatureDisabled
	}

	token, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		s.logger.Warn("Failed to verify Firebase ID token", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ierr.ErrInvalidToken, err)
	}

	var claims FirebaseClaims
	if err := token.Claims(&claims); err != nil {
		s.logger.Error("Failed to extract claims from ID token", zap.Error(err))
		return nil, fmt.Errorf("%w: could not unmarshal ID token claims", ierr.ErrInvalidToken)
	}
	claims.Subject = token.Subject
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ierr.ErrInvalidToken)
	}
	return &claims, nil
}

// Link attaches the token's Firebase uid to the session's license.
func (s *IdentityService) Link(ctx context.Context, sess Session, rawToken string) error {
	claims, err := s.VerifyToken(ctx, rawToken)
	if err != nil {
		return err
	}

	lic, err := s.repo.FindByKeyAndEmail(ctx, sess.LicenseKey, sess.Email)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return ierr.ErrInvalidSession
		}
		return err
	}
	if lic.FirebaseUID != nil {
		if *lic.FirebaseUID == claims.Subject {
			return nil
		}
		return ierr.ErrIdentityLinked
	}

	if err := s.repo.LinkFirebaseUID(ctx, lic.LicenseKey, claims.Subject); err != nil {
		return err
	}
	s.logger.Info("Firebase identity linked", zap.String("license_key", logger.MaskKey(lic.LicenseKey)))
	return nil
}

// Login resolves the license linked to the token's uid.
func (s *IdentityService) Login(ctx context.Context, rawToken string) (*Account, error) {
	claims, err := s.VerifyToken(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	lic, err := s.repo.FindByFirebaseUID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return nil, ierr.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := s.repo.RecordLogin(ctx, lic.LicenseKey, s.nowFn().UTC()); err != nil {
		return nil, err
	}
	return &Account{LicenseKey: lic.LicenseKey, Email: lic.Email, Status: lic.Status}, nil
}
