package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"go.uber.org/zap"
)

// Session identifies the license a dashboard user signed in to.
type Session struct {
	LicenseKey string
	Email      string
	IssuedAt   time.Time
}

type SessionClaims struct {
	LicenseKey string `json:"lk"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

type SessionService struct {
	repo   license.Repository
	secret []byte
	issuer string
	ttl    time.Duration
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewSessionService(cfg *config.SessionConfig, repo license.Repository, logger *zap.Logger) (*SessionService, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionService{
		repo:   repo,
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		logger: logger.Named("SessionService"),
		nowFn:  time.Now,
	}, nil
}

func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a session token for the license.
func (s *SessionService) Issue(sess Session) (string, time.Time, error) {
	now := s.nowFn().UTC()
	expiresAt := now.Add(s.ttl)
	claims := SessionClaims{
		LicenseKey: sess.LicenseKey,
		Email:      sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sess.LicenseKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to sign session token", zap.Error(err))
		return "", time.Time{}, fmt.Errorf("%w: failed to sign session", ierr.ErrInternalServer)
	}
	return token, expiresAt, nil
}

func (s *SessionService) Verify(raw string) (*Session, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFn),
	)
	if err != nil {
		s.logger.Debug("Rejected session token", zap.Error(err))
		return nil, ierr.ErrInvalidSession
	}
	if !license.IsValidKey(claims.LicenseKey) || claims.Email == "" {
		return nil, ierr.ErrInvalidSession
	}
	sess := &Session{LicenseKey: claims.LicenseKey, Email: claims.Email}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return sess, nil
}

// Authenticate verifies the token and checks it against the license. Setting or
// resetting the password revokes every session issued before that moment.
func (s *SessionService) Authenticate(ctx context.Context, raw string) (*Session, error) {
	sess, err := s.Verify(raw)
	if err != nil {
		return nil, err
	}

	lic, err := s.repo.FindByKeyAndEmail(ctx, sess.LicenseKey, sess.Email)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return nil, ierr.ErrInvalidSession
		}
		return nil, err
	}
	// iat has second precision.
	if lic.PasswordSetAt != nil && sess.IssuedAt.Before(lic.PasswordSetAt.UTC().Truncate(time.Second)) {
		s.logger.Debug("Rejected session issued before password change", zap.Time("issued_at", sess.IssuedAt))
		return nil, ierr.ErrInvalidSession
	}
	return sess, nil
}
