package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSessionSecret = "test-session-secret-with-32-bytes!!"

func newTestSessions(t *testing.T, now *time.Time) *SessionService {
	t.Helper()
	s, err := NewSessionService(&config.SessionConfig{Secret: testSessionSecret, Issuer: "test", TTL: time.Hour}, memstorage.NewLicenseRepository(), zap.NewNop())
	require.NoError(t, err)
	s.nowFn = func() time.Time { return *now }
	return s
}

func TestSessionService_IssueAndVerify(t *testing.T) {
	now := time.Now()
	s := newTestSessions(t, &now)

	token, expiresAt, err := s.Issue(Session{LicenseKey: "ABCD-1234-EFGH-5678", Email: "jane@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	sess, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234-EFGH-5678", sess.LicenseKey)
	assert.Equal(t, "jane@example.com", sess.Email)
	assert.True(t, sess.IssuedAt.Equal(now.Truncate(time.Second)))

	now = now.Add(2 * time.Hour)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession)
}

func TestSessionService_RejectsForeignTokens(t *testing.T) {
	now := time.Now()
	s := newTestSessions(t, &now)

	_, err := NewSessionService(&config.SessionConfig{Secret: "short"}, nil, zap.NewNop())
	assert.Error(t, err)

	other, err := NewSessionService(&config.SessionConfig{Secret: "another-secret-that-is-32-bytes-long", Issuer: "test"}, nil, zap.NewNop())
	require.NoError(t, err)
	token, _, err := other.Issue(Session{LicenseKey: "ABCD-1234-EFGH-5678", Email: "jane@example.com"})
	require.NoError(t, err)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession, "wrong signing key")

	claims := SessionClaims{
		LicenseKey: "not-a-key",
		Email:      "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSessionSecret))
	require.NoError(t, err)
	_, err = s.Verify(bad)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession, "malformed license key")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession)
}

func TestSessionService_PasswordResetRevokesSessions(t *testing.T) {
	ctx := context.Background()
	creds, repo, clk := newTestCredentialService(t)
	sessions, err := NewSessionService(&config.SessionConfig{Secret: testSessionSecret, Issuer: "test", TTL: 24 * time.Hour}, repo, zap.NewNop())
	require.NoError(t, err)
	sessions.nowFn = clk.Now

	require.NoError(t, creds.SetPassword(ctx, SetPasswordInput{LicenseKey: testKey, Email: testEmail, Password: "correct horse"}))
	clk.Advance(time.Minute)
	token, _, err := sessions.Issue(Session{LicenseKey: testKey, Email: testEmail})
	require.NoError(t, err)

	sess, err := sessions.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, testKey, sess.LicenseKey)

	clk.Advance(time.Hour)
	require.NoError(t, creds.ResetPassword(ctx, ResetPasswordInput{LicenseKey: testKey, Email: testEmail, NewPassword: "new password"}))

	_, err = sessions.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession, "session from before the reset is revoked")
	_, err = sessions.Verify(token)
	assert.NoError(t, err, "the signature alone is still valid")

	clk.Advance(time.Second)
	fresh, _, err := sessions.Issue(Session{LicenseKey: testKey, Email: testEmail})
	require.NoError(t, err)
	_, err = sessions.Authenticate(ctx, fresh)
	assert.NoError(t, err)
}

func TestSessionService_AuthenticateUnknownLicense(t *testing.T) {
	now := time.Now()
	s := newTestSessions(t, &now)

	token, _, err := s.Issue(Session{LicenseKey: "ABCD-1234-EFGH-5678", Email: "jane@example.com"})
	require.NoError(t, err)
	_, err = s.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ierr.ErrInvalidSession)
}
