package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testProject = "entitlement-test"

type identityFixture struct {
	svc  *IdentityService
	repo *memstorage.LicenseRepository
	key  *rsa.PrivateKey
}

func newIdentityFixture(t *testing.T) *identityFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	verifier := oidc.NewVerifier(firebaseIssuerPrefix+testProject, keySet, &oidc.Config{ClientID: testProject})

	repo := memstorage.NewLicenseRepository()
	seedLicense(t, repo, nil)
	return &identityFixture{
		svc:  NewIdentityServiceWithVerifier(verifier, repo, zap.NewNop()),
		repo: repo,
		key:  key,
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	now := time.Now()
	base := jwt.MapClaims{
		"iss":   firebaseIssuerPrefix + testProject,
		"aud":   testProject,
		"sub":   "uid-1",
		"email": testEmail,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	require.NoError(t, err)
	return raw
}

func TestIdentityService_LinkAndLogin(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()
	sess := Session{LicenseKey: testKey, Email: testEmail}
	token := signToken(t, f.key, nil)

	_, err := f.svc.Login(ctx, token)
	assert.ErrorIs(t, err, ierr.ErrInvalidCredentials, "unlinked uid cannot sign in")

	require.NoError(t, f.svc.Link(ctx, sess, token))
	require.NoError(t, f.svc.Link(ctx, sess, token), "relinking the same uid is a no-op")

	acct, err := f.svc.Login(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, testKey, acct.LicenseKey)
	assert.Equal(t, testEmail, acct.Email)

	lic, err := f.repo.FindByKey(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, lic.FirebaseUID)
	assert.Equal(t, "uid-1", *lic.FirebaseUID)
	assert.NotNil(t, lic.LastLoginAt)
}

func TestIdentityService_LinkConflicts(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()
	sess := Session{LicenseKey: testKey, Email: testEmail}
	require.NoError(t, f.svc.Link(ctx, sess, signToken(t, f.key, nil)))

	err := f.svc.Link(ctx, sess, signToken(t, f.key, jwt.MapClaims{"sub": "uid-2"}))
	assert.ErrorIs(t, err, ierr.ErrIdentityLinked)

	other := "WXYZ-1234-EFGH-5678"
	require.NoError(t, f.repo.Create(ctx, &license.License{
		LicenseKey: other, Email: testEmail, Status: license.StatusActive,
		Type: license.TypeLifetime, MaxDevices: 1, ActiveDevices: []license.Device{},
	}))
	err = f.svc.Link(ctx, Session{LicenseKey: other, Email: testEmail}, signToken(t, f.key, nil))
	assert.ErrorIs(t, err, ierr.ErrIdentityLinked, "a uid belongs to one license")
}

func TestIdentityService_RejectsBadTokens(t *testing.T) {
	f := newIdentityFixture(t)
	ctx := context.Background()

	stranger, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong signer":   signToken(t, stranger, nil),
		"wrong audience": signToken(t, f.key, jwt.MapClaims{"aud": "other-project"}),
		"wrong issuer":   signToken(t, f.key, jwt.MapClaims{"iss": "https://accounts.example.com"}),
		"expired":        signToken(t, f.key, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}),
		"garbage":        "not.a.token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.VerifyToken(ctx, token)
			assert.ErrorIs(t, err, ierr.ErrInvalidToken)
		})
	}
}

func TestIdentityService_Disabled(t *testing.T) {
	svc := NewIdentityService(context.Background(), &config.IdentityConfig{}, memstorage.NewLicenseRepository(), zap.NewNop())
	assert.False(t, svc.Enabled())

	_, err := svc.Login(context.Background(), "token")
	assert.ErrorIs(t, err, ierr.ErrFeatureDisabled)
}
