package service

import (
	"context"
	"testing"

	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAPIKeyService_Lifecycle(t *testing.T) {
	svc := NewAPIKeyService(memstorage.NewAPIKeyRepository(), zap.NewNop())
	ctx := context.Background()

	created, err := svc.CreateAPIKey(ctx, "ops dashboard")
	require.NoError(t, err)
	assert.Contains(t, created.FullKey, created.Prefix)

	key, err := svc.Authenticate(ctx, created.FullKey)
	require.NoError(t, err)
	assert.Equal(t, created.ID, key.ID)

	keys, err := svc.ListAPIKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, svc.RevokeAPIKey(ctx, created.ID))
	_, err = svc.Authenticate(ctx, created.FullKey)
	assert.ErrorIs(t, err, ierr.ErrUnauthorized)
}

func TestAPIKeyService_AuthenticateRejects(t *testing.T) {
	svc := NewAPIKeyService(memstorage.NewAPIKeyRepository(), zap.NewNop())
	ctx := context.Background()
	created, err := svc.CreateAPIKey(ctx, "ci")
	require.NoError(t, err)

	tampered := created.FullKey[:len(created.FullKey)-1] + "!"
	for _, raw := range []string{"", "ks_short", "Bearer " + created.FullKey, tampered} {
		_, err := svc.Authenticate(ctx, raw)
		assert.ErrorIs(t, err, ierr.ErrUnauthorized, raw)
	}
}
