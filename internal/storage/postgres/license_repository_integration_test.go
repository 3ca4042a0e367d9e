//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("entitlements_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := zap.NewNop()
	pool, err := NewPgxPool(ctx, &config.DatabaseConfig{URL: dsn, MaxOpenConns: 20, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(pool, logger))
	return pool
}

func newLicense(key string, maxDevices int) *license.License {
	return &license.License{
		LicenseKey: key,
		Email:      "jane@example.com",
		Status:     license.StatusActive,
		Type:       license.TypeLifetime,
		MaxDevices: maxDevices,
		ProductID:  "prod_lifetime",
	}
}

func TestLicenseRepository_Integration(t *testing.T) {
	pool := newTestPool(t)
	repo := NewLicenseRepository(pool, zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create and find", func(t *testing.T) {
		lic := newLicense("AAAA-1111-BBBB-2222", 2)
		require.NoError(t, repo.Create(ctx, lic))

		found, err := repo.FindByKeyAndEmail(ctx, "AAAA-1111-BBBB-2222", "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, lic.ID, found.ID)
		assert.Empty(t, found.ActiveDevices)

		err = repo.Create(ctx, newLicense("AAAA-1111-BBBB-2222", 2))
		assert.ErrorIs(t, err, ierr.ErrDuplicateKey)

		_, err = repo.FindByKey(ctx, "ZZZZ-0000-ZZZZ-0000")
		assert.ErrorIs(t, err, ierr.ErrLicenseNotFound)
	})

	t.Run("concurrent activations never exceed max devices", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newLicense("CCCC-1111-DDDD-2222", 2)))

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			added int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				dev := license.Device{
					DeviceID:    "dev-" + string(rune('a'+i)),
					HardwareID:  "hw-" + string(rune('a'+i)),
					DeviceName:  "Mac",
					ActivatedAt: now,
					LastUsedAt:  now,
				}
				ok, err := repo.AddDevice(ctx, "CCCC-1111-DDDD-2222", dev, now)
				require.NoError(t, err)
				if ok {
					mu.Lock()
					added++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 2, added)
		lic, err := repo.FindByKey(ctx, "CCCC-1111-DDDD-2222")
		require.NoError(t, err)
		assert.Len(t, lic.ActiveDevices, 2)
	})

	t.Run("touch and remove device", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newLicense("EEEE-1111-FFFF-2222", 2)))
		dev := license.Device{DeviceID: "d1", HardwareID: "h1", ActivatedAt: now, LastUsedAt: now}
		ok, err := repo.AddDevice(ctx, "EEEE-1111-FFFF-2222", dev, now)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.AddDevice(ctx, "EEEE-1111-FFFF-2222", dev, now)
		require.NoError(t, err)
		assert.False(t, ok, "same hardware must not take a second seat")

		later := now.Add(time.Hour)
		require.NoError(t, repo.TouchDevice(ctx, "EEEE-1111-FFFF-2222", "h1", later))
		lic, err := repo.FindByKey(ctx, "EEEE-1111-FFFF-2222")
		require.NoError(t, err)
		assert.True(t, later.Equal(lic.ActiveDevices[0].LastUsedAt))

		removed, err := repo.RemoveDevice(ctx, "EEEE-1111-FFFF-2222", "missing")
		require.NoError(t, err)
		assert.False(t, removed)

		removed, err = repo.RemoveDevice(ctx, "EEEE-1111-FFFF-2222", "d1")
		require.NoError(t, err)
		assert.True(t, removed)
	})

	t.Run("password is set once", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newLicense("GGGG-1111-HHHH-2222", 1)))
		ok, err := repo.SetPasswordOnce(ctx, "GGGG-1111-HHHH-2222", "jane@example.com", "hash-1", now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SetPasswordOnce(ctx, "GGGG-1111-HHHH-2222", "jane@example.com", "hash-2", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("state changes respect event order", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, newLicense("IIII-1111-JJJJ-2222", 4)))
		key := "IIII-1111-JJJJ-2222"

		ok, err := repo.ApplyStateChange(ctx, key, license.StateChange{Status: license.StatusBlocked}, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ApplyStateChange(ctx, key, license.StateChange{Status: license.StatusActive}, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.ApplyStateChange(ctx, key, license.StateChange{Status: license.StatusActive, PreserveBlocked: true}, now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		blocked := license.StatusBlocked
		ok, err = repo.ApplyStateChange(ctx, key, license.StateChange{Status: license.StatusActive, RequireStatus: &blocked}, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		lic, err := repo.FindByKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, license.StatusActive, lic.Status)
	})
}

func TestWebhookAndTrialRepositories_Integration(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	now := time.Now().UTC()

	hooks := NewWebhookRepository(pool, zap.NewNop())
	rec := webhook.Record{WebhookID: "wh_1", EventType: webhook.EventPaymentSucceeded, EventAt: now, ClaimedAt: now}

	outcome, err := hooks.Claim(ctx, rec, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, webhook.Claimed, outcome)

	outcome, err = hooks.Claim(ctx, rec, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, webhook.InFlight, outcome, "fresh claim must block a concurrent delivery")

	require.NoError(t, hooks.MarkProcessed(ctx, "wh_1", now))
	rec.ClaimedAt = now.Add(time.Hour)
	outcome, err = hooks.Claim(ctx, rec, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, webhook.AlreadyProcessed, outcome, "processed webhook must never be claimed again")

	stale := webhook.Record{WebhookID: "wh_2", EventType: webhook.EventPaymentSucceeded, EventAt: now, ClaimedAt: now.Add(-time.Hour)}
	outcome, err = hooks.Claim(ctx, stale, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, webhook.Claimed, outcome)
	stale.ClaimedAt = now
	outcome, err = hooks.Claim(ctx, stale, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, webhook.Claimed, outcome, "an expired lease is taken over")

	deleted, err := hooks.DeleteProcessedBefore(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted, "only processed deliveries are purged")

	trials := NewTrialRepository(pool, zap.NewNop())
	tr := &trial.Trial{DeviceID: "device-1", StartedAt: now, ExpiresAt: now.AddDate(0, 0, 7)}
	require.NoError(t, trials.Create(ctx, tr))
	assert.ErrorIs(t, trials.Create(ctx, tr), ierr.ErrDuplicateTrial)

	n, err := trials.DeleteExpiredBefore(ctx, now.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
