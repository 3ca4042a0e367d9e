package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/makkenzo/entitlement-service/internal/cache"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testKey   = "ABCD-1234-EFGH-5678"
	testEmail = "jane@example.com"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: testNow} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendTransactional(ctx context.Context, email Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) CancelSubscription(ctx context.Context, subscriptionID string) error {
	args := m.Called(ctx, subscriptionID)
	return args.Error(0)
}

func newTestCache() *cache.LicenseCache {
	return cache.NewLicenseCache(100, time.Minute)
}

func seedLicense(t *testing.T, repo *memstorage.LicenseRepository, mutate func(*license.License)) *license.License {
	t.Helper()
	lic := &license.License{
		LicenseKey:    testKey,
		Email:         testEmail,
		Status:        license.StatusActive,
		Type:          license.TypeLifetime,
		MaxDevices:    2,
		ActiveDevices: []license.Device{},
		ProductID:     "prod_lifetime",
	}
	if mutate != nil {
		mutate(lic)
	}
	require.NoError(t, repo.Create(context.Background(), lic))
	return lic
}

func hardware(host string) license.HardwareInfo {
	return license.HardwareInfo{OS: "macOS", Hostname: host, CPUs: 8, Arch: "arm64", Platform: "darwin"}
}
