package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newTestDeviceService(t *testing.T) (*DeviceService, *memstorage.LicenseRepository, *clock) {
	t.Helper()
	repo := memstorage.NewLicenseRepository()
	clk := newClock()
	svc := NewDeviceService(repo, newTestCache(), zap.NewNop())
	svc.nowFn = clk.Now
	return svc, repo, clk
}

func hardwareIDs(t *testing.T, repo *memstorage.LicenseRepository) []string {
	t.Helper()
	lic, err := repo.FindByKey(context.Background(), testKey)
	require.NoError(t, err)
	ids := make([]string, 0, len(lic.ActiveDevices))
	for _, d := range lic.ActiveDevices {
		ids = append(ids, d.HardwareID)
	}
	return ids
}

func TestDeviceService_SeatLifecycle(t *testing.T) {
	svc, repo, _ := newTestDeviceService(t)
	seedLicense(t, repo, nil)
	ctx := context.Background()
	sess := Session{LicenseKey: testKey, Email: testEmail}

	a, err := svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("a"), DeviceName: "Laptop A"})
	require.NoError(t, err)
	assert.Len(t, hardwareIDs(t, repo), 1)

	_, err = svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("b")})
	require.NoError(t, err)
	assert.Len(t, hardwareIDs(t, repo), 2)

	_, err = svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("c")})
	assert.ErrorIs(t, err, ierr.ErrMaxDevicesReached)
	assert.Len(t, hardwareIDs(t, repo), 2, "a rejected activation must not mutate the device list")

	require.NoError(t, svc.Deactivate(ctx, sess, testKey, a.DeviceID))
	assert.Equal(t, []string{hardware("b").HardwareID()}, hardwareIDs(t, repo))

	_, err = svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("c")})
	require.NoError(t, err)
	assert.Equal(t, []string{hardware("b").HardwareID(), hardware("c").HardwareID()}, hardwareIDs(t, repo))
}

func TestDeviceService_ReactivationIsIdempotent(t *testing.T) {
	svc, repo, clk := newTestDeviceService(t)
	seedLicense(t, repo, nil)
	ctx := context.Background()

	first, err := svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("a"), DeviceID: "client-device-1"})
	require.NoError(t, err)
	assert.Equal(t, "client-device-1", first.DeviceID)
	assert.False(t, first.AlreadyActive)

	clk.Advance(time.Hour)
	again, err := svc.Activate(ctx, ActivateInput{LicenseKey: " abcd-1234-efgh-5678 ", Hardware: hardware("A "), DeviceID: "other-id"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyActive)
	assert.Equal(t, "client-device-1", again.DeviceID)

	lic, err := repo.FindByKey(ctx, testKey)
	require.NoError(t, err)
	require.Len(t, lic.ActiveDevices, 1)
	assert.Equal(t, testNow.Add(time.Hour), lic.ActiveDevices[0].LastUsedAt)
	assert.Equal(t, testNow, lic.ActiveDevices[0].ActivatedAt)
}

func TestDeviceService_ConcurrentActivationsRespectMaxDevices(t *testing.T) {
	svc, repo, _ := newTestDeviceService(t)
	seedLicense(t, repo, func(l *license.License) { l.MaxDevices = 4 })

	var succeeded, full atomic.Int32
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := svc.Activate(context.Background(), ActivateInput{LicenseKey: testKey, Hardware: hardware(fmt.Sprintf("host-%d", i))})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ierr.ErrMaxDevicesReached), errors.Is(err, ierr.ErrConflict):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 4, succeeded.Load())
	assert.EqualValues(t, 21, full.Load())
	assert.Len(t, hardwareIDs(t, repo), 4)
}

func TestDeviceService_ActivateRejections(t *testing.T) {
	ctx := context.Background()
	future := testNow.Add(72 * time.Hour)
	past := testNow.Add(-time.Hour)

	cases := []struct {
		name   string
		mutate func(*license.License)
		input  ActivateInput
		want   error
	}{
		{"malformed key", nil, ActivateInput{LicenseKey: "ABCD"}, ierr.ErrInvalidLicenseKey},
		{"unknown key", nil, ActivateInput{LicenseKey: "ZZZZ-1234-EFGH-5678"}, ierr.ErrLicenseNotFound},
		{"email mismatch", nil, ActivateInput{LicenseKey: testKey, Email: "other@example.com"}, ierr.ErrInvalidLicense},
		{"blocked", func(l *license.License) { l.Status = license.StatusBlocked }, ActivateInput{LicenseKey: testKey}, ierr.ErrLicenseInactive},
		{"expired", func(l *license.License) { l.Status = license.StatusExpired }, ActivateInput{LicenseKey: testKey}, ierr.ErrLicenseInactive},
		{"cancelled past grace", func(l *license.License) {
			l.Status, l.Type, l.NextBillingDate = license.StatusCancelled, license.TypeMonthly, &past
		}, ActivateInput{LicenseKey: testKey}, ierr.ErrLicenseInactive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newTestDeviceService(t)
			seedLicense(t, repo, tc.mutate)
			tc.input.Hardware = hardware("a")

			_, err := svc.Activate(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("cancelled within grace", func(t *testing.T) {
		svc, repo, _ := newTestDeviceService(t)
		seedLicense(t, repo, func(l *license.License) {
			l.Status, l.Type, l.NextBillingDate = license.StatusCancelled, license.TypeMonthly, &future
		})
		res, err := svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("a"), Email: "JANE@example.com"})
		require.NoError(t, err)
		assert.Equal(t, &future, res.ExpiresAt)
	})
}

func TestDeviceService_Deactivate(t *testing.T) {
	svc, repo, _ := newTestDeviceService(t)
	seedLicense(t, repo, nil)
	ctx := context.Background()

	res, err := svc.Activate(ctx, ActivateInput{LicenseKey: testKey, Hardware: hardware("a")})
	require.NoError(t, err)

	err = svc.Deactivate(ctx, Session{LicenseKey: "WXYZ-1234-EFGH-5678"}, testKey, res.DeviceID)
	assert.ErrorIs(t, err, ierr.ErrForbidden)

	sess := Session{LicenseKey: testKey, Email: testEmail}
	assert.ErrorIs(t, svc.Deactivate(ctx, sess, testKey, "missing"), ierr.ErrDeviceNotFound)

	require.NoError(t, svc.Deactivate(ctx, sess, testKey, res.DeviceID))
	devices, err := svc.ListDevices(ctx, sess)
	require.NoError(t, err)
	assert.Empty(t, devices)
}
