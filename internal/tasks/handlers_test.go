package tasks

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent []service.Email
	err  error
}

func (f *fakeSender) Send(ctx context.Context, email service.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func emailTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewEmailTask(service.Email{
		TransactionalID: "tpl_purchase",
		Address:         "jane@example.com",
		IdempotencyKey:  "license-purchase:ABCD-1234-EFGH-5678",
		DataVariables:   map[string]any{"licenseKey": "ABCD-1234-EFGH-5678"},
	})
	require.NoError(t, err)
	return task
}

func TestEmailHandler_Delivers(t *testing.T) {
	sender := &fakeSender{}
	h := NewEmailHandler(sender, zap.NewNop())

	require.NoError(t, h.ProcessTask(context.Background(), emailTask(t)))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "jane@example.com", sender.sent[0].Address)
	assert.Equal(t, "license-purchase:ABCD-1234-EFGH-5678", sender.sent[0].IdempotencyKey)
	assert.Equal(t, "ABCD-1234-EFGH-5678", sender.sent[0].DataVariables["licenseKey"])
}

func TestEmailHandler_RetryPolicy(t *testing.T) {
	transient := NewEmailHandler(&fakeSender{err: fmt.Errorf("%w: HTTP 503", ierr.ErrUpstream)}, zap.NewNop())
	err := transient.ProcessTask(context.Background(), emailTask(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	permanent := NewEmailHandler(&fakeSender{err: fmt.Errorf("%w: HTTP 400", ierr.ErrValidation)}, zap.NewNop())
	err = permanent.ProcessTask(context.Background(), emailTask(t))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	bad := asynq.NewTask(TypeEmailSend, []byte("{"))
	err = permanent.ProcessTask(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLicenseGraceExpireHandler(t *testing.T) {
	repo := memstorage.NewLicenseRepository()
	lapsed := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(context.Background(), &license.License{
		LicenseKey: "ABCD-1234-EFGH-5678", Email: "jane@example.com", Status: license.StatusCancelled,
		Type: license.TypeMonthly, MaxDevices: 4, ActiveDevices: []license.Device{}, NextBillingDate: &lapsed,
	}))
	svc := service.NewLicenseService(repo, nil, nil, zap.NewNop())
	h := NewLicenseGraceExpireHandler(svc, zap.NewNop())

	require.NoError(t, h.ProcessTask(context.Background(), NewLicenseGraceExpireTask()))

	lic, err := repo.FindByKey(context.Background(), "ABCD-1234-EFGH-5678")
	require.NoError(t, err)
	assert.Equal(t, license.StatusExpired, lic.Status)

	assert.Error(t, h.ProcessTask(context.Background(), NewTrialPurgeTask()))
}

func TestTrialPurgeHandler(t *testing.T) {
	svc := service.NewTrialService(memstorage.NewTrialRepository(), 7, zap.NewNop())
	h := NewTrialPurgeHandler(svc, 90*24*time.Hour, zap.NewNop())
	assert.NoError(t, h.ProcessTask(context.Background(), NewTrialPurgeTask()))
}

func TestWebhookPurgeHandler(t *testing.T) {
	events := memstorage.NewWebhookRepository()
	ctx := context.Background()
	old := time.Now().Add(-60 * 24 * time.Hour)
	_, err := events.Claim(ctx, webhook.Record{WebhookID: "wh_old", ClaimedAt: old}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, events.MarkProcessed(ctx, "wh_old", old))
	_, err = events.Claim(ctx, webhook.Record{WebhookID: "wh_new", ClaimedAt: time.Now()}, time.Minute)
	require.NoError(t, err)
	require.NoError(t, events.MarkProcessed(ctx, "wh_new", time.Now()))

	svc := service.NewWebhookService(memstorage.NewLicenseRepository(), events, memstorage.NewTrialRepository(),
		nil, nil, nil, service.WebhookConfig{}, zap.NewNop())
	h := NewWebhookPurgeHandler(svc, 30*24*time.Hour, zap.NewNop())

	require.NoError(t, h.ProcessTask(ctx, NewWebhookPurgeTask()))

	_, ok := events.Get("wh_old")
	assert.False(t, ok)
	_, ok = events.Get("wh_new")
	assert.True(t, ok)

	assert.Error(t, h.ProcessTask(ctx, NewTrialPurgeTask()))
}
