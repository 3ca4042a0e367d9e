package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/metrics"
	"github.com/makkenzo/entitlement-service/internal/service"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

// Sender delivers one transactional email synchronously.
type Sender interface {
	Send(ctx context.Context, email service.Email) error
}

type EmailHandler struct {
	sender Sender
	logger *zap.Logger
}

func NewEmailHandler(sender Sender, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		sender: sender,
		logger: logger.Named("EmailHandler"),
	}
}

func (h *EmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeEmailSend {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p EmailPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for email task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(zap.String("template", p.TransactionalID), zap.String("email", logger.MaskEmail(p.Address)))
	if err := h.sender.Send(ctx, p.Email()); err != nil {
		if errors.Is(err, ierr.ErrValidation) {
			metrics.RecordEmail("rejected")
			log.Error("Email rejected by provider, not retrying", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		metrics.RecordEmail("retry")
		log.Warn("Email delivery failed, will retry", zap.Error(err))
		return err
	}

	metrics.RecordEmail("sent")
	log.Info("Email delivered")
	return nil
}

type LicenseGraceExpireHandler struct {
	licenses *service.LicenseService
	logger   *zap.Logger
}

func NewLicenseGraceExpireHandler(licenses *service.LicenseService, logger *zap.Logger) *LicenseGraceExpireHandler {
	return &LicenseGraceExpireHandler{
		licenses: licenses,
		logger:   logger.Named("LicenseGraceExpireHandler"),
	}
}

func (h *LicenseGraceExpireHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeLicenseGraceExpire {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}
	h.logger.Info("Processing subscription grace expiry sweep...")

	n, err := h.licenses.ExpireLapsedSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("grace expiry sweep failed: %w", err)
	}
	h.logger.Info("Subscription grace expiry sweep finished", zap.Int64("updated_to_expired", n))
	return nil
}

type TrialPurgeHandler struct {
	trials    *service.TrialService
	retention time.Duration
	logger    *zap.Logger
}

func NewTrialPurgeHandler(trials *service.TrialService, retention time.Duration, logger *zap.Logger) *TrialPurgeHandler {
	return &TrialPurgeHandler{
		trials:    trials,
		retention: retention,
		logger:    logger.Named("TrialPurgeHandler"),
	}
}

func (h *TrialPurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeTrialPurge {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}
	if _, err := h.trials.PurgeExpired(ctx, h.retention); err != nil {
		return fmt.Errorf("trial purge failed: %w", err)
	}
	return nil
}

type WebhookPurgeHandler struct {
	webhooks  *service.WebhookService
	retention time.Duration
	logger    *zap.Logger
}

func NewWebhookPurgeHandler(webhooks *service.WebhookService, retention time.Duration, logger *zap.Logger) *WebhookPurgeHandler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &WebhookPurgeHandler{
		webhooks:  webhooks,
		retention: retention,
		logger:    logger.Named("WebhookPurgeHandler"),
	}
}

func (h *WebhookPurgeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeWebhookPurge {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}
	if _, err := h.webhooks.PurgeProcessed(ctx, h.retention); err != nil {
		return fmt.Errorf("webhook purge failed: %w", err)
	}
	return nil
}
