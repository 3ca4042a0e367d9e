package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/makkenzo/entitlement-service/internal/cache"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/domain/trial"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/metrics"
	"github.com/makkenzo/entitlement-service/pkg/logger"
	"go.uber.org/zap"
)

// Outcomes reported in WebhookResult.Action.
const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionStale     = "stale"
	ActionIgnored   = "ignored"
	ActionDuplicate = "duplicate"
)

type WebhookResult struct {
	Action     string
	LicenseKey string
	Duplicate  bool
}

type WebhookConfig struct {
	ClaimTTL         time.Duration
	PurchaseTemplate string
}

// WebhookService reconciles payment provider events into license state. Every
// transition sets an absolute status and is applied only when the event is not
// older than the last one applied to the license.
type WebhookService struct {
	licenses license.Repository
	events   webhook.Repository
	trials   trial.Repository
	catalog  *license.Catalog
	notifier Notifier
	cache    *cache.LicenseCache
	cfg      WebhookConfig
	logger   *zap.Logger
	nowFn    func() time.Time
}

func NewWebhookService(
	licenses license.Repository,
	events webhook.Repository,
	trials trial.Repository,
	catalog *license.Catalog,
	notifier Notifier,
	cache *cache.LicenseCache,
	cfg WebhookConfig,
	logger *zap.Logger,
) *WebhookService {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 5 * time.Minute
	}
	if cfg.PurchaseTemplate == "" {
		cfg.PurchaseTemplate = "license_purchase"
	}
	return &WebhookService{
		licenses: licenses,
		events:   events,
		trials:   trials,
		catalog:  catalog,
		notifier: notifier,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.Named("WebhookService"),
		nowFn:    time.Now,
	}
}

// HandleEvent processes one verified delivery. A delivery whose id was already
// processed returns Duplicate without side effects. On error the claim is released
// so the provider's redelivery can retry.
func (s *WebhookService) HandleEvent(ctx context.Context, evt *webhook.Event) (*WebhookResult, error) {
	if evt.ID == "" {
		return nil, fmt.Errorf("%w: webhook id is required", ierr.ErrValidation)
	}
	now := s.nowFn().UTC()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = now
	}
	log := s.logger.With(zap.String("webhook_id", evt.ID), zap.String("event", string(evt.Type)))

	outcome, err := s.events.Claim(ctx, webhook.Record{
		WebhookID: evt.ID,
		EventType: evt.Type,
		EventAt:   evt.Timestamp,
		ClaimedAt: now,
	}, s.cfg.ClaimTTL)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case webhook.AlreadyProcessed:
		log.Info("Duplicate webhook delivery acknowledged")
		metrics.RecordWebhook(string(evt.Type), ActionDuplicate)
		return &WebhookResult{Action: ActionDuplicate, Duplicate: true}, nil
	case webhook.InFlight:
		// The holder may still fail and release; the sender must redeliver.
		log.Info("Webhook delivery is already in progress")
		metrics.RecordWebhook(string(evt.Type), "in_flight")
		return nil, ierr.ErrWebhookInFlight
	}

	result, err := s.apply(ctx, evt, log)
	if err != nil {
		if relErr := s.events.Release(ctx, evt.ID); relErr != nil {
			log.Error("Failed to release webhook claim", zap.Error(relErr))
		}
		if errors.Is(err, ierr.ErrLicensePending) {
			metrics.RecordWebhook(string(evt.Type), "pending")
			log.Warn("Webhook deferred until its license exists",
				zap.String("subscription_id", evt.Data.SubscriptionID),
				zap.String("payment_id", evt.Data.PaymentID),
			)
			return nil, err
		}
		metrics.RecordWebhook(string(evt.Type), "error")
		log.Error("Failed to process webhook", zap.Error(err))
		return nil, err
	}

	if err := s.events.MarkProcessed(ctx, evt.ID, s.nowFn().UTC()); err != nil {
		return nil, err
	}
	if result.LicenseKey != "" {
		s.cache.Invalidate(result.LicenseKey)
	}
	metrics.RecordWebhook(string(evt.Type), result.Action)
	log.Info("Webhook processed", zap.String("action", result.Action), zap.String("license_key", logger.MaskKey(result.LicenseKey)))
	return result, nil
}

func (s *WebhookService) apply(ctx context.Context, evt *webhook.Event, log *zap.Logger) (*WebhookResult, error) {
	switch evt.Type {
	case webhook.EventPaymentSucceeded:
		if evt.Data.SubscriptionID != "" {
			// Subscription payments are reconciled from subscription events.
			return &WebhookResult{Action: ActionIgnored}, nil
		}
		return s.createFromPayment(ctx, evt, log)

	case webhook.EventSubscriptionActive, webhook.EventSubscriptionRenewed:
		return s.upsertSubscription(ctx, evt, log)

	case webhook.EventSubscriptionCancelled:
		return s.transition(ctx, evt, license.StateChange{
			Status:          license.StatusCancelled,
			NextBillingDate: evt.Data.NextBillingDate,
			PreserveBlocked: true,
		}, log)

	case webhook.EventSubscriptionExpired, webhook.EventSubscriptionFailed, webhook.EventSubscriptionOnHold:
		return s.transition(ctx, evt, license.StateChange{
			Status:          license.StatusExpired,
			EndGrace:        true,
			PreserveBlocked: true,
		}, log)

	case webhook.EventDisputeOpened, webhook.EventDisputeLost:
		return s.transition(ctx, evt, license.StateChange{Status: license.StatusBlocked}, log)

	case webhook.EventDisputeWon:
		blocked := license.StatusBlocked
		return s.transition(ctx, evt, license.StateChange{
			Status:        license.StatusActive,
			RequireStatus: &blocked,
		}, log)

	case webhook.EventRefundSucceeded:
		return s.transition(ctx, evt, license.StateChange{
			Status:          license.StatusCancelled,
			EndGrace:        true,
			PreserveBlocked: true,
		}, log)

	default:
		log.Info("Ignoring unhandled webhook event type")
		return &WebhookResult{Action: ActionIgnored}, nil
	}
}

func (s *WebhookService) createFromPayment(ctx context.Context, evt *webhook.Event, log *zap.Logger) (*WebhookResult, error) {
	if evt.Data.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ierr.ErrValidation)
	}
	existing, err := s.licenses.FindByPaymentID(ctx, evt.Data.PaymentID)
	if err == nil {
		return &WebhookResult{Action: ActionIgnored, LicenseKey: existing.LicenseKey}, nil
	}
	if !errors.Is(err, ierr.ErrLicenseNotFound) {
		return nil, err
	}

	paymentID := evt.Data.PaymentID
	lic, err := s.newLicense(evt)
	if err != nil {
		return nil, err
	}
	lic.PaymentID = &paymentID

	if err := createWithFreshKey(ctx, s.licenses, lic); err != nil {
		if errors.Is(err, ierr.ErrConflict) && !errors.Is(err, ierr.ErrDuplicateKey) {
			log.Info("License for this payment was created concurrently")
			return &WebhookResult{Action: ActionIgnored}, nil
		}
		return nil, err
	}
	s.afterPurchase(ctx, lic, log)
	return &WebhookResult{Action: ActionCreated, LicenseKey: lic.LicenseKey}, nil
}

func (s *WebhookService) upsertSubscription(ctx context.Context, evt *webhook.Event, log *zap.Logger) (*WebhookResult, error) {
	subID := evt.Data.SubscriptionID
	if subID == "" {
		return nil, fmt.Errorf("%w: subscription id is required", ierr.ErrValidation)
	}

	_, err := s.licenses.FindBySubscriptionID(ctx, subID)
	if err == nil {
		return s.refreshSubscription(ctx, evt, log)
	}
	if !errors.Is(err, ierr.ErrLicenseNotFound) {
		return nil, err
	}

	lic, err := s.newLicense(evt)
	if err != nil {
		return nil, err
	}
	lic.SubscriptionID = &subID
	if evt.Data.PaymentID != "" {
		paymentID := evt.Data.PaymentID
		lic.PaymentID = &paymentID
	}
	lic.NextBillingDate = evt.Data.NextBillingDate

	if err := createWithFreshKey(ctx, s.licenses, lic); err != nil {
		if errors.Is(err, ierr.ErrConflict) && !errors.Is(err, ierr.ErrDuplicateKey) {
			// Lost the creation race to another delivery for the same subscription.
			return s.refreshSubscription(ctx, evt, log)
		}
		return nil, err
	}
	s.afterPurchase(ctx, lic, log)
	return &WebhookResult{Action: ActionCreated, LicenseKey: lic.LicenseKey}, nil
}

func (s *WebhookService) refreshSubscription(ctx context.Context, evt *webhook.Event, log *zap.Logger) (*WebhookResult, error) {
	return s.transition(ctx, evt, license.StateChange{
		Status:          license.StatusActive,
		NextBillingDate: evt.Data.NextBillingDate,
		PreserveBlocked: true,
	}, log)
}

// PurgeProcessed deletes delivery records processed more than retention ago.
// Unprocessed claims are kept so an in-flight delivery cannot be replayed.
func (s *WebhookService) PurgeProcessed(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.nowFn().UTC().Add(-retention)
	n, err := s.events.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Purged processed webhook deliveries", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// transition applies change to the license the event refers to. An event that
// arrives before the license exists is refused so the provider redelivers it
// after the creating event; the timestamp guard then orders the two.
func (s *WebhookService) transition(ctx context.Context, evt *webhook.Event, change license.StateChange, log *zap.Logger) (*WebhookResult, error) {
	lic, err := s.resolve(ctx, evt.Data)
	if err != nil {
		if errors.Is(err, ierr.ErrLicenseNotFound) {
			return nil, ierr.ErrLicensePending
		}
		return nil, err
	}

	applied, err := s.licenses.ApplyStateChange(ctx, lic.LicenseKey, change, evt.Timestamp)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Info("Skipped stale or non-applicable transition",
			zap.String("license_key", logger.MaskKey(lic.LicenseKey)),
			zap.String("current_status", string(lic.Status)),
			zap.String("target_status", string(change.Status)),
		)
		return &WebhookResult{Action: ActionStale, LicenseKey: lic.LicenseKey}, nil
	}
	return &WebhookResult{Action: ActionUpdated, LicenseKey: lic.LicenseKey}, nil
}

// resolve finds the license by subscription id first, then by payment id.
func (s *WebhookService) resolve(ctx context.Context, data webhook.EventData) (*license.License, error) {
	if data.SubscriptionID != "" {
		lic, err := s.licenses.FindBySubscriptionID(ctx, data.SubscriptionID)
		if err == nil || !errors.Is(err, ierr.ErrLicenseNotFound) || data.PaymentID == "" {
			return lic, err
		}
	}
	if data.PaymentID != "" {
		return s.licenses.FindByPaymentID(ctx, data.PaymentID)
	}
	return nil, ierr.ErrLicenseNotFound
}

func (s *WebhookService) newLicense(evt *webhook.Event) (*license.License, error) {
	productID := evt.Data.Product()
	plan, ok := s.catalog.Resolve(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ierr.ErrUnknownProduct, productID)
	}
	email := license.NormalizeEmail(evt.Data.Customer.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: customer email is required", ierr.ErrValidation)
	}
	eventAt := evt.Timestamp
	return &license.License{
		Email:          email,
		CustomerName:   strings.TrimSpace(evt.Data.Customer.Name),
		Status:         license.StatusActive,
		Type:           plan.Type,
		MaxDevices:     plan.MaxDevices,
		ActiveDevices:  []license.Device{},
		ProductID:      productID,
		UpdatesEndDate: plan.UpdatesEndDate(evt.Timestamp),
		LastEventAt:    &eventAt,
	}, nil
}

// afterPurchase runs best-effort follow-ups; failures never undo the license.
func (s *WebhookService) afterPurchase(ctx context.Context, lic *license.License, log *zap.Logger) {
	log = log.With(zap.String("license_key", logger.MaskKey(lic.LicenseKey)), zap.String("email", logger.MaskEmail(lic.Email)))

	err := s.notifier.SendTransactional(ctx, Email{
		TransactionalID: s.cfg.PurchaseTemplate,
		Address:         lic.Email,
		IdempotencyKey:  "license-purchase:" + lic.LicenseKey,
		DataVariables: map[string]any{
			"licenseKey":   lic.LicenseKey,
			"licenseType":  string(lic.Type),
			"maxDevices":   lic.MaxDevices,
			"customerName": lic.CustomerName,
		},
	})
	if err != nil {
		log.Error("Failed to send purchase email", zap.Error(err))
	}

	if s.trials != nil {
		n, err := s.trials.CountByEmail(ctx, lic.Email)
		if err != nil {
			log.Warn("Failed to correlate purchase with trials", zap.Error(err))
		} else if n > 0 {
			metrics.TrialConversionsTotal.Inc()
		}
	}
}
