package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/makkenzo/entitlement-service/internal/config"
	"github.com/makkenzo/entitlement-service/internal/ierr"
	"github.com/makkenzo/entitlement-service/internal/metrics"
	"go.uber.org/zap"
)

// Operations guarded by the abuse limiter.
const (
	OpDeviceActivate     = "device_activate"
	OpDeviceDeactivate   = "device_deactivate"
	OpTrialStart         = "trial_start"
	OpPasswordSet        = "password_set"
	OpLogin              = "login"
	OpPasswordReset      = "password_reset"
	OpLicenseValidate    = "license_validate"
	OpSubscriptionCancel = "subscription_cancel"
	OpIdentityLink       = "identity_link"
	OpContact            = "contact"
)

type Policy struct {
	Limit  int
	Window time.Duration
	// FailClosed rejects requests while the backend is unreachable.
	FailClosed bool
}

func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		OpDeviceActivate:     {Limit: 10, Window: time.Hour},
		OpDeviceDeactivate:   {Limit: 20, Window: time.Hour},
		OpTrialStart:         {Limit: 10, Window: time.Hour},
		OpPasswordSet:        {Limit: 5, Window: time.Hour},
		OpLogin:              {Limit: 10, Window: 15 * time.Minute},
		OpPasswordReset:      {Limit: 3, Window: time.Minute, FailClosed: true},
		OpLicenseValidate:    {Limit: 60, Window: time.Minute},
		OpSubscriptionCancel: {Limit: 3, Window: time.Hour},
		OpIdentityLink:       {Limit: 5, Window: time.Hour},
		OpContact:            {Limit: 5, Window: time.Hour},
	}
}

// PoliciesFromConfig overlays configured policies on the defaults. A configured
// zero window keeps the default one.
func PoliciesFromConfig(cfg config.RateLimitConfig) map[string]Policy {
	policies := DefaultPolicies()
	for op, pc := range cfg.Policies {
		p := policies[op]
		if pc.Limit > 0 {
			p.Limit = pc.Limit
		}
		if pc.Window > 0 {
			p.Window = pc.Window
		}
		p.FailClosed = p.FailClosed || pc.FailClosed
		policies[op] = p
	}
	return policies
}

type Guard struct {
	limiter  *Limiter
	policies map[string]Policy
	logger   *zap.Logger
}

func NewGuard(limiter *Limiter, policies map[string]Policy, logger *zap.Logger) *Guard {
	return &Guard{
		limiter:  limiter,
		policies: policies,
		logger:   logger.Named("RateLimitGuard"),
	}
}

// Check records one attempt of operation for identifier. It returns a
// *ierr.RateLimitError when the window is exhausted.
func (g *Guard) Check(ctx context.Context, operation, identifier string) error {
	policy, ok := g.policies[operation]
	if !ok || policy.Limit <= 0 {
		g.logger.Warn("No rate limit policy for operation", zap.String("operation", operation))
		return nil
	}

	d, err := g.limiter.Allow(ctx, g.limiter.Key(operation, identifier), policy.Limit, policy.Window)
	if err != nil {
		if policy.FailClosed {
			metrics.RecordRateLimitError(operation, "closed")
			g.logger.Error("Rate limiter unavailable, rejecting request", zap.String("operation", operation), zap.Error(err))
			return fmt.Errorf("%w: rate limiter unavailable", ierr.ErrUnavailable)
		}
		metrics.RecordRateLimitError(operation, "open")
		g.logger.Warn("Rate limiter unavailable, allowing request", zap.String("operation", operation), zap.Error(err))
		return nil
	}

	if !d.Allowed {
		metrics.RecordRateLimitRejection(operation)
		g.logger.Info("Rate limit exceeded", zap.String("operation", operation), zap.Duration("retry_after", d.RetryAfter))
		return &ierr.RateLimitError{
			Operation:  operation,
			Limit:      d.Limit,
			Remaining:  d.Remaining,
			ResetAt:    d.ResetAt,
			RetryAfter: d.RetryAfter,
		}
	}
	return nil
}
