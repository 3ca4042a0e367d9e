package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels are low-cardinality: no license keys, emails or device ids.

var (
	ActivationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_device_activations_total",
			Help: "Device activation attempts by outcome",
		},
		[]string{"outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_webhook_events_total",
			Help: "Payment webhook deliveries by event type and outcome",
		},
		[]string{"event", "outcome"},
	)

	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_rate_limit_rejections_total",
			Help: "Requests rejected by the abuse guard",
		},
		[]string{"operation"},
	)

	RateLimitErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_rate_limit_backend_errors_total",
			Help: "Rate limiter backend failures by operation and policy action",
		},
		[]string{"operation", "action"},
	)

	TrialsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_trials_started_total",
			Help: "Trials started",
		},
	)

	TrialConversionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_trial_conversions_total",
			Help: "Purchases whose email matches a previously started trial",
		},
	)

	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_emails_total",
			Help: "Transactional email deliveries by outcome",
		},
		[]string{"outcome"},
	)

	ValidationCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_validation_cache_total",
			Help: "License validation cache lookups by result",
		},
		[]string{"result"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitlement_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordActivation(outcome string) {
	ActivationsTotal.WithLabelValues(outcome).Inc()
}

func RecordWebhook(event, outcome string) {
	WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func RecordRateLimitRejection(operation string) {
	RateLimitRejectionsTotal.WithLabelValues(operation).Inc()
}

func RecordRateLimitError(operation, action string) {
	RateLimitErrorsTotal.WithLabelValues(operation, action).Inc()
}

func RecordEmail(outcome string) {
	EmailsTotal.WithLabelValues(outcome).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		ValidationCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	ValidationCacheTotal.WithLabelValues("miss").Inc()
}
