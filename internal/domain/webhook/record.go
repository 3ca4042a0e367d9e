package webhook

import (
	"context"
	"time"
)

// Record is the de-duplication entry for one provider delivery.
type Record struct {
	WebhookID   string     `db:"webhook_id"`
	EventType   EventType  `db:"event_type"`
	EventAt     time.Time  `db:"event_at"`
	ClaimedAt   time.Time  `db:"claimed_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

type ClaimOutcome int

const (
	// Claimed means the caller owns the delivery and must process it.
	Claimed ClaimOutcome = iota
	// AlreadyProcessed means an earlier delivery with this id completed.
	AlreadyProcessed
	// InFlight means another delivery holds a claim younger than the lease.
	InFlight
)

type Repository interface {
	// Claim inserts the record, or takes over an unprocessed claim older than lease.
	Claim(ctx context.Context, rec Record, lease time.Duration) (ClaimOutcome, error)
	MarkProcessed(ctx context.Context, webhookID string, at time.Time) error
	// Release drops an unprocessed claim so a redelivery can retry.
	Release(ctx context.Context, webhookID string) error
	// DeleteProcessedBefore removes completed records processed before cutoff.
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
