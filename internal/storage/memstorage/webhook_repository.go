package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
)

type WebhookRepository struct {
	mu      sync.Mutex
	records map[string]webhook.Record
}

func NewWebhookRepository() *WebhookRepository {
	return &WebhookRepository{records: make(map[string]webhook.Record)}
}

var _ webhook.Repository = (*WebhookRepository)(nil)

func (r *WebhookRepository) Claim(ctx context.Context, rec webhook.Record, lease time.Duration) (webhook.ClaimOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[rec.WebhookID]; ok {
		if existing.ProcessedAt != nil {
			return webhook.AlreadyProcessed, nil
		}
		if existing.ClaimedAt.After(rec.ClaimedAt.Add(-lease)) {
			return webhook.InFlight, nil
		}
	}
	r.records[rec.WebhookID] = rec
	return webhook.Claimed, nil
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, webhookID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[webhookID]
	if !ok {
		return nil
	}
	rec.ProcessedAt = &at
	r.records[webhookID] = rec
	return nil
}

func (r *WebhookRepository) Release(ctx context.Context, webhookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[webhookID]; ok && rec.ProcessedAt == nil {
		delete(r.records, webhookID)
	}
	return nil
}

func (r *WebhookRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, rec := range r.records {
		if rec.ProcessedAt != nil && rec.ProcessedAt.Before(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// Get is used by tests to inspect a stored record.
func (r *WebhookRepository) Get(webhookID string) (webhook.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[webhookID]
	return rec, ok
}
