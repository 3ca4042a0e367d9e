package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/entitlement-service/internal/domain/webhook"
	"go.uber.org/zap"
)

type WebhookRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewWebhookRepository(db *pgxpool.Pool, logger *zap.Logger) *WebhookRepository {
	return &WebhookRepository{
		db:     db,
		logger: logger.Named("WebhookRepository"),
	}
}

var _ webhook.Repository = (*WebhookRepository)(nil)

func (r *WebhookRepository) Claim(ctx context.Context, rec webhook.Record, lease time.Duration) (webhook.ClaimOutcome, error) {
	// A stale unprocessed claim belongs to a crashed handler and may be taken over.
	query := `
		INSERT INTO webhook_events (webhook_id, event_type, event_at, claimed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (webhook_id) DO UPDATE
		SET claimed_at = EXCLUDED.claimed_at, event_type = EXCLUDED.event_type, event_at = EXCLUDED.event_at
		WHERE webhook_events.processed_at IS NULL AND webhook_events.claimed_at <= $5
		RETURNING webhook_id
	`
	var id string
	err := r.db.QueryRow(ctx, query,
		rec.WebhookID,
		rec.EventType,
		rec.EventAt,
		rec.ClaimedAt,
		rec.ClaimedAt.Add(-lease),
	).Scan(&id)
	if err == nil {
		return webhook.Claimed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to claim webhook", zap.String("webhook_id", rec.WebhookID), zap.Error(err))
		return webhook.InFlight, fmt.Errorf("database error on claim webhook: %w", err)
	}

	var processed bool
	err = r.db.QueryRow(ctx,
		`SELECT processed_at IS NOT NULL FROM webhook_events WHERE webhook_id = $1`,
		rec.WebhookID,
	).Scan(&processed)
	switch {
	case err == nil && processed:
		return webhook.AlreadyProcessed, nil
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		// Still held, or released between the two statements; either way the sender should retry.
		return webhook.InFlight, nil
	default:
		r.logger.Error("Failed to read webhook claim", zap.String("webhook_id", rec.WebhookID), zap.Error(err))
		return webhook.InFlight, fmt.Errorf("database error on read webhook claim: %w", err)
	}
}

func (r *WebhookRepository) MarkProcessed(ctx context.Context, webhookID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_events SET processed_at = $2 WHERE webhook_id = $1`, webhookID, at)
	if err != nil {
		r.logger.Error("Failed to mark webhook processed", zap.String("webhook_id", webhookID), zap.Error(err))
		return fmt.Errorf("database error on mark webhook processed: %w", err)
	}
	return nil
}

func (r *WebhookRepository) Release(ctx context.Context, webhookID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM webhook_events WHERE webhook_id = $1 AND processed_at IS NULL`, webhookID)
	if err != nil {
		r.logger.Error("Failed to release webhook claim", zap.String("webhook_id", webhookID), zap.Error(err))
		return fmt.Errorf("database error on release webhook: %w", err)
	}
	return nil
}

func (r *WebhookRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM webhook_events WHERE processed_at IS NOT NULL AND processed_at < $1`,
		cutoff,
	)
	if err != nil {
		r.logger.Error("Failed to purge processed webhooks", zap.Error(err))
		return 0, fmt.Errorf("database error on purge webhooks: %w", err)
	}
	return tag.RowsAffected(), nil
}
