package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/checkout/internal/errs"
	"github.com/and161185/checkout/internal/model"
	"github.com/google/uuid"
)

func (s *PostgresStorage) SaveWebhookEvent(ctx context.Context, ev model.WebhookEvent) (model.WebhookEvent, error) {
	const query = `INSERT INTO webhook_events (id, provider, payload, received_at) VALUES ($1, $2, $3, $4)`

	if _, err := s.db.Exec(ctx, query, ev.ID, ev.Provider, ev.Payload, ev.ReceivedAt); err != nil {
		return model.WebhookEvent{}, fmt.Errorf("insert webhook event: %w", err)
	}
	return ev, nil
}

func (s *PostgresStorage) MarkWebhookProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `
		UPDATE webhook_events
		SET processed_at = $2, attempts = attempts + 1, last_error = ''
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrMalformedEvent
	}
	return nil
}

func (s *PostgresStorage) RecordWebhookFailure(ctx context.Context, id uuid.UUID, message string) error {
	const query = `UPDATE webhook_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrMalformedEvent
	}
	return nil
}

func (s *PostgresStorage) ListPendingWebhookEvents(ctx context.Context, limit, maxAttempts int) ([]model.WebhookEvent, error) {
	const query = `
		SELECT id, provider, payload, received_at, processed_at, attempts, last_error
		FROM webhook_events
		WHERE processed_at IS NULL AND ($2 <= 0 OR attempts < $2)
		ORDER BY received_at ASC
		LIMIT $1`

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, query, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("get pending webhook events: %w", err)
	}
	defer rows.Close()

	var list []model.WebhookEvent
	for rows.Next() {
		var ev model.WebhookEvent
		if err := rows.Scan(&ev.ID, &ev.Provider, &ev.Payload, &ev.ReceivedAt, &ev.ProcessedAt, &ev.Attempts, &ev.LastError); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		list = append(list, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return list, nil
}
