package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createWebhookEvent = `-- name: CreateWebhookEvent :one
INSERT INTO webhook_events (provider, event_id, event_type, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, event_id) DO UPDATE
    SET event_type = EXCLUDED.event_type
    WHERE webhook_events.processed_at IS NULL OR webhook_events.error IS NOT NULL
RETURNING id, provider, event_id, event_type, payload, processed_at, error, created_at
`

type CreateWebhookEventParams struct {
	Provider  string
	EventID   string
	EventType string
	Payload   pqtype.NullRawMessage
}

// CreateWebhookEvent records a delivery. Redeliveries of an event that was
// not processed, or failed, are returned again for another attempt; it returns
// sql.ErrNoRows when the event was already processed successfully.
func (q *Queries) CreateWebhookEvent(ctx context.Context, arg CreateWebhookEventParams) (WebhookEvent, error) {
	row := q.db.QueryRowContext(ctx, createWebhookEvent,
		arg.Provider,
		arg.EventID,
		arg.EventType,
		arg.Payload,
	)
	var i WebhookEvent
	err := row.Scan(
		&i.ID,
		&i.Provider,
		&i.EventID,
		&i.EventType,
		&i.Payload,
		&i.ProcessedAt,
		&i.Error,
		&i.CreatedAt,
	)
	return i, err
}

const markWebhookEventProcessed = `-- name: MarkWebhookEventProcessed :exec
UPDATE webhook_events
SET processed_at = now(), error = $2
WHERE id = $1
`

type MarkWebhookEventProcessedParams struct {
	ID    uuid.UUID
	Error sql.NullString
}

func (q *Queries) MarkWebhookEventProcessed(ctx context.Context, arg MarkWebhookEventProcessedParams) error {
	_, err := q.db.ExecContext(ctx, markWebhookEventProcessed, arg.ID, arg.Error)
	return err
}
