package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const listSubscriptionsBySite = `-- name: ListSubscriptionsBySite :many
SELECT id, site_id, provider_id, price, signup_at, modified_at, cancelled FROM subscriptions
WHERE site_id = $1
ORDER BY signup_at DESC
`

func (q *Queries) ListSubscriptionsBySite(ctx context.Context, siteID uuid.UUID) ([]Subscription, error) {
	rows, err := q.db.QueryContext(ctx, listSubscriptionsBySite, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Subscription
	for rows.Next() {
		var i Subscription
		if err := rows.Scan(
			&i.ID,
			&i.SiteID,
			&i.ProviderID,
			&i.Price,
			&i.SignupAt,
			&i.ModifiedAt,
			&i.Cancelled,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertSubscription = `-- name: UpsertSubscription :one
INSERT INTO subscriptions (site_id, provider_id, price, signup_at, cancelled)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (provider_id) DO UPDATE
SET price       = EXCLUDED.price,
    cancelled   = EXCLUDED.cancelled,
    modified_at = CASE
        WHEN subscriptions.price <> EXCLUDED.price THEN $6
        ELSE subscriptions.modified_at
    END
RETURNING id, site_id, provider_id, price, signup_at, modified_at, cancelled
`

type UpsertSubscriptionParams struct {
	SiteID     uuid.UUID
	ProviderID string
	Price      int64
	SignupAt   time.Time
	Cancelled  bool
	ModifiedAt sql.NullTime
}

func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, upsertSubscription,
		arg.SiteID,
		arg.ProviderID,
		arg.Price,
		arg.SignupAt,
		arg.Cancelled,
		arg.ModifiedAt,
	)
	var i Subscription
	err := row.Scan(
		&i.ID,
		&i.SiteID,
		&i.ProviderID,
		&i.Price,
		&i.SignupAt,
		&i.ModifiedAt,
		&i.Cancelled,
	)
	return i, err
}

const getSubscriptionSiteID = `-- name: GetSubscriptionSiteID :one
SELECT site_id FROM subscriptions
WHERE provider_id = $1
`

func (q *Queries) GetSubscriptionSiteID(ctx context.Context, providerID string) (uuid.UUID, error) {
	row := q.db.QueryRowContext(ctx, getSubscriptionSiteID, providerID)
	var siteID uuid.UUID
	err := row.Scan(&siteID)
	return siteID, err
}
