package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const listTiers = `-- name: ListTiers :many
SELECT id, slug, name, price, video_limit, admin_limit, created_at FROM tiers
ORDER BY price, slug
`

func (q *Queries) ListTiers(ctx context.Context) ([]Tier, error) {
	return q.listTiers(ctx, listTiers)
}

const listAvailableTiers = `-- name: ListAvailableTiers :many
SELECT t.id, t.slug, t.name, t.price, t.video_limit, t.admin_limit, t.created_at
FROM tiers t
JOIN site_available_tiers sat ON sat.tier_id = t.id
WHERE sat.site_id = $1
ORDER BY t.price, t.slug
`

func (q *Queries) ListAvailableTiers(ctx context.Context, siteID uuid.UUID) ([]Tier, error) {
	return q.listTiers(ctx, listAvailableTiers, siteID)
}

func (q *Queries) listTiers(ctx context.Context, query string, args ...interface{}) ([]Tier, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Tier
	for rows.Next() {
		var i Tier
		if err := rows.Scan(
			&i.ID,
			&i.Slug,
			&i.Name,
			&i.Price,
			&i.VideoLimit,
			&i.AdminLimit,
			&i.CreatedAt,
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

const getTierByID = `-- name: GetTierByID :one
SELECT id, slug, name, price, video_limit, admin_limit, created_at FROM tiers
WHERE id = $1
`

func (q *Queries) GetTierByID(ctx context.Context, id uuid.UUID) (Tier, error) {
	row := q.db.QueryRowContext(ctx, getTierByID, id)
	var i Tier
	err := row.Scan(
		&i.ID,
		&i.Slug,
		&i.Name,
		&i.Price,
		&i.VideoLimit,
		&i.AdminLimit,
		&i.CreatedAt,
	)
	return i, err
}

const getSiteTierInfo = `-- name: GetSiteTierInfo :one
SELECT site_id, tier_id, enforce_payments, welcome_email_sent, video_limit_warning_sent,
       video_count_when_warned, free_trial_ending_sent, free_trial_started_at, updated_at
FROM site_tier_info
WHERE site_id = $1
`

func (q *Queries) GetSiteTierInfo(ctx context.Context, siteID uuid.UUID) (SiteTierInfo, error) {
	row := q.db.QueryRowContext(ctx, getSiteTierInfo, siteID)
	var i SiteTierInfo
	err := row.Scan(
		&i.SiteID,
		&i.TierID,
		&i.EnforcePayments,
		&i.WelcomeEmailSent,
		&i.VideoLimitWarningSent,
		&i.VideoCountWhenWarned,
		&i.FreeTrialEndingSent,
		&i.FreeTrialStartedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateSiteTier = `-- name: UpdateSiteTier :exec
UPDATE site_tier_info
SET tier_id = $2, updated_at = now()
WHERE site_id = $1
`

type UpdateSiteTierParams struct {
	SiteID uuid.UUID
	TierID uuid.UUID
}

func (q *Queries) UpdateSiteTier(ctx context.Context, arg UpdateSiteTierParams) error {
	_, err := q.db.ExecContext(ctx, updateSiteTier, arg.SiteID, arg.TierID)
	return err
}

// Markers only move forward: GREATEST ignores NULL and older timestamps, and
// the warned count changes only with the warning timestamp it belongs to.
const updateNotificationMarkers = `-- name: UpdateNotificationMarkers :exec
UPDATE site_tier_info
SET welcome_email_sent       = GREATEST(welcome_email_sent, $2),
    video_count_when_warned  = CASE
        WHEN $3::timestamptz IS NOT NULL
         AND (video_limit_warning_sent IS NULL OR $3::timestamptz >= video_limit_warning_sent)
        THEN COALESCE($4, video_count_when_warned)
        ELSE video_count_when_warned
    END,
    video_limit_warning_sent = GREATEST(video_limit_warning_sent, $3),
    free_trial_ending_sent   = GREATEST(free_trial_ending_sent, $5),
    updated_at               = now()
WHERE site_id = $1
`

type UpdateNotificationMarkersParams struct {
	SiteID                uuid.UUID
	WelcomeEmailSent      sql.NullTime
	VideoLimitWarningSent sql.NullTime
	VideoCountWhenWarned  sql.NullInt64
	FreeTrialEndingSent   sql.NullTime
}

func (q *Queries) UpdateNotificationMarkers(ctx context.Context, arg UpdateNotificationMarkersParams) error {
	_, err := q.db.ExecContext(ctx, updateNotificationMarkers,
		arg.SiteID,
		arg.WelcomeEmailSent,
		arg.VideoLimitWarningSent,
		arg.VideoCountWhenWarned,
		arg.FreeTrialEndingSent,
	)
	return err
}

const startFreeTrial = `-- name: StartFreeTrial :execrows
UPDATE site_tier_info
SET free_trial_started_at = $2, updated_at = now()
WHERE site_id = $1 AND free_trial_started_at IS NULL
`

type StartFreeTrialParams struct {
	SiteID    uuid.UUID
	StartedAt time.Time
}

func (q *Queries) StartFreeTrial(ctx context.Context, arg StartFreeTrialParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, startFreeTrial, arg.SiteID, arg.StartedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
