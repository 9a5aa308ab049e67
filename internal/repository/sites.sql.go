package repository

import (
	"context"

	"github.com/google/uuid"
)

const getSite = `-- name: GetSite :one
SELECT id, name, domain, created_at FROM sites
WHERE id = $1
`

func (q *Queries) GetSite(ctx context.Context, id uuid.UUID) (Site, error) {
	row := q.db.QueryRowContext(ctx, getSite, id)
	var i Site
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Domain,
		&i.CreatedAt,
	)
	return i, err
}

const listSiteIDs = `-- name: ListSiteIDs :many
SELECT site_id FROM site_tier_info
ORDER BY site_id
`

func (q *Queries) ListSiteIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listSiteIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countActiveVideos = `-- name: CountActiveVideos :one
SELECT COUNT(*) FROM videos
WHERE site_id = $1 AND status = 'active'
`

func (q *Queries) CountActiveVideos(ctx context.Context, siteID uuid.UUID) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActiveVideos, siteID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const listOwnersBySite = `-- name: ListOwnersBySite :many
SELECT id, site_id, email, name, is_superuser, created_at FROM owners
WHERE site_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOwnersBySite(ctx context.Context, siteID uuid.UUID) ([]Owner, error) {
	return q.listOwners(ctx, listOwnersBySite, siteID)
}

const listSuperusersBySite = `-- name: ListSuperusersBySite :many
SELECT id, site_id, email, name, is_superuser, created_at FROM owners
WHERE site_id = $1 AND is_superuser
ORDER BY created_at, id
`

func (q *Queries) ListSuperusersBySite(ctx context.Context, siteID uuid.UUID) ([]Owner, error) {
	return q.listOwners(ctx, listSuperusersBySite, siteID)
}

func (q *Queries) listOwners(ctx context.Context, query string, siteID uuid.UUID) ([]Owner, error) {
	rows, err := q.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Owner
	for rows.Next() {
		var i Owner
		if err := rows.Scan(
			&i.ID,
			&i.SiteID,
			&i.Email,
			&i.Name,
			&i.IsSuperuser,
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

const createSite = `-- name: CreateSite :one
INSERT INTO sites (name, domain)
VALUES ($1, $2)
RETURNING id, name, domain, created_at
`

type CreateSiteParams struct {
	Name   string
	Domain string
}

func (q *Queries) CreateSite(ctx context.Context, arg CreateSiteParams) (Site, error) {
	row := q.db.QueryRowContext(ctx, createSite, arg.Name, arg.Domain)
	var i Site
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Domain,
		&i.CreatedAt,
	)
	return i, err
}

const createSiteTierInfo = `-- name: CreateSiteTierInfo :exec
INSERT INTO site_tier_info (site_id, tier_id, enforce_payments)
VALUES ($1, $2, $3)
`

type CreateSiteTierInfoParams struct {
	SiteID          uuid.UUID
	TierID          uuid.UUID
	EnforcePayments bool
}

func (q *Queries) CreateSiteTierInfo(ctx context.Context, arg CreateSiteTierInfoParams) error {
	_, err := q.db.ExecContext(ctx, createSiteTierInfo, arg.SiteID, arg.TierID, arg.EnforcePayments)
	return err
}

const addAvailableTier = `-- name: AddAvailableTier :exec
INSERT INTO site_available_tiers (site_id, tier_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`

type AddAvailableTierParams struct {
	SiteID uuid.UUID
	TierID uuid.UUID
}

func (q *Queries) AddAvailableTier(ctx context.Context, arg AddAvailableTierParams) error {
	_, err := q.db.ExecContext(ctx, addAvailableTier, arg.SiteID, arg.TierID)
	return err
}

const createOwner = `-- name: CreateOwner :one
INSERT INTO owners (site_id, email, name, is_superuser)
VALUES ($1, $2, $3, $4)
RETURNING id, site_id, email, name, is_superuser, created_at
`

type CreateOwnerParams struct {
	SiteID      uuid.UUID
	Email       string
	Name        string
	IsSuperuser bool
}

func (q *Queries) CreateOwner(ctx context.Context, arg CreateOwnerParams) (Owner, error) {
	row := q.db.QueryRowContext(ctx, createOwner, arg.SiteID, arg.Email, arg.Name, arg.IsSuperuser)
	var i Owner
	err := row.Scan(
		&i.ID,
		&i.SiteID,
		&i.Email,
		&i.Name,
		&i.IsSuperuser,
		&i.CreatedAt,
	)
	return i, err
}
