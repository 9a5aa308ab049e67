package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/DukeRupert/sitetier/internal/worker"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// SiteService defines the interface for site provisioning.
type SiteService interface {
	// Provision creates a site, its tier record, its offerable tiers, its
	// first owner and the welcome email job in one transaction. Every catalog
	// tier is made available.
	// Returns domain.ECONFLICT if the domain is already taken.
	// Returns domain.EINVALID for validation errors.
	Provision(ctx context.Context, params domain.ProvisionSiteParams) (*domain.Site, error)

	// GetByID retrieves a site by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Site, error)
}

// siteService implements SiteService.
type siteService struct {
	db      *sql.DB
	queries *repository.Queries
	logger  *slog.Logger
}

// NewSiteService creates a new SiteService.
func NewSiteService(db *sql.DB, queries *repository.Queries, logger *slog.Logger) SiteService {
	return &siteService{
		db:      db,
		queries: queries,
		logger:  logger,
	}
}

// Provision creates a new site on the requested tier.
func (s *siteService) Provision(ctx context.Context, params domain.ProvisionSiteParams) (*domain.Site, error) {
	const op = "SiteService.Provision"

	if err := validateProvisionParams(params); err != nil {
		return nil, err
	}

	tiers, err := s.queries.ListTiers(ctx)
	if err != nil {
		s.logger.Error("failed to list tiers", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to load tiers")
	}

	var tierID uuid.UUID
	for _, t := range tiers {
		if t.Slug == params.TierSlug {
			tierID = t.ID
		}
	}
	if tierID == uuid.Nil {
		return nil, domain.NotFound(op, "tier", params.TierSlug)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to begin transaction")
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	repoSite, err := qtx.CreateSite(ctx, repository.CreateSiteParams{
		Name:   strings.TrimSpace(params.Name),
		Domain: strings.ToLower(strings.TrimSpace(params.Domain)),
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.Conflict(op, "Domain already registered")
		}
		s.logger.Error("failed to create site", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to create site")
	}

	if err := qtx.CreateSiteTierInfo(ctx, repository.CreateSiteTierInfoParams{
		SiteID:          repoSite.ID,
		TierID:          tierID,
		EnforcePayments: params.EnforcePayments,
	}); err != nil {
		s.logger.Error("failed to create tier info", "error", err, "op", op, "site_id", repoSite.ID)
		return nil, domain.Internal(err, op, "Failed to create site tier record")
	}

	for _, t := range tiers {
		if err := qtx.AddAvailableTier(ctx, repository.AddAvailableTierParams{
			SiteID: repoSite.ID,
			TierID: t.ID,
		}); err != nil {
			return nil, domain.Internal(err, op, "Failed to add available tier")
		}
	}

	if _, err := qtx.CreateOwner(ctx, repository.CreateOwnerParams{
		SiteID:      repoSite.ID,
		Email:       strings.ToLower(strings.TrimSpace(params.OwnerEmail)),
		Name:        strings.TrimSpace(params.OwnerName),
		IsSuperuser: true,
	}); err != nil {
		s.logger.Error("failed to create owner", "error", err, "op", op, "site_id", repoSite.ID)
		return nil, domain.Internal(err, op, "Failed to create site owner")
	}

	// The welcome job commits with the site so it can neither be lost nor
	// point at a site that was rolled back.
	if _, err := worker.EnqueueSendWelcome(ctx, qtx, repoSite.ID); err != nil {
		s.logger.Error("failed to enqueue welcome", "error", err, "op", op, "site_id", repoSite.ID)
		return nil, domain.Internal(err, op, "Failed to schedule welcome email")
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Internal(err, op, "Failed to commit transaction")
	}

	site := repoSiteToDomain(repoSite)
	s.logger.Info("site provisioned", "site_id", site.ID, "domain", site.Domain, "tier", params.TierSlug)

	return &site, nil
}

// GetByID retrieves a site by ID.
func (s *siteService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Site, error) {
	const op = "SiteService.GetByID"

	repoSite, err := s.queries.GetSite(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "site", id.String())
		}
		s.logger.Error("failed to get site", "error", err, "op", op, "site_id", id)
		return nil, domain.Internal(err, op, "Failed to retrieve site")
	}

	site := repoSiteToDomain(repoSite)
	return &site, nil
}

func validateProvisionParams(params domain.ProvisionSiteParams) error {
	const op = "SiteService.Provision"

	if strings.TrimSpace(params.Name) == "" {
		return domain.Invalid(op, "Site name is required")
	}
	if strings.TrimSpace(params.Domain) == "" {
		return domain.Invalid(op, "Site domain is required")
	}
	if strings.TrimSpace(params.TierSlug) == "" {
		return domain.Invalid(op, "Tier is required")
	}
	if !strings.Contains(params.OwnerEmail, "@") {
		return domain.Invalid(op, "A valid owner email is required")
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// repoSiteToDomain converts a repository Site to a domain Site.
func repoSiteToDomain(rs repository.Site) domain.Site {
	return domain.Site{
		ID:     rs.ID,
		Name:   rs.Name,
		Domain: rs.Domain,
	}
}

// repoTierToDomain converts a repository Tier to a domain Tier.
func repoTierToDomain(rt repository.Tier) domain.Tier {
	return domain.Tier{
		ID:         rt.ID,
		Slug:       rt.Slug,
		Name:       rt.Name,
		Price:      rt.Price,
		VideoLimit: fromNullInt64(rt.VideoLimit),
		AdminLimit: fromNullInt64(rt.AdminLimit),
	}
}

func repoTiersToDomain(rts []repository.Tier) []domain.Tier {
	tiers := make([]domain.Tier, len(rts))
	for i, rt := range rts {
		tiers[i] = repoTierToDomain(rt)
	}
	return tiers
}

// repoSubscriptionToDomain converts a repository Subscription to a domain Subscription.
func repoSubscriptionToDomain(rs repository.Subscription) domain.Subscription {
	return domain.Subscription{
		ID:         rs.ID,
		SiteID:     rs.SiteID,
		ProviderID: rs.ProviderID,
		Price:      rs.Price,
		SignupAt:   rs.SignupAt,
		ModifiedAt: fromNullTime(rs.ModifiedAt),
		Cancelled:  rs.Cancelled,
	}
}

// repoOwnerToDomain converts a repository Owner to a domain Owner.
func repoOwnerToDomain(ro repository.Owner) domain.Owner {
	return domain.Owner{
		ID:          ro.ID,
		SiteID:      ro.SiteID,
		Email:       ro.Email,
		Name:        ro.Name,
		IsSuperuser: ro.IsSuperuser,
		CreatedAt:   ro.CreatedAt,
	}
}

func repoOwnersToDomain(ros []repository.Owner) []domain.Owner {
	owners := make([]domain.Owner, 0, len(ros))
	for _, ro := range ros {
		owners = append(owners, repoOwnerToDomain(ro))
	}
	return owners
}

// fromNullInt64 converts sql.NullInt64 to *int64.
func fromNullInt64(n sql.NullInt64) *int64 {
	if n.Valid {
		return &n.Int64
	}
	return nil
}

// fromNullTime converts sql.NullTime to *time.Time.
func fromNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// toNullTime converts a time to a valid sql.NullTime.
func toNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

// toNullInt64 converts an int64 to a valid sql.NullInt64.
func toNullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: true}
}
