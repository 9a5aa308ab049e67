// Package service contains the business logic layer.
//
// This file implements the tier service: resolving payment amounts to tiers,
// direct tier changes from the admin pages, and downgrade planning.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// Subscription statuses reported by the payment provider that start the
// site's free trial.
const subscriptionStatusTrialing = "trialing"

// =============================================================================
// Interface Definition
// =============================================================================

// TierService defines operations on a site's tier.
type TierService interface {
	// GetTierInfo loads the site's tier record with its current tier,
	// offerable tiers and subscriptions.
	GetTierInfo(ctx context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error)

	// CountActiveVideos returns the number of active videos on the site.
	CountActiveVideos(ctx context.Context, siteID uuid.UUID) (int64, error)

	// SelectTier sets the site's tier to the single tier priced at price.
	// Nothing is persisted when zero or several tiers match.
	SelectTier(ctx context.Context, siteID uuid.UUID, price int64) (*domain.Tier, error)

	// SyncFromSubscription re-derives the tier from the current subscription
	// when payments are enforced. Unresolvable prices are logged and leave the
	// tier unchanged.
	SyncFromSubscription(ctx context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error)

	// ChangeTier switches directly to an offerable tier by slug.
	ChangeTier(ctx context.Context, siteID uuid.UUID, slug string) (*domain.Tier, error)

	// TierOptions lists the offerable tiers ordered by price with the action
	// offered for each.
	TierOptions(ctx context.Context, siteID uuid.UUID) ([]domain.TierOption, error)

	// DowngradePlan describes what moving to a cheaper tier would do.
	DowngradePlan(ctx context.Context, siteID uuid.UUID, slug string) (*domain.DowngradePlan, error)

	// RecordSubscription stores a payment-provider subscription event and
	// re-derives the tier.
	RecordSubscription(ctx context.Context, siteID uuid.UUID, event domain.SubscriptionEvent) error

	// SiteForSubscription finds the site a provider subscription belongs to.
	SiteForSubscription(ctx context.Context, providerID string) (uuid.UUID, error)
}

// =============================================================================
// Implementation
// =============================================================================

type tierService struct {
	store  TierStore
	logger *slog.Logger
}

// NewTierService creates a new TierService.
func NewTierService(store TierStore, logger *slog.Logger) TierService {
	return &tierService{
		store:  store,
		logger: logger,
	}
}

// GetTierInfo loads the site's tier record.
func (s *tierService) GetTierInfo(ctx context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error) {
	const op = "TierService.GetTierInfo"

	info, err := loadTierInfo(ctx, s.store, op, siteID)
	if err != nil {
		if domain.ErrorCode(err) == domain.EINTERNAL {
			s.logger.Error("failed to load tier info", "error", err, "op", op, "site_id", siteID)
		}
		return nil, err
	}
	return info, nil
}

// CountActiveVideos returns the number of active videos on the site.
func (s *tierService) CountActiveVideos(ctx context.Context, siteID uuid.UUID) (int64, error) {
	const op = "TierService.CountActiveVideos"

	count, err := s.store.CountActiveVideos(ctx, siteID)
	if err != nil {
		s.logger.Error("failed to count active videos", "error", err, "op", op, "site_id", siteID)
		return 0, domain.Internal(err, op, "Failed to count active videos")
	}
	return count, nil
}

// SelectTier sets the site's tier to the single tier priced at price.
func (s *tierService) SelectTier(ctx context.Context, siteID uuid.UUID, price int64) (*domain.Tier, error) {
	const op = "TierService.SelectTier"

	rows, err := s.store.ListTiers(ctx)
	if err != nil {
		s.logger.Error("failed to list tiers", "error", err, "op", op)
		return nil, domain.Internal(err, op, "Failed to list tiers")
	}

	tier, err := domain.MatchTier(repoTiersToDomain(rows), price)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateSiteTier(ctx, repository.UpdateSiteTierParams{
		SiteID: siteID,
		TierID: tier.ID,
	}); err != nil {
		s.logger.Error("failed to update site tier", "error", err, "op", op, "site_id", siteID)
		return nil, domain.Internal(err, op, "Failed to update site tier")
	}

	s.logger.Info("site tier selected", "site_id", siteID, "tier", tier.Slug, "price", price)
	return &tier, nil
}

// SyncFromSubscription re-derives the tier from the current subscription.
func (s *tierService) SyncFromSubscription(ctx context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error) {
	const op = "TierService.SyncFromSubscription"

	info, err := s.GetTierInfo(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !info.EnforcePayments {
		return info, nil
	}

	price := info.CurrentPrice()
	tier, err := s.SelectTier(ctx, siteID, price)
	switch {
	case errors.Is(err, domain.ErrTierNotFound):
		metrics.TierSelectionFailuresTotal.WithLabelValues("not_found").Inc()
		s.logger.Error("no tier matches subscription price, keeping current tier",
			"op", op, "site_id", siteID, "price", price, "tier", info.Tier.Slug)
		return info, nil
	case errors.Is(err, domain.ErrAmbiguousTier):
		metrics.TierSelectionFailuresTotal.WithLabelValues("ambiguous").Inc()
		s.logger.Error("several tiers match subscription price, keeping current tier",
			"op", op, "site_id", siteID, "price", price, "tier", info.Tier.Slug)
		return info, nil
	case err != nil:
		return nil, err
	}

	if tier.ID != info.Tier.ID {
		metrics.TierChangesTotal.WithLabelValues("subscription", tier.Slug).Inc()
	}
	info.Tier = *tier
	return info, nil
}

// ChangeTier switches directly to an offerable tier. With payments enforced
// only free tiers qualify, and only while no subscription is active.
func (s *tierService) ChangeTier(ctx context.Context, siteID uuid.UUID, slug string) (*domain.Tier, error) {
	const op = "TierService.ChangeTier"

	info, err := s.GetTierInfo(ctx, siteID)
	if err != nil {
		return nil, err
	}

	tier, ok := info.AvailableTier(slug)
	if !ok {
		return nil, domain.NotFound(op, "tier", slug)
	}
	if info.EnforcePayments && !tier.IsFree() {
		return nil, domain.Errorf(domain.EFORBIDDEN, op, "Tier %q requires a subscription", slug)
	}
	// The next sync would put a site with a paid subscription back on the
	// subscribed tier, so the subscription has to be cancelled instead.
	if info.DowngradeAction(tier) == domain.TierActionCancel {
		return nil, domain.Errorf(domain.ECONFLICT, op, "Cancel the active subscription before switching to %q", slug)
	}
	if tier.ID == info.Tier.ID {
		return &tier, nil
	}

	if err := s.store.UpdateSiteTier(ctx, repository.UpdateSiteTierParams{
		SiteID: siteID,
		TierID: tier.ID,
	}); err != nil {
		s.logger.Error("failed to change site tier", "error", err, "op", op, "site_id", siteID)
		return nil, domain.Internal(err, op, "Failed to change site tier")
	}

	metrics.TierChangesTotal.WithLabelValues("admin", tier.Slug).Inc()
	s.logger.Info("site tier changed", "site_id", siteID, "from", info.Tier.Slug, "to", tier.Slug)
	return &tier, nil
}

// TierOptions lists the offerable tiers ordered by price.
func (s *tierService) TierOptions(ctx context.Context, siteID uuid.UUID) ([]domain.TierOption, error) {
	info, err := s.GetTierInfo(ctx, siteID)
	if err != nil {
		return nil, err
	}
	return info.TierOptions(), nil
}

// DowngradePlan describes what moving to a cheaper tier would do.
func (s *tierService) DowngradePlan(ctx context.Context, siteID uuid.UUID, slug string) (*domain.DowngradePlan, error) {
	const op = "TierService.DowngradePlan"

	info, err := s.GetTierInfo(ctx, siteID)
	if err != nil {
		return nil, err
	}

	tier, ok := info.AvailableTier(slug)
	if !ok || tier.Price >= info.Tier.Price {
		return nil, domain.NotFound(op, "downgrade tier", slug)
	}

	active, err := s.CountActiveVideos(ctx, siteID)
	if err != nil {
		return nil, err
	}

	owners, err := s.store.ListOwnersBySite(ctx, siteID)
	if err != nil {
		s.logger.Error("failed to list owners", "error", err, "op", op, "site_id", siteID)
		return nil, domain.Internal(err, op, "Failed to list site owners")
	}

	return &domain.DowngradePlan{
		Tier:               tier,
		Action:             info.DowngradeAction(tier),
		VideosToDeactivate: domain.VideosOverLimit(tier, active),
		AdminsToDemote:     domain.AdminsOverLimit(tier, repoOwnersToDomain(owners)),
	}, nil
}

// RecordSubscription stores a subscription event and re-derives the tier.
func (s *tierService) RecordSubscription(ctx context.Context, siteID uuid.UUID, event domain.SubscriptionEvent) error {
	const op = "TierService.RecordSubscription"

	if event.ProviderID == "" {
		return domain.Invalid(op, "Subscription ID is required")
	}
	if event.Price < 0 {
		return domain.Invalid(op, "Subscription price cannot be negative")
	}

	if _, err := s.store.UpsertSubscription(ctx, repository.UpsertSubscriptionParams{
		SiteID:     siteID,
		ProviderID: event.ProviderID,
		Price:      event.Price,
		SignupAt:   event.OccurredAt,
		Cancelled:  event.Cancelled,
		ModifiedAt: toNullTime(event.OccurredAt),
	}); err != nil {
		s.logger.Error("failed to store subscription", "error", err, "op", op, "site_id", siteID)
		return domain.Internal(err, op, "Failed to store subscription")
	}

	if event.Status == subscriptionStatusTrialing {
		started := event.OccurredAt
		if event.TrialStart != nil {
			started = *event.TrialStart
		}
		n, err := s.store.StartFreeTrial(ctx, repository.StartFreeTrialParams{
			SiteID:    siteID,
			StartedAt: started,
		})
		if err != nil {
			s.logger.Error("failed to start free trial", "error", err, "op", op, "site_id", siteID)
			return domain.Internal(err, op, "Failed to start free trial")
		}
		if n > 0 {
			s.logger.Info("free trial started", "site_id", siteID, "started_at", started)
		}
	}

	s.logger.Info("subscription recorded",
		"site_id", siteID,
		"subscription_id", event.ProviderID,
		"price", event.Price,
		"status", event.Status,
		"cancelled", event.Cancelled,
	)

	_, err := s.SyncFromSubscription(ctx, siteID)
	return err
}

// SiteForSubscription finds the site a provider subscription belongs to.
func (s *tierService) SiteForSubscription(ctx context.Context, providerID string) (uuid.UUID, error) {
	const op = "TierService.SiteForSubscription"

	siteID, err := s.store.GetSubscriptionSiteID(ctx, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, domain.NotFound(op, "subscription", providerID)
		}
		return uuid.Nil, domain.Internal(err, op, "Failed to look up subscription")
	}
	return siteID, nil
}
