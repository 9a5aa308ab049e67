package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// TierInfoReader is the read side shared by the tier and notification
// services. *repository.Queries implements it.
type TierInfoReader interface {
	GetSite(ctx context.Context, id uuid.UUID) (repository.Site, error)
	GetSiteTierInfo(ctx context.Context, siteID uuid.UUID) (repository.SiteTierInfo, error)
	GetTierByID(ctx context.Context, id uuid.UUID) (repository.Tier, error)
	ListAvailableTiers(ctx context.Context, siteID uuid.UUID) ([]repository.Tier, error)
	ListSubscriptionsBySite(ctx context.Context, siteID uuid.UUID) ([]repository.Subscription, error)
}

// TierStore is the persistence used by TierService.
type TierStore interface {
	TierInfoReader
	ListTiers(ctx context.Context) ([]repository.Tier, error)
	UpdateSiteTier(ctx context.Context, arg repository.UpdateSiteTierParams) error
	UpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (repository.Subscription, error)
	GetSubscriptionSiteID(ctx context.Context, providerID string) (uuid.UUID, error)
	StartFreeTrial(ctx context.Context, arg repository.StartFreeTrialParams) (int64, error)
	CountActiveVideos(ctx context.Context, siteID uuid.UUID) (int64, error)
	ListOwnersBySite(ctx context.Context, siteID uuid.UUID) ([]repository.Owner, error)
}

// NotificationStore is the persistence used by NotificationService.
type NotificationStore interface {
	TierInfoReader
	ListSuperusersBySite(ctx context.Context, siteID uuid.UUID) ([]repository.Owner, error)
	UpdateNotificationMarkers(ctx context.Context, arg repository.UpdateNotificationMarkersParams) error
}

var (
	_ TierStore         = (*repository.Queries)(nil)
	_ NotificationStore = (*repository.Queries)(nil)
)

// loadTierInfo assembles the site tier record from its rows.
func loadTierInfo(ctx context.Context, store TierInfoReader, op string, siteID uuid.UUID) (*domain.SiteTierInfo, error) {
	row, err := store.GetSiteTierInfo(ctx, siteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "site tier info", siteID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve site tier info")
	}

	site, err := store.GetSite(ctx, siteID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to retrieve site")
	}

	tier, err := store.GetTierByID(ctx, row.TierID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to retrieve current tier")
	}

	available, err := store.ListAvailableTiers(ctx, siteID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list available tiers")
	}

	subs, err := store.ListSubscriptionsBySite(ctx, siteID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list subscriptions")
	}

	info := &domain.SiteTierInfo{
		SiteID:                siteID,
		Site:                  repoSiteToDomain(site),
		Tier:                  repoTierToDomain(tier),
		AvailableTiers:        repoTiersToDomain(available),
		EnforcePayments:       row.EnforcePayments,
		WelcomeEmailSent:      fromNullTime(row.WelcomeEmailSent),
		VideoLimitWarningSent: fromNullTime(row.VideoLimitWarningSent),
		VideoCountWhenWarned:  fromNullInt64(row.VideoCountWhenWarned),
		FreeTrialEndingSent:   fromNullTime(row.FreeTrialEndingSent),
		FreeTrialStartedAt:    fromNullTime(row.FreeTrialStartedAt),
		Subscriptions:         make([]domain.Subscription, 0, len(subs)),
	}
	for _, s := range subs {
		info.Subscriptions = append(info.Subscriptions, repoSubscriptionToDomain(s))
	}

	return info, nil
}
