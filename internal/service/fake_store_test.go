package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/DukeRupert/sitetier/internal/email"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// fakeStore is an in-memory TierStore and NotificationStore for one site.
type fakeStore struct {
	site          repository.Site
	info          repository.SiteTierInfo
	tiers         []repository.Tier
	available     []uuid.UUID
	subscriptions []repository.Subscription
	owners        []repository.Owner
	activeVideos  int64

	tierUpdates   int
	markerUpdates []repository.UpdateNotificationMarkersParams
	failMarkers   error
}

func newFakeStore(tiers ...repository.Tier) *fakeStore {
	siteID := uuid.New()
	s := &fakeStore{
		site:  repository.Site{ID: siteID, Name: "Cat Videos", Domain: "cats.example.com"},
		info:  repository.SiteTierInfo{SiteID: siteID},
		tiers: tiers,
	}
	for _, t := range tiers {
		s.available = append(s.available, t.ID)
	}
	if len(tiers) > 0 {
		s.info.TierID = tiers[0].ID
	}
	return s
}

func repoTier(slug string, price int64, videoLimit int64) repository.Tier {
	t := repository.Tier{ID: uuid.New(), Slug: slug, Name: slug, Price: price}
	if videoLimit > 0 {
		t.VideoLimit = sql.NullInt64{Int64: videoLimit, Valid: true}
	}
	return t
}

func (s *fakeStore) siteID() uuid.UUID { return s.site.ID }

func (s *fakeStore) GetSite(_ context.Context, id uuid.UUID) (repository.Site, error) {
	if id != s.site.ID {
		return repository.Site{}, sql.ErrNoRows
	}
	return s.site, nil
}

func (s *fakeStore) GetSiteTierInfo(_ context.Context, siteID uuid.UUID) (repository.SiteTierInfo, error) {
	if siteID != s.info.SiteID {
		return repository.SiteTierInfo{}, sql.ErrNoRows
	}
	return s.info, nil
}

func (s *fakeStore) GetTierByID(_ context.Context, id uuid.UUID) (repository.Tier, error) {
	for _, t := range s.tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return repository.Tier{}, sql.ErrNoRows
}

func (s *fakeStore) ListTiers(context.Context) ([]repository.Tier, error) {
	return s.tiers, nil
}

func (s *fakeStore) ListAvailableTiers(_ context.Context, _ uuid.UUID) ([]repository.Tier, error) {
	var out []repository.Tier
	for _, id := range s.available {
		for _, t := range s.tiers {
			if t.ID == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ListSubscriptionsBySite(_ context.Context, _ uuid.UUID) ([]repository.Subscription, error) {
	return s.subscriptions, nil
}

func (s *fakeStore) UpdateSiteTier(_ context.Context, arg repository.UpdateSiteTierParams) error {
	s.tierUpdates++
	s.info.TierID = arg.TierID
	return nil
}

func (s *fakeStore) UpsertSubscription(_ context.Context, arg repository.UpsertSubscriptionParams) (repository.Subscription, error) {
	for i, sub := range s.subscriptions {
		if sub.ProviderID == arg.ProviderID {
			if sub.Price != arg.Price {
				s.subscriptions[i].ModifiedAt = arg.ModifiedAt
			}
			s.subscriptions[i].Price = arg.Price
			s.subscriptions[i].Cancelled = arg.Cancelled
			return s.subscriptions[i], nil
		}
	}
	sub := repository.Subscription{
		ID:         uuid.New(),
		SiteID:     arg.SiteID,
		ProviderID: arg.ProviderID,
		Price:      arg.Price,
		SignupAt:   arg.SignupAt,
		Cancelled:  arg.Cancelled,
	}
	s.subscriptions = append(s.subscriptions, sub)
	return sub, nil
}

func (s *fakeStore) GetSubscriptionSiteID(_ context.Context, providerID string) (uuid.UUID, error) {
	for _, sub := range s.subscriptions {
		if sub.ProviderID == providerID {
			return sub.SiteID, nil
		}
	}
	return uuid.Nil, sql.ErrNoRows
}

func (s *fakeStore) StartFreeTrial(_ context.Context, arg repository.StartFreeTrialParams) (int64, error) {
	if s.info.FreeTrialStartedAt.Valid {
		return 0, nil
	}
	s.info.FreeTrialStartedAt = sql.NullTime{Time: arg.StartedAt, Valid: true}
	return 1, nil
}

func (s *fakeStore) CountActiveVideos(context.Context, uuid.UUID) (int64, error) {
	return s.activeVideos, nil
}

func (s *fakeStore) ListOwnersBySite(context.Context, uuid.UUID) ([]repository.Owner, error) {
	owners := append([]repository.Owner(nil), s.owners...)
	sort.SliceStable(owners, func(a, b int) bool { return owners[a].CreatedAt.Before(owners[b].CreatedAt) })
	return owners, nil
}

func (s *fakeStore) ListSuperusersBySite(ctx context.Context, siteID uuid.UUID) ([]repository.Owner, error) {
	all, _ := s.ListOwnersBySite(ctx, siteID)
	var out []repository.Owner
	for _, o := range all {
		if o.IsSuperuser {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateNotificationMarkers(_ context.Context, arg repository.UpdateNotificationMarkersParams) error {
	if s.failMarkers != nil {
		return s.failMarkers
	}
	s.markerUpdates = append(s.markerUpdates, arg)
	if arg.WelcomeEmailSent.Valid {
		s.info.WelcomeEmailSent = arg.WelcomeEmailSent
	}
	if arg.VideoLimitWarningSent.Valid {
		s.info.VideoLimitWarningSent = arg.VideoLimitWarningSent
	}
	if arg.VideoCountWhenWarned.Valid {
		s.info.VideoCountWhenWarned = arg.VideoCountWhenWarned
	}
	if arg.FreeTrialEndingSent.Valid {
		s.info.FreeTrialEndingSent = arg.FreeTrialEndingSent
	}
	return nil
}

// fakeMailer records notifications.
type fakeMailer struct {
	sent []email.Notification
	err  error
}

func (m *fakeMailer) Send(_ context.Context, n email.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func superuser(email string, created time.Time) repository.Owner {
	return repository.Owner{ID: uuid.New(), Email: email, Name: email, IsSuperuser: true, CreatedAt: created}
}
