package handler

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DukeRupert/sitetier/internal/billing"
	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

func limit(n int64) *int64 { return &n }

var (
	tierBasic   = domain.Tier{ID: uuid.New(), Slug: "basic", Name: "Basic", Price: 0, VideoLimit: limit(500), AdminLimit: limit(1)}
	tierPlus    = domain.Tier{ID: uuid.New(), Slug: "plus", Name: "Plus", Price: 1500, VideoLimit: limit(1000), AdminLimit: limit(3)}
	tierPremium = domain.Tier{ID: uuid.New(), Slug: "premium", Name: "Premium", Price: 3500}
)

// fakeTierService is an in-memory TierService for one site.
type fakeTierService struct {
	info         *domain.SiteTierInfo
	activeVideos int64

	synced    int
	changedTo []string
	recorded  []domain.SubscriptionEvent
	recordErr error
	subSites  map[string]uuid.UUID
	changeErr error
	planErr   error
	infoErr   error
}

func newFakeTierService(current domain.Tier) *fakeTierService {
	siteID := uuid.New()
	return &fakeTierService{
		info: &domain.SiteTierInfo{
			SiteID:         siteID,
			Site:           domain.Site{ID: siteID, Name: "Cat Videos", Domain: "cats.example.com"},
			Tier:           current,
			AvailableTiers: []domain.Tier{tierBasic, tierPlus, tierPremium},
		},
		subSites: make(map[string]uuid.UUID),
	}
}

func (f *fakeTierService) siteID() uuid.UUID { return f.info.SiteID }

func (f *fakeTierService) GetTierInfo(_ context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if siteID != f.info.SiteID {
		return nil, domain.NotFound("fake.GetTierInfo", "site", siteID.String())
	}
	info := *f.info
	return &info, nil
}

func (f *fakeTierService) CountActiveVideos(context.Context, uuid.UUID) (int64, error) {
	return f.activeVideos, nil
}

func (f *fakeTierService) SelectTier(_ context.Context, _ uuid.UUID, price int64) (*domain.Tier, error) {
	tier, err := domain.MatchTier(f.info.AvailableTiers, price)
	if err != nil {
		return nil, err
	}
	f.info.Tier = tier
	return &tier, nil
}

func (f *fakeTierService) SyncFromSubscription(ctx context.Context, siteID uuid.UUID) (*domain.SiteTierInfo, error) {
	f.synced++
	return f.GetTierInfo(ctx, siteID)
}

func (f *fakeTierService) ChangeTier(_ context.Context, _ uuid.UUID, slug string) (*domain.Tier, error) {
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	tier, ok := f.info.AvailableTier(slug)
	if !ok {
		return nil, domain.NotFound("fake.ChangeTier", "tier", slug)
	}
	f.changedTo = append(f.changedTo, slug)
	f.info.Tier = tier
	return &tier, nil
}

func (f *fakeTierService) TierOptions(context.Context, uuid.UUID) ([]domain.TierOption, error) {
	return f.info.TierOptions(), nil
}

func (f *fakeTierService) DowngradePlan(_ context.Context, _ uuid.UUID, slug string) (*domain.DowngradePlan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	tier, ok := f.info.AvailableTier(slug)
	if !ok || tier.Price >= f.info.Tier.Price {
		return nil, domain.NotFound("fake.DowngradePlan", "downgrade tier", slug)
	}
	return &domain.DowngradePlan{
		Tier:               tier,
		Action:             f.info.DowngradeAction(tier),
		VideosToDeactivate: domain.VideosOverLimit(tier, f.activeVideos),
	}, nil
}

func (f *fakeTierService) RecordSubscription(_ context.Context, siteID uuid.UUID, event domain.SubscriptionEvent) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	if siteID != f.info.SiteID {
		return domain.NotFound("fake.RecordSubscription", "site", siteID.String())
	}
	f.recorded = append(f.recorded, event)
	return nil
}

func (f *fakeTierService) SiteForSubscription(_ context.Context, providerID string) (uuid.UUID, error) {
	id, ok := f.subSites[providerID]
	if !ok {
		return uuid.Nil, domain.NotFound("fake.SiteForSubscription", "subscription", providerID)
	}
	return id, nil
}

// fakeBilling records calls instead of talking to Stripe.
type fakeBilling struct {
	checkouts []billing.CheckoutParams
	cancelled []string
	event     stripe.Event
	verifyErr error
	cancelErr error
}

func (f *fakeBilling) CreateCheckoutSession(p billing.CheckoutParams) (string, error) {
	f.checkouts = append(f.checkouts, p)
	return "https://checkout.stripe.com/c/pay/cs_test_1", nil
}

func (f *fakeBilling) CancelSubscription(id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeBilling) VerifyWebhookSignature([]byte, string) (stripe.Event, error) {
	return f.event, f.verifyErr
}

// fakeEventStore keeps webhook events in memory with the same redelivery
// rules as the database.
type fakeEventStore struct {
	events map[string]*repository.WebhookEvent
	marked []repository.MarkWebhookEventProcessedParams
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string]*repository.WebhookEvent)}
}

func (s *fakeEventStore) CreateWebhookEvent(_ context.Context, arg repository.CreateWebhookEventParams) (repository.WebhookEvent, error) {
	if e, ok := s.events[arg.EventID]; ok {
		if e.ProcessedAt.Valid && !e.Error.Valid {
			return repository.WebhookEvent{}, sql.ErrNoRows
		}
		return *e, nil
	}
	e := &repository.WebhookEvent{
		ID:        uuid.New(),
		Provider:  arg.Provider,
		EventID:   arg.EventID,
		EventType: arg.EventType,
		Payload:   arg.Payload,
	}
	s.events[arg.EventID] = e
	return *e, nil
}

func (s *fakeEventStore) MarkWebhookEventProcessed(_ context.Context, arg repository.MarkWebhookEventProcessedParams) error {
	s.marked = append(s.marked, arg)
	for _, e := range s.events {
		if e.ID == arg.ID {
			e.ProcessedAt = sql.NullTime{Valid: true}
			e.Error = arg.Error
		}
	}
	return nil
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererConfig{Currency: "usd", Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}
