package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tierFixture() (*fakeStore, repository.Tier, repository.Tier, repository.Tier) {
	basic := repoTier("basic", 0, 500)
	plus := repoTier("plus", 1500, 1000)
	premium := repoTier("premium", 3500, 0)
	return newFakeStore(basic, plus, premium), basic, plus, premium
}

func TestTierService_SelectTier(t *testing.T) {
	ctx := context.Background()

	t.Run("unique price persists the tier", func(t *testing.T) {
		store, _, plus, _ := tierFixture()
		svc := NewTierService(store, discardLogger())

		tier, err := svc.SelectTier(ctx, store.siteID(), 1500)
		require.NoError(t, err)
		assert.Equal(t, "plus", tier.Slug)
		assert.Equal(t, plus.ID, store.info.TierID)
		assert.Equal(t, 1, store.tierUpdates)
	})

	t.Run("unknown price leaves the tier unchanged", func(t *testing.T) {
		store, basic, _, _ := tierFixture()
		svc := NewTierService(store, discardLogger())

		_, err := svc.SelectTier(ctx, store.siteID(), 999)
		assert.True(t, errors.Is(err, domain.ErrTierNotFound))
		assert.Equal(t, basic.ID, store.info.TierID)
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("ambiguous price leaves the tier unchanged", func(t *testing.T) {
		store, basic, _, _ := tierFixture()
		store.tiers = append(store.tiers, repoTier("plus-legacy", 1500, 1000))
		svc := NewTierService(store, discardLogger())

		_, err := svc.SelectTier(ctx, store.siteID(), 1500)
		assert.True(t, errors.Is(err, domain.ErrAmbiguousTier))
		assert.Equal(t, basic.ID, store.info.TierID)
		assert.Zero(t, store.tierUpdates)
	})
}

func TestTierService_SyncFromSubscription(t *testing.T) {
	ctx := context.Background()
	signup := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	t.Run("payments not enforced is a no-op", func(t *testing.T) {
		store, basic, _, _ := tierFixture()
		store.subscriptions = []repository.Subscription{{ProviderID: "sub_1", Price: 3500, SignupAt: signup}}
		svc := NewTierService(store, discardLogger())

		info, err := svc.SyncFromSubscription(ctx, store.siteID())
		require.NoError(t, err)
		assert.Equal(t, "basic", info.Tier.Slug)
		assert.Equal(t, basic.ID, store.info.TierID)
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("follows the current subscription price", func(t *testing.T) {
		store, _, _, premium := tierFixture()
		store.info.EnforcePayments = true
		store.subscriptions = []repository.Subscription{
			{ProviderID: "old", Price: 1500, SignupAt: signup},
			{ProviderID: "new", Price: 3500, SignupAt: signup.Add(24 * time.Hour)},
		}
		svc := NewTierService(store, discardLogger())

		info, err := svc.SyncFromSubscription(ctx, store.siteID())
		require.NoError(t, err)
		assert.Equal(t, "premium", info.Tier.Slug)
		assert.Equal(t, premium.ID, store.info.TierID)
	})

	t.Run("no subscription selects the free tier", func(t *testing.T) {
		store, basic, plus, _ := tierFixture()
		store.info.EnforcePayments = true
		store.info.TierID = plus.ID
		svc := NewTierService(store, discardLogger())

		info, err := svc.SyncFromSubscription(ctx, store.siteID())
		require.NoError(t, err)
		assert.Equal(t, "basic", info.Tier.Slug)
		assert.Equal(t, basic.ID, store.info.TierID)
	})

	t.Run("unmatched price is swallowed", func(t *testing.T) {
		store, _, plus, _ := tierFixture()
		store.info.EnforcePayments = true
		store.info.TierID = plus.ID
		store.subscriptions = []repository.Subscription{{ProviderID: "sub_1", Price: 999, SignupAt: signup}}
		svc := NewTierService(store, discardLogger())

		info, err := svc.SyncFromSubscription(ctx, store.siteID())
		require.NoError(t, err)
		assert.Equal(t, "plus", info.Tier.Slug)
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("ambiguous price is swallowed", func(t *testing.T) {
		store, _, plus, _ := tierFixture()
		store.tiers = append(store.tiers, repoTier("premium-legacy", 3500, 0))
		store.info.EnforcePayments = true
		store.info.TierID = plus.ID
		store.subscriptions = []repository.Subscription{{ProviderID: "sub_1", Price: 3500, SignupAt: signup}}
		svc := NewTierService(store, discardLogger())

		info, err := svc.SyncFromSubscription(ctx, store.siteID())
		require.NoError(t, err)
		assert.Equal(t, "plus", info.Tier.Slug)
		assert.Zero(t, store.tierUpdates)
	})
}

func TestTierService_GetTierInfo_UnknownSite(t *testing.T) {
	store, _, _, _ := tierFixture()
	svc := NewTierService(store, discardLogger())

	_, err := svc.GetTierInfo(context.Background(), uuid.New())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestTierService_ChangeTier(t *testing.T) {
	ctx := context.Background()

	t.Run("switches to an available tier", func(t *testing.T) {
		store, _, plus, _ := tierFixture()
		svc := NewTierService(store, discardLogger())

		tier, err := svc.ChangeTier(ctx, store.siteID(), "plus")
		require.NoError(t, err)
		assert.Equal(t, "plus", tier.Slug)
		assert.Equal(t, plus.ID, store.info.TierID)
	})

	t.Run("same tier is idempotent", func(t *testing.T) {
		store, _, _, _ := tierFixture()
		svc := NewTierService(store, discardLogger())

		_, err := svc.ChangeTier(ctx, store.siteID(), "basic")
		require.NoError(t, err)
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("unavailable tier", func(t *testing.T) {
		store, _, _, premium := tierFixture()
		store.available = store.available[:2]
		svc := NewTierService(store, discardLogger())

		_, err := svc.ChangeTier(ctx, store.siteID(), premium.Slug)
		assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("paid tier requires a subscription when enforcing payments", func(t *testing.T) {
		store, _, _, _ := tierFixture()
		store.info.EnforcePayments = true
		svc := NewTierService(store, discardLogger())

		_, err := svc.ChangeTier(ctx, store.siteID(), "plus")
		assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("free tier with an active subscription must cancel instead", func(t *testing.T) {
		store, _, plus, _ := tierFixture()
		store.info.EnforcePayments = true
		store.info.TierID = plus.ID
		store.subscriptions = []repository.Subscription{{
			ID:         uuid.New(),
			SiteID:     store.siteID(),
			ProviderID: "sub_live",
			Price:      plus.Price,
			SignupAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		}}
		svc := NewTierService(store, discardLogger())

		_, err := svc.ChangeTier(ctx, store.siteID(), "basic")
		assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
		assert.Equal(t, plus.ID, store.info.TierID)
		assert.Zero(t, store.tierUpdates)
	})

	t.Run("free tier after cancelling is allowed", func(t *testing.T) {
		store, basic, plus, _ := tierFixture()
		store.info.EnforcePayments = true
		store.info.TierID = plus.ID
		store.subscriptions = []repository.Subscription{{
			ID:         uuid.New(),
			SiteID:     store.siteID(),
			ProviderID: "sub_old",
			Price:      plus.Price,
			SignupAt:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Cancelled:  true,
		}}
		svc := NewTierService(store, discardLogger())

		_, err := svc.ChangeTier(ctx, store.siteID(), "basic")
		require.NoError(t, err)
		assert.Equal(t, basic.ID, store.info.TierID)
	})
}

func TestTierService_TierOptions(t *testing.T) {
	store, _, plus, _ := tierFixture()
	store.info.TierID = plus.ID
	// Offer order in storage must not matter.
	store.available = []uuid.UUID{store.available[2], store.available[0], store.available[1]}
	svc := NewTierService(store, discardLogger())

	options, err := svc.TierOptions(context.Background(), store.siteID())
	require.NoError(t, err)
	require.Len(t, options, 3)
	assert.Equal(t, "basic", options[0].Tier.Slug)
	assert.Equal(t, domain.TierActionDowngrade, options[0].Action)
	assert.True(t, options[1].Current)
	assert.Equal(t, "premium", options[2].Tier.Slug)
}

func TestTierService_DowngradePlan(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	store, _, plus, premium := tierFixture()
	store.info.TierID = premium.ID
	store.activeVideos = 1200
	plusWithAdmins := plus
	plusWithAdmins.AdminLimit = sql.NullInt64{Int64: 1, Valid: true}
	store.tiers[1] = plusWithAdmins
	store.owners = []repository.Owner{
		superuser("second@example.com", created.Add(time.Hour)),
		superuser("first@example.com", created),
	}
	svc := NewTierService(store, discardLogger())

	plan, err := svc.DowngradePlan(ctx, store.siteID(), "plus")
	require.NoError(t, err)
	assert.Equal(t, "plus", plan.Tier.Slug)
	assert.Equal(t, domain.TierActionChange, plan.Action)
	assert.Equal(t, int64(200), plan.VideosToDeactivate)
	require.Len(t, plan.AdminsToDemote, 1)
	assert.Equal(t, "second@example.com", plan.AdminsToDemote[0].Email)

	_, err = svc.DowngradePlan(ctx, store.siteID(), "premium")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err), "same price is not a downgrade")

	_, err = svc.DowngradePlan(ctx, store.siteID(), "nope")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestTierService_RecordSubscription(t *testing.T) {
	ctx := context.Background()
	occurred := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	store, _, plus, premium := tierFixture()
	store.info.EnforcePayments = true
	svc := NewTierService(store, discardLogger())

	err := svc.RecordSubscription(ctx, store.siteID(), domain.SubscriptionEvent{
		ProviderID: "sub_1",
		Price:      1500,
		Status:     "trialing",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.Equal(t, plus.ID, store.info.TierID)
	assert.True(t, store.info.FreeTrialStartedAt.Valid)
	assert.Equal(t, occurred, store.info.FreeTrialStartedAt.Time)

	siteID, err := svc.SiteForSubscription(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, store.siteID(), siteID)

	// A price change on the same subscription moves the tier; the trial
	// start is never overwritten.
	later := occurred.Add(10 * 24 * time.Hour)
	err = svc.RecordSubscription(ctx, store.siteID(), domain.SubscriptionEvent{
		ProviderID: "sub_1",
		Price:      3500,
		Status:     "trialing",
		OccurredAt: later,
	})
	require.NoError(t, err)
	assert.Equal(t, premium.ID, store.info.TierID)
	assert.Equal(t, occurred, store.info.FreeTrialStartedAt.Time)

	// Cancelling falls back to the free tier.
	err = svc.RecordSubscription(ctx, store.siteID(), domain.SubscriptionEvent{
		ProviderID: "sub_1",
		Price:      3500,
		Status:     "canceled",
		OccurredAt: later.Add(time.Hour),
		Cancelled:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, store.tiers[0].ID, store.info.TierID)

	_, err = svc.SiteForSubscription(ctx, "sub_unknown")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	err = svc.RecordSubscription(ctx, store.siteID(), domain.SubscriptionEvent{Price: 1500})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
