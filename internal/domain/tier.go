// Package domain contains core business types and interfaces.
//
// This file defines tiers, the per-site tier record, and the price lookup
// that maps a payment amount to exactly one tier.
package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// FreeTrialLength is how long a site's free trial lasts once started.
const FreeTrialLength = 30 * 24 * time.Hour

// Tier is an immutable catalog entry: a priced service level with optional
// content and admin ceilings. Prices are in the smallest currency unit.
type Tier struct {
	ID         uuid.UUID
	Slug       string
	Name       string
	Price      int64
	VideoLimit *int64 // nil means unlimited
	AdminLimit *int64 // nil means unlimited
}

// IsFree reports whether the tier costs nothing.
func (t Tier) IsFree() bool {
	return t.Price == 0
}

// HasVideoLimit reports whether the tier caps active videos.
func (t Tier) HasVideoLimit() bool {
	return t.VideoLimit != nil
}

// Subscription is a payment-provider subscription attached to a site.
type Subscription struct {
	ID         uuid.UUID
	SiteID     uuid.UUID
	ProviderID string
	Price      int64
	SignupAt   time.Time
	ModifiedAt *time.Time
	Cancelled  bool
}

// SignupOrModifyAt returns the time of the latest modification, falling back
// to the signup time.
func (s Subscription) SignupOrModifyAt() time.Time {
	if s.ModifiedAt != nil {
		return *s.ModifiedAt
	}
	return s.SignupAt
}

// SubscriptionEvent is a payment-provider notification normalized for the
// tier selector.
type SubscriptionEvent struct {
	ProviderID string
	Price      int64
	Status     string
	OccurredAt time.Time
	TrialStart *time.Time
	Cancelled  bool
}

// SiteTierInfo is the singleton tier record of a site.
type SiteTierInfo struct {
	SiteID         uuid.UUID
	Site           Site
	Tier           Tier
	AvailableTiers []Tier

	EnforcePayments bool

	WelcomeEmailSent      *time.Time
	VideoLimitWarningSent *time.Time
	VideoCountWhenWarned  *int64
	FreeTrialEndingSent   *time.Time
	FreeTrialStartedAt    *time.Time

	Subscriptions []Subscription
}

// FreeTrialEnd returns when the site's free trial expires, or nil if the
// site never started one.
func (i *SiteTierInfo) FreeTrialEnd() *time.Time {
	if i.FreeTrialStartedAt == nil {
		return nil
	}
	end := i.FreeTrialStartedAt.Add(FreeTrialLength)
	return &end
}

// ActiveSubscriptions returns the non-cancelled subscriptions, newest first.
func (i *SiteTierInfo) ActiveSubscriptions() []Subscription {
	active := make([]Subscription, 0, len(i.Subscriptions))
	for _, s := range i.Subscriptions {
		if !s.Cancelled {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(a, b int) bool {
		return active[a].SignupOrModifyAt().After(active[b].SignupOrModifyAt())
	})
	return active
}

// Subscription returns the current subscription, or nil if there is none.
func (i *SiteTierInfo) Subscription() *Subscription {
	active := i.ActiveSubscriptions()
	if len(active) == 0 {
		return nil
	}
	return &active[0]
}

// SubscriptionPrices lists the prices of active subscriptions, newest first.
// Templates use it to tell "upcoming" subscriptions from old ones.
func (i *SiteTierInfo) SubscriptionPrices() []int64 {
	active := i.ActiveSubscriptions()
	prices := make([]int64, 0, len(active))
	for _, s := range active {
		prices = append(prices, s.Price)
	}
	return prices
}

// CurrentPrice is the amount the tier selector should resolve: zero without
// a subscription, otherwise the current subscription's price.
func (i *SiteTierInfo) CurrentPrice() int64 {
	if sub := i.Subscription(); sub != nil {
		return sub.Price
	}
	return 0
}

// PercentVideosUsed returns how much of the video limit is used, capped at 100.
// Unlimited tiers report 0.
func (i *SiteTierInfo) PercentVideosUsed(activeVideos int64) int {
	if i.Tier.VideoLimit == nil || *i.Tier.VideoLimit <= 0 {
		return 0
	}
	pct := math.Floor(100 * float64(activeVideos) / float64(*i.Tier.VideoLimit))
	return int(math.Min(pct, 100))
}

// AvailableTier finds an offerable tier by slug.
func (i *SiteTierInfo) AvailableTier(slug string) (Tier, bool) {
	for _, t := range i.AvailableTiers {
		if t.Slug == slug {
			return t, true
		}
	}
	return Tier{}, false
}

// MatchTier returns the single tier priced at price.
func MatchTier(tiers []Tier, price int64) (Tier, error) {
	const op = "domain.MatchTier"

	var matches []Tier
	for _, t := range tiers {
		if t.Price == price {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return Tier{}, TierNotFound(op, price)
	case 1:
		return matches[0], nil
	default:
		return Tier{}, AmbiguousTier(op, price, len(matches))
	}
}

// TierAction is what choosing a tier on the tier page does.
type TierAction string

const (
	TierActionDowngrade TierAction = "downgrade" // confirm first
	TierActionSubscribe TierAction = "subscribe" // start a paid subscription
	TierActionChange    TierAction = "change"    // switch directly
	TierActionCancel    TierAction = "cancel"    // cancel the paid subscription
)

// TierOption pairs an available tier with the action offered for it.
type TierOption struct {
	Tier    Tier
	Action  TierAction
	Current bool
}

// TierOptions orders the available tiers by price and decides the action
// offered for each, relative to the current tier.
func (i *SiteTierInfo) TierOptions() []TierOption {
	tiers := make([]Tier, len(i.AvailableTiers))
	copy(tiers, i.AvailableTiers)
	sort.SliceStable(tiers, func(a, b int) bool { return tiers[a].Price < tiers[b].Price })

	options := make([]TierOption, 0, len(tiers))
	for _, t := range tiers {
		opt := TierOption{Tier: t, Current: t.ID == i.Tier.ID}
		switch {
		case t.Price < i.Tier.Price:
			opt.Action = TierActionDowngrade
		case i.EnforcePayments:
			opt.Action = TierActionSubscribe
		default:
			opt.Action = TierActionChange
		}
		options = append(options, opt)
	}
	return options
}

// DowngradePlan describes the consequences of moving to a cheaper tier.
type DowngradePlan struct {
	Tier               Tier
	Action             TierAction
	VideosToDeactivate int64
	AdminsToDemote     []Owner
}

// DowngradeAction decides how a downgrade to target is confirmed.
func (i *SiteTierInfo) DowngradeAction(target Tier) TierAction {
	if !i.EnforcePayments {
		return TierActionChange
	}
	if target.IsFree() {
		if i.Subscription() != nil {
			return TierActionCancel
		}
		// Nothing to cancel without an active subscription.
		return TierActionChange
	}
	return TierActionSubscribe
}

// VideosOverLimit returns how many active videos exceed the tier's limit.
func VideosOverLimit(t Tier, activeVideos int64) int64 {
	if t.VideoLimit == nil || activeVideos <= *t.VideoLimit {
		return 0
	}
	return activeVideos - *t.VideoLimit
}

// AdminsOverLimit returns the admins that would lose admin rights under t.
// The earliest admins are kept; owners must be ordered oldest first.
func AdminsOverLimit(t Tier, owners []Owner) []Owner {
	if t.AdminLimit == nil || int64(len(owners)) <= *t.AdminLimit {
		return nil
	}
	limit := *t.AdminLimit
	if limit < 0 {
		limit = 0
	}
	demoted := make([]Owner, 0, int64(len(owners))-limit)
	for idx := len(owners) - 1; idx >= int(limit); idx-- {
		demoted = append(demoted, owners[idx])
	}
	return demoted
}
