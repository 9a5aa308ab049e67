// Package billing provides Stripe billing integration for tier subscriptions.
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// MetadataSiteID is the subscription metadata key holding the site ID.
const MetadataSiteID = "site_id"

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session subscribing the
	// site to a tier. Returns the checkout URL to redirect the user to.
	CreateCheckoutSession(params CheckoutParams) (string, error)

	// CancelSubscription cancels a subscription immediately.
	CancelSubscription(subscriptionID string) error

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
}

// CheckoutParams describes a tier subscription checkout.
type CheckoutParams struct {
	SiteID        uuid.UUID
	Tier          domain.Tier
	CustomerEmail string
	TrialDays     int64 // zero for no trial
	SuccessURL    string
	CancelURL     string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	currency      string
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// Tier prices are charged monthly in currency.
func NewStripeService(secretKey, webhookSecret, currency string) Service {
	stripe.Key = secretKey

	return &stripeService{
		webhookSecret: webhookSecret,
		currency:      currency,
	}
}

func (s *stripeService) CreateCheckoutSession(p CheckoutParams) (string, error) {
	sess, err := checkoutsession.New(checkoutParams(p, s.currency))
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

// checkoutParams prices the line item from the tier so that the webhook
// amount always resolves back to the tier.
func checkoutParams(p CheckoutParams, currency string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(p.SiteID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(p.Tier.Price),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Tier.Name),
						Metadata: map[string]string{
							"tier": p.Tier.Slug,
						},
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetadataSiteID: p.SiteID.String(),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.TrialDays > 0 {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(p.TrialDays)
	}
	return params
}

func (s *stripeService) CancelSubscription(subscriptionID string) error {
	_, err := subscription.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		return fmt.Errorf("stripe cancel subscription: %w", err)
	}
	return nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

// SubscriptionUpdate is a subscription webhook event normalized for the
// tier service.
type SubscriptionUpdate struct {
	// SiteID comes from the subscription metadata; uuid.Nil when absent.
	SiteID uuid.UUID
	Event  domain.SubscriptionEvent
}

// IsSubscriptionEvent reports whether the event carries a subscription.
func IsSubscriptionEvent(eventType string) bool {
	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return true
	}
	return false
}

// ParseSubscriptionEvent extracts the subscription price and state from a
// customer.subscription.* event. The price is the sum of the item amounts.
func ParseSubscriptionEvent(event stripe.Event) (*SubscriptionUpdate, error) {
	if !IsSubscriptionEvent(string(event.Type)) {
		return nil, fmt.Errorf("not a subscription event: %s", event.Type)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("subscription event %s has no data", event.ID)
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("parse subscription: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription event %s has no subscription id", event.ID)
	}

	var price int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			quantity := item.Quantity
			if quantity == 0 {
				quantity = 1
			}
			price += item.Price.UnitAmount * quantity
		}
	}

	occurred := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurred = time.Unix(sub.Created, 0).UTC()
	}

	update := &SubscriptionUpdate{
		Event: domain.SubscriptionEvent{
			ProviderID: sub.ID,
			Price:      price,
			Status:     string(sub.Status),
			OccurredAt: occurred,
			Cancelled: event.Type == "customer.subscription.deleted" ||
				sub.Status == stripe.SubscriptionStatusCanceled ||
				sub.Status == stripe.SubscriptionStatusIncompleteExpired,
		},
	}
	if sub.TrialStart > 0 {
		start := time.Unix(sub.TrialStart, 0).UTC()
		update.Event.TrialStart = &start
	}
	if id, err := uuid.Parse(sub.Metadata[MetadataSiteID]); err == nil {
		update.SiteID = id
	}

	return update, nil
}
