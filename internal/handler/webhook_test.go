package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

func stripeSubscriptionEvent(t *testing.T, id, eventType string, sub map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sub)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	return stripe.Event{
		ID:      id,
		Type:    stripe.EventType(eventType),
		Created: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func subscriptionPayload(siteID uuid.UUID, status string, amount int64) map[string]any {
	sub := map[string]any{
		"id":     "sub_1",
		"object": "subscription",
		"status": status,
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "si_1", "quantity": 1, "price": map[string]any{"id": "price_1", "unit_amount": amount}},
			},
		},
	}
	if siteID != uuid.Nil {
		sub["metadata"] = map[string]string{"site_id": siteID.String()}
	}
	return sub
}

func postWebhook(h *WebhookHandler) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"id":"evt"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, req)
	return rec
}

func TestStripeWebhook_RecordsSubscription(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	b := &fakeBilling{event: stripeSubscriptionEvent(t, "evt_1", "customer.subscription.created",
		subscriptionPayload(svc.siteID(), "active", 1500))}
	events := newFakeEventStore()
	h := NewWebhookHandler(b, svc, events, discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.recorded) != 1 {
		t.Fatalf("recorded = %d events, want 1", len(svc.recorded))
	}
	got := svc.recorded[0]
	if got.ProviderID != "sub_1" || got.Price != 1500 || got.Status != "active" || got.Cancelled {
		t.Errorf("unexpected event: %+v", got)
	}
	if len(events.marked) != 1 || events.marked[0].Error.Valid {
		t.Errorf("event should be marked processed without error, got %+v", events.marked)
	}
	if !events.events["evt_1"].Payload.Valid {
		t.Error("raw payload should be stored")
	}
}

func TestStripeWebhook_DuplicateIsSkipped(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	b := &fakeBilling{event: stripeSubscriptionEvent(t, "evt_1", "customer.subscription.updated",
		subscriptionPayload(svc.siteID(), "active", 1500))}
	h := NewWebhookHandler(b, svc, newFakeEventStore(), discardLogger())

	postWebhook(h)
	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.recorded) != 1 {
		t.Errorf("recorded = %d events, want 1", len(svc.recorded))
	}
}

func TestStripeWebhook_FailedEventIsRetried(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	svc.recordErr = domain.Internal(errors.New("connection reset"), "TierService.RecordSubscription", "Failed to store subscription")
	b := &fakeBilling{event: stripeSubscriptionEvent(t, "evt_1", "customer.subscription.updated",
		subscriptionPayload(svc.siteID(), "active", 1500))}
	events := newFakeEventStore()
	h := NewWebhookHandler(b, svc, events, discardLogger())

	rec := postWebhook(h)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so Stripe redelivers", rec.Code)
	}
	if !events.marked[0].Error.Valid {
		t.Error("failure should be stored on the event")
	}

	svc.recordErr = nil
	rec = postWebhook(h)
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", rec.Code)
	}
	if len(svc.recorded) != 1 {
		t.Errorf("redelivery should be processed, recorded = %d", len(svc.recorded))
	}
}

func TestStripeWebhook_FallsBackToStoredSubscription(t *testing.T) {
	svc := newFakeTierService(tierPlus)
	svc.subSites["sub_1"] = svc.siteID()
	b := &fakeBilling{event: stripeSubscriptionEvent(t, "evt_2", "customer.subscription.deleted",
		subscriptionPayload(uuid.Nil, "canceled", 1500))}
	h := NewWebhookHandler(b, svc, newFakeEventStore(), discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.recorded) != 1 || !svc.recorded[0].Cancelled {
		t.Errorf("expected a recorded cancellation, got %+v", svc.recorded)
	}
}

func TestStripeWebhook_UnknownSubscriptionIsRejected(t *testing.T) {
	svc := newFakeTierService(tierPlus)
	b := &fakeBilling{event: stripeSubscriptionEvent(t, "evt_3", "customer.subscription.updated",
		subscriptionPayload(uuid.Nil, "active", 1500))}
	events := newFakeEventStore()
	h := NewWebhookHandler(b, svc, events, discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.recorded) != 0 {
		t.Error("nothing should be recorded for an unknown subscription")
	}
	if len(events.marked) != 1 || !events.marked[0].Error.Valid {
		t.Errorf("rejection should be stored on the event, got %+v", events.marked)
	}
}

func TestStripeWebhook_IgnoresOtherEvents(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	b := &fakeBilling{event: stripe.Event{ID: "evt_4", Type: "invoice.paid"}}
	events := newFakeEventStore()
	h := NewWebhookHandler(b, svc, events, discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(events.events) != 0 || len(svc.recorded) != 0 {
		t.Error("non-subscription events should not be stored")
	}
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	b := &fakeBilling{verifyErr: errors.New("signature mismatch")}
	h := NewWebhookHandler(b, svc, newFakeEventStore(), discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStripeWebhook_BillingDisabled(t *testing.T) {
	svc := newFakeTierService(tierBasic)
	h := NewWebhookHandler(nil, svc, newFakeEventStore(), discardLogger())

	rec := postWebhook(h)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
