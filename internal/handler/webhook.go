// This file implements the Stripe webhook handler for subscription events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/sitetier/internal/billing"
	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/DukeRupert/sitetier/internal/service"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stripe/stripe-go/v79"
)

const (
	webhookProvider = "stripe"

	// maxWebhookBody is the largest payload read from Stripe.
	maxWebhookBody = 65536
)

// WebhookEventStore records webhook deliveries so that each event is
// processed once.
type WebhookEventStore interface {
	CreateWebhookEvent(ctx context.Context, arg repository.CreateWebhookEventParams) (repository.WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, arg repository.MarkWebhookEventProcessedParams) error
}

var _ WebhookEventStore = (*repository.Queries)(nil)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing     billing.Service
	tierService service.TierService
	events      WebhookEventStore
	logger      *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, tierService service.TierService, events WebhookEventStore, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing:     billingService,
		tierService: tierService,
		events:      events,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux. The route is
// public; authenticity comes from the signature and limit caps abuse.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /webhooks/stripe", limit(http.HandlerFunc(h.HandleStripeWebhook)))
}

// HandleStripeWebhook verifies, records and processes a Stripe event.
// A 500 response makes Stripe redeliver the event later.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.billing.VerifyWebhookSignature(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventType := string(event.Type)
	if !billing.IsSubscriptionEvent(eventType) {
		h.logger.Debug("unhandled webhook event type", "type", eventType, "id", event.ID)
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	record, err := h.events.CreateWebhookEvent(r.Context(), repository.CreateWebhookEventParams{
		Provider:  webhookProvider,
		EventID:   event.ID,
		EventType: eventType,
		Payload:   pqtype.NullRawMessage{RawMessage: body, Valid: true},
	})
	if errors.Is(err, sql.ErrNoRows) {
		h.logger.Info("duplicate webhook event skipped", "type", eventType, "id", event.ID)
		metrics.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Error("failed to record webhook event", "error", err, "id", event.ID)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	procErr := h.processSubscriptionEvent(r.Context(), event)

	mark := repository.MarkWebhookEventProcessedParams{ID: record.ID}
	if procErr != nil {
		mark.Error = sql.NullString{String: procErr.Error(), Valid: true}
	}
	if err := h.events.MarkWebhookEventProcessed(r.Context(), mark); err != nil {
		h.logger.Error("failed to mark webhook event processed", "error", err, "id", event.ID)
	}

	if procErr != nil {
		switch domain.ErrorCode(procErr) {
		case domain.EINVALID, domain.ENOTFOUND:
			// Redelivery cannot fix a malformed event or an unknown subscription.
			h.logger.Warn("webhook event rejected", "error", procErr, "type", eventType, "id", event.ID)
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "rejected").Inc()
			w.WriteHeader(http.StatusOK)
		default:
			h.logger.Error("webhook event processing failed", "error", procErr, "type", eventType, "id", event.ID)
			metrics.WebhookEventsTotal.WithLabelValues(eventType, "failed").Inc()
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues(eventType, "processed").Inc()
	w.WriteHeader(http.StatusOK)
}

// processSubscriptionEvent stores the subscription carried by a
// customer.subscription.* event and re-derives the site's tier.
func (h *WebhookHandler) processSubscriptionEvent(ctx context.Context, event stripe.Event) error {
	const op = "WebhookHandler.processSubscriptionEvent"

	update, err := billing.ParseSubscriptionEvent(event)
	if err != nil {
		return domain.Wrap(err, domain.EINVALID, op, "Malformed subscription event")
	}

	siteID := update.SiteID
	if siteID == uuid.Nil {
		// Subscriptions created outside our checkout carry no metadata.
		siteID, err = h.tierService.SiteForSubscription(ctx, update.Event.ProviderID)
		if err != nil {
			return err
		}
	}

	if err := h.tierService.RecordSubscription(ctx, siteID, update.Event); err != nil {
		return err
	}

	h.logger.Info("subscription event processed",
		"site_id", siteID,
		"type", event.Type,
		"subscription_id", update.Event.ProviderID,
		"status", update.Event.Status,
		"price", update.Event.Price,
	)
	return nil
}
