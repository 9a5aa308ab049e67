// Package handler contains HTTP handlers for the site tier admin pages and
// the payment provider webhook.
//
// This file implements the tier pages.
//
// Routes handled (all behind the admin middleware):
//   - GET  /admin                       -> ShowIndex
//   - GET  /admin/upgrade               -> ShowUpgrade
//   - GET  /admin/upgrade/complete      -> CompleteChange
//   - POST /admin/upgrade/complete      -> CompleteChange
//   - GET  /admin/upgrade/downgrade     -> ShowDowngrade
//   - POST /admin/upgrade/subscribe     -> Subscribe
//   - POST /admin/upgrade/cancel        -> CancelSubscription
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/sitetier/internal/auth"
	"github.com/DukeRupert/sitetier/internal/billing"
	"github.com/DukeRupert/sitetier/internal/csrf"
	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/service"
	"github.com/google/uuid"
)

// FreeTrialDays is the trial offered on a site's first subscription.
const FreeTrialDays = 30

var timeNow = time.Now

// TierHandler serves the admin tier pages of one site.
type TierHandler struct {
	tierService service.TierService
	billing     billing.Service
	renderer    *Renderer
	siteID      uuid.UUID
	baseURL     string
	isSecure    bool
	logger      *slog.Logger
}

// TierHandlerConfig holds the dependencies of a TierHandler.
type TierHandlerConfig struct {
	TierService service.TierService
	Billing     billing.Service // nil when Stripe is not configured
	Renderer    *Renderer
	SiteID      uuid.UUID
	BaseURL     string
	IsSecure    bool
	Logger      *slog.Logger
}

// NewTierHandler creates a new TierHandler.
func NewTierHandler(cfg TierHandlerConfig) *TierHandler {
	return &TierHandler{
		tierService: cfg.TierService,
		billing:     cfg.Billing,
		renderer:    cfg.Renderer,
		siteID:      cfg.SiteID,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		isSecure:    cfg.IsSecure,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers the tier pages on the provided mux.
func (h *TierHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /admin", requireAdmin(http.HandlerFunc(h.ShowIndex)))
	mux.Handle("GET /admin/upgrade", requireAdmin(http.HandlerFunc(h.ShowUpgrade)))
	mux.Handle("GET /admin/upgrade/complete", requireAdmin(http.HandlerFunc(h.CompleteChange)))
	mux.Handle("POST /admin/upgrade/complete", requireAdmin(http.HandlerFunc(h.CompleteChange)))
	mux.Handle("GET /admin/upgrade/downgrade", requireAdmin(http.HandlerFunc(h.ShowDowngrade)))
	mux.Handle("POST /admin/upgrade/subscribe", requireAdmin(http.HandlerFunc(h.Subscribe)))
	mux.Handle("POST /admin/upgrade/cancel", requireAdmin(http.HandlerFunc(h.CancelSubscription)))
}

// =============================================================================
// Page data
// =============================================================================

// IndexPageData is the data for the admin index page.
type IndexPageData struct {
	Site              domain.Site
	Info              *domain.SiteTierInfo
	ActiveVideos      int64
	PercentVideosUsed int
	Flash             string
}

// UpgradePageData is the data for the tier page.
type UpgradePageData struct {
	Site               domain.Site
	Info               *domain.SiteTierInfo
	Options            []domain.TierOption
	SubscriptionPrices []int64
	BillingEnabled     bool
	CSRFToken          string
	Flash              string
}

// DowngradePageData is the data for the downgrade confirmation page.
type DowngradePageData struct {
	Site           domain.Site
	Info           *domain.SiteTierInfo
	Plan           *domain.DowngradePlan
	BillingEnabled bool
	CSRFToken      string
	Flash          string
}

// =============================================================================
// Handlers
// =============================================================================

// ShowIndex renders the admin index with the site's video usage.
func (h *TierHandler) ShowIndex(w http.ResponseWriter, r *http.Request) {
	info, err := h.tierService.GetTierInfo(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	active, err := h.tierService.CountActiveVideos(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "index", IndexPageData{
		Site:              info.Site,
		Info:              info,
		ActiveVideos:      active,
		PercentVideosUsed: info.PercentVideosUsed(active),
		Flash:             flashMessage(r),
	})
}

// ShowUpgrade re-derives the tier from the payment provider and renders the
// offerable tiers.
func (h *TierHandler) ShowUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := h.tierService.SyncFromSubscription(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "upgrade", UpgradePageData{
		Site:               info.Site,
		Info:               info,
		Options:            info.TierOptions(),
		SubscriptionPrices: info.SubscriptionPrices(),
		BillingEnabled:     h.billing != nil,
		CSRFToken:          token,
		Flash:              flashMessage(r),
	})
}

// CompleteChange switches directly to the requested tier. It always
// redirects back to the tier page; failures are logged.
func (h *TierHandler) CompleteChange(w http.ResponseWriter, r *http.Request) {
	slug := r.FormValue("tier")
	status := "changed"

	if slug == "" {
		status = "error"
	} else if tier, err := h.tierService.ChangeTier(r.Context(), h.siteID, slug); err != nil {
		status = "error"
		if domain.ErrorCode(err) == domain.ECONFLICT {
			status = "cancel_required"
		}
		h.logger.Warn("tier change failed",
			"error", err,
			"code", domain.ErrorCode(err),
			"site_id", h.siteID,
			"tier", slug,
			"admin", auth.AdminName(r.Context()),
		)
	} else {
		h.logger.Info("tier change requested",
			"site_id", h.siteID,
			"tier", tier.Slug,
			"admin", auth.AdminName(r.Context()),
		)
	}

	http.Redirect(w, r, "/admin/upgrade?status="+status, http.StatusSeeOther)
}

// ShowDowngrade renders the downgrade confirmation page.
func (h *TierHandler) ShowDowngrade(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("tier")
	if slug == "" {
		NotFoundResponse(w, r, h.logger)
		return
	}

	info, err := h.tierService.GetTierInfo(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	plan, err := h.tierService.DowngradePlan(r.Context(), h.siteID, slug)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "downgrade", DowngradePageData{
		Site:           info.Site,
		Info:           info,
		Plan:           plan,
		BillingEnabled: h.billing != nil,
		CSRFToken:      token,
	})
}

// Subscribe starts a payment provider checkout for a tier and redirects to it.
func (h *TierHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	const op = "TierHandler.Subscribe"

	if h.billing == nil {
		h.logger.Warn("subscribe attempted but Stripe is not configured", "site_id", h.siteID)
		http.Redirect(w, r, "/admin/upgrade?status=unavailable", http.StatusSeeOther)
		return
	}

	slug := r.FormValue("tier")
	if slug == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Tier is required"))
		return
	}

	info, err := h.tierService.GetTierInfo(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tier, ok := info.AvailableTier(slug)
	if !ok {
		ErrorResponse(w, r, h.logger, domain.NotFound(op, "tier", slug))
		return
	}
	if tier.IsFree() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Free tiers do not need a subscription"))
		return
	}

	params := billing.CheckoutParams{
		SiteID:     h.siteID,
		Tier:       tier,
		SuccessURL: h.baseURL + "/admin/upgrade?status=subscribed",
		CancelURL:  h.baseURL + "/admin/upgrade",
	}
	// Only the first subscription gets a free trial.
	if info.FreeTrialStartedAt == nil {
		params.TrialDays = FreeTrialDays
	}

	url, err := h.billing.CreateCheckoutSession(params)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "site_id", h.siteID, "tier", slug)
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EUNAVAILABLE, op, "Payment provider is unavailable"))
		return
	}

	h.logger.Info("checkout started",
		"site_id", h.siteID,
		"tier", slug,
		"trial_days", params.TrialDays,
		"admin", auth.AdminName(r.Context()),
	)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// CancelSubscription cancels the current subscription at the payment
// provider and records the cancellation so the tier drops right away.
func (h *TierHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	const op = "TierHandler.CancelSubscription"

	if h.billing == nil {
		h.logger.Warn("cancel attempted but Stripe is not configured", "site_id", h.siteID)
		http.Redirect(w, r, "/admin/upgrade?status=unavailable", http.StatusSeeOther)
		return
	}

	info, err := h.tierService.GetTierInfo(r.Context(), h.siteID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub := info.Subscription()
	if sub == nil {
		http.Redirect(w, r, "/admin/upgrade", http.StatusSeeOther)
		return
	}

	if err := h.billing.CancelSubscription(sub.ProviderID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "site_id", h.siteID, "subscription_id", sub.ProviderID)
		ErrorResponse(w, r, h.logger, domain.Wrap(err, domain.EUNAVAILABLE, op, "Payment provider is unavailable"))
		return
	}

	if err := h.tierService.RecordSubscription(r.Context(), h.siteID, domain.SubscriptionEvent{
		ProviderID: sub.ProviderID,
		Price:      sub.Price,
		Status:     "canceled",
		OccurredAt: timeNow(),
		Cancelled:  true,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("subscription cancelled",
		"site_id", h.siteID,
		"subscription_id", sub.ProviderID,
		"admin", auth.AdminName(r.Context()),
	)
	http.Redirect(w, r, "/admin/upgrade?status=cancelled", http.StatusSeeOther)
}

// flashMessage maps the status query parameter set by redirects to a message.
func flashMessage(r *http.Request) string {
	switch r.URL.Query().Get("status") {
	case "changed":
		return "Your plan has been changed."
	case "subscribed":
		return "Thanks for subscribing. Your plan will update once the payment is confirmed."
	case "cancelled":
		return "Your subscription has been cancelled."
	case "unavailable":
		return "Payments are not available right now."
	case "cancel_required":
		return "Cancel your subscription before moving to a free plan."
	case "error":
		return "That plan could not be selected."
	}
	return ""
}
