// Package jobs contains the background job handlers run by the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/sitetier/internal/service"
	"github.com/DukeRupert/sitetier/internal/worker"
	"github.com/google/uuid"
)

// VideoCounter counts a site's active videos. service.TierService implements it.
type VideoCounter interface {
	CountActiveVideos(ctx context.Context, siteID uuid.UUID) (int64, error)
}

// =============================================================================
// check_notifications
// =============================================================================

// CheckNotificationsHandler runs the periodic notification throttles for one
// site.
type CheckNotificationsHandler struct {
	videos        VideoCounter
	notifications service.NotificationService
	logger        *slog.Logger
}

// NewCheckNotificationsHandler creates a new handler for notification checks.
func NewCheckNotificationsHandler(videos VideoCounter, notifications service.NotificationService, logger *slog.Logger) *CheckNotificationsHandler {
	return &CheckNotificationsHandler{
		videos:        videos,
		notifications: notifications,
		logger:        logger,
	}
}

// Type returns the job type identifier.
func (h *CheckNotificationsHandler) Type() string {
	return worker.JobTypeCheckNotifications
}

// Handle runs every throttle for the payload's site.
func (h *CheckNotificationsHandler) Handle(ctx context.Context, payload []byte) error {
	siteID, err := worker.DecodeSitePayload(payload)
	if err != nil {
		return err
	}

	return CheckNotifications(ctx, h.videos, h.notifications, h.logger, siteID)
}

// CheckNotifications runs the welcome, video limit and free trial throttles
// for a site. Welcome goes first so a site whose send_welcome job ran out of
// attempts still gets it on a later check; it is a no-op once sent. One
// throttle failing does not skip the others, and the joined error is
// permanent only for the parts a retry cannot fix. It is shared by the job
// handler and the notify command.
func CheckNotifications(
	ctx context.Context,
	videos VideoCounter,
	notifications service.NotificationService,
	logger *slog.Logger,
	siteID uuid.UUID,
) error {
	logger = logger.With("site_id", siteID)

	var errs []error

	sent, err := notifications.SendWelcome(ctx, siteID)
	if err != nil {
		errs = append(errs, worker.Classify(fmt.Errorf("welcome: %w", err)))
	} else if sent {
		logger.Info("Sent welcome email")
	}

	active, err := videos.CountActiveVideos(ctx, siteID)
	if err != nil {
		errs = append(errs, worker.Classify(fmt.Errorf("count active videos: %w", err)))
		return errors.Join(errs...)
	}

	sent, err = notifications.SendVideoLimitWarning(ctx, siteID, active)
	if err != nil {
		errs = append(errs, worker.Classify(fmt.Errorf("video limit warning: %w", err)))
	} else if sent {
		logger.Info("Sent video limit warning", "active_videos", active)
	}

	sent, err = notifications.SendFreeTrialEnding(ctx, siteID)
	if err != nil {
		errs = append(errs, worker.Classify(fmt.Errorf("free trial ending: %w", err)))
	} else if sent {
		logger.Info("Sent free trial ending notice")
	}

	return errors.Join(errs...)
}

// =============================================================================
// send_welcome
// =============================================================================

// SendWelcomeHandler sends the one-time welcome email for a new site.
type SendWelcomeHandler struct {
	notifications service.NotificationService
	logger        *slog.Logger
}

// NewSendWelcomeHandler creates a new handler for welcome emails.
func NewSendWelcomeHandler(notifications service.NotificationService, logger *slog.Logger) *SendWelcomeHandler {
	return &SendWelcomeHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// Type returns the job type identifier.
func (h *SendWelcomeHandler) Type() string {
	return worker.JobTypeSendWelcome
}

// Handle sends the welcome email unless it was already sent.
func (h *SendWelcomeHandler) Handle(ctx context.Context, payload []byte) error {
	siteID, err := worker.DecodeSitePayload(payload)
	if err != nil {
		return err
	}

	sent, err := h.notifications.SendWelcome(ctx, siteID)
	if err != nil {
		return worker.Classify(fmt.Errorf("welcome: %w", err))
	}
	if sent {
		h.logger.Info("Sent welcome email", "site_id", siteID)
	} else {
		h.logger.Debug("Welcome email already sent", "site_id", siteID)
	}
	return nil
}

var (
	_ worker.JobHandler = (*CheckNotificationsHandler)(nil)
	_ worker.JobHandler = (*SendWelcomeHandler)(nil)
	_ VideoCounter      = (service.TierService)(nil)
)
