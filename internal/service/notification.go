package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/email"
	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// Mailer delivers a rendered notification. *email.Mailer implements it.
type Mailer interface {
	Send(ctx context.Context, n email.Notification) error
}

// NotificationService sends the throttled site-owner notifications. Each
// method reads the site's tier record, decides, sends, and records the send.
// A false result with a nil error means the throttle held the notification.
type NotificationService interface {
	SendWelcome(ctx context.Context, siteID uuid.UUID) (bool, error)
	SendVideoLimitWarning(ctx context.Context, siteID uuid.UUID, activeVideos int64) (bool, error)
	SendFreeTrialEnding(ctx context.Context, siteID uuid.UUID) (bool, error)
}

// NotificationOption customizes a NotificationService.
type NotificationOption func(*notificationService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) NotificationOption {
	return func(s *notificationService) {
		s.now = now
	}
}

type notificationService struct {
	store  NotificationStore
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store NotificationStore, mailer Mailer, logger *slog.Logger, opts ...NotificationOption) NotificationService {
	s := &notificationService{
		store:  store,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendWelcome sends the welcome email once per site.
func (s *notificationService) SendWelcome(ctx context.Context, siteID uuid.UUID) (bool, error) {
	const op = "NotificationService.SendWelcome"

	info, err := loadTierInfo(ctx, s.store, op, siteID)
	if err != nil {
		return false, err
	}
	if !domain.WelcomeDue(info) {
		return false, nil
	}

	now := s.now()
	if err := s.send(ctx, op, domain.NotificationWelcome, info, nil); err != nil {
		return false, err
	}

	return true, s.mark(ctx, op, domain.NotificationWelcome, repository.UpdateNotificationMarkersParams{
		SiteID:           siteID,
		WelcomeEmailSent: toNullTime(now),
	})
}

// SendVideoLimitWarning warns the owners that the site is nearing its
// video limit.
func (s *notificationService) SendVideoLimitWarning(ctx context.Context, siteID uuid.UUID, activeVideos int64) (bool, error) {
	const op = "NotificationService.SendVideoLimitWarning"

	info, err := loadTierInfo(ctx, s.store, op, siteID)
	if err != nil {
		return false, err
	}

	now := s.now()
	ratio, due := domain.VideoLimitWarningDue(info, activeVideos, now)
	if !due {
		return false, nil
	}

	extra := map[string]any{
		"Ratio":        ratio,
		"ActiveVideos": activeVideos,
	}
	if err := s.send(ctx, op, domain.NotificationVideoLimit, info, extra); err != nil {
		return false, err
	}

	return true, s.mark(ctx, op, domain.NotificationVideoLimit, repository.UpdateNotificationMarkersParams{
		SiteID:                siteID,
		VideoLimitWarningSent: toNullTime(now),
		VideoCountWhenWarned:  toNullInt64(activeVideos),
	})
}

// SendFreeTrialEnding warns the owners once that the free trial ends soon.
func (s *notificationService) SendFreeTrialEnding(ctx context.Context, siteID uuid.UUID) (bool, error) {
	const op = "NotificationService.SendFreeTrialEnding"

	info, err := loadTierInfo(ctx, s.store, op, siteID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if !domain.FreeTrialEndingDue(info, now) {
		return false, nil
	}

	extra := map[string]any{
		"TrialEnd": *info.FreeTrialEnd(),
	}
	if err := s.send(ctx, op, domain.NotificationFreeTrialEnding, info, extra); err != nil {
		return false, err
	}

	return true, s.mark(ctx, op, domain.NotificationFreeTrialEnding, repository.UpdateNotificationMarkersParams{
		SiteID:              siteID,
		FreeTrialEndingSent: toNullTime(now),
	})
}

// send mails the notification to the site's owners. Site owners are the
// superusers of the site.
func (s *notificationService) send(ctx context.Context, op string, kind domain.NotificationKind, info *domain.SiteTierInfo, extra map[string]any) error {
	rows, err := s.store.ListSuperusersBySite(ctx, info.SiteID)
	if err != nil {
		s.logger.Error("failed to list site owners", "error", err, "op", op, "site_id", info.SiteID)
		return domain.Internal(err, op, "Failed to list site owners")
	}

	err = s.mailer.Send(ctx, email.Notification{
		Template:   string(kind),
		Recipients: repoOwnersToDomain(rows),
		Info:       info,
		Extra:      extra,
	})
	if err != nil {
		s.logger.Error("failed to send notification", "error", err, "op", op, "site_id", info.SiteID, "kind", kind)
		return err
	}
	return nil
}

func (s *notificationService) mark(ctx context.Context, op string, kind domain.NotificationKind, params repository.UpdateNotificationMarkersParams) error {
	metrics.NotificationsSentTotal.WithLabelValues(string(kind)).Inc()

	if err := s.store.UpdateNotificationMarkers(ctx, params); err != nil {
		s.logger.Error("failed to record notification", "error", err, "op", op, "site_id", params.SiteID, "kind", kind)
		return domain.Internal(err, op, "Failed to record notification")
	}

	s.logger.Info("notification sent", "site_id", params.SiteID, "kind", kind)
	return nil
}
