package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// SchedulerStore is what the scheduler needs from persistence.
// *repository.Queries implements it.
type SchedulerStore interface {
	Enqueuer
	ListSiteIDs(ctx context.Context) ([]uuid.UUID, error)
	HasOpenJob(ctx context.Context, arg repository.HasOpenJobParams) (bool, error)
}

var _ SchedulerStore = (*repository.Queries)(nil)

// Scheduler periodically enqueues a check_notifications job for every site.
// A site that still has one pending or running is skipped.
type Scheduler struct {
	store    SchedulerStore
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs every interval.
func NewScheduler(store SchedulerStore, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run schedules once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.ScheduleNotificationChecks(ctx); err != nil {
			s.logger.Error("Failed to schedule notification checks", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// ScheduleNotificationChecks enqueues a check for each site without an open
// one and returns how many were enqueued. A failure for one site does not
// stop the others; the first error is returned.
func (s *Scheduler) ScheduleNotificationChecks(ctx context.Context) (int, error) {
	siteIDs, err := s.store.ListSiteIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sites: %w", err)
	}

	var (
		enqueued int
		firstErr error
	)
	for _, siteID := range siteIDs {
		open, err := s.store.HasOpenJob(ctx, repository.HasOpenJobParams{
			JobType: JobTypeCheckNotifications,
			SiteID:  siteID,
		})
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("check open job for site %s: %w", siteID, err)
			}
			continue
		}
		if open {
			continue
		}

		if _, err := EnqueueCheckNotifications(ctx, s.store, siteID); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("site %s: %w", siteID, err)
			}
			continue
		}
		metrics.JobScheduled(JobTypeCheckNotifications)
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Debug("Scheduled notification checks", "sites", len(siteIDs), "enqueued", enqueued)
	}
	return enqueued, firstErr
}
