package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeCheckNotifications = "check_notifications"
	JobTypeSendWelcome        = "send_welcome"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// SitePayload is the payload of every site-scoped job. The site_id key is
// what HasOpenJob matches on.
type SitePayload struct {
	SiteID uuid.UUID `json:"site_id"`
}

// DecodeSitePayload returns the site a job payload names. A payload that
// does not parse or lacks a site is a permanent failure.
func DecodeSitePayload(payload []byte) (uuid.UUID, error) {
	const op = "worker.DecodeSitePayload"

	var p SitePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return uuid.Nil, NewPermanentError(domain.Wrap(err, domain.EINVALID, op, "Malformed job payload"))
	}
	if p.SiteID == uuid.Nil {
		return uuid.Nil, NewPermanentError(domain.Invalid(op, "Job payload has no site_id"))
	}
	return p.SiteID, nil
}

// Enqueuer stores new jobs. *repository.Queries implements it.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	q Enqueuer,
	jobType string,
	payload any,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueSendWelcome enqueues the welcome email for a newly provisioned site.
func EnqueueSendWelcome(ctx context.Context, q Enqueuer, siteID uuid.UUID, opts ...EnqueueOption) (repository.Job, error) {
	opts = append([]EnqueueOption{WithPriority(PriorityHigh)}, opts...)
	return EnqueueJob(ctx, q, JobTypeSendWelcome, SitePayload{SiteID: siteID}, opts...)
}

// EnqueueCheckNotifications enqueues a run of the video limit and free
// trial throttles for a site.
func EnqueueCheckNotifications(ctx context.Context, q Enqueuer, siteID uuid.UUID, opts ...EnqueueOption) (repository.Job, error) {
	return EnqueueJob(ctx, q, JobTypeCheckNotifications, SitePayload{SiteID: siteID}, opts...)
}
