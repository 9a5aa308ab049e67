package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/google/uuid"
)

// ErrQueueEmpty is returned by Queue.Claim when no job is due.
var ErrQueueEmpty = errors.New("job queue is empty")

// Queue is the job store the worker drains.
type Queue interface {
	// Claim marks the next due job running and returns it with Attempts
	// already counting this run.
	Claim(ctx context.Context) (repository.Job, error)

	// Complete records a successful run.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a failed run. Permanent failures, and jobs out of
	// attempts, end as failed; others are rescheduled with backoff.
	Fail(ctx context.Context, id uuid.UUID, jobErr error, permanent bool) error

	// RecoverStale requeues running jobs started more than olderThan ago.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PostgresQueue is the Queue backed by the jobs table. Claims use
// FOR UPDATE SKIP LOCKED, so several processes can share one queue.
type PostgresQueue struct {
	db      *sql.DB
	queries *repository.Queries
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue creates a queue over db.
func NewPostgresQueue(db *sql.DB, queries *repository.Queries) *PostgresQueue {
	return &PostgresQueue{db: db, queries: queries}
}

func (q *PostgresQueue) Claim(ctx context.Context) (repository.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Job{}, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	qtx := q.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.Job{}, ErrQueueEmpty
	}
	if err != nil {
		return repository.Job{}, fmt.Errorf("dequeue job: %w", err)
	}

	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return repository.Job{}, fmt.Errorf("mark job started: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return repository.Job{}, fmt.Errorf("commit claim: %w", err)
	}

	job.Attempts++
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, id uuid.UUID) error {
	return q.queries.UpdateJobCompleted(ctx, id)
}

func (q *PostgresQueue) Fail(ctx context.Context, id uuid.UUID, jobErr error, permanent bool) error {
	return q.queries.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		ID:           id,
		ErrorMessage: sql.NullString{String: jobErr.Error(), Valid: true},
		Permanent:    permanent,
	})
}

func (q *PostgresQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return q.queries.RecoverStaleJobs(ctx, olderThan.Seconds())
}
