// Package worker runs background jobs from the Postgres-backed queue and
// schedules the periodic notification checks that feed it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/metrics"
	"github.com/DukeRupert/sitetier/internal/repository"
)

// Worker drains a Queue with Config.Concurrency runners.
type Worker struct {
	queue    Queue
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// New creates a worker. Register handlers, then call Start.
func New(queue Queue, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	return &Worker{
		queue:    queue,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger.With("component", "worker"),
		stop:     make(chan struct{}),
	}, nil
}

// Register adds the handler for h.Type(). Registering a type twice is a
// wiring mistake and panics.
func (w *Worker) Register(h JobHandler) {
	jobType := h.Type()
	if _, exists := w.handlers[jobType]; exists {
		panic(fmt.Sprintf("worker: handler for %q registered twice", jobType))
	}
	w.handlers[jobType] = h
}

// Start requeues jobs abandoned by a crashed process and launches the runners.
func (w *Worker) Start(ctx context.Context) {
	n, err := w.queue.RecoverStale(ctx, w.config.StaleJobThreshold)
	if err != nil {
		w.logger.Error("Failed to recover stale jobs", "error", err)
	} else if n > 0 {
		w.logger.Warn("Requeued stale jobs", "count", n, "threshold", w.config.StaleJobThreshold)
	}

	for i := range w.config.Concurrency {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}

	w.logger.Info("Worker started", "concurrency", w.config.Concurrency, "job_types", len(w.handlers))
}

// Stop stops claiming jobs and waits up to ShutdownTimeout for running ones.
// Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timed out with jobs still running")
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-w.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// run drains due jobs back to back and waits PollInterval once the queue is
// empty. The scheduler enqueues one check per site at a time, so a burst is
// cleared without a poll delay between jobs.
func (w *Worker) run(ctx context.Context, runner int) {
	defer w.wg.Done()

	logger := w.logger.With("runner", runner)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for !w.stopping(ctx) && w.runNext(ctx, logger) {
		}
		timer.Reset(w.config.PollInterval)
	}
}

// runNext claims and processes one job. It reports whether a job was claimed.
func (w *Worker) runNext(ctx context.Context, logger *slog.Logger) bool {
	job, err := w.queue.Claim(ctx)
	if errors.Is(err, ErrQueueEmpty) {
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("Failed to claim job", "error", err)
		}
		return false
	}

	w.process(ctx, logger, job)
	return true
}

// process runs a claimed job and records the outcome. The outcome is
// recorded even when ctx was cancelled mid-job, so a shutdown does not leave
// the job running until it goes stale.
func (w *Worker) process(ctx context.Context, logger *slog.Logger, job repository.Job) {
	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	record := context.WithoutCancel(ctx)

	start := time.Now()
	metrics.JobStarted(job.JobType)

	err := Classify(w.execute(ctx, job))
	if err == nil {
		metrics.JobCompleted(job.JobType, time.Since(start))
		logger.Info("Job completed", "duration_ms", time.Since(start).Milliseconds())
		if err := w.queue.Complete(record, job.ID); err != nil {
			logger.Error("Failed to record job completion", "error", err)
		}
		return
	}

	permanent := IsPermanent(err)
	final := permanent || job.Attempts >= job.MaxAttempts
	metrics.JobFailed(job.JobType, final)
	logger.Error("Job failed",
		"error", err,
		"code", PermanentCode(err),
		"permanent", permanent,
		"final", final,
	)
	if err := w.queue.Fail(record, job.ID, err, permanent); err != nil {
		logger.Error("Failed to record job failure", "error", err)
	}
}

// execute runs the job's handler under JobTimeout. A panicking handler fails
// the job like any other error.
func (w *Worker) execute(ctx context.Context, job repository.Job) (err error) {
	const op = "Worker.execute"

	h, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(domain.Errorf(domain.EINVALID, op, "no handler registered for job type %q", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return h.Handle(jobCtx, job.Payload)
}
