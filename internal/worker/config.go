package worker

import (
	"errors"
	"fmt"
	"time"
)

// Config sizes the worker for this queue's jobs: per-site notification
// checks and welcome emails. Each job is a few queries plus one SMTP
// exchange per site owner, and the scheduler enqueues them in one burst per
// NOTIFY_INTERVAL, so a small runner pool drains the queue.
type Config struct {
	// Concurrency is the number of runners claiming jobs in parallel.
	Concurrency int

	// PollInterval is the wait between queue checks once the queue is empty.
	PollInterval time.Duration

	// JobTimeout bounds a single job, including every SMTP delivery it makes.
	JobTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for running jobs.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a running job is assumed
	// abandoned by a crashed process and requeued on Start.
	StaleJobThreshold time.Duration
}

const (
	maxConcurrency = 16

	// minJobTimeout leaves room for an SMTP dial, STARTTLS and DATA exchange.
	minJobTimeout = 10 * time.Second
	maxJobTimeout = 15 * time.Minute
)

// DefaultConfig returns the settings used when WORKER_* is not configured.
func DefaultConfig() Config {
	return Config{
		Concurrency:       1,
		PollInterval:      15 * time.Second,
		JobTimeout:        time.Minute,
		ShutdownTimeout:   time.Minute,
		StaleJobThreshold: 5 * time.Minute,
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Concurrency < 1 || c.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and %d, got %d", maxConcurrency, c.Concurrency))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval must be at least 1s, got %v", c.PollInterval))
	}
	if c.JobTimeout < minJobTimeout || c.JobTimeout > maxJobTimeout {
		errs = append(errs, fmt.Errorf("job timeout must be between %v and %v, got %v", minJobTimeout, maxJobTimeout, c.JobTimeout))
	}
	if c.ShutdownTimeout < time.Second {
		errs = append(errs, fmt.Errorf("shutdown timeout must be at least 1s, got %v", c.ShutdownTimeout))
	}
	// A job still inside its timeout must never be requeued as stale, or two
	// runners would mail the same owners.
	if c.StaleJobThreshold < 2*c.JobTimeout {
		errs = append(errs, fmt.Errorf("stale job threshold must be at least twice the job timeout (%v), got %v", 2*c.JobTimeout, c.StaleJobThreshold))
	}

	return errors.Join(errs...)
}
