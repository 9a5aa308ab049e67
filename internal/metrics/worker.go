package metrics

import "time"

// JobStarted marks a job of jobType as executing.
func JobStarted(jobType string) {
	JobsInFlight.WithLabelValues(jobType).Inc()
}

// JobCompleted records a successful job completion.
func JobCompleted(jobType string, duration time.Duration) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure. Permanent failures are not retried.
func JobFailed(jobType string, permanent bool) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	status := "retrying"
	if permanent {
		status = "failed"
	}
	JobsTotal.WithLabelValues(jobType, status).Inc()
}

// JobScheduled records a job enqueued by the scheduler.
func JobScheduled(jobType string) {
	JobsScheduledTotal.WithLabelValues(jobType).Inc()
}
