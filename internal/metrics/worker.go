package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var JobsInFlight = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Current number of jobs being executed",
	},
	[]string{"type"},
)

// JobStarted should be called when a job begins processing.
func JobStarted(jobType string) {
	JobsInFlight.WithLabelValues(jobType).Inc()
}

// JobCompleted records a successful job completion.
func JobCompleted(jobType string, duration time.Duration) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure. final is true when the job will not be retried.
func JobFailed(jobType string, final bool) {
	JobsInFlight.WithLabelValues(jobType).Dec()
	if final {
		JobsTotal.WithLabelValues(jobType, "failed").Inc()
		return
	}
	JobRetriesTotal.WithLabelValues(jobType).Inc()
}
