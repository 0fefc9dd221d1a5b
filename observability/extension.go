package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rahulsharmaah/content-scrapper/ext"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.JobSubmitted      = (*MetricsExtension)(nil)
	_ ext.JobDeduplicated   = (*MetricsExtension)(nil)
	_ ext.JobStarted        = (*MetricsExtension)(nil)
	_ ext.JobSucceeded      = (*MetricsExtension)(nil)
	_ ext.JobFailed         = (*MetricsExtension)(nil)
	_ ext.JobRetryScheduled = (*MetricsExtension)(nil)
	_ ext.JobDead           = (*MetricsExtension)(nil)
	_ ext.ScheduleFired     = (*MetricsExtension)(nil)
)

const namespace = "scrapper"

// MetricsExtension records system-wide lifecycle metrics in Prometheus.
// Register it as an engine extension and serve its registry at /metrics.
type MetricsExtension struct {
	JobsSubmitted    *prometheus.CounterVec
	JobsDeduplicated prometheus.Counter
	AttemptsStarted  *prometheus.CounterVec
	JobsSucceeded    *prometheus.CounterVec
	AttemptsFailed   *prometheus.CounterVec
	RetriesScheduled *prometheus.CounterVec
	JobsDead         *prometheus.CounterVec
	SchedulesFired   *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobAttempts      prometheus.Histogram
}

// NewMetricsExtension creates a MetricsExtension registered on the default
// Prometheus registerer.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithRegisterer(prometheus.DefaultRegisterer)
}

// NewMetricsExtensionWithRegisterer creates a MetricsExtension whose
// collectors are registered on reg. Use a fresh prometheus.NewRegistry in
// tests.
func NewMetricsExtensionWithRegisterer(reg prometheus.Registerer) *MetricsExtension {
	m := &MetricsExtension{
		JobsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Jobs created by submissions.",
		}, []string{"strategy"}),
		JobsDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_deduplicated_total",
			Help:      "Submissions resolved to an existing job.",
		}),
		AttemptsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_started_total",
			Help:      "Attempts claimed by workers.",
		}, []string{"strategy"}),
		JobsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_succeeded_total",
			Help:      "Jobs that reached the succeeded state.",
		}, []string{"strategy"}),
		AttemptsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_failed_total",
			Help:      "Failed attempts by failure kind.",
		}, []string{"strategy", "kind"}),
		RetriesScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Retries scheduled after a recoverable failure.",
		}, []string{"strategy"}),
		JobsDead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_total",
			Help:      "Jobs that reached the dead state.",
		}, []string{"strategy"}),
		SchedulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_fired_total",
			Help:      "Recurring entries that submitted a job.",
		}, []string{"schedule"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of successful attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"strategy"}),
		JobAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_attempts",
			Help:      "Attempts consumed by jobs that reached a terminal state.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsDeduplicated,
		m.AttemptsStarted,
		m.JobsSucceeded,
		m.AttemptsFailed,
		m.RetriesScheduled,
		m.JobsDead,
		m.SchedulesFired,
		m.JobDuration,
		m.JobAttempts,
	)
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobSubmitted implements ext.JobSubmitted.
func (m *MetricsExtension) OnJobSubmitted(_ context.Context, j *job.Job) error {
	m.JobsSubmitted.WithLabelValues(j.Strategy).Inc()
	return nil
}

// OnJobDeduplicated implements ext.JobDeduplicated.
func (m *MetricsExtension) OnJobDeduplicated(_ context.Context, _ string, _ id.JobID) error {
	m.JobsDeduplicated.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, j *job.Job) error {
	m.AttemptsStarted.WithLabelValues(j.Strategy).Inc()
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(_ context.Context, j *job.Job, elapsed time.Duration) error {
	m.JobsSucceeded.WithLabelValues(j.Strategy).Inc()
	m.JobDuration.WithLabelValues(j.Strategy).Observe(elapsed.Seconds())
	m.JobAttempts.Observe(float64(j.Attempts))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, j *job.Job, _ error) error {
	kind := job.KindRecoverable
	if j.LastError != nil {
		kind = j.LastError.Kind
	}
	m.AttemptsFailed.WithLabelValues(j.Strategy, string(kind)).Inc()
	return nil
}

// OnJobRetryScheduled implements ext.JobRetryScheduled.
func (m *MetricsExtension) OnJobRetryScheduled(_ context.Context, j *job.Job, _ time.Time) error {
	m.RetriesScheduled.WithLabelValues(j.Strategy).Inc()
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(_ context.Context, j *job.Job) error {
	m.JobsDead.WithLabelValues(j.Strategy).Inc()
	m.JobAttempts.Observe(float64(j.Attempts))
	return nil
}

// ── Schedule hooks ──────────────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(_ context.Context, name string, _ id.JobID) error {
	m.SchedulesFired.WithLabelValues(name).Inc()
	return nil
}
