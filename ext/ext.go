package ext

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobSubmitted is called after a new job is persisted.
type JobSubmitted interface {
	OnJobSubmitted(ctx context.Context, j *job.Job) error
}

// JobDeduplicated is called when a submission resolves to an existing job.
type JobDeduplicated interface {
	OnJobDeduplicated(ctx context.Context, fingerprint string, existing id.JobID) error
}

// JobStarted is called when a worker claims an attempt.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after the result is persisted.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called after a failed attempt is recorded.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetryScheduled is called when another attempt is scheduled.
type JobRetryScheduled interface {
	OnJobRetryScheduled(ctx context.Context, j *job.Job, nextEligibleAt time.Time) error
}

// JobDead is called when a job reaches the dead state.
type JobDead interface {
	OnJobDead(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a recurring entry submits a job.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, name string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
