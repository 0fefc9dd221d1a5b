package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobSubmitted      []entry[JobSubmitted]
	jobDeduplicated   []entry[JobDeduplicated]
	jobStarted        []entry[JobStarted]
	jobSucceeded      []entry[JobSucceeded]
	jobFailed         []entry[JobFailed]
	jobRetryScheduled []entry[JobRetryScheduled]
	jobDead           []entry[JobDead]
	scheduleFired     []entry[ScheduleFired]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobSubmitted); ok {
		r.jobSubmitted = append(r.jobSubmitted, entry[JobSubmitted]{name, h})
	}
	if h, ok := e.(JobDeduplicated); ok {
		r.jobDeduplicated = append(r.jobDeduplicated, entry[JobDeduplicated]{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, entry[JobSucceeded]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobRetryScheduled); ok {
		r.jobRetryScheduled = append(r.jobRetryScheduled, entry[JobRetryScheduled]{name, h})
	}
	if h, ok := e.(JobDead); ok {
		r.jobDead = append(r.jobDead, entry[JobDead]{name, h})
	}
	if h, ok := e.(ScheduleFired); ok {
		r.scheduleFired = append(r.scheduleFired, entry[ScheduleFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobSubmitted notifies all extensions that implement JobSubmitted.
func (r *Registry) EmitJobSubmitted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobSubmitted {
		if err := e.hook.OnJobSubmitted(ctx, j); err != nil {
			r.logHookError("OnJobSubmitted", e.name, err)
		}
	}
}

// EmitJobDeduplicated notifies all extensions that implement JobDeduplicated.
func (r *Registry) EmitJobDeduplicated(ctx context.Context, fingerprint string, existing id.JobID) {
	for _, e := range r.jobDeduplicated {
		if err := e.hook.OnJobDeduplicated(ctx, fingerprint, existing); err != nil {
			r.logHookError("OnJobDeduplicated", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRetryScheduled notifies all extensions that implement JobRetryScheduled.
func (r *Registry) EmitJobRetryScheduled(ctx context.Context, j *job.Job, nextEligibleAt time.Time) {
	for _, e := range r.jobRetryScheduled {
		if err := e.hook.OnJobRetryScheduled(ctx, j, nextEligibleAt); err != nil {
			r.logHookError("OnJobRetryScheduled", e.name, err)
		}
	}
}

// EmitJobDead notifies all extensions that implement JobDead.
func (r *Registry) EmitJobDead(ctx context.Context, j *job.Job) {
	for _, e := range r.jobDead {
		if err := e.hook.OnJobDead(ctx, j); err != nil {
			r.logHookError("OnJobDead", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitScheduleFired notifies all extensions that implement ScheduleFired.
func (r *Registry) EmitScheduleFired(ctx context.Context, name string, jobID id.JobID) {
	for _, e := range r.scheduleFired {
		if err := e.hook.OnScheduleFired(ctx, name, jobID); err != nil {
			r.logHookError("OnScheduleFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
