// Package retry decides what happens to a job after a failed attempt.
//
// The decision only depends on the recorded failure and the attempt
// budget:
//
//   - a non-recoverable failure kills the job regardless of budget;
//   - a recoverable failure with attempts left schedules a retry after the
//     backoff delay for the current attempt;
//   - a recoverable failure that used the last attempt kills the job.
//
// Failures are never retried inline by the worker.
package retry

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/backoff"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// Action is the outcome of a decision.
type Action string

const (
	// ActionRetry schedules another attempt.
	ActionRetry Action = "retry"
	// ActionDead gives up on the job.
	ActionDead Action = "dead"
)

// Decision is the controller's verdict for a failed job.
type Decision struct {
	Action         Action
	Delay          time.Duration
	NextEligibleAt time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller applies the retry policy.
type Controller struct {
	backoff backoff.Strategy
	now     func() time.Time
}

// NewController creates a Controller. A nil strategy uses
// backoff.DefaultStrategy.
func NewController(b backoff.Strategy, opts ...Option) *Controller {
	if b == nil {
		b = backoff.DefaultStrategy()
	}
	c := &Controller{backoff: b, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide returns the verdict for j, which must carry its last failure.
func (c *Controller) Decide(j *job.Job) Decision {
	if j.LastError != nil && j.LastError.Kind == job.KindNonRecoverable {
		return Decision{Action: ActionDead}
	}
	if !j.AttemptsLeft() {
		return Decision{Action: ActionDead}
	}
	d := c.backoff.Delay(j.Attempts)
	return Decision{Action: ActionRetry, Delay: d, NextEligibleAt: c.now().Add(d)}
}

// Apply decides and persists the verdict for a job in the failed state.
func (c *Controller) Apply(ctx context.Context, s job.Store, failed *job.Job) (*job.Job, Decision, error) {
	d := c.Decide(failed)
	if d.Action == ActionDead {
		next, err := job.Transition(ctx, s, failed, job.StateDead, func(n *job.Job) {
			now := c.now()
			n.FinishedAt = &now
		})
		return next, d, err
	}

	next, err := job.Transition(ctx, s, failed, job.StateRetryScheduled, func(n *job.Job) {
		n.NextEligibleAt = d.NextEligibleAt
	})
	return next, d, err
}
