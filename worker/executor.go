// Package worker provides the job execution engine: an Executor that takes
// one queue delivery through claim, strategy execution and outcome
// persistence, and a Pool that runs concurrent dequeue loops plus the
// sweeper that repairs lost queue messages.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/ext"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/middleware"
	"github.com/rahulsharmaah/content-scrapper/queue"
	"github.com/rahulsharmaah/content-scrapper/retry"
	"github.com/rahulsharmaah/content-scrapper/strategy"
	"github.com/rahulsharmaah/content-scrapper/throttle"
)

// reasonBudgetExhausted is recorded when a stale attempt cannot be
// reclaimed because no attempts are left.
const reasonBudgetExhausted = "attempt lease expired with no attempts left"

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithDedup releases fingerprints through s when jobs finish.
func WithDedup(s *dedup.Service) ExecutorOption {
	return func(e *Executor) { e.dedup = s }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = r }
}

// WithThrottle enables per-host politeness. Jobs whose host is over
// budget are deferred by delay without consuming an attempt.
func WithThrottle(m *throttle.Manager, delay time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.throttle = m
		e.throttleDelay = delay
	}
}

// WithMiddleware sets the middleware chain around strategy execution.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithWorkerID sets the ID recorded on claimed jobs.
func WithWorkerID(wid id.WorkerID) ExecutorOption {
	return func(e *Executor) { e.workerID = wid }
}

// WithVisibilityTimeout sets the attempt lease used to tell a crashed
// attempt from one that is still in flight.
func WithVisibilityTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.visibility = d }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// Executor processes one delivery at a time. It is safe for concurrent
// use by the pool's goroutines; all coordination goes through the store's
// compare-and-set.
type Executor struct {
	store      job.Store
	broker     queue.Broker
	strategies *strategy.Registry
	retry      *retry.Controller

	dedup         *dedup.Service
	extensions    *ext.Registry
	throttle      *throttle.Manager
	throttleDelay time.Duration
	mw            middleware.Middleware
	workerID      id.WorkerID
	visibility    time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(
	store job.Store,
	broker queue.Broker,
	strategies *strategy.Registry,
	controller *retry.Controller,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		store:         store,
		broker:        broker,
		strategies:    strategies,
		retry:         controller,
		extensions:    ext.NewRegistry(nil),
		throttleDelay: 2 * time.Second,
		mw:            middleware.Chain(),
		workerID:      id.NewWorkerID(),
		visibility:    2 * time.Minute,
		logger:        slog.Default(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry == nil {
		e.retry = retry.NewController(nil)
	}
	return e
}

// WorkerID returns the ID stamped on claimed jobs.
func (e *Executor) WorkerID() id.WorkerID { return e.workerID }

// Handle processes one delivery. The job row decides what happens; the
// message is only a hint. Returned errors are infrastructure failures
// that leave the delivery unacknowledged so it is redelivered after the
// visibility timeout.
func (e *Executor) Handle(ctx context.Context, d *queue.Delivery) error {
	j, err := e.store.GetJob(ctx, d.JobID)
	if errors.Is(err, scrapper.ErrJobNotFound) {
		e.logger.Warn("dropping message for unknown job", slog.String("job_id", d.JobID.String()))
		return e.ack(ctx, d)
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", d.JobID, err)
	}

	now := e.now()
	switch j.State {
	case job.StateSucceeded, job.StateDead:
		return e.ack(ctx, d)

	case job.StateFailed:
		return e.decide(ctx, d, j, nil)

	case job.StateRetryScheduled:
		if wait := j.NextEligibleAt.Sub(now); wait > 0 {
			return e.nack(ctx, d, wait)
		}
		j, err = job.Transition(ctx, e.store, j, job.StatePending, nil)
		if err != nil {
			return e.lost(ctx, d, d.JobID, err)
		}
		return e.claimAndRun(ctx, d, j)

	case job.StateRunning:
		if lease := j.UpdatedAt.Add(e.visibility).Sub(now); lease > 0 {
			// Another worker may still hold the attempt.
			return e.nack(ctx, d, lease)
		}
		if !j.AttemptsLeft() {
			return e.expire(ctx, d, j)
		}
		e.logger.Info("reclaiming stale attempt",
			slog.String("job_id", j.ID.String()),
			slog.String("previous_worker_id", j.WorkerID.String()),
			slog.Int("attempt", j.Attempts),
		)
		return e.claimAndRun(ctx, d, j)

	default:
		return e.claimAndRun(ctx, d, j)
	}
}

// claimAndRun takes an attempt on j (pending or stale running), runs the
// strategy and persists the outcome.
func (e *Executor) claimAndRun(ctx context.Context, d *queue.Delivery, cur *job.Job) error {
	host := throttle.HostOf(cur.Target)
	if e.throttle != nil {
		if !e.throttle.Acquire(host) {
			e.logger.Debug("host over budget, deferring",
				slog.String("job_id", cur.ID.String()),
				slog.String("host", host),
			)
			return e.nack(ctx, d, e.throttleDelay)
		}
		defer e.throttle.Release(host)
	}

	j, err := job.Transition(ctx, e.store, cur, job.StateRunning, func(n *job.Job) {
		now := e.now()
		n.Attempts++
		n.WorkerID = e.workerID
		n.StartedAt = &now
	})
	if err != nil {
		return e.lost(ctx, d, cur.ID, err)
	}
	e.extensions.EmitJobStarted(ctx, j)

	start := time.Now()
	res, runErr := e.run(ctx, j)
	elapsed := time.Since(start)

	if runErr == nil {
		return e.succeed(ctx, d, j, res, elapsed)
	}
	return e.fail(ctx, d, j, runErr)
}

// run executes the job's strategy through the middleware chain.
func (e *Executor) run(ctx context.Context, j *job.Job) (*strategy.Result, error) {
	s, err := e.strategies.Resolve(j.Strategy)
	if err != nil {
		return nil, strategy.NonRecoverable("strategy not registered", err)
	}

	// An abandoned attempt may still store its result after the chain
	// returned; the result is only read when the chain reports success.
	var res atomic.Pointer[strategy.Result]
	err = e.mw(ctx, j, func(ctx context.Context) error {
		r, execErr := s.Execute(ctx, j.Target, j.Params)
		if execErr != nil {
			return execErr
		}
		if r == nil {
			r = &strategy.Result{}
		}
		res.Store(r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res.Load(), nil
}

func (e *Executor) succeed(ctx context.Context, d *queue.Delivery, running *job.Job, res *strategy.Result, elapsed time.Duration) error {
	if res.FetchedAt.IsZero() {
		res.FetchedAt = e.now()
	}
	body, err := json.Marshal(res)
	if err != nil {
		return e.fail(ctx, d, running, strategy.NonRecoverable("encode result", err))
	}

	done, err := job.Transition(ctx, e.store, running, job.StateSucceeded, func(n *job.Job) {
		now := e.now()
		n.Result = body
		n.FinishedAt = &now
	})
	if err != nil {
		return e.lost(ctx, d, running.ID, err)
	}

	e.release(ctx, done)
	e.extensions.EmitJobSucceeded(ctx, done, elapsed)
	return e.ack(ctx, d)
}

// fail records the attempt failure durably, then lets the retry
// controller decide.
func (e *Executor) fail(ctx context.Context, d *queue.Delivery, running *job.Job, runErr error) error {
	failed, err := job.Transition(ctx, e.store, running, job.StateFailed, func(n *job.Job) {
		n.LastError = &job.Failure{
			Kind:    strategy.Classify(runErr),
			Message: runErr.Error(),
			At:      e.now(),
		}
	})
	if err != nil {
		return e.lost(ctx, d, running.ID, err)
	}
	return e.decide(ctx, d, failed, runErr)
}

// decide applies the retry policy to a failed job. runErr is nil when a
// redelivered failed job is being finished after a crash.
func (e *Executor) decide(ctx context.Context, d *queue.Delivery, failed *job.Job, runErr error) error {
	if runErr == nil && failed.LastError != nil {
		runErr = errors.New(failed.LastError.Message)
	}
	if runErr != nil {
		e.extensions.EmitJobFailed(ctx, failed, runErr)
	}

	next, decision, err := e.retry.Apply(ctx, e.store, failed)
	if err != nil {
		return e.lost(ctx, d, failed.ID, err)
	}

	if decision.Action == retry.ActionRetry {
		e.logger.Info("retry scheduled",
			slog.String("job_id", next.ID.String()),
			slog.Int("attempt", next.Attempts),
			slog.Int("max_attempts", next.MaxAttempts),
			slog.Duration("delay", decision.Delay),
		)
		e.extensions.EmitJobRetryScheduled(ctx, next, decision.NextEligibleAt)
		return e.nack(ctx, d, decision.Delay)
	}

	kind := job.KindRecoverable
	if next.LastError != nil {
		kind = next.LastError.Kind
	}
	e.logger.Warn("job dead",
		slog.String("job_id", next.ID.String()),
		slog.String("target", next.Target),
		slog.Int("attempts", next.Attempts),
		slog.String("kind", string(kind)),
	)
	e.release(ctx, next)
	e.extensions.EmitJobDead(ctx, next)
	return e.ack(ctx, d)
}

// expire kills a stale running job whose budget is spent.
func (e *Executor) expire(ctx context.Context, d *queue.Delivery, stale *job.Job) error {
	dead, err := job.Transition(ctx, e.store, stale, job.StateDead, func(n *job.Job) {
		now := e.now()
		n.LastError = &job.Failure{Kind: job.KindRecoverable, Message: reasonBudgetExhausted, At: now}
		n.FinishedAt = &now
	})
	if err != nil {
		return e.lost(ctx, d, stale.ID, err)
	}
	e.logger.Warn("stale attempt expired",
		slog.String("job_id", dead.ID.String()),
		slog.String("previous_worker_id", stale.WorkerID.String()),
		slog.Int("attempts", dead.Attempts),
	)
	e.release(ctx, dead)
	e.extensions.EmitJobDead(ctx, dead)
	return e.ack(ctx, d)
}

// lost handles a failed transition. A lost compare-and-set means someone
// else (an operator cancel, another worker, a duplicate message) moved the
// job on; their delivery carries the job from here, so this one is dropped.
func (e *Executor) lost(ctx context.Context, d *queue.Delivery, jobID id.JobID, err error) error {
	if errors.Is(err, scrapper.ErrStateConflict) || errors.Is(err, scrapper.ErrJobTerminal) ||
		errors.Is(err, scrapper.ErrInvalidTransition) || errors.Is(err, scrapper.ErrJobNotFound) {
		e.logger.Debug("job moved on concurrently, dropping delivery",
			slog.String("job_id", jobID.String()),
			slog.String("reason", err.Error()),
		)
		return e.ack(ctx, d)
	}
	return fmt.Errorf("persist job %s: %w", jobID, err)
}

func (e *Executor) release(ctx context.Context, j *job.Job) {
	if e.dedup == nil {
		return
	}
	if err := e.dedup.Release(ctx, j.Fingerprint, j.ID); err != nil {
		// Acquire replaces terminal owners that were never released.
		e.logger.Warn("fingerprint release failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) ack(ctx context.Context, d *queue.Delivery) error {
	err := e.broker.Ack(ctx, d.Token)
	if errors.Is(err, queue.ErrInvalidToken) {
		e.logger.Debug("ack on expired delivery", slog.String("job_id", d.JobID.String()))
		return nil
	}
	return err
}

func (e *Executor) nack(ctx context.Context, d *queue.Delivery, delay time.Duration) error {
	err := e.broker.Nack(ctx, d.Token, delay)
	if errors.Is(err, queue.ErrInvalidToken) {
		e.logger.Debug("nack on expired delivery", slog.String("job_id", d.JobID.String()))
		return nil
	}
	return err
}
