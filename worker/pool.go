package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/queue"
)

// sweepStates are the non-terminal states whose jobs can lose their queue
// message.
var sweepStates = []job.State{
	job.StatePending,
	job.StateRunning,
	job.StateFailed,
	job.StateRetryScheduled,
}

// Pool manages a set of concurrent worker goroutines that dequeue
// deliveries and hand them to the Executor, plus an optional sweeper.
type Pool struct {
	store        job.Store
	broker       queue.Broker
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	logger       *slog.Logger

	// Sweeper configuration.
	sweepInterval  time.Duration
	staleThreshold time.Duration
	sweepBatch     int

	stopCh  chan struct{}
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	active  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how long an idle worker waits before polling the
// broker again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithSweeper enables the sweeper. Every interval it re-enqueues up to
// batch non-terminal jobs per state that have not changed for threshold.
// A zero interval disables sweeping.
func WithSweeper(interval, threshold time.Duration, batch int) PoolOption {
	return func(p *Pool) {
		p.sweepInterval = interval
		p.staleThreshold = threshold
		p.sweepBatch = batch
	}
}

// WithPoolLogger sets the logger.
func WithPoolLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates a worker pool.
func NewPool(store job.Store, broker queue.Broker, executor *Executor, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		broker:       broker,
		executor:     executor,
		concurrency:  10,
		pollInterval: 500 * time.Millisecond,
		sweepBatch:   100,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.executor.WorkerID() }

// Active returns the number of deliveries being processed right now.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.runCtx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	stop := p.stopCh

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.WorkerID().String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop(stop)
	}

	if p.sweepInterval > 0 {
		p.wg.Add(1)
		go p.sweepLoop(stop)
	}

	return nil
}

// Stop signals all workers to stop and waits for in-flight deliveries to
// finish. When ctx expires first, in-flight attempts are cancelled; their
// jobs are recovered through the visibility timeout.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.WorkerID().String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active attempts",
			slog.Int("active", p.Active()),
		)
		p.cancel()
		<-done
	}
	p.cancel()

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		d, err := p.broker.Dequeue(p.runCtx)
		if errors.Is(err, queue.ErrEmpty) {
			p.sleep(stop)
			continue
		}
		if err != nil {
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep(stop)
			continue
		}

		p.active.Add(1)
		if err := p.executor.Handle(p.runCtx, d); err != nil {
			p.logger.Error("delivery left for redelivery",
				slog.String("job_id", d.JobID.String()),
				slog.Int("deliveries", d.Deliveries),
				slog.String("error", err.Error()),
			)
		}
		p.active.Add(-1)
	}
}

// sweepLoop periodically re-enqueues jobs whose message may be lost.
func (p *Pool) sweepLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.Sweep(p.runCtx)
		}
	}
}

// Sweep re-enqueues non-terminal jobs untouched for the stale threshold
// and returns how many messages it sent. Retry-scheduled jobs count from
// their eligibility time. Duplicate messages are harmless: the executor
// acts on the job row, not the message.
func (p *Pool) Sweep(ctx context.Context) int {
	now := time.Now().UTC()
	before := now.Add(-p.staleThreshold)
	sent := 0

	for _, state := range sweepStates {
		stale, err := p.store.ListStaleJobs(ctx, []job.State{state}, before, p.sweepBatch)
		if err != nil {
			p.logger.Error("sweep: list stale jobs",
				slog.String("state", string(state)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, j := range stale {
			if state == job.StateRetryScheduled && j.NextEligibleAt.After(before) {
				continue
			}
			if err := p.broker.Enqueue(ctx, j.ID, 0); err != nil {
				p.logger.Error("sweep: re-enqueue",
					slog.String("job_id", j.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			sent++
			p.logger.Info("re-enqueued stale job",
				slog.String("job_id", j.ID.String()),
				slog.String("state", string(j.State)),
			)
		}
	}
	return sent
}

func (p *Pool) sleep(stop <-chan struct{}) {
	select {
	case <-time.After(p.pollInterval):
	case <-stop:
	}
}
