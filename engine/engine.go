package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/backoff"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/ext"
	mw "github.com/rahulsharmaah/content-scrapper/middleware"
	"github.com/rahulsharmaah/content-scrapper/queue"
	"github.com/rahulsharmaah/content-scrapper/resilience"
	"github.com/rahulsharmaah/content-scrapper/retry"
	"github.com/rahulsharmaah/content-scrapper/schedule"
	"github.com/rahulsharmaah/content-scrapper/store"
	"github.com/rahulsharmaah/content-scrapper/strategy"
	"github.com/rahulsharmaah/content-scrapper/throttle"
	"github.com/rahulsharmaah/content-scrapper/worker"
)

// instrumentationName is the OTel scope used when custom providers are set.
const instrumentationName = "github.com/rahulsharmaah/content-scrapper"

// Engine is the job lifecycle engine.
type Engine struct {
	config scrapper.Config
	logger *slog.Logger

	store      store.Store
	index      dedup.Index
	ownIndex   bool
	broker     queue.Broker
	strategies *strategy.Registry
	extensions *ext.Registry
	dedup      *dedup.Service
	validate   *validator.Validate

	bo       backoff.Strategy
	limits   []throttle.Limit
	throttle *throttle.Manager
	mws      []mw.Middleware

	executor  *worker.Executor
	pool      *worker.Pool
	scheduler *schedule.Scheduler
	noWorkers bool
	noCron    bool

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithBroker sets the queue adapter. Required.
func WithBroker(b queue.Broker) Option {
	return func(e *Engine) { e.broker = b }
}

// WithDedupIndex moves the idempotency index off the store, for example
// onto the Redis broker.
func WithDedupIndex(idx dedup.Index) Option {
	return func(e *Engine) {
		e.index = idx
		e.ownIndex = idx != nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg scrapper.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithConcurrency sets the number of dequeue loops.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.config.Concurrency = n }
}

// WithMaxAttempts sets the default attempt budget of new jobs.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) { e.config.MaxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithStrategy registers a fetch strategy.
func WithStrategy(s strategy.Strategy) Option {
	return func(e *Engine) { e.strategies.Register(s) }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.extensions.Register(x) }
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithBackoff overrides the retry delay curve built from the config.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// WithThrottle sets per-host politeness limits.
func WithThrottle(limits ...throttle.Limit) Option {
	return func(e *Engine) { e.limits = append(e.limits, limits...) }
}

// WithoutWorkers builds a submit-and-query engine whose Start does not
// consume the queue. Used by API-only processes.
func WithoutWorkers() Option {
	return func(e *Engine) { e.noWorkers = true }
}

// WithoutScheduler disables the recurring-submission tick loop.
func WithoutScheduler() Option {
	return func(e *Engine) { e.noCron = true }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New builds an Engine. Store and broker calls are wrapped in bounded
// retries with a circuit breaker unless Config.InfraRetries is zero.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		config:     scrapper.DefaultConfig(),
		logger:     slog.Default(),
		strategies: strategy.NewRegistry(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
	e.extensions = ext.NewRegistry(e.logger)
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		return nil, scrapper.ErrNoStore
	}
	if e.broker == nil {
		return nil, scrapper.ErrNoBroker
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	if e.index == nil {
		e.index = e.store
	}
	if e.bo == nil {
		e.bo = backoff.NewEqualJitter(e.config.BackoffBase, e.config.BackoffMax)
	}

	if e.config.InfraRetries > 0 {
		e.wrapInfrastructure()
	}

	e.dedup = dedup.NewService(e.index, e.store,
		dedup.WithTTL(e.config.DedupTTL),
		dedup.WithOrphanGrace(e.config.DedupOrphanGrace),
		dedup.WithLogger(e.logger),
	)

	e.throttle = throttle.NewManager(e.limits...)
	e.executor = worker.NewExecutor(e.store, e.broker, e.strategies,
		retry.NewController(e.bo),
		worker.WithDedup(e.dedup),
		worker.WithExtensions(e.extensions),
		worker.WithThrottle(e.throttle, e.config.ThrottleDelay),
		worker.WithMiddleware(e.middleware()...),
		worker.WithVisibilityTimeout(e.config.VisibilityTimeout),
		worker.WithExecutorLogger(e.logger),
	)
	e.pool = worker.NewPool(e.store, e.broker, e.executor,
		worker.WithPoolConcurrency(e.config.Concurrency),
		worker.WithPollInterval(e.config.PollInterval),
		worker.WithSweeper(e.config.SweepInterval, e.config.VisibilityTimeout+e.config.SweepInterval, e.config.SweepBatch),
		worker.WithPoolLogger(e.logger),
	)
	e.scheduler = schedule.NewScheduler(e.store, e.submitScheduled,
		schedule.WithEmitter(e.extensions),
		schedule.WithLogger(e.logger),
	)

	return e, nil
}

// wrapInfrastructure puts every store and broker call behind a guard.
func (e *Engine) wrapInfrastructure() {
	guardOpts := []resilience.Option{
		resilience.WithRetries(e.config.InfraRetries),
		resilience.WithLogger(e.logger),
	}
	storeGuard := resilience.NewGuard("store", scrapper.ErrStoreUnavailable, guardOpts...)
	brokerGuard := resilience.NewGuard("broker", scrapper.ErrBrokerUnavailable, guardOpts...)

	wrapped := resilience.WrapStore(e.store, storeGuard)
	e.store = wrapped
	if e.ownIndex {
		e.index = resilience.WrapIndex(e.index, brokerGuard)
	} else {
		e.index = wrapped
	}
	e.broker = resilience.WrapBroker(e.broker, brokerGuard)
}

// middleware builds the default chain: recover → tracing → metrics →
// logging → timeout, then user middleware.
func (e *Engine) middleware() []mw.Middleware {
	tracing := mw.Tracing()
	if e.tracerProvider != nil {
		tracing = mw.TracingWithTracer(e.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if e.meterProvider != nil {
		metrics = mw.MetricsWithMeter(e.meterProvider.Meter(instrumentationName))
	}

	chain := []mw.Middleware{
		mw.Recover(e.logger),
		tracing,
		metrics,
		mw.Logging(e.logger),
		mw.Timeout(e.config.FetchTimeout, e.logger),
	}
	return append(chain, e.mws...)
}

// RegisterStrategy adds a fetch strategy after construction.
func (e *Engine) RegisterStrategy(s strategy.Strategy) { e.strategies.Register(s) }

// Start launches the worker pool and the scheduler.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}

	if !e.noCron {
		if err := e.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	if !e.noWorkers {
		if err := e.pool.Start(ctx); err != nil {
			return fmt.Errorf("start worker pool: %w", err)
		}
	}
	e.started = true

	e.logger.Info("engine started",
		slog.String("worker_id", e.pool.WorkerID().String()),
		slog.Any("strategies", e.strategies.Names()),
		slog.Bool("workers", !e.noWorkers),
		slog.Bool("scheduler", !e.noCron),
	)
	return nil
}

// Stop drains the worker pool within Config.ShutdownTimeout and stops the
// scheduler. Attempts still running at the deadline are cancelled and
// recovered elsewhere after the visibility timeout.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false

	ctx, cancel := context.WithTimeout(ctx, e.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if !e.noCron {
		if err := e.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if !e.noWorkers {
		if err := e.pool.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
		}
	}
	e.extensions.EmitShutdown(ctx)

	e.logger.Info("engine stopped")
	return errors.Join(errs...)
}

// Ping checks the store.
func (e *Engine) Ping(ctx context.Context) error { return e.store.Ping(ctx) }

// Config returns the effective configuration.
func (e *Engine) Config() scrapper.Config { return e.config }

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Strategies returns the strategy registry.
func (e *Engine) Strategies() *strategy.Registry { return e.strategies }

// Store returns the (possibly guarded) store.
func (e *Engine) Store() store.Store { return e.store }

// Broker returns the (possibly guarded) broker.
func (e *Engine) Broker() queue.Broker { return e.broker }

// Pool returns the worker pool.
func (e *Engine) Pool() *worker.Pool { return e.pool }

// Scheduler returns the recurring-submission scheduler.
func (e *Engine) Scheduler() *schedule.Scheduler { return e.scheduler }

// Throttle returns the per-host politeness manager.
func (e *Engine) Throttle() *throttle.Manager { return e.throttle }
