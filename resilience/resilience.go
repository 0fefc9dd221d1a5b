// Package resilience shields the engine from transient store and broker
// failures. Every call goes through a [Guard]: a circuit breaker
// (sony/gobreaker) plus a bounded retry with backoff. When the retries are
// spent or the breaker is open the call fails with the guard's
// "unavailable" sentinel (scrapper.ErrStoreUnavailable or
// scrapper.ErrBrokerUnavailable).
//
// Domain outcomes such as "not found", CAS conflicts or an empty queue are
// returned untouched, are never retried, and count as successes for the
// breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/backoff"
	"github.com/rahulsharmaah/content-scrapper/queue"
)

// domainErrors pass through a Guard untouched.
var domainErrors = []error{
	scrapper.ErrJobNotFound,
	scrapper.ErrJobAlreadyExists,
	scrapper.ErrStateConflict,
	scrapper.ErrScheduleNotFound,
	scrapper.ErrDuplicateSchedule,
	scrapper.ErrInvalidTransition,
	scrapper.ErrJobTerminal,
	queue.ErrEmpty,
	queue.ErrInvalidToken,
	context.Canceled,
	context.DeadlineExceeded,
}

// IsDomain reports whether err is an expected outcome rather than an
// infrastructure failure.
func IsDomain(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Option configures a Guard.
type Option func(*Guard)

// WithRetries sets how many times a failed call is retried.
func WithRetries(n int) Option {
	return func(g *Guard) { g.retries = n }
}

// WithBackoff sets the delay curve between retries.
func WithBackoff(b backoff.Strategy) Option {
	return func(g *Guard) { g.backoff = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// WithBreakerTimeout sets how long the breaker stays open before probing.
func WithBreakerTimeout(d time.Duration) Option {
	return func(g *Guard) { g.openTimeout = d }
}

// Guard wraps calls to one dependency.
type Guard struct {
	name        string
	unavailable error
	retries     int
	backoff     backoff.Strategy
	openTimeout time.Duration
	logger      *slog.Logger
	cb          *gobreaker.CircuitBreaker
}

// NewGuard creates a Guard. unavailable is the sentinel wrapped into
// errors once the dependency is considered down.
func NewGuard(name string, unavailable error, opts ...Option) *Guard {
	g := &Guard{
		name:        name,
		unavailable: unavailable,
		retries:     3,
		backoff:     backoff.NewExponential(50*time.Millisecond, time.Second),
		openTimeout: 5 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     g.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsDomain(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state change",
				slog.String("dependency", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return g
}

// State returns the breaker state.
func (g *Guard) State() gobreaker.State { return g.cb.State() }

// Do runs fn under the breaker, retrying infrastructure failures.
func (g *Guard) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		_, err = g.cb.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil || IsDomain(err) {
			return err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %w", g.unavailable, op, err)
		}
		if attempt >= g.retries {
			break
		}

		g.logger.Debug("retrying infrastructure call",
			slog.String("dependency", g.name),
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", g.unavailable, op, ctx.Err())
		case <-time.After(g.backoff.Delay(attempt + 1)):
		}
	}
	return fmt.Errorf("%w: %s: %w", g.unavailable, op, err)
}

// call is Do for functions that return a value.
func call[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}
