package scrapper

import (
	"fmt"
	"time"
)

// Config holds the tunables of the job lifecycle engine.
type Config struct {
	// Concurrency is the number of dequeue loops a worker pool runs.
	Concurrency int

	// MaxAttempts is the default attempt budget of a new job, including the
	// first attempt.
	MaxAttempts int

	// BackoffBase is the first retry delay before jitter.
	BackoffBase time.Duration

	// BackoffMax caps the retry delay.
	BackoffMax time.Duration

	// VisibilityTimeout is how long a dequeued message stays invisible
	// before the broker redelivers it. It doubles as the lease of a
	// running attempt.
	VisibilityTimeout time.Duration

	// FetchTimeout bounds a single strategy invocation. Must be shorter
	// than VisibilityTimeout.
	FetchTimeout time.Duration

	// DedupTTL keeps a fingerprint reserved for this long after its job
	// reaches a terminal state. Zero releases it immediately.
	DedupTTL time.Duration

	// DedupOrphanGrace is how long a reservation whose job row does not
	// exist yet is honoured before a new submission may take it over.
	DedupOrphanGrace time.Duration

	// PollInterval is how long an idle dequeue loop sleeps.
	PollInterval time.Duration

	// SweepInterval is how often the sweeper looks for stalled jobs.
	SweepInterval time.Duration

	// SweepBatch caps how many stalled jobs one sweep re-enqueues.
	SweepBatch int

	// ThrottleDelay is the redelivery delay for a job deferred by the
	// per-host throttle.
	ThrottleDelay time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight attempts
	// on shutdown.
	ShutdownTimeout time.Duration

	// InfraRetries is how many times a failed store or broker call is
	// retried before it surfaces as unavailable.
	InfraRetries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		MaxAttempts:       3,
		BackoffBase:       1 * time.Second,
		BackoffMax:        5 * time.Minute,
		VisibilityTimeout: 2 * time.Minute,
		FetchTimeout:      30 * time.Second,
		DedupTTL:          0,
		DedupOrphanGrace:  30 * time.Second,
		PollInterval:      500 * time.Millisecond,
		SweepInterval:     30 * time.Second,
		SweepBatch:        100,
		ThrottleDelay:     2 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		InfraRetries:      3,
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return fmt.Errorf("%w: backoff max must be >= backoff base > 0", ErrInvalidConfig)
	case c.VisibilityTimeout <= 0:
		return fmt.Errorf("%w: visibility timeout must be positive", ErrInvalidConfig)
	case c.FetchTimeout <= 0 || c.FetchTimeout >= c.VisibilityTimeout:
		return fmt.Errorf("%w: fetch timeout must be positive and shorter than the visibility timeout", ErrInvalidConfig)
	case c.DedupTTL < 0 || c.DedupOrphanGrace < 0:
		return fmt.Errorf("%w: dedup durations must not be negative", ErrInvalidConfig)
	case c.PollInterval <= 0 || c.SweepInterval <= 0:
		return fmt.Errorf("%w: poll and sweep intervals must be positive", ErrInvalidConfig)
	case c.InfraRetries < 0:
		return fmt.Errorf("%w: infra retries must not be negative", ErrInvalidConfig)
	}
	return nil
}
