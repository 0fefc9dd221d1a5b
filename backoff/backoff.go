// Package backoff provides retry delay curves. All strategies are safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed)
	// before attempt n+1 becomes eligible.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt.
// Delay = min(Base * 2^(attempt-1), Max).
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(base, maxDelay time.Duration) *Exponential {
	return &Exponential{Base: base, Max: maxDelay}
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capAt(raw(e.Base, attempt), e.Max)
}

// ──────────────────────────────────────────────────
// EqualJitter
// ──────────────────────────────────────────────────

// EqualJitter spreads retries of the same attempt over the upper half of
// the exponential step: a random value in [d/2, d] with
// d = Base * 2^(attempt-1), then capped at Max. Consecutive steps do not
// overlap, so delays never shrink from one attempt to the next.
type EqualJitter struct {
	Base time.Duration
	Max  time.Duration
}

// NewEqualJitter creates an exponential backoff with equal jitter.
func NewEqualJitter(base, maxDelay time.Duration) *EqualJitter {
	return &EqualJitter{Base: base, Max: maxDelay}
}

// Delay returns a random duration in [d/2, d], capped at Max.
func (e *EqualJitter) Delay(attempt int) time.Duration {
	d := raw(e.Base, attempt)
	half := d / 2
	jittered := half + time.Duration(rand.Int64N(int64(d-half)+1)) //nolint:gosec // jitter intentionally uses non-crypto rand
	return capAt(jittered, e.Max)
}

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the curve used when none is configured:
// EqualJitter with 1s base and 5m max.
func DefaultStrategy() Strategy {
	return NewEqualJitter(1*time.Second, 5*time.Minute)
}

// raw computes base * 2^(attempt-1) without overflowing.
func raw(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(base) * math.Pow(2, float64(attempt-1))
	if f >= math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return time.Duration(f)
}

func capAt(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}
