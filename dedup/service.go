package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// maxAcquireRounds bounds takeover races on a single fingerprint.
const maxAcquireRounds = 5

// JobReader is the slice of job.Store the service needs.
type JobReader interface {
	GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error)
}

// Option configures a Service.
type Option func(*Service)

// WithTTL keeps released fingerprints reserved for d.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithOrphanGrace sets how long a reservation without a job row is honoured.
func WithOrphanGrace(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service applies the ownership rules of the idempotency index.
type Service struct {
	index  Index
	jobs   JobReader
	ttl    time.Duration
	grace  time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service over index, resolving owners through jobs.
func NewService(index Index, jobs JobReader, opts ...Option) *Service {
	s := &Service{
		index:  index,
		jobs:   jobs,
		grace:  30 * time.Second,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire reserves fingerprint for candidate. When another job already
// owns the fingerprint it returns that job's ID and existing=true, and the
// caller must not create candidate.
func (s *Service) Acquire(ctx context.Context, fingerprint string, candidate id.JobID) (owner id.JobID, existing bool, err error) {
	for range maxAcquireRounds {
		now := s.now()
		e := &Entry{Fingerprint: fingerprint, JobID: candidate, CreatedAt: now}

		held, err := s.index.ReserveFingerprint(ctx, e)
		if err != nil {
			return id.Nil, false, fmt.Errorf("dedup: reserve: %w", err)
		}
		if held == nil || held.JobID.String() == candidate.String() {
			return candidate, false, nil
		}

		keep, err := s.ownerHolds(ctx, held, now)
		if err != nil {
			return id.Nil, false, err
		}
		if keep {
			return held.JobID, true, nil
		}

		swapped, err := s.index.ReplaceFingerprint(ctx, held.JobID, e)
		if err != nil {
			return id.Nil, false, fmt.Errorf("dedup: replace: %w", err)
		}
		if swapped {
			s.logger.Debug("took over stale fingerprint",
				slog.String("fingerprint", fingerprint),
				slog.String("previous_job_id", held.JobID.String()),
				slog.String("job_id", candidate.String()),
			)
			return candidate, false, nil
		}
	}
	return id.Nil, false, fmt.Errorf("dedup: acquire %s: %w", fingerprint, scrapper.ErrStateConflict)
}

// ownerHolds decides whether a live entry still belongs to its job.
func (s *Service) ownerHolds(ctx context.Context, held *Entry, now time.Time) (bool, error) {
	if held.ExpiresAt != nil {
		return true, nil
	}

	j, err := s.jobs.GetJob(ctx, held.JobID)
	switch {
	case errors.Is(err, scrapper.ErrJobNotFound):
		// The owner may still be between reservation and persist.
		return now.Sub(held.CreatedAt) < s.grace, nil
	case err != nil:
		return false, fmt.Errorf("dedup: load owner %s: %w", held.JobID, err)
	case !j.State.IsTerminal():
		return true, nil
	case s.ttl > 0 && j.FinishedAt != nil && j.FinishedAt.Add(s.ttl).After(now):
		return true, nil
	}
	return false, nil
}

// Release ends jobID's ownership of fingerprint after the job reached a
// terminal state, honouring the configured cooldown.
func (s *Service) Release(ctx context.Context, fingerprint string, jobID id.JobID) error {
	if err := s.index.ReleaseFingerprint(ctx, fingerprint, jobID, s.ttl); err != nil {
		return fmt.Errorf("dedup: release: %w", err)
	}
	return nil
}

// Abandon drops a reservation whose job was never persisted.
func (s *Service) Abandon(ctx context.Context, fingerprint string, jobID id.JobID) error {
	if err := s.index.ReleaseFingerprint(ctx, fingerprint, jobID, 0); err != nil {
		return fmt.Errorf("dedup: abandon: %w", err)
	}
	return nil
}

// Lookup returns the live entry for fingerprint, or nil.
func (s *Service) Lookup(ctx context.Context, fingerprint string) (*Entry, error) {
	return s.index.LookupFingerprint(ctx, fingerprint)
}
