package resilience

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/queue"
	"github.com/rahulsharmaah/content-scrapper/schedule"
	"github.com/rahulsharmaah/content-scrapper/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ queue.Broker = (*Broker)(nil)
	_ dedup.Index  = (*Index)(nil)
)

// ──────────────────────────────────────────────────
// Store
// ──────────────────────────────────────────────────

// Store guards every call to a store.Store.
type Store struct {
	inner store.Store
	guard *Guard
}

// WrapStore guards s with g.
func WrapStore(s store.Store, g *Guard) *Store { return &Store{inner: s, guard: g} }

// Unwrap returns the guarded store.
func (s *Store) Unwrap() store.Store { return s.inner }

func (s *Store) Migrate(ctx context.Context) error {
	return s.guard.Do(ctx, "migrate", s.inner.Migrate)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.guard.Do(ctx, "ping", s.inner.Ping)
}

func (s *Store) Close() error { return s.inner.Close() }

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	return s.guard.Do(ctx, "create job", func(ctx context.Context) error { return s.inner.CreateJob(ctx, j) })
}

func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return call(ctx, s.guard, "get job", func(ctx context.Context) (*job.Job, error) { return s.inner.GetJob(ctx, jobID) })
}

func (s *Store) UpdateJobIf(ctx context.Context, j *job.Job, expect job.Expect) error {
	return s.guard.Do(ctx, "update job", func(ctx context.Context) error { return s.inner.UpdateJobIf(ctx, j, expect) })
}

func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return call(ctx, s.guard, "list jobs", func(ctx context.Context) ([]*job.Job, error) { return s.inner.ListJobs(ctx, opts) })
}

func (s *Store) ListStaleJobs(ctx context.Context, states []job.State, before time.Time, limit int) ([]*job.Job, error) {
	return call(ctx, s.guard, "list stale jobs", func(ctx context.Context) ([]*job.Job, error) {
		return s.inner.ListStaleJobs(ctx, states, before, limit)
	})
}

func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	return call(ctx, s.guard, "count jobs", func(ctx context.Context) (int64, error) { return s.inner.CountJobs(ctx, opts) })
}

func (s *Store) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	return call(ctx, s.guard, "reserve fingerprint", func(ctx context.Context) (*dedup.Entry, error) {
		return s.inner.ReserveFingerprint(ctx, e)
	})
}

func (s *Store) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	return call(ctx, s.guard, "replace fingerprint", func(ctx context.Context) (bool, error) {
		return s.inner.ReplaceFingerprint(ctx, previous, e)
	})
}

func (s *Store) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	return s.guard.Do(ctx, "release fingerprint", func(ctx context.Context) error {
		return s.inner.ReleaseFingerprint(ctx, fingerprint, jobID, ttl)
	})
}

func (s *Store) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	return call(ctx, s.guard, "lookup fingerprint", func(ctx context.Context) (*dedup.Entry, error) {
		return s.inner.LookupFingerprint(ctx, fingerprint)
	})
}

func (s *Store) CreateSchedule(ctx context.Context, e *schedule.Entry) error {
	return s.guard.Do(ctx, "create schedule", func(ctx context.Context) error { return s.inner.CreateSchedule(ctx, e) })
}

func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	return call(ctx, s.guard, "get schedule", func(ctx context.Context) (*schedule.Entry, error) {
		return s.inner.GetSchedule(ctx, scheduleID)
	})
}

func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	return s.guard.Do(ctx, "update schedule", func(ctx context.Context) error { return s.inner.UpdateSchedule(ctx, e) })
}

func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return s.guard.Do(ctx, "delete schedule", func(ctx context.Context) error { return s.inner.DeleteSchedule(ctx, scheduleID) })
}

func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	return call(ctx, s.guard, "list schedules", s.inner.ListSchedules)
}

func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*schedule.Entry, error) {
	return call(ctx, s.guard, "list due schedules", func(ctx context.Context) ([]*schedule.Entry, error) {
		return s.inner.ListDueSchedules(ctx, now)
	})
}

func (s *Store) AdvanceSchedule(ctx context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error) {
	return call(ctx, s.guard, "advance schedule", func(ctx context.Context) (bool, error) {
		return s.inner.AdvanceSchedule(ctx, scheduleID, expected, next, firedAt)
	})
}

func (s *Store) RecordScheduleJob(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	return s.guard.Do(ctx, "record schedule job", func(ctx context.Context) error {
		return s.inner.RecordScheduleJob(ctx, scheduleID, jobID)
	})
}

// ──────────────────────────────────────────────────
// Index
// ──────────────────────────────────────────────────

// Index guards a standalone dedup.Index such as the Redis one.
type Index struct {
	inner dedup.Index
	guard *Guard
}

// WrapIndex guards idx with g.
func WrapIndex(idx dedup.Index, g *Guard) *Index { return &Index{inner: idx, guard: g} }

func (x *Index) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	return call(ctx, x.guard, "reserve fingerprint", func(ctx context.Context) (*dedup.Entry, error) {
		return x.inner.ReserveFingerprint(ctx, e)
	})
}

func (x *Index) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	return call(ctx, x.guard, "replace fingerprint", func(ctx context.Context) (bool, error) {
		return x.inner.ReplaceFingerprint(ctx, previous, e)
	})
}

func (x *Index) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	return x.guard.Do(ctx, "release fingerprint", func(ctx context.Context) error {
		return x.inner.ReleaseFingerprint(ctx, fingerprint, jobID, ttl)
	})
}

func (x *Index) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	return call(ctx, x.guard, "lookup fingerprint", func(ctx context.Context) (*dedup.Entry, error) {
		return x.inner.LookupFingerprint(ctx, fingerprint)
	})
}

// ──────────────────────────────────────────────────
// Broker
// ──────────────────────────────────────────────────

// Broker guards every call to a queue.Broker.
type Broker struct {
	inner queue.Broker
	guard *Guard
}

// WrapBroker guards b with g.
func WrapBroker(b queue.Broker, g *Guard) *Broker { return &Broker{inner: b, guard: g} }

func (b *Broker) Enqueue(ctx context.Context, jobID id.JobID, delay time.Duration) error {
	return b.guard.Do(ctx, "enqueue", func(ctx context.Context) error { return b.inner.Enqueue(ctx, jobID, delay) })
}

func (b *Broker) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	return call(ctx, b.guard, "dequeue", b.inner.Dequeue)
}

func (b *Broker) Ack(ctx context.Context, token string) error {
	return b.guard.Do(ctx, "ack", func(ctx context.Context) error { return b.inner.Ack(ctx, token) })
}

func (b *Broker) Nack(ctx context.Context, token string, delay time.Duration) error {
	return b.guard.Do(ctx, "nack", func(ctx context.Context) error { return b.inner.Nack(ctx, token, delay) })
}

// Len reports the depth of the wrapped broker, or zero when it cannot.
func (b *Broker) Len(ctx context.Context) (int64, error) {
	l, ok := b.inner.(queue.Lengther)
	if !ok {
		return 0, nil
	}
	return call(ctx, b.guard, "len", l.Len)
}
