// Package memory provides an in-memory implementation of every store
// contract. Safe for concurrent access. Intended for unit testing and
// single-process development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/schedule"
	"github.com/rahulsharmaah/content-scrapper/store"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs      map[string]*job.Job
	dedup     map[string]*dedup.Entry
	schedules map[string]*schedule.Entry

	now func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.Job),
		dedup:     make(map[string]*dedup.Entry),
		schedules: make(map[string]*schedule.Entry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return scrapper.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, scrapper.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJobIf replaces the job if the stored row still matches expect.
func (m *Store) UpdateJobIf(_ context.Context, j *job.Job, expect job.Expect) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	cur, ok := m.jobs[key]
	if !ok {
		return scrapper.ErrJobNotFound
	}
	if cur.State != expect.State || cur.Attempts != expect.Attempts {
		return scrapper.ErrStateConflict
	}
	m.jobs[key] = j.Clone()
	return nil
}

// ListJobs returns jobs newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Strategy != "" && j.Strategy != opts.Strategy {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].CreatedAt.Equal(result[k].CreatedAt) {
			return result[i].ID.String() > result[k].ID.String()
		}
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ListStaleJobs returns jobs in states not updated since before, oldest
// first.
func (m *Store) ListStaleJobs(_ context.Context, states []job.State, before time.Time, limit int) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stale []*job.Job
	for _, j := range m.jobs {
		if !slices.Contains(states, j.State) || !j.UpdatedAt.Before(before) {
			continue
		}
		stale = append(stale, j.Clone())
	}

	sort.Slice(stale, func(i, k int) bool {
		return stale[i].UpdatedAt.Before(stale[k].UpdatedAt)
	})

	return paginate(stale, 0, limit), nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Dedup Index
// ──────────────────────────────────────────────────

// ReserveFingerprint inserts e unless a live entry exists.
func (m *Store) ReserveFingerprint(_ context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.dedup[e.Fingerprint]; ok && cur.Live(m.now()) {
		cp := *cur
		return &cp, nil
	}
	cp := *e
	m.dedup[e.Fingerprint] = &cp
	return nil, nil
}

// ReplaceFingerprint swaps the owner if it is still previous.
func (m *Store) ReplaceFingerprint(_ context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.dedup[e.Fingerprint]
	if !ok || cur.JobID.String() != previous.String() {
		return false, nil
	}
	cp := *e
	m.dedup[e.Fingerprint] = &cp
	return true, nil
}

// ReleaseFingerprint ends jobID's ownership.
func (m *Store) ReleaseFingerprint(_ context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.dedup[fingerprint]
	if !ok || cur.JobID.String() != jobID.String() {
		return nil
	}
	if ttl <= 0 {
		delete(m.dedup, fingerprint)
		return nil
	}
	exp := m.now().Add(ttl)
	cur.ExpiresAt = &exp
	return nil
}

// LookupFingerprint returns the live entry, or nil.
func (m *Store) LookupFingerprint(_ context.Context, fingerprint string) (*dedup.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur, ok := m.dedup[fingerprint]
	if !ok || !cur.Live(m.now()) {
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// CreateSchedule persists a new entry.
func (m *Store) CreateSchedule(_ context.Context, e *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.schedules {
		if existing.Name == e.Name {
			return scrapper.ErrDuplicateSchedule
		}
	}
	if _, exists := m.schedules[e.ID.String()]; exists {
		return scrapper.ErrDuplicateSchedule
	}
	m.schedules[e.ID.String()] = e.Clone()
	return nil
}

// GetSchedule retrieves an entry by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, scrapper.ErrScheduleNotFound
	}
	return e.Clone(), nil
}

// UpdateSchedule replaces an existing entry.
func (m *Store) UpdateSchedule(_ context.Context, e *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return scrapper.ErrScheduleNotFound
	}
	cp := e.Clone()
	cp.UpdatedAt = m.now()
	m.schedules[key] = cp
	return nil
}

// DeleteSchedule removes an entry.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return scrapper.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// ListSchedules returns all entries ordered by name.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Entry, 0, len(m.schedules))
	for _, e := range m.schedules {
		result = append(result, e.Clone())
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })
	return result, nil
}

// ListDueSchedules returns enabled entries due at now.
func (m *Store) ListDueSchedules(_ context.Context, now time.Time) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*schedule.Entry
	for _, e := range m.schedules {
		if e.Enabled && !e.NextRunAt.After(now) {
			due = append(due, e.Clone())
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].NextRunAt.Before(due[k].NextRunAt) })
	return due, nil
}

// AdvanceSchedule claims a fire slot.
func (m *Store) AdvanceSchedule(_ context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[scheduleID.String()]
	if !ok {
		return false, scrapper.ErrScheduleNotFound
	}
	if !e.NextRunAt.Equal(expected) {
		return false, nil
	}
	e.NextRunAt = next
	fired := firedAt
	e.LastRunAt = &fired
	e.UpdatedAt = m.now()
	return true, nil
}

// RecordScheduleJob stores the job produced by the latest fire.
func (m *Store) RecordScheduleJob(_ context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.schedules[scheduleID.String()]
	if !ok {
		return scrapper.ErrScheduleNotFound
	}
	e.LastJobID = jobID
	return nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
