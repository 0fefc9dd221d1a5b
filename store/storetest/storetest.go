// Package storetest is a conformance suite for store.Store backends.
// Every backend runs it from its own tests:
//
//	func TestConformance(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
//	}
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/schedule"
	"github.com/rahulsharmaah/content-scrapper/store"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Jobs", func(t *testing.T) { testJobs(t, newStore) })
	t.Run("UpdateJobIf", func(t *testing.T) { testUpdateJobIf(t, newStore) })
	t.Run("ListJobs", func(t *testing.T) { testListJobs(t, newStore) })
	t.Run("ListStaleJobs", func(t *testing.T) { testListStaleJobs(t, newStore) })
	t.Run("Fingerprints", func(t *testing.T) { testFingerprints(t, newStore) })
	t.Run("FingerprintCooldown", func(t *testing.T) { testFingerprintCooldown(t, newStore) })
	t.Run("ConcurrentReserve", func(t *testing.T) { testConcurrentReserve(t, newStore) })
	t.Run("Schedules", func(t *testing.T) { testSchedules(t, newStore) })
	t.Run("ScheduleAdvance", func(t *testing.T) { testScheduleAdvance(t, newStore) })
}

// now is truncated so every backend round-trips it exactly.
func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func newJob(strategy, target string) *job.Job {
	j := job.New("fp-"+id.NewJobID().String(), target, strategy, json.RawMessage(`{"depth":1}`), 3)
	t := now()
	j.CreatedAt, j.UpdatedAt, j.NextEligibleAt = t, t, t
	return j
}

func mustCreate(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

func testJobs(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	j := newJob("html", "https://example.com/a")
	mustCreate(t, s, j)

	if err := s.CreateJob(ctx, j); !errors.Is(err, scrapper.ErrJobAlreadyExists) {
		t.Errorf("duplicate CreateJob: %v, want ErrJobAlreadyExists", err)
	}
	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, scrapper.ErrJobNotFound) {
		t.Errorf("GetJob unknown: %v, want ErrJobNotFound", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != j.ID.String() || got.Fingerprint != j.Fingerprint || got.Target != j.Target {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.State != job.StatePending || got.Attempts != 0 || got.MaxAttempts != 3 {
		t.Errorf("state = %s attempts = %d/%d", got.State, got.Attempts, got.MaxAttempts)
	}
	if !got.CreatedAt.Equal(j.CreatedAt) || !got.NextEligibleAt.Equal(j.NextEligibleAt) {
		t.Errorf("timestamps: created %v want %v", got.CreatedAt, j.CreatedAt)
	}
	var params map[string]int
	if err := json.Unmarshal(got.Params, &params); err != nil || params["depth"] != 1 {
		t.Errorf("params = %s (%v)", got.Params, err)
	}
	if got.LastError != nil || got.Result != nil || !got.WorkerID.IsNil() || got.StartedAt != nil {
		t.Errorf("optional fields not empty: %+v", got)
	}

	if n, err := s.CountJobs(ctx, job.CountOpts{}); err != nil || n != 1 {
		t.Errorf("CountJobs = %d (%v)", n, err)
	}
}

func testUpdateJobIf(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	j := newJob("html", "https://example.com/u")
	mustCreate(t, s, j)

	started := now()
	next := j.Clone()
	next.State = job.StateRunning
	next.Attempts = 1
	next.WorkerID = id.NewWorkerID()
	next.StartedAt = &started
	next.UpdatedAt = started
	if err := s.UpdateJobIf(ctx, next, job.ExpectOf(j)); err != nil {
		t.Fatalf("UpdateJobIf claim: %v", err)
	}

	// The same precondition no longer holds.
	if err := s.UpdateJobIf(ctx, next, job.ExpectOf(j)); !errors.Is(err, scrapper.ErrStateConflict) {
		t.Errorf("stale UpdateJobIf: %v, want ErrStateConflict", err)
	}
	ghost := newJob("html", "https://example.com/ghost")
	if err := s.UpdateJobIf(ctx, ghost, job.ExpectOf(ghost)); !errors.Is(err, scrapper.ErrJobNotFound) {
		t.Errorf("UpdateJobIf unknown: %v, want ErrJobNotFound", err)
	}

	finished := now()
	done := next.Clone()
	done.State = job.StateFailed
	done.LastError = &job.Failure{Kind: job.KindNonRecoverable, Message: "http 404", At: finished}
	done.Result = json.RawMessage(`{"status_code":404}`)
	done.FinishedAt = &finished
	if err := s.UpdateJobIf(ctx, done, job.ExpectOf(next)); err != nil {
		t.Fatalf("UpdateJobIf fail: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed || got.Attempts != 1 {
		t.Errorf("state = %s attempts = %d", got.State, got.Attempts)
	}
	if got.WorkerID.String() != next.WorkerID.String() {
		t.Errorf("worker = %s, want %s", got.WorkerID, next.WorkerID)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) || got.FinishedAt == nil {
		t.Errorf("started/finished = %v/%v", got.StartedAt, got.FinishedAt)
	}
	if got.LastError == nil || got.LastError.Kind != job.KindNonRecoverable || got.LastError.Message != "http 404" {
		t.Errorf("last_error = %+v", got.LastError)
	}
	var res map[string]int
	if err := json.Unmarshal(got.Result, &res); err != nil || res["status_code"] != 404 {
		t.Errorf("result = %s (%v)", got.Result, err)
	}
}

func testListJobs(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	base := now()
	var ids []string
	for i, strategy := range []string{"html", "raw", "html", "html"} {
		j := newJob(strategy, fmt.Sprintf("https://example.com/%d", i))
		j.CreatedAt = base.Add(time.Duration(i) * time.Second)
		j.UpdatedAt = j.CreatedAt
		mustCreate(t, s, j)
		ids = append(ids, j.ID.String())
	}

	all, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil || len(all) != 4 {
		t.Fatalf("ListJobs = %d (%v)", len(all), err)
	}
	if all[0].ID.String() != ids[3] || all[3].ID.String() != ids[0] {
		t.Errorf("not newest first: %s ... %s", all[0].ID, all[3].ID)
	}

	html, err := s.ListJobs(ctx, job.ListOpts{Strategy: "html", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs filtered: %v", err)
	}
	if len(html) != 2 || html[0].ID.String() != ids[2] || html[1].ID.String() != ids[0] {
		t.Errorf("filtered page = %v", html)
	}

	none, err := s.ListJobs(ctx, job.ListOpts{State: job.StateDead})
	if err != nil || len(none) != 0 {
		t.Errorf("ListJobs dead = %d (%v)", len(none), err)
	}
	if n, _ := s.CountJobs(ctx, job.CountOpts{State: job.StatePending}); n != 4 {
		t.Errorf("CountJobs pending = %d", n)
	}
	if n, _ := s.CountJobs(ctx, job.CountOpts{State: job.StateRunning}); n != 0 {
		t.Errorf("CountJobs running = %d", n)
	}
}

func testListStaleJobs(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	cutoff := now()
	old := newJob("html", "https://example.com/old")
	old.UpdatedAt = cutoff.Add(-time.Hour)
	older := newJob("html", "https://example.com/older")
	older.UpdatedAt = cutoff.Add(-2 * time.Hour)
	fresh := newJob("html", "https://example.com/fresh")
	fresh.UpdatedAt = cutoff.Add(time.Minute)
	done := newJob("html", "https://example.com/done")
	done.State = job.StateSucceeded
	done.UpdatedAt = cutoff.Add(-3 * time.Hour)
	for _, j := range []*job.Job{old, older, fresh, done} {
		mustCreate(t, s, j)
	}

	stale, err := s.ListStaleJobs(ctx, job.ActiveStates, cutoff, 10)
	if err != nil {
		t.Fatalf("ListStaleJobs: %v", err)
	}
	if len(stale) != 2 || stale[0].ID.String() != older.ID.String() || stale[1].ID.String() != old.ID.String() {
		t.Errorf("stale = %v, want [older old]", stale)
	}

	limited, _ := s.ListStaleJobs(ctx, job.ActiveStates, cutoff, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: %d", len(limited))
	}
}

// ──────────────────────────────────────────────────
// Fingerprints
// ──────────────────────────────────────────────────

func entry(fp string) *dedup.Entry {
	return &dedup.Entry{Fingerprint: fp, JobID: id.NewJobID(), CreatedAt: now()}
}

func testFingerprints(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	first := entry("fp-1")
	held, err := s.ReserveFingerprint(ctx, first)
	if err != nil || held != nil {
		t.Fatalf("first reserve = %+v (%v)", held, err)
	}

	second := entry("fp-1")
	held, err = s.ReserveFingerprint(ctx, second)
	if err != nil || held == nil || held.JobID.String() != first.JobID.String() {
		t.Fatalf("second reserve = %+v (%v), want owner %s", held, err, first.JobID)
	}

	if ok, err := s.ReplaceFingerprint(ctx, id.NewJobID(), second); err != nil || ok {
		t.Errorf("replace with wrong previous = %v (%v)", ok, err)
	}
	if ok, err := s.ReplaceFingerprint(ctx, first.JobID, second); err != nil || !ok {
		t.Fatalf("replace = %v (%v)", ok, err)
	}

	// Releasing for a job that no longer owns the entry is a no-op.
	if err := s.ReleaseFingerprint(ctx, "fp-1", first.JobID, 0); err != nil {
		t.Fatalf("release non-owner: %v", err)
	}
	got, err := s.LookupFingerprint(ctx, "fp-1")
	if err != nil || got == nil || got.JobID.String() != second.JobID.String() || got.ExpiresAt != nil {
		t.Fatalf("lookup after replace = %+v (%v)", got, err)
	}

	if err := s.ReleaseFingerprint(ctx, "fp-1", second.JobID, 0); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got, err := s.LookupFingerprint(ctx, "fp-1"); err != nil || got != nil {
		t.Errorf("lookup after release = %+v (%v)", got, err)
	}
	if held, err := s.ReserveFingerprint(ctx, entry("fp-1")); err != nil || held != nil {
		t.Errorf("reserve after release = %+v (%v)", held, err)
	}
}

func testFingerprintCooldown(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	owner := entry("fp-cool")
	if _, err := s.ReserveFingerprint(ctx, owner); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := s.ReleaseFingerprint(ctx, "fp-cool", owner.JobID, time.Hour); err != nil {
		t.Fatalf("release with ttl: %v", err)
	}

	got, err := s.LookupFingerprint(ctx, "fp-cool")
	if err != nil || got == nil || got.ExpiresAt == nil {
		t.Fatalf("cooldown entry = %+v (%v)", got, err)
	}
	held, err := s.ReserveFingerprint(ctx, entry("fp-cool"))
	if err != nil || held == nil || held.JobID.String() != owner.JobID.String() {
		t.Errorf("reserve during cooldown = %+v (%v)", held, err)
	}

	short := entry("fp-short")
	if _, err := s.ReserveFingerprint(ctx, short); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := s.ReleaseFingerprint(ctx, "fp-short", short.JobID, 10*time.Millisecond); err != nil {
		t.Fatalf("release: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got, _ := s.LookupFingerprint(ctx, "fp-short"); got != nil {
		t.Errorf("expired entry still live: %+v", got)
	}
	if held, err := s.ReserveFingerprint(ctx, entry("fp-short")); err != nil || held != nil {
		t.Errorf("reserve over expired entry = %+v (%v)", held, err)
	}
}

func testConcurrentReserve(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	const n = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			held, err := s.ReserveFingerprint(ctx, entry("fp-race"))
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if held == nil {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if owners != 1 {
		t.Errorf("%d reservations won, want exactly 1", owners)
	}
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func newEntry(name string, next time.Time) *schedule.Entry {
	e := &schedule.Entry{
		Entity:    scrapper.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      name,
		Spec:      "@hourly",
		Target:    "https://example.com/" + name,
		Strategy:  "html",
		Params:    json.RawMessage(`{}`),
		Enabled:   true,
		NextRunAt: next,
	}
	e.CreatedAt, e.UpdatedAt = now(), now()
	return e
}

func testSchedules(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	b := newEntry("b-feed", now().Add(time.Hour))
	a := newEntry("a-feed", now().Add(-time.Minute))
	for _, e := range []*schedule.Entry{b, a} {
		if err := s.CreateSchedule(ctx, e); err != nil {
			t.Fatalf("CreateSchedule %s: %v", e.Name, err)
		}
	}
	if err := s.CreateSchedule(ctx, newEntry("a-feed", now())); !errors.Is(err, scrapper.ErrDuplicateSchedule) {
		t.Errorf("duplicate name: %v, want ErrDuplicateSchedule", err)
	}
	if _, err := s.GetSchedule(ctx, id.NewScheduleID()); !errors.Is(err, scrapper.ErrScheduleNotFound) {
		t.Errorf("GetSchedule unknown: %v", err)
	}

	list, err := s.ListSchedules(ctx)
	if err != nil || len(list) != 2 || list[0].Name != "a-feed" {
		t.Fatalf("ListSchedules = %v (%v)", list, err)
	}

	due, err := s.ListDueSchedules(ctx, now())
	if err != nil || len(due) != 1 || due[0].ID.String() != a.ID.String() {
		t.Fatalf("ListDueSchedules = %v (%v)", due, err)
	}

	a.Enabled = false
	a.UpdatedAt = now()
	if err := s.UpdateSchedule(ctx, a); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if due, _ := s.ListDueSchedules(ctx, now()); len(due) != 0 {
		t.Errorf("paused entry still due: %v", due)
	}
	got, err := s.GetSchedule(ctx, a.ID)
	if err != nil || got.Enabled || got.Spec != "@hourly" || got.Target != a.Target {
		t.Errorf("GetSchedule = %+v (%v)", got, err)
	}

	if err := s.DeleteSchedule(ctx, b.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if err := s.DeleteSchedule(ctx, b.ID); !errors.Is(err, scrapper.ErrScheduleNotFound) {
		t.Errorf("second delete: %v", err)
	}
	ghost := newEntry("ghost", now())
	if err := s.UpdateSchedule(ctx, ghost); !errors.Is(err, scrapper.ErrScheduleNotFound) {
		t.Errorf("update unknown: %v", err)
	}
}

func testScheduleAdvance(t *testing.T, newStore Factory) {
	s := newStore(t)
	ctx := context.Background()

	slot := now().Add(-time.Second)
	e := newEntry("nightly", slot)
	if err := s.CreateSchedule(ctx, e); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	fired := now()
	next := slot.Add(time.Hour)
	won, err := s.AdvanceSchedule(ctx, e.ID, slot, next, fired)
	if err != nil || !won {
		t.Fatalf("first advance = %v (%v)", won, err)
	}
	won, err = s.AdvanceSchedule(ctx, e.ID, slot, next, fired)
	if err != nil || won {
		t.Errorf("second advance of the same slot = %v (%v)", won, err)
	}
	if _, err := s.AdvanceSchedule(ctx, id.NewScheduleID(), slot, next, fired); !errors.Is(err, scrapper.ErrScheduleNotFound) {
		t.Errorf("advance unknown: %v", err)
	}

	jobID := id.NewJobID()
	if err := s.RecordScheduleJob(ctx, e.ID, jobID); err != nil {
		t.Fatalf("RecordScheduleJob: %v", err)
	}

	got, err := s.GetSchedule(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if !got.NextRunAt.Equal(next) || got.LastRunAt == nil || !got.LastRunAt.Equal(fired) {
		t.Errorf("next/last = %v/%v", got.NextRunAt, got.LastRunAt)
	}
	if got.LastJobID.String() != jobID.String() {
		t.Errorf("last job = %s, want %s", got.LastJobID, jobID)
	}
}
