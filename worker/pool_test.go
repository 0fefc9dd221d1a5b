package worker_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/strategy"
	"github.com/rahulsharmaah/content-scrapper/worker"
)

func newTestPool(h *harness, opts ...worker.PoolOption) *worker.Pool {
	all := append([]worker.PoolOption{
		worker.WithPoolConcurrency(4),
		worker.WithPollInterval(5 * time.Millisecond),
		worker.WithPoolLogger(slog.Default()),
	}, opts...)
	return worker.NewPool(h.store, h.broker, h.exec, all...)
}

func waitForState(t *testing.T, h *harness, j *job.Job, want job.State) *job.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		got := h.get(t, j)
		if got.State == want {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s, job is %s", want, got.State)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestPool_StartStop(t *testing.T) {
	h := newHarness(t, time.Minute, succeed)
	pool := newTestPool(h)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("unexpected double-stop error: %v", err)
	}
}

func TestPool_RestartProcessesJobs(t *testing.T) {
	h := newHarness(t, time.Minute, succeed)
	pool := newTestPool(h)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("stop error: %v", err)
	}

	j := h.submit(t, 3)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	defer func() { _ = pool.Stop(context.Background()) }()

	waitForState(t, h, j, job.StateSucceeded)
}

func TestPool_ProcessesJobs(t *testing.T) {
	h := newHarness(t, time.Minute, succeed)
	pool := newTestPool(h)

	jobs := make([]*job.Job, 0, 10)
	for i := range 10 {
		j := job.New("fp-"+string(rune('a'+i)), "https://example.com/", "test", nil, 3)
		jobs = append(jobs, h.plant(t, j))
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer func() { _ = pool.Stop(context.Background()) }()

	for _, j := range jobs {
		got := waitForState(t, h, j, job.StateSucceeded)
		if got.Attempts != 1 {
			t.Errorf("job %s attempts = %d", j.ID, got.Attempts)
		}
	}
	if h.calls.Load() != 10 {
		t.Errorf("strategy calls = %d, want 10", h.calls.Load())
	}
}

func TestPool_StopCancelsAfterDeadline(t *testing.T) {
	var cancelled atomic.Bool
	started := make(chan struct{}, 1)
	h := newHarness(t, time.Minute, func(ctx context.Context) (*strategy.Result, error) {
		started <- struct{}{}
		<-ctx.Done()
		cancelled.Store(true)
		return nil, ctx.Err()
	})
	pool := newTestPool(h, worker.WithPoolConcurrency(1))
	h.submit(t, 3)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if !cancelled.Load() {
		t.Error("in-flight attempt was not cancelled")
	}
}

func TestPool_SweepReenqueuesLostJobs(t *testing.T) {
	h := newHarness(t, time.Minute, succeed)
	pool := newTestPool(h, worker.WithSweeper(time.Hour, time.Minute, 10))
	ctx := context.Background()

	// A pending job whose enqueue never happened.
	lost := job.New("fp-lost", "https://example.com/", "test", nil, 3)
	lost.UpdatedAt = time.Now().Add(-time.Hour)
	if err := h.store.CreateJob(ctx, lost); err != nil {
		t.Fatal(err)
	}

	// A recent pending job is left alone.
	fresh := job.New("fp-fresh", "https://example.com/", "test", nil, 3)
	if err := h.store.CreateJob(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	// A retry that is not due yet is left alone.
	waiting := job.New("fp-wait", "https://example.com/", "test", nil, 3)
	waiting.State = job.StateRetryScheduled
	waiting.Attempts = 1
	waiting.UpdatedAt = time.Now().Add(-time.Hour)
	waiting.NextEligibleAt = time.Now().Add(time.Hour)
	if err := h.store.CreateJob(ctx, waiting); err != nil {
		t.Fatal(err)
	}

	// Terminal jobs are never swept.
	done := job.New("fp-done", "https://example.com/", "test", nil, 3)
	done.State = job.StateSucceeded
	done.UpdatedAt = time.Now().Add(-time.Hour)
	if err := h.store.CreateJob(ctx, done); err != nil {
		t.Fatal(err)
	}

	if n := pool.Sweep(ctx); n != 1 {
		t.Fatalf("swept %d jobs, want 1", n)
	}
	d, err := h.broker.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if d.JobID.String() != lost.ID.String() {
		t.Errorf("swept %s, want %s", d.JobID, lost.ID)
	}
}

func TestPool_DuplicateMessagesRunOnce(t *testing.T) {
	h := newHarness(t, time.Minute, succeed)
	pool := newTestPool(h, worker.WithPoolConcurrency(1))
	j := h.submit(t, 3)
	for range 3 {
		if err := h.broker.Enqueue(context.Background(), j.ID, 0); err != nil {
			t.Fatal(err)
		}
	}

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	defer func() { _ = pool.Stop(context.Background()) }()

	got := waitForState(t, h, j, job.StateSucceeded)
	deadline := time.After(5 * time.Second)
	for h.queued(t) > 0 {
		select {
		case <-deadline:
			t.Fatalf("duplicates not drained: %d left", h.queued(t))
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if got.Attempts != 1 || h.calls.Load() != 1 {
		t.Errorf("attempts = %d calls = %d, want 1/1", got.Attempts, h.calls.Load())
	}
}
