package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/store/memory"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to job.State
		want     bool
	}{
		{job.StatePending, job.StateRunning, true},
		{job.StateRunning, job.StateSucceeded, true},
		{job.StateRunning, job.StateFailed, true},
		{job.StateRunning, job.StateRunning, true},
		{job.StateFailed, job.StateRetryScheduled, true},
		{job.StateFailed, job.StateDead, true},
		{job.StateRetryScheduled, job.StatePending, true},
		{job.StatePending, job.StateDead, true},
		{job.StatePending, job.StateSucceeded, false},
		{job.StateRetryScheduled, job.StateRunning, false},
		{job.StateFailed, job.StateRunning, false},
		{job.StateSucceeded, job.StatePending, false},
		{job.StateSucceeded, job.StateDead, false},
		{job.StateDead, job.StatePending, false},
		{job.StateDead, job.StateRunning, false},
	}
	for _, tt := range tests {
		if got := job.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range job.States {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range job.States {
			if job.CanTransition(from, to) {
				t.Errorf("terminal state %s can move to %s", from, to)
			}
		}
	}
}

func TestClone(t *testing.T) {
	j := job.New("fp", "https://example.com/", "html", json.RawMessage(`{"a":1}`), 3)
	j.LastError = &job.Failure{Kind: job.KindRecoverable, Message: "boom"}

	cp := j.Clone()
	cp.Params[0] = 'X'
	cp.LastError.Message = "changed"

	if string(j.Params) != `{"a":1}` {
		t.Errorf("params aliased: %s", j.Params)
	}
	if j.LastError.Message != "boom" {
		t.Errorf("last error aliased: %s", j.LastError.Message)
	}
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := job.New("fp", "https://example.com/", "html", nil, 2)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatal(err)
	}

	running, err := job.Transition(ctx, s, j, job.StateRunning, func(n *job.Job) { n.Attempts++ })
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if running.Attempts != 1 || j.State != job.StatePending {
		t.Fatalf("unexpected result: running=%+v original=%s", running, j.State)
	}

	// A writer holding the pending snapshot loses.
	if _, err := job.Transition(ctx, s, j, job.StateRunning, nil); !errors.Is(err, scrapper.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}

	// Invalid edge.
	if _, err := job.Transition(ctx, s, running, job.StatePending, nil); !errors.Is(err, scrapper.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	// Budget is enforced.
	if _, err := job.Transition(ctx, s, running, job.StateRunning, func(n *job.Job) { n.Attempts += 5 }); !errors.Is(err, scrapper.ErrInvalidTransition) {
		t.Fatalf("expected budget violation, got %v", err)
	}

	done, err := job.Transition(ctx, s, running, job.StateSucceeded, nil)
	if err != nil {
		t.Fatalf("succeed: %v", err)
	}
	if _, err := job.Transition(ctx, s, done, job.StateDead, nil); !errors.Is(err, scrapper.ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal, got %v", err)
	}
}

func TestTransitionSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := job.New("fp", "https://example.com/", "html", nil, 3)
	_ = s.CreateJob(ctx, j)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := job.Transition(ctx, s, j, job.StateRunning, func(n *job.Job) { n.Attempts++ }); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one claim, got %d", wins)
	}
}
