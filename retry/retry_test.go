package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/rahulsharmaah/content-scrapper/backoff"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/retry"
	"github.com/rahulsharmaah/content-scrapper/store/memory"
)

func failedJob(attempts, maxAttempts int, kind job.FailureKind) *job.Job {
	j := job.New("fp", "https://example.com/", "html", nil, maxAttempts)
	j.State = job.StateFailed
	j.Attempts = attempts
	j.LastError = &job.Failure{Kind: kind, Message: "boom"}
	return j
}

func TestDecide(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := retry.NewController(backoff.NewExponential(time.Second, time.Minute), retry.WithClock(func() time.Time { return now }))

	tests := []struct {
		name       string
		attempts   int
		max        int
		kind       job.FailureKind
		wantAction retry.Action
		wantDelay  time.Duration
	}{
		{"first recoverable", 1, 3, job.KindRecoverable, retry.ActionRetry, time.Second},
		{"second recoverable", 2, 3, job.KindRecoverable, retry.ActionRetry, 2 * time.Second},
		{"budget exhausted", 3, 3, job.KindRecoverable, retry.ActionDead, 0},
		{"non-recoverable first attempt", 1, 3, job.KindNonRecoverable, retry.ActionDead, 0},
		{"single attempt budget", 1, 1, job.KindRecoverable, retry.ActionDead, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Decide(failedJob(tt.attempts, tt.max, tt.kind))
			if d.Action != tt.wantAction {
				t.Fatalf("action = %q, want %q", d.Action, tt.wantAction)
			}
			if d.Delay != tt.wantDelay {
				t.Errorf("delay = %v, want %v", d.Delay, tt.wantDelay)
			}
			if d.Action == retry.ActionRetry && !d.NextEligibleAt.Equal(now.Add(tt.wantDelay)) {
				t.Errorf("next eligible = %v", d.NextEligibleAt)
			}
		})
	}
}

func TestApplyPersists(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	c := retry.NewController(backoff.NewConstant(time.Minute))

	retryable := failedJob(1, 3, job.KindRecoverable)
	_ = s.CreateJob(ctx, retryable)
	next, d, err := c.Apply(ctx, s, retryable)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if d.Action != retry.ActionRetry || next.State != job.StateRetryScheduled {
		t.Fatalf("got %s / %s", d.Action, next.State)
	}
	stored, _ := s.GetJob(ctx, retryable.ID)
	if stored.State != job.StateRetryScheduled || !stored.NextEligibleAt.Equal(d.NextEligibleAt) {
		t.Fatalf("stored %+v", stored)
	}

	fatal := failedJob(1, 3, job.KindNonRecoverable)
	_ = s.CreateJob(ctx, fatal)
	next, _, err = c.Apply(ctx, s, fatal)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.State != job.StateDead || next.FinishedAt == nil {
		t.Fatalf("expected dead with finish time, got %+v", next)
	}
	if next.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", next.Attempts)
	}
}
