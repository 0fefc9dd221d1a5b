package ext_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rahulsharmaah/content-scrapper/ext"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(name string) error {
	e.calls = append(e.calls, name)
	return nil
}

func (e *allHooksExt) OnJobSubmitted(context.Context, *job.Job) error {
	return e.record("OnJobSubmitted")
}

func (e *allHooksExt) OnJobDeduplicated(context.Context, string, id.JobID) error {
	return e.record("OnJobDeduplicated")
}

func (e *allHooksExt) OnJobStarted(context.Context, *job.Job) error {
	return e.record("OnJobStarted")
}

func (e *allHooksExt) OnJobSucceeded(context.Context, *job.Job, time.Duration) error {
	return e.record("OnJobSucceeded")
}

func (e *allHooksExt) OnJobFailed(context.Context, *job.Job, error) error {
	return e.record("OnJobFailed")
}

func (e *allHooksExt) OnJobRetryScheduled(context.Context, *job.Job, time.Time) error {
	return e.record("OnJobRetryScheduled")
}

func (e *allHooksExt) OnJobDead(context.Context, *job.Job) error {
	return e.record("OnJobDead")
}

func (e *allHooksExt) OnScheduleFired(context.Context, string, id.JobID) error {
	return e.record("OnScheduleFired")
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	return e.record("OnShutdown")
}

// deadOnlyExt implements a single hook and always fails.
type deadOnlyExt struct{ calls int }

func (e *deadOnlyExt) Name() string { return "dead-only" }

func (e *deadOnlyExt) OnJobDead(context.Context, *job.Job) error {
	e.calls++
	return errors.New("webhook down")
}

func TestRegistry_EmitsAllHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := job.New("fp", "https://example.com/", "html", nil, 3)

	r.EmitJobSubmitted(ctx, j)
	r.EmitJobDeduplicated(ctx, "fp", j.ID)
	r.EmitJobStarted(ctx, j)
	r.EmitJobSucceeded(ctx, j, time.Second)
	r.EmitJobFailed(ctx, j, errors.New("boom"))
	r.EmitJobRetryScheduled(ctx, j, time.Now())
	r.EmitJobDead(ctx, j)
	r.EmitScheduleFired(ctx, "daily", j.ID)
	r.EmitShutdown(ctx)

	want := []string{
		"OnJobSubmitted", "OnJobDeduplicated", "OnJobStarted", "OnJobSucceeded",
		"OnJobFailed", "OnJobRetryScheduled", "OnJobDead", "OnScheduleFired", "OnShutdown",
	}
	if len(all.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", all.calls, want)
	}
	for i := range want {
		if all.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, all.calls[i], want[i])
		}
	}
}

func TestRegistry_OnlyImplementedHooks(t *testing.T) {
	var buf bytes.Buffer
	r := ext.NewRegistry(slog.New(slog.NewTextHandler(&buf, nil)))
	dead := &deadOnlyExt{}
	r.Register(dead)

	ctx := context.Background()
	j := job.New("fp", "https://example.com/", "html", nil, 3)
	r.EmitJobSubmitted(ctx, j)
	r.EmitJobDead(ctx, j)

	if dead.calls != 1 {
		t.Fatalf("OnJobDead called %d times", dead.calls)
	}
	if !strings.Contains(buf.String(), "extension hook error") || !strings.Contains(buf.String(), "dead-only") {
		t.Errorf("hook error not logged: %s", buf.String())
	}
	if len(r.Extensions()) != 1 {
		t.Errorf("Extensions() = %d", len(r.Extensions()))
	}
}
