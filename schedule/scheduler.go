package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/rahulsharmaah/content-scrapper/id"
)

// SubmitFunc is how the scheduler hands a fire to the engine. It returns
// the owning job and whether an existing job was reused.
type SubmitFunc func(ctx context.Context, target, strategy string, params json.RawMessage) (id.JobID, bool, error)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, name string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithEmitter sets the lifecycle emitter.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// parser supports standard 5-field cron and descriptors like "@every 30s".
var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSpec parses a cron expression or descriptor.
func ParseSpec(spec string) (cronlib.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
	}
	return sched, nil
}

// NextAfter returns the first activation of spec strictly after t.
func NextAfter(spec string, t time.Time) (time.Time, error) {
	sched, err := ParseSpec(spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t).UTC(), nil
}

// Scheduler fires due entries on a tick loop.
type Scheduler struct {
	store   Store
	submit  SubmitFunc
	emitter Emitter
	logger  *slog.Logger

	tickInterval time.Duration

	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, submit SubmitFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:        store,
		submit:       submit,
		logger:       slog.Default(),
		tickInterval: 1 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine. A stopped Scheduler can be started
// again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop(context.WithoutCancel(ctx), s.stopCh)
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick fires every entry due at now and returns how many fires this
// instance won.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	entries, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		s.logger.Error("list due schedules", slog.String("error", err.Error()))
		return 0
	}

	fired := 0
	for _, e := range entries {
		if s.fire(ctx, e, now) {
			fired++
		}
	}
	return fired
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) bool {
	sched, err := s.getOrParse(e.Spec)
	if err != nil {
		s.logger.Error("parse schedule spec",
			slog.String("schedule", e.Name),
			slog.String("spec", e.Spec),
			slog.String("error", err.Error()),
		)
		return false
	}

	// Missed slots collapse into one fire.
	next := sched.Next(now).UTC()
	won, err := s.store.AdvanceSchedule(ctx, e.ID, e.NextRunAt, next, now)
	if err != nil {
		s.logger.Error("advance schedule",
			slog.String("schedule_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !won {
		return false
	}

	jobID, reused, err := s.submit(ctx, e.Target, e.Strategy, e.Params)
	if err != nil {
		s.logger.Error("scheduled submit",
			slog.String("schedule", e.Name),
			slog.String("target", e.Target),
			slog.String("error", err.Error()),
		)
		return true
	}

	if err := s.store.RecordScheduleJob(ctx, e.ID, jobID); err != nil {
		s.logger.Warn("record schedule job",
			slog.String("schedule_id", e.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, e.Name, jobID)
	}

	s.logger.Info("schedule fired",
		slog.String("schedule", e.Name),
		slog.String("job_id", jobID.String()),
		slog.Bool("deduplicated", reused),
		slog.Time("next_run_at", next),
	)
	return true
}

func (s *Scheduler) getOrParse(spec string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[spec]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[spec] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
