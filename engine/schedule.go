package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// ScheduleRequest registers a recurring scrape.
type ScheduleRequest struct {
	Name string `json:"name" validate:"required,max=128"`
	// Spec is a 5-field cron expression or a descriptor such as "@daily"
	// or "@every 6h".
	Spec     string          `json:"spec" validate:"required"`
	Target   string          `json:"target" validate:"required,http_url,max=2048"`
	Strategy string          `json:"strategy" validate:"required,max=64"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// CreateSchedule validates and persists a recurring scrape. Names are
// unique.
func (e *Engine) CreateSchedule(ctx context.Context, req ScheduleRequest) (*schedule.Entry, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	_, target, params, err := e.check(Request{Target: req.Target, Strategy: req.Strategy, Params: req.Params})
	if err != nil {
		return nil, err
	}
	next, err := schedule.NextAfter(req.Spec, time.Now().UTC())
	if err != nil {
		return nil, &scrapper.ValidationError{Field: "spec", Reason: err.Error()}
	}

	entry := &schedule.Entry{
		Entity:    scrapper.NewEntity(),
		ID:        id.NewScheduleID(),
		Name:      req.Name,
		Spec:      req.Spec,
		Target:    target,
		Strategy:  req.Strategy,
		Params:    params,
		Enabled:   true,
		NextRunAt: next,
	}
	if err := e.store.CreateSchedule(ctx, entry); err != nil {
		return nil, fmt.Errorf("create schedule %q: %w", req.Name, err)
	}

	e.logger.Info("schedule created",
		slog.String("schedule", entry.Name),
		slog.String("spec", entry.Spec),
		slog.Time("next_run_at", next),
	)
	return entry, nil
}

// GetSchedule returns one schedule entry.
func (e *Engine) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	return e.store.GetSchedule(ctx, scheduleID)
}

// ListSchedules returns every schedule entry ordered by name.
func (e *Engine) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	return e.store.ListSchedules(ctx)
}

// PauseSchedule stops an entry from firing.
func (e *Engine) PauseSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	return e.setEnabled(ctx, scheduleID, false)
}

// ResumeSchedule re-enables an entry. Slots missed while paused are
// skipped; the next fire is computed from now.
func (e *Engine) ResumeSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	return e.setEnabled(ctx, scheduleID, true)
}

// DeleteSchedule removes an entry. Jobs it already submitted are kept.
func (e *Engine) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return e.store.DeleteSchedule(ctx, scheduleID)
}

func (e *Engine) setEnabled(ctx context.Context, scheduleID id.ScheduleID, enabled bool) (*schedule.Entry, error) {
	entry, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if entry.Enabled == enabled {
		return entry, nil
	}

	entry.Enabled = enabled
	entry.UpdatedAt = time.Now().UTC()
	if enabled {
		next, err := schedule.NextAfter(entry.Spec, entry.UpdatedAt)
		if err != nil {
			return nil, err
		}
		entry.NextRunAt = next
	}
	if err := e.store.UpdateSchedule(ctx, entry); err != nil {
		return nil, err
	}

	e.logger.Info("schedule updated",
		slog.String("schedule", entry.Name),
		slog.Bool("enabled", enabled),
	)
	return entry, nil
}

// submitScheduled is the scheduler's SubmitFunc.
func (e *Engine) submitScheduled(ctx context.Context, target, strategyName string, params json.RawMessage) (id.JobID, bool, error) {
	sub, err := e.SubmitJob(ctx, Request{Target: target, Strategy: strategyName, Params: params})
	if err != nil {
		return id.Nil, false, err
	}
	return sub.ID, sub.Deduplicated, nil
}
