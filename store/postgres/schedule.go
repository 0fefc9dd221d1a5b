package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

const scheduleColumns = `
	id, name, spec, target, strategy, params, enabled,
	next_run_at, last_run_at, last_job_id, created_at, updated_at`

// CreateSchedule persists a new entry. Names are unique.
func (s *Store) CreateSchedule(ctx context.Context, e *schedule.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrapper_schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Name, e.Spec, e.Target, e.Strategy, jsonObject(e.Params), e.Enabled,
		e.NextRunAt, e.LastRunAt, e.LastJobID, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/postgres: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM scrapper_schedules WHERE id = $1`, scheduleID)

	e, err := scanSchedule(row)
	if err != nil {
		if isNoRows(err) {
			return nil, scrapper.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scrapper/postgres: get schedule: %w", err)
	}
	return e, nil
}

// UpdateSchedule replaces an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrapper_schedules SET
			name = $2, spec = $3, target = $4, strategy = $5, params = $6,
			enabled = $7, next_run_at = $8, last_run_at = $9, last_job_id = $10,
			updated_at = $11
		WHERE id = $1`,
		e.ID, e.Name, e.Spec, e.Target, e.Strategy, jsonObject(e.Params),
		e.Enabled, e.NextRunAt, e.LastRunAt, e.LastJobID, e.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/postgres: update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrapper_schedules WHERE id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("scrapper/postgres: delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM scrapper_schedules ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("scrapper/postgres: list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListDueSchedules returns enabled entries due at now.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*schedule.Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM scrapper_schedules
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("scrapper/postgres: list due schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// AdvanceSchedule claims the fire at expected by moving next_run_at.
func (s *Store) AdvanceSchedule(ctx context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrapper_schedules
		SET next_run_at = $3, last_run_at = $4, updated_at = $5
		WHERE id = $1 AND next_run_at = $2`,
		scheduleID, expected, next, firedAt, s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("scrapper/postgres: advance schedule: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return false, err
	}
	return false, nil
}

// RecordScheduleJob stores the job produced by the latest fire.
func (s *Store) RecordScheduleJob(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrapper_schedules SET last_job_id = $2 WHERE id = $1`,
		scheduleID, jobID,
	)
	if err != nil {
		return fmt.Errorf("scrapper/postgres: record schedule job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*schedule.Entry, error) {
	var e schedule.Entry
	err := row.Scan(
		&e.ID, &e.Name, &e.Spec, &e.Target, &e.Strategy, &e.Params, &e.Enabled,
		&e.NextRunAt, &e.LastRunAt, &e.LastJobID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectSchedules(rows pgx.Rows) ([]*schedule.Entry, error) {
	var entries []*schedule.Entry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scrapper/postgres: scan schedule row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scrapper/postgres: iterate schedule rows: %w", err)
	}
	return entries, nil
}
