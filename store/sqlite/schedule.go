package sqlite

import (
	"context"
	"fmt"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// CreateSchedule persists a new entry. Names are unique.
func (s *Store) CreateSchedule(ctx context.Context, e *schedule.Entry) error {
	if _, err := s.db.NewInsert().Model(toScheduleModel(e)).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/sqlite: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	m := new(scheduleModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", scheduleID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, scrapper.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scrapper/sqlite: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

// UpdateSchedule replaces an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	res, err := s.db.NewUpdate().
		Model(toScheduleModel(e)).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/sqlite: update schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.NewDelete().
		Model((*scheduleModel)(nil)).
		Where("id = ?", scheduleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("scrapper/sqlite: delete schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	var models []scheduleModel
	if err := s.db.NewSelect().Model(&models).Order("name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: list schedules: %w", err)
	}
	return fromScheduleModels(models)
}

// ListDueSchedules returns enabled entries due at now.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*schedule.Entry, error) {
	var models []scheduleModel
	err := s.db.NewSelect().
		Model(&models).
		Where("enabled = ?", true).
		Where("next_run_at <= ?", now.UTC()).
		Order("next_run_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: list due schedules: %w", err)
	}
	return fromScheduleModels(models)
}

// AdvanceSchedule claims the fire at expected by moving next_run_at.
func (s *Store) AdvanceSchedule(ctx context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*scheduleModel)(nil)).
		Set("next_run_at = ?", next.UTC()).
		Set("last_run_at = ?", firedAt.UTC()).
		Set("updated_at = ?", s.now()).
		Where("id = ?", scheduleID.String()).
		Where("next_run_at = ?", expected.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("scrapper/sqlite: advance schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return false, err
	}
	return false, nil
}

// RecordScheduleJob stores the job produced by the latest fire.
func (s *Store) RecordScheduleJob(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	res, err := s.db.NewUpdate().
		Model((*scheduleModel)(nil)).
		Set("last_job_id = ?", jobID.String()).
		Where("id = ?", scheduleID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("scrapper/sqlite: record schedule job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

func fromScheduleModels(models []scheduleModel) ([]*schedule.Entry, error) {
	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
