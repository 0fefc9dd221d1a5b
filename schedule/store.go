package schedule

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
)

// Store defines the persistence contract for schedule entries.
type Store interface {
	// CreateSchedule persists a new entry. Returns
	// scrapper.ErrDuplicateSchedule if the name is taken.
	CreateSchedule(ctx context.Context, e *Entry) error

	// GetSchedule retrieves an entry by ID. Returns
	// scrapper.ErrScheduleNotFound.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Entry, error)

	// UpdateSchedule replaces an existing entry.
	UpdateSchedule(ctx context.Context, e *Entry) error

	// DeleteSchedule removes an entry.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error

	// ListSchedules returns all entries ordered by name.
	ListSchedules(ctx context.Context) ([]*Entry, error)

	// ListDueSchedules returns enabled entries whose NextRunAt is not after
	// now.
	ListDueSchedules(ctx context.Context, now time.Time) ([]*Entry, error)

	// AdvanceSchedule moves an entry's NextRunAt from expected to next and
	// records firedAt as LastRunAt, only if NextRunAt still equals
	// expected. It reports whether this caller won the slot.
	AdvanceSchedule(ctx context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error)

	// RecordScheduleJob stores the job produced by the latest fire.
	RecordScheduleJob(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error
}
