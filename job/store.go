package job

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// State filters by job state. Empty means all states.
	State State
	// Strategy filters by strategy name. Empty means all strategies.
	Strategy string
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// State filters by job state. Empty means all states.
	State State
}

// Expect is the precondition of a conditional update: the stored row must
// still be in State with exactly Attempts attempts.
type Expect struct {
	State    State
	Attempts int
}

// ExpectOf captures the precondition matching j as it was read.
func ExpectOf(j *Job) Expect { return Expect{State: j.State, Attempts: j.Attempts} }

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new job. Returns scrapper.ErrJobAlreadyExists if
	// the ID is taken.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID. Returns scrapper.ErrJobNotFound.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJobIf replaces the stored job with j only if the stored row
	// still matches expect. Returns scrapper.ErrStateConflict otherwise and
	// scrapper.ErrJobNotFound if the row does not exist.
	UpdateJobIf(ctx context.Context, j *Job, expect Expect) error

	// ListJobs returns jobs ordered by creation time, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// ListStaleJobs returns up to limit jobs in one of states whose
	// UpdatedAt is older than before, oldest first.
	ListStaleJobs(ctx context.Context, states []State, before time.Time, limit int) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
