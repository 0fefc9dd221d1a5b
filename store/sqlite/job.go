package sqlite

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/uptrace/bun"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrJobAlreadyExists
		}
		return fmt.Errorf("scrapper/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, scrapper.ErrJobNotFound
		}
		return nil, fmt.Errorf("scrapper/sqlite: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJobIf rewrites the mutable columns of j only while the stored row
// is still in expect.State with expect.Attempts.
func (s *Store) UpdateJobIf(ctx context.Context, j *job.Job, expect job.Expect) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().
		Model(m).
		Column(mutableJobColumns...).
		Where("id = ?", m.ID).
		Where("state = ?", string(expect.State)).
		Where("attempts = ?", expect.Attempts).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("scrapper/sqlite: update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	exists, err := s.db.NewSelect().
		Model((*jobModel)(nil)).
		Where("id = ?", m.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("scrapper/sqlite: update job: %w", err)
	}
	if !exists {
		return scrapper.ErrJobNotFound
	}
	return scrapper.ErrStateConflict
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Strategy != "" {
		q = q.Where("strategy = ?", opts.Strategy)
	}

	q = q.Order("created_at DESC", "id DESC")

	switch {
	case opts.Limit > 0:
		q = q.Limit(opts.Limit)
	case opts.Offset > 0:
		// SQLite only accepts OFFSET after LIMIT.
		q = q.Limit(math.MaxInt32)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: list jobs: %w", err)
	}
	return fromJobModels(models)
}

// ListStaleJobs returns jobs in one of states not updated since before,
// oldest first.
func (s *Store) ListStaleJobs(ctx context.Context, states []job.State, before time.Time, limit int) ([]*job.Job, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	var models []jobModel
	err := s.db.NewSelect().
		Model(&models).
		Where("state IN (?)", bun.In(names)).
		Where("updated_at < ?", before.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: list stale jobs: %w", err)
	}
	return fromJobModels(models)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil))
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("scrapper/sqlite: count jobs: %w", err)
	}
	return int64(count), nil
}

func fromJobModels(models []jobModel) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
