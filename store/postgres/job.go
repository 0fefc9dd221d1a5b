package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

const jobColumns = `
	id, fingerprint, target, strategy, params, state, attempts, max_attempts,
	next_eligible_at, result, last_error, worker_id, started_at, finished_at,
	created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	lastErr, err := encodeFailure(j.LastError)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scrapper_jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		j.ID, j.Fingerprint, j.Target, j.Strategy, jsonObject(j.Params), string(j.State),
		j.Attempts, j.MaxAttempts, j.NextEligibleAt, []byte(j.Result), lastErr,
		j.WorkerID, j.StartedAt, j.FinishedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrJobAlreadyExists
		}
		return fmt.Errorf("scrapper/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM scrapper_jobs WHERE id = $1`, jobID)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, scrapper.ErrJobNotFound
		}
		return nil, fmt.Errorf("scrapper/postgres: get job: %w", err)
	}
	return j, nil
}

// UpdateJobIf replaces the mutable columns of j only while the stored row
// is still in expect.State with expect.Attempts.
func (s *Store) UpdateJobIf(ctx context.Context, j *job.Job, expect job.Expect) error {
	lastErr, err := encodeFailure(j.LastError)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrapper_jobs SET
			state = $2, attempts = $3, max_attempts = $4, next_eligible_at = $5,
			result = $6, last_error = $7, worker_id = $8, started_at = $9,
			finished_at = $10, updated_at = $11
		WHERE id = $1 AND state = $12 AND attempts = $13`,
		j.ID, string(j.State), j.Attempts, j.MaxAttempts, j.NextEligibleAt,
		[]byte(j.Result), lastErr, j.WorkerID, j.StartedAt,
		j.FinishedAt, j.UpdatedAt,
		string(expect.State), expect.Attempts,
	)
	if err != nil {
		return fmt.Errorf("scrapper/postgres: update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM scrapper_jobs WHERE id = $1)`, j.ID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("scrapper/postgres: update job: %w", err)
	}
	if !exists {
		return scrapper.ErrJobNotFound
	}
	return scrapper.ErrStateConflict
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrapper_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
		argIdx++
	}
	if opts.Strategy != "" {
		query += fmt.Sprintf(" AND strategy = $%d", argIdx)
		args = append(args, opts.Strategy)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scrapper/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ListStaleJobs returns jobs in one of states not updated since before,
// oldest first.
func (s *Store) ListStaleJobs(ctx context.Context, states []job.State, before time.Time, limit int) ([]*job.Job, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM scrapper_jobs
		WHERE state = ANY($1) AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		names, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scrapper/postgres: list stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM scrapper_jobs`
	args := []any{}
	if opts.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(opts.State))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scrapper/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j        job.Job
		stateStr string
		result   []byte
		lastErr  []byte
	)
	err := row.Scan(
		&j.ID, &j.Fingerprint, &j.Target, &j.Strategy, &j.Params, &stateStr,
		&j.Attempts, &j.MaxAttempts, &j.NextEligibleAt, &result, &lastErr,
		&j.WorkerID, &j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)
	j.Result = result
	if j.LastError, err = decodeFailure(lastErr); err != nil {
		return nil, err
	}
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scrapper/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scrapper/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
