package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// maxCancelRounds bounds how often Cancel re-reads a job that keeps
// changing under it.
const maxCancelRounds = 5

// CancelReason is the last_error message of an operator-cancelled job.
const CancelReason = "cancelled by operator"

// Request is a scrape submission.
type Request struct {
	Target      string          `json:"target" validate:"required,http_url,max=2048"`
	Strategy    string          `json:"strategy" validate:"required,max=64"`
	Params      json.RawMessage `json:"params,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=100"`
}

// Submission is the outcome of SubmitJob.
type Submission struct {
	// ID is the job that now owns the request.
	ID id.JobID `json:"id"`
	// Job is the owning job. It is nil when the owner was reserved by a
	// concurrent submission that has not persisted its row yet.
	Job *job.Job `json:"job,omitempty"`
	// Deduplicated is true when an existing job was returned.
	Deduplicated bool `json:"deduplicated"`
}

// Submit validates req and returns the ID of the job that serves it,
// creating one unless an active job with the same fingerprint exists.
func (e *Engine) Submit(ctx context.Context, req Request) (id.JobID, error) {
	sub, err := e.SubmitJob(ctx, req)
	if err != nil {
		return id.Nil, err
	}
	return sub.ID, nil
}

// SubmitJob is Submit returning the owning job and whether it was reused.
func (e *Engine) SubmitJob(ctx context.Context, req Request) (*Submission, error) {
	fp, target, params, err := e.check(req)
	if err != nil {
		return nil, err
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = e.config.MaxAttempts
	}

	j := job.New(fp, target, req.Strategy, params, maxAttempts)

	owner, existing, err := e.dedup.Acquire(ctx, fp, j.ID)
	if err != nil {
		return nil, err
	}
	if existing {
		return e.deduplicated(ctx, fp, owner)
	}

	if err := e.store.CreateJob(ctx, j); err != nil {
		if err := e.resolveCreate(ctx, j, err); err != nil {
			return nil, err
		}
	}

	// The row is authoritative; a lost message is re-sent by the sweeper.
	if err := e.broker.Enqueue(ctx, j.ID, 0); err != nil {
		e.logger.Warn("enqueue after persist failed, sweeper will retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.extensions.EmitJobSubmitted(ctx, j)
	e.logger.Debug("job submitted",
		slog.String("job_id", j.ID.String()),
		slog.String("strategy", j.Strategy),
		slog.String("target", j.Target),
	)
	return &Submission{ID: j.ID, Job: j}, nil
}

// resolveCreate settles a CreateJob that returned createErr. The ID is
// fresh, so a row under it means an earlier try committed and only its
// reply was lost: the submission proceeds. The reservation is abandoned
// only when the row is known to be absent; when the read fails too it is
// left for orphan-grace reclamation so a committed row never loses its
// fingerprint.
func (e *Engine) resolveCreate(ctx context.Context, j *job.Job, createErr error) error {
	stored, err := e.store.GetJob(ctx, j.ID)
	switch {
	case err == nil && stored.Fingerprint == j.Fingerprint:
		e.logger.Warn("job insert reported failure after commit",
			slog.String("job_id", j.ID.String()),
			slog.String("error", createErr.Error()),
		)
		return nil
	case errors.Is(err, scrapper.ErrJobNotFound):
		if relErr := e.dedup.Abandon(ctx, j.Fingerprint, j.ID); relErr != nil {
			e.logger.Warn("abandon reservation",
				slog.String("fingerprint", j.Fingerprint),
				slog.String("error", relErr.Error()),
			)
		}
	case err != nil:
		e.logger.Warn("job insert outcome unknown, reservation kept",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	if errors.Is(createErr, scrapper.ErrStoreUnavailable) {
		return createErr
	}
	return fmt.Errorf("%w: create job: %w", scrapper.ErrStoreUnavailable, createErr)
}

func (e *Engine) deduplicated(ctx context.Context, fp string, owner id.JobID) (*Submission, error) {
	e.extensions.EmitJobDeduplicated(ctx, fp, owner)
	e.logger.Debug("submission deduplicated",
		slog.String("fingerprint", fp),
		slog.String("job_id", owner.String()),
	)

	j, err := e.store.GetJob(ctx, owner)
	switch {
	case errors.Is(err, scrapper.ErrJobNotFound):
		return &Submission{ID: owner, Deduplicated: true}, nil
	case err != nil:
		return nil, err
	}
	return &Submission{ID: owner, Job: j, Deduplicated: true}, nil
}

// check validates req and returns its fingerprint, normalized target and
// canonical params.
func (e *Engine) check(req Request) (fp, target string, params json.RawMessage, err error) {
	if err := e.validate.Struct(req); err != nil {
		return "", "", nil, validationError(err)
	}
	if _, ok := e.strategies.Get(req.Strategy); !ok {
		return "", "", nil, &scrapper.ValidationError{
			Field:  "strategy",
			Reason: fmt.Sprintf("%q is not registered (known: %s)", req.Strategy, strings.Join(e.strategies.Names(), ", ")),
		}
	}

	fp, target, params, err = dedup.Fingerprint(req.Target, req.Strategy, req.Params)
	if err != nil {
		field := "params"
		if _, tErr := dedup.NormalizeTarget(req.Target); tErr != nil {
			field = "target"
		}
		return "", "", nil, &scrapper.ValidationError{Field: field, Reason: err.Error()}
	}
	if err := e.strategies.ValidateParams(req.Strategy, params); err != nil {
		return "", "", nil, &scrapper.ValidationError{Field: "params", Reason: err.Error()}
	}
	return fp, target, params, nil
}

// validationError converts validator output to the first field failure.
func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &scrapper.ValidationError{Reason: err.Error()}
	}
	fe := ves[0]
	field := strings.ToLower(fe.Field())
	if field == "maxattempts" {
		field = "max_attempts"
	}
	reason := fe.Tag()
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "http_url":
		reason = "must be an absolute http(s) URL"
	case "max", "min":
		reason = fmt.Sprintf("violates %s=%s", fe.Tag(), fe.Param())
	}
	return &scrapper.ValidationError{Field: field, Reason: reason}
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Get returns the latest persisted state of a job. It never waits on
// in-flight work.
func (e *Engine) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// List returns jobs newest first.
func (e *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return e.store.ListJobs(ctx, opts)
}

// Count returns the number of jobs matching opts.
func (e *Engine) Count(ctx context.Context, opts job.CountOpts) (int64, error) {
	return e.store.CountJobs(ctx, opts)
}

// Stats counts jobs per state.
func (e *Engine) Stats(ctx context.Context) (map[job.State]int64, error) {
	out := make(map[job.State]int64, len(job.States))
	for _, s := range job.States {
		n, err := e.store.CountJobs(ctx, job.CountOpts{State: s})
		if err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Operator actions
// ──────────────────────────────────────────────────

// Cancel moves a non-terminal job to dead. A running attempt is not
// interrupted; its late outcome is discarded.
func (e *Engine) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	for range maxCancelRounds {
		cur, err := e.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		dead, err := job.Transition(ctx, e.store, cur, job.StateDead, func(n *job.Job) {
			now := time.Now().UTC()
			n.LastError = &job.Failure{Kind: job.KindNonRecoverable, Message: CancelReason, At: now}
			n.FinishedAt = &now
		})
		if errors.Is(err, scrapper.ErrStateConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := e.dedup.Release(ctx, dead.Fingerprint, dead.ID); err != nil {
			e.logger.Warn("fingerprint release failed",
				slog.String("job_id", dead.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		e.extensions.EmitJobDead(ctx, dead)
		e.logger.Info("job cancelled",
			slog.String("job_id", dead.ID.String()),
			slog.String("previous_state", string(cur.State)),
		)
		return dead, nil
	}
	return nil, fmt.Errorf("cancel %s: %w", jobID, scrapper.ErrStateConflict)
}

// Replay resubmits a dead job's request as a fresh submission.
func (e *Engine) Replay(ctx context.Context, jobID id.JobID) (*Submission, error) {
	j, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateDead {
		return nil, fmt.Errorf("%w: only dead jobs can be replayed, %s is %s", scrapper.ErrInvalidTransition, j.ID, j.State)
	}
	return e.SubmitJob(ctx, Request{
		Target:      j.Target,
		Strategy:    j.Strategy,
		Params:      j.Params,
		MaxAttempts: j.MaxAttempts,
	})
}
