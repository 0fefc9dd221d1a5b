package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// ── Job model ─────────────────────────────────────────────────────

type jobModel struct {
	bun.BaseModel `bun:"table:scrapper_jobs"`

	ID             string     `bun:"id,pk"`
	Fingerprint    string     `bun:"fingerprint,notnull"`
	Target         string     `bun:"target,notnull"`
	Strategy       string     `bun:"strategy,notnull"`
	Params         string     `bun:"params,notnull"`
	State          string     `bun:"state,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	MaxAttempts    int        `bun:"max_attempts,notnull"`
	NextEligibleAt time.Time  `bun:"next_eligible_at,notnull"`
	Result         []byte     `bun:"result"`
	LastError      *string    `bun:"last_error"`
	WorkerID       string     `bun:"worker_id,nullzero"`
	StartedAt      *time.Time `bun:"started_at"`
	FinishedAt     *time.Time `bun:"finished_at"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

// mutableJobColumns are rewritten by UpdateJobIf. Identity columns never
// change after creation.
var mutableJobColumns = []string{
	"state", "attempts", "max_attempts", "next_eligible_at", "result",
	"last_error", "worker_id", "started_at", "finished_at", "updated_at",
}

func toJobModel(j *job.Job) (*jobModel, error) {
	m := &jobModel{
		ID:             j.ID.String(),
		Fingerprint:    j.Fingerprint,
		Target:         j.Target,
		Strategy:       j.Strategy,
		Params:         paramsText(j.Params),
		State:          string(j.State),
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		NextEligibleAt: j.NextEligibleAt.UTC(),
		Result:         j.Result,
		WorkerID:       j.WorkerID.String(),
		StartedAt:      utcPtr(j.StartedAt),
		FinishedAt:     utcPtr(j.FinishedAt),
		CreatedAt:      j.CreatedAt.UTC(),
		UpdatedAt:      j.UpdatedAt.UTC(),
	}
	if j.LastError != nil {
		b, err := json.Marshal(j.LastError)
		if err != nil {
			return nil, fmt.Errorf("scrapper/sqlite: encode last_error: %w", err)
		}
		s := string(b)
		m.LastError = &s
	}
	return m, nil
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: parse job id %q: %w", m.ID, err)
	}
	workerID, err := parseOptional(m.WorkerID, id.ParseWorkerID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: parse worker id %q: %w", m.WorkerID, err)
	}

	j := &job.Job{
		Entity: scrapper.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:             jobID,
		Fingerprint:    m.Fingerprint,
		Target:         m.Target,
		Strategy:       m.Strategy,
		Params:         json.RawMessage(m.Params),
		State:          job.State(m.State),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		NextEligibleAt: m.NextEligibleAt.UTC(),
		Result:         m.Result,
		WorkerID:       workerID,
		StartedAt:      utcPtr(m.StartedAt),
		FinishedAt:     utcPtr(m.FinishedAt),
	}
	if m.LastError != nil && *m.LastError != "" {
		var f job.Failure
		if err := json.Unmarshal([]byte(*m.LastError), &f); err != nil {
			return nil, fmt.Errorf("scrapper/sqlite: decode last_error: %w", err)
		}
		j.LastError = &f
	}
	return j, nil
}

// ── Fingerprint model ─────────────────────────────────────────────

type fingerprintModel struct {
	bun.BaseModel `bun:"table:scrapper_fingerprints"`

	Fingerprint string     `bun:"fingerprint,pk"`
	JobID       string     `bun:"job_id,notnull"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	ExpiresAt   *time.Time `bun:"expires_at"`
}

func fromFingerprintModel(m *fingerprintModel) (*dedup.Entry, error) {
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: parse fingerprint owner %q: %w", m.JobID, err)
	}
	return &dedup.Entry{
		Fingerprint: m.Fingerprint,
		JobID:       jobID,
		CreatedAt:   m.CreatedAt.UTC(),
		ExpiresAt:   utcPtr(m.ExpiresAt),
	}, nil
}

// ── Schedule model ────────────────────────────────────────────────

type scheduleModel struct {
	bun.BaseModel `bun:"table:scrapper_schedules"`

	ID        string     `bun:"id,pk"`
	Name      string     `bun:"name,notnull"`
	Spec      string     `bun:"spec,notnull"`
	Target    string     `bun:"target,notnull"`
	Strategy  string     `bun:"strategy,notnull"`
	Params    string     `bun:"params,notnull"`
	Enabled   bool       `bun:"enabled,notnull"`
	NextRunAt time.Time  `bun:"next_run_at,notnull"`
	LastRunAt *time.Time `bun:"last_run_at"`
	LastJobID string     `bun:"last_job_id,nullzero"`
	CreatedAt time.Time  `bun:"created_at,notnull"`
	UpdatedAt time.Time  `bun:"updated_at,notnull"`
}

func toScheduleModel(e *schedule.Entry) *scheduleModel {
	return &scheduleModel{
		ID:        e.ID.String(),
		Name:      e.Name,
		Spec:      e.Spec,
		Target:    e.Target,
		Strategy:  e.Strategy,
		Params:    paramsText(e.Params),
		Enabled:   e.Enabled,
		NextRunAt: e.NextRunAt.UTC(),
		LastRunAt: utcPtr(e.LastRunAt),
		LastJobID: e.LastJobID.String(),
		CreatedAt: e.CreatedAt.UTC(),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
}

func fromScheduleModel(m *scheduleModel) (*schedule.Entry, error) {
	scheduleID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: parse schedule id %q: %w", m.ID, err)
	}
	lastJobID, err := parseOptional(m.LastJobID, id.ParseJobID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: parse last job id %q: %w", m.LastJobID, err)
	}
	return &schedule.Entry{
		Entity: scrapper.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:        scheduleID,
		Name:      m.Name,
		Spec:      m.Spec,
		Target:    m.Target,
		Strategy:  m.Strategy,
		Params:    json.RawMessage(m.Params),
		Enabled:   m.Enabled,
		NextRunAt: m.NextRunAt.UTC(),
		LastRunAt: utcPtr(m.LastRunAt),
		LastJobID: lastJobID,
	}, nil
}

// ── helpers ───────────────────────────────────────────────────────

func paramsText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func parseOptional(s string, parse func(string) (id.ID, error)) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return parse(s)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
