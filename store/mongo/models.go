package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// ── Job model ─────────────────────────────────────────────────────

type failureModel struct {
	Kind    string    `bson:"kind"`
	Message string    `bson:"message"`
	At      time.Time `bson:"at"`
}

type jobModel struct {
	ID             string        `bson:"_id"`
	Fingerprint    string        `bson:"fingerprint"`
	Target         string        `bson:"target"`
	Strategy       string        `bson:"strategy"`
	Params         string        `bson:"params"`
	State          string        `bson:"state"`
	Attempts       int           `bson:"attempts"`
	MaxAttempts    int           `bson:"max_attempts"`
	NextEligibleAt time.Time     `bson:"next_eligible_at"`
	Result         []byte        `bson:"result,omitempty"`
	LastError      *failureModel `bson:"last_error"`
	WorkerID       string        `bson:"worker_id"`
	StartedAt      *time.Time    `bson:"started_at"`
	FinishedAt     *time.Time    `bson:"finished_at"`
	CreatedAt      time.Time     `bson:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at"`
}

func toJobModel(j *job.Job) *jobModel {
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
	if f := j.LastError; f != nil {
		m.LastError = &failureModel{Kind: string(f.Kind), Message: f.Message, At: f.At.UTC()}
	}
	return m
}

func fromJobModel(m *jobModel) (*job.Job, error) {
	jobID, err := id.ParseJobID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: parse job id %q: %w", m.ID, err)
	}
	workerID, err := parseOptional(m.WorkerID, id.ParseWorkerID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: parse worker id %q: %w", m.WorkerID, err)
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
	if f := m.LastError; f != nil {
		j.LastError = &job.Failure{Kind: job.FailureKind(f.Kind), Message: f.Message, At: f.At.UTC()}
	}
	return j, nil
}

// ── Fingerprint model ─────────────────────────────────────────────

type fingerprintModel struct {
	Fingerprint string     `bson:"_id"`
	JobID       string     `bson:"job_id"`
	CreatedAt   time.Time  `bson:"created_at"`
	ExpiresAt   *time.Time `bson:"expires_at"`
}

func fromFingerprintModel(m *fingerprintModel) (*dedup.Entry, error) {
	jobID, err := id.ParseJobID(m.JobID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: parse fingerprint owner %q: %w", m.JobID, err)
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
	ID        string     `bson:"_id"`
	Name      string     `bson:"name"`
	Spec      string     `bson:"spec"`
	Target    string     `bson:"target"`
	Strategy  string     `bson:"strategy"`
	Params    string     `bson:"params"`
	Enabled   bool       `bson:"enabled"`
	NextRunAt time.Time  `bson:"next_run_at"`
	LastRunAt *time.Time `bson:"last_run_at"`
	LastJobID string     `bson:"last_job_id"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
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
		return nil, fmt.Errorf("scrapper/mongo: parse schedule id %q: %w", m.ID, err)
	}
	lastJobID, err := parseOptional(m.LastJobID, id.ParseJobID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: parse last job id %q: %w", m.LastJobID, err)
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
