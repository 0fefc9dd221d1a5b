package job

import (
	"encoding/json"
	"slices"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is persisted and waiting for a worker.
	StatePending State = "pending"
	// StateRunning means a worker holds the current attempt.
	StateRunning State = "running"
	// StateSucceeded means the strategy returned a result. Terminal.
	StateSucceeded State = "succeeded"
	// StateFailed means the last attempt failed and the retry decision has
	// not been persisted yet.
	StateFailed State = "failed"
	// StateRetryScheduled means the job waits for NextEligibleAt.
	StateRetryScheduled State = "retry_scheduled"
	// StateDead means the job will never run again. Terminal.
	StateDead State = "dead"
)

// States lists every state in lifecycle order.
var States = []State{
	StatePending, StateRunning, StateSucceeded,
	StateFailed, StateRetryScheduled, StateDead,
}

// ActiveStates lists the non-terminal states.
var ActiveStates = []State{StatePending, StateRunning, StateFailed, StateRetryScheduled}

var transitions = map[State][]State{
	StatePending:        {StateRunning, StateDead},
	StateRunning:        {StateSucceeded, StateFailed, StateRunning, StateDead},
	StateFailed:         {StateRetryScheduled, StateDead},
	StateRetryScheduled: {StatePending, StateDead},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool { return slices.Contains(States, s) }

// IsTerminal reports whether no transition leaves s.
func (s State) IsTerminal() bool { return s == StateSucceeded || s == StateDead }

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// FailureKind classifies a failed attempt.
type FailureKind string

const (
	// KindRecoverable failures are retried while attempts remain.
	KindRecoverable FailureKind = "recoverable"
	// KindNonRecoverable failures move the job to dead immediately.
	KindNonRecoverable FailureKind = "non_recoverable"
)

// Failure is the last error recorded on a job.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Job is one scrape request and the durable record of its execution.
type Job struct {
	scrapper.Entity

	ID             id.JobID        `json:"id"`
	Fingerprint    string          `json:"fingerprint"`
	Target         string          `json:"target"`
	Strategy       string          `json:"strategy"`
	Params         json.RawMessage `json:"params,omitempty"`
	State          State           `json:"state"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	NextEligibleAt time.Time       `json:"next_eligible_at"`
	Result         json.RawMessage `json:"result,omitempty"`
	LastError      *Failure        `json:"last_error,omitempty"`
	WorkerID       id.WorkerID     `json:"worker_id,omitempty"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// New returns a pending job with a fresh ID.
func New(fingerprint, target, strategy string, params json.RawMessage, maxAttempts int) *Job {
	e := scrapper.NewEntity()
	return &Job{
		Entity:         e,
		ID:             id.NewJobID(),
		Fingerprint:    fingerprint,
		Target:         target,
		Strategy:       strategy,
		Params:         params,
		State:          StatePending,
		MaxAttempts:    maxAttempts,
		NextEligibleAt: e.CreatedAt,
	}
}

// AttemptsLeft reports whether another attempt fits in the budget.
func (j *Job) AttemptsLeft() bool { return j.Attempts < j.MaxAttempts }

// Clone returns a deep copy safe to mutate.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Params = slices.Clone(j.Params)
	cp.Result = slices.Clone(j.Result)
	if j.LastError != nil {
		f := *j.LastError
		cp.LastError = &f
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
