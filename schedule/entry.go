package schedule

import (
	"encoding/json"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// Entry is a recurring scrape.
type Entry struct {
	scrapper.Entity

	ID        id.ScheduleID   `json:"id"`
	Name      string          `json:"name"`
	Spec      string          `json:"spec"`
	Target    string          `json:"target"`
	Strategy  string          `json:"strategy"`
	Params    json.RawMessage `json:"params,omitempty"`
	Enabled   bool            `json:"enabled"`
	NextRunAt time.Time       `json:"next_run_at"`
	LastRunAt *time.Time      `json:"last_run_at,omitempty"`
	LastJobID id.JobID        `json:"last_job_id,omitempty"`
}

// Clone returns a copy safe to mutate.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Params = append(json.RawMessage(nil), e.Params...)
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		cp.LastRunAt = &t
	}
	return &cp
}
