package dedup

import (
	"context"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
)

// Entry binds a fingerprint to the job that owns it.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	JobID       id.JobID  `json:"job_id"`
	CreatedAt   time.Time `json:"created_at"`
	// ExpiresAt is nil while the owning job is active. Once set, the entry
	// is a cooldown marker and is treated as absent after this instant.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the entry still counts at now.
func (e *Entry) Live(now time.Time) bool {
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// Index is the persistence contract of the idempotency index.
type Index interface {
	// ReserveFingerprint inserts e unless a live entry already exists for
	// e.Fingerprint. It returns nil on success and the live entry otherwise.
	// Expired entries are overwritten.
	ReserveFingerprint(ctx context.Context, e *Entry) (*Entry, error)

	// ReplaceFingerprint hands the fingerprint to e only if it is still
	// owned by previous. It reports whether the swap happened.
	ReplaceFingerprint(ctx context.Context, previous id.JobID, e *Entry) (bool, error)

	// ReleaseFingerprint ends jobID's ownership: the entry is deleted when
	// ttl is zero, otherwise it expires after ttl. It is a no-op when
	// jobID no longer owns the fingerprint.
	ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error

	// LookupFingerprint returns the live entry for fingerprint, or nil.
	LookupFingerprint(ctx context.Context, fingerprint string) (*Entry, error)
}
