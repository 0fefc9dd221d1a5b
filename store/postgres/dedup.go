package postgres

import (
	"context"
	"fmt"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// reserveRounds bounds the insert/read race where the live entry is
// released between the conflicting insert and the read-back.
const reserveRounds = 3

// ReserveFingerprint inserts e unless a live entry exists. Expired
// cooldown entries are overwritten in the same statement.
func (s *Store) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	for range reserveRounds {
		now := s.now()
		var owner id.JobID
		err := s.pool.QueryRow(ctx, `
			INSERT INTO scrapper_fingerprints (fingerprint, job_id, created_at, expires_at)
			VALUES ($1, $2, $3, NULL)
			ON CONFLICT (fingerprint) DO UPDATE
				SET job_id = EXCLUDED.job_id,
				    created_at = EXCLUDED.created_at,
				    expires_at = NULL
				WHERE scrapper_fingerprints.expires_at IS NOT NULL
				  AND scrapper_fingerprints.expires_at <= $4
			RETURNING job_id`,
			e.Fingerprint, e.JobID, e.CreatedAt, now,
		).Scan(&owner)
		if err == nil {
			return nil, nil
		}
		if !isNoRows(err) {
			return nil, fmt.Errorf("scrapper/postgres: reserve fingerprint: %w", err)
		}

		held, err := s.LookupFingerprint(ctx, e.Fingerprint)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return held, nil
		}
	}
	return nil, fmt.Errorf("scrapper/postgres: reserve fingerprint: %w", scrapper.ErrStateConflict)
}

// ReplaceFingerprint swaps the owner if it is still previous.
func (s *Store) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrapper_fingerprints
		SET job_id = $3, created_at = $4, expires_at = NULL
		WHERE fingerprint = $1 AND job_id = $2`,
		e.Fingerprint, previous, e.JobID, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("scrapper/postgres: replace fingerprint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseFingerprint deletes the entry, or turns it into a cooldown marker
// expiring after ttl. No-op when jobID is no longer the owner.
func (s *Store) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	var err error
	if ttl <= 0 {
		_, err = s.pool.Exec(ctx,
			`DELETE FROM scrapper_fingerprints WHERE fingerprint = $1 AND job_id = $2`,
			fingerprint, jobID,
		)
	} else {
		_, err = s.pool.Exec(ctx,
			`UPDATE scrapper_fingerprints SET expires_at = $3 WHERE fingerprint = $1 AND job_id = $2`,
			fingerprint, jobID, s.now().Add(ttl),
		)
	}
	if err != nil {
		return fmt.Errorf("scrapper/postgres: release fingerprint: %w", err)
	}
	return nil
}

// LookupFingerprint returns the live entry, or nil.
func (s *Store) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	var e dedup.Entry
	err := s.pool.QueryRow(ctx, `
		SELECT fingerprint, job_id, created_at, expires_at
		FROM scrapper_fingerprints
		WHERE fingerprint = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		fingerprint, s.now(),
	).Scan(&e.Fingerprint, &e.JobID, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scrapper/postgres: lookup fingerprint: %w", err)
	}
	return &e, nil
}
