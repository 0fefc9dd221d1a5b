package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// reserveRounds bounds the upsert/read race where the live entry is
// released between the conflicting upsert and the read-back.
const reserveRounds = 3

// ReserveFingerprint inserts e unless a live entry exists. Expired cooldown
// entries are overwritten by the same upsert.
func (s *Store) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	for range reserveRounds {
		var owner string
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO scrapper_fingerprints (fingerprint, job_id, created_at, expires_at)
			VALUES (?, ?, ?, NULL)
			ON CONFLICT (fingerprint) DO UPDATE
				SET job_id = excluded.job_id,
				    created_at = excluded.created_at,
				    expires_at = NULL
				WHERE scrapper_fingerprints.expires_at IS NOT NULL
				  AND scrapper_fingerprints.expires_at <= ?
			RETURNING job_id`,
			e.Fingerprint, e.JobID.String(), e.CreatedAt.UTC(), s.now(),
		).Scan(&owner)
		if err == nil {
			return nil, nil
		}
		if !isNoRows(err) {
			return nil, fmt.Errorf("scrapper/sqlite: reserve fingerprint: %w", err)
		}

		held, err := s.LookupFingerprint(ctx, e.Fingerprint)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return held, nil
		}
	}
	return nil, fmt.Errorf("scrapper/sqlite: reserve fingerprint: %w", scrapper.ErrStateConflict)
}

// ReplaceFingerprint swaps the owner if it is still previous.
func (s *Store) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*fingerprintModel)(nil)).
		Set("job_id = ?", e.JobID.String()).
		Set("created_at = ?", e.CreatedAt.UTC()).
		Set("expires_at = NULL").
		Where("fingerprint = ?", e.Fingerprint).
		Where("job_id = ?", previous.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("scrapper/sqlite: replace fingerprint: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ReleaseFingerprint deletes the entry, or turns it into a cooldown marker
// expiring after ttl. No-op when jobID is no longer the owner.
func (s *Store) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	var err error
	if ttl <= 0 {
		_, err = s.db.NewDelete().
			Model((*fingerprintModel)(nil)).
			Where("fingerprint = ?", fingerprint).
			Where("job_id = ?", jobID.String()).
			Exec(ctx)
	} else {
		_, err = s.db.NewUpdate().
			Model((*fingerprintModel)(nil)).
			Set("expires_at = ?", s.now().Add(ttl)).
			Where("fingerprint = ?", fingerprint).
			Where("job_id = ?", jobID.String()).
			Exec(ctx)
	}
	if err != nil {
		return fmt.Errorf("scrapper/sqlite: release fingerprint: %w", err)
	}
	return nil
}

// LookupFingerprint returns the live entry, or nil.
func (s *Store) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	m := new(fingerprintModel)
	err := s.db.NewSelect().
		Model(m).
		Where("fingerprint = ?", fingerprint).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("expires_at IS NULL").WhereOr("expires_at > ?", s.now())
		}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scrapper/sqlite: lookup fingerprint: %w", err)
	}
	return fromFingerprintModel(m)
}
