package postgres

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rahulsharmaah/content-scrapper/job"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// jsonObject returns raw, or an empty object when raw is empty.
func jsonObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func encodeFailure(f *job.Failure) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("scrapper/postgres: encode last_error: %w", err)
	}
	return b, nil
}

func decodeFailure(b []byte) (*job.Failure, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var f job.Failure
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("scrapper/postgres: decode last_error: %w", err)
	}
	return &f, nil
}
