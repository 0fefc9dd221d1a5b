// Package postgres implements store.Store on PostgreSQL using pgx/v5 with
// raw SQL. Job updates are compare-and-set on (state, attempts), the
// fingerprint index relies on INSERT ... ON CONFLICT for atomic
// insert-if-absent, and schedule fires are claimed with a conditional
// UPDATE on next_run_at. Migrations are embedded SQL files.
package postgres
