// Package store defines the aggregate persistence interface.
//
// Each subsystem defines its own store interface and the composite [Store]
// composes them:
//
//	type Store interface {
//	    job.Store
//	    dedup.Index
//	    schedule.Store
//
//	    Migrate(ctx context.Context) error
//	    Ping(ctx context.Context) error
//	    Close() error
//	}
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/postgres: PostgreSQL backend using pgx/v5
//   - store/sqlite: SQLite backend using bun
//   - store/mongo: MongoDB backend using the official v2 driver
//
// The idempotency index can also live in Redis (queue/redis), next to the
// broker, while jobs stay in one of the stores above.
//
// # Migrations
//
// Call Migrate once at startup to create or update the schema:
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package store
