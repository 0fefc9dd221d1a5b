// Package store defines the aggregate persistence interface. Each subsystem
// (job, dedup, schedule) defines its own store interface. The composite
// Store composes them all. Backends: Postgres, SQLite (bun), MongoDB and
// Memory.
package store

import (
	"context"

	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// Store is the aggregate persistence interface.
// A single backend implements every subsystem contract.
type Store interface {
	job.Store
	dedup.Index
	schedule.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
