// Package sqlite implements store.Store using the Bun ORM with the SQLite
// dialect over github.com/mattn/go-sqlite3. Suitable for single-node
// deployments, CLI tools and tests.
//
// Open owns the database handle; New wraps a caller-owned *bun.DB:
//
//	store, err := sqlite.Open("file:scrapper.db?_busy_timeout=5000")
//	if err != nil { ... }
//	defer store.Close()
//	store.Migrate(ctx)
//
// SQLite serializes writers, so Open limits the pool to one connection and
// every compare-and-set runs as a single statement.
package sqlite
