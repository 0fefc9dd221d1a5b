package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ store.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using the SQLite dialect.
type Store struct {
	db     *bun.DB
	owned  bool
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens the SQLite database at dsn with the go-sqlite3 driver. The
// returned Store owns the handle and closes it on Close. Use ":memory:" for
// a private in-memory database.
func Open(dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("scrapper/sqlite: open: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes
	// writers instead of surfacing SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	s := New(bun.NewDB(sqldb, sqlitedialect.New()), opts...)
	s.owned = true
	return s, nil
}

// New creates a store over a caller-owned *bun.DB. Close does not close it.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scrapper_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %w", scrapper.ErrMigrationFailed, err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: read migrations: %w", scrapper.ErrMigrationFailed, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		applied, err := s.db.NewSelect().
			Table("scrapper_migrations").
			Where("filename = ?", entry.Name()).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("%w: check %s: %w", scrapper.ErrMigrationFailed, entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("%w: read %s: %w", scrapper.ErrMigrationFailed, entry.Name(), readErr)
		}

		txErr := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, execErr := tx.ExecContext(ctx, string(data)); execErr != nil {
				return execErr
			}
			_, recErr := tx.ExecContext(ctx,
				`INSERT INTO scrapper_migrations (filename) VALUES (?)`, entry.Name())
			return recErr
		})
		if txErr != nil {
			return fmt.Errorf("%w: apply %s: %w", scrapper.ErrMigrationFailed, entry.Name(), txErr)
		}

		s.logger.Info("applied migration", slog.String("file", entry.Name()))
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a SQLite error is a unique or primary key
// constraint violation.
func isDuplicateKey(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
