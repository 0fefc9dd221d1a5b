package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/store"
)

// Collection name constants.
const (
	colJobs         = "scrapper_jobs"
	colFingerprints = "scrapper_fingerprints"
	colSchedules    = "scrapper_schedules"
)

var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	db     *mongod.Database
	client *mongod.Client
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

// Open connects to uri and uses the named database. The returned Store owns
// the client and disconnects it on Close.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("scrapper/mongo: ping: %w", err)
	}

	s := New(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// New creates a store over a caller-owned database handle. Close does not
// disconnect it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying database handle for advanced usage.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all scrapper collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %w", scrapper.ErrMigrationFailed, col, err)
		}
		s.logger.Debug("ensured indexes", slog.String("collection", col), slog.Int("count", len(models)))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client when the store opened it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// ── helpers ──────────────────────────────────────────────────────

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colJobs: {
			{Keys: bson.D{
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			}},
			// Sweeper scan.
			{Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "updated_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "fingerprint", Value: 1}}},
		},
		colFingerprints: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colSchedules: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{
				{Key: "enabled", Value: 1},
				{Key: "next_run_at", Value: 1},
			}},
		},
	}
}
