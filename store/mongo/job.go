package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
)

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.Collection(colJobs).InsertOne(ctx, toJobModel(j))
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrJobAlreadyExists
		}
		return fmt.Errorf("scrapper/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, scrapper.ErrJobNotFound
		}
		return nil, fmt.Errorf("scrapper/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// UpdateJobIf rewrites the mutable fields of j only while the stored
// document is still in expect.State with expect.Attempts.
func (s *Store) UpdateJobIf(ctx context.Context, j *job.Job, expect job.Expect) error {
	m := toJobModel(j)
	col := s.db.Collection(colJobs)

	filter := bson.M{
		"_id":      m.ID,
		"state":    string(expect.State),
		"attempts": expect.Attempts,
	}
	update := bson.M{"$set": bson.M{
		"state":            m.State,
		"attempts":         m.Attempts,
		"max_attempts":     m.MaxAttempts,
		"next_eligible_at": m.NextEligibleAt,
		"result":           m.Result,
		"last_error":       m.LastError,
		"worker_id":        m.WorkerID,
		"started_at":       m.StartedAt,
		"finished_at":      m.FinishedAt,
		"updated_at":       m.UpdatedAt,
	}}

	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("scrapper/mongo: update job: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := col.CountDocuments(ctx, bson.M{"_id": m.ID})
	if err != nil {
		return fmt.Errorf("scrapper/mongo: update job: %w", err)
	}
	if n == 0 {
		return scrapper.ErrJobNotFound
	}
	return scrapper.ErrStateConflict
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}
	if opts.Strategy != "" {
		filter["strategy"] = opts.Strategy
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: list jobs: %w", err)
	}
	return decodeJobs(ctx, cursor)
}

// ListStaleJobs returns jobs in one of states not updated since before,
// oldest first.
func (s *Store) ListStaleJobs(ctx context.Context, states []job.State, before time.Time, limit int) ([]*job.Job, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}

	filter := bson.M{
		"state":      bson.M{"$in": names},
		"updated_at": bson.M{"$lt": before.UTC()},
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: list stale jobs: %w", err)
	}
	return decodeJobs(ctx, cursor)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	count, err := s.db.Collection(colJobs).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("scrapper/mongo: count jobs: %w", err)
	}
	return count, nil
}

func decodeJobs(ctx context.Context, cursor *mongod.Cursor) ([]*job.Job, error) {
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("scrapper/mongo: decode jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
