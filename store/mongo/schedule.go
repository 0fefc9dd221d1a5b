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
	"github.com/rahulsharmaah/content-scrapper/schedule"
)

// CreateSchedule persists a new entry. Names are unique.
func (s *Store) CreateSchedule(ctx context.Context, e *schedule.Entry) error {
	if _, err := s.db.Collection(colSchedules).InsertOne(ctx, toScheduleModel(e)); err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/mongo: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Entry, error) {
	var m scheduleModel
	err := s.db.Collection(colSchedules).FindOne(ctx, bson.M{"_id": scheduleID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, scrapper.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scrapper/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// UpdateSchedule replaces an existing entry, keeping its creation time.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	m := toScheduleModel(e)
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"name":        m.Name,
			"spec":        m.Spec,
			"target":      m.Target,
			"strategy":    m.Strategy,
			"params":      m.Params,
			"enabled":     m.Enabled,
			"next_run_at": m.NextRunAt,
			"last_run_at": m.LastRunAt,
			"last_job_id": m.LastJobID,
			"updated_at":  m.UpdatedAt,
		}},
	)
	if err != nil {
		if isDuplicateKey(err) {
			return scrapper.ErrDuplicateSchedule
		}
		return fmt.Errorf("scrapper/mongo: update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	res, err := s.db.Collection(colSchedules).DeleteOne(ctx, bson.M{"_id": scheduleID.String()})
	if err != nil {
		return fmt.Errorf("scrapper/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	cursor, err := s.db.Collection(colSchedules).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: list schedules: %w", err)
	}
	return decodeSchedules(ctx, cursor)
}

// ListDueSchedules returns enabled entries due at now.
func (s *Store) ListDueSchedules(ctx context.Context, now time.Time) ([]*schedule.Entry, error) {
	cursor, err := s.db.Collection(colSchedules).Find(ctx,
		bson.M{"enabled": true, "next_run_at": bson.M{"$lte": now.UTC()}},
		options.Find().SetSort(bson.D{{Key: "next_run_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("scrapper/mongo: list due schedules: %w", err)
	}
	return decodeSchedules(ctx, cursor)
}

// AdvanceSchedule claims the fire at expected by moving next_run_at.
func (s *Store) AdvanceSchedule(ctx context.Context, scheduleID id.ScheduleID, expected, next, firedAt time.Time) (bool, error) {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": scheduleID.String(), "next_run_at": expected.UTC()},
		bson.M{"$set": bson.M{
			"next_run_at": next.UTC(),
			"last_run_at": firedAt.UTC(),
			"updated_at":  s.now(),
		}},
	)
	if err != nil {
		return false, fmt.Errorf("scrapper/mongo: advance schedule: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return false, err
	}
	return false, nil
}

// RecordScheduleJob stores the job produced by the latest fire.
func (s *Store) RecordScheduleJob(ctx context.Context, scheduleID id.ScheduleID, jobID id.JobID) error {
	res, err := s.db.Collection(colSchedules).UpdateOne(ctx,
		bson.M{"_id": scheduleID.String()},
		bson.M{"$set": bson.M{"last_job_id": jobID.String()}},
	)
	if err != nil {
		return fmt.Errorf("scrapper/mongo: record schedule job: %w", err)
	}
	if res.MatchedCount == 0 {
		return scrapper.ErrScheduleNotFound
	}
	return nil
}

func decodeSchedules(ctx context.Context, cursor *mongod.Cursor) ([]*schedule.Entry, error) {
	defer cursor.Close(ctx)

	var models []scheduleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("scrapper/mongo: decode schedules: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
