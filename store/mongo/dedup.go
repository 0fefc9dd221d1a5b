package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// reserveRounds bounds the insert/takeover/read race where the live entry
// is released between steps.
const reserveRounds = 3

// ReserveFingerprint inserts e unless a live entry exists. An expired
// cooldown entry is taken over with a conditional update.
func (s *Store) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	col := s.db.Collection(colFingerprints)
	doc := fingerprintModel{
		Fingerprint: e.Fingerprint,
		JobID:       e.JobID.String(),
		CreatedAt:   e.CreatedAt.UTC(),
	}

	for range reserveRounds {
		_, err := col.InsertOne(ctx, doc)
		if err == nil {
			return nil, nil
		}
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("scrapper/mongo: reserve fingerprint: %w", err)
		}

		res, err := col.UpdateOne(ctx,
			bson.M{
				"_id":        e.Fingerprint,
				"expires_at": bson.M{"$ne": nil, "$lte": s.now()},
			},
			bson.M{"$set": bson.M{
				"job_id":     doc.JobID,
				"created_at": doc.CreatedAt,
				"expires_at": nil,
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("scrapper/mongo: reserve fingerprint: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil, nil
		}

		held, err := s.LookupFingerprint(ctx, e.Fingerprint)
		if err != nil {
			return nil, err
		}
		if held != nil {
			return held, nil
		}
	}
	return nil, fmt.Errorf("scrapper/mongo: reserve fingerprint: %w", scrapper.ErrStateConflict)
}

// ReplaceFingerprint swaps the owner if it is still previous.
func (s *Store) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	res, err := s.db.Collection(colFingerprints).UpdateOne(ctx,
		bson.M{"_id": e.Fingerprint, "job_id": previous.String()},
		bson.M{"$set": bson.M{
			"job_id":     e.JobID.String(),
			"created_at": e.CreatedAt.UTC(),
			"expires_at": nil,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("scrapper/mongo: replace fingerprint: %w", err)
	}
	return res.MatchedCount == 1, nil
}

// ReleaseFingerprint deletes the entry, or turns it into a cooldown marker
// expiring after ttl. No-op when jobID is no longer the owner.
func (s *Store) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	col := s.db.Collection(colFingerprints)
	filter := bson.M{"_id": fingerprint, "job_id": jobID.String()}

	var err error
	if ttl <= 0 {
		_, err = col.DeleteOne(ctx, filter)
	} else {
		_, err = col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"expires_at": s.now().Add(ttl)}})
	}
	if err != nil {
		return fmt.Errorf("scrapper/mongo: release fingerprint: %w", err)
	}
	return nil
}

// LookupFingerprint returns the live entry, or nil.
func (s *Store) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	var m fingerprintModel
	err := s.db.Collection(colFingerprints).FindOne(ctx, bson.M{
		"_id": fingerprint,
		"$or": bson.A{
			bson.M{"expires_at": nil},
			bson.M{"expires_at": bson.M{"$gt": s.now()}},
		},
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scrapper/mongo: lookup fingerprint: %w", err)
	}
	return fromFingerprintModel(&m)
}
