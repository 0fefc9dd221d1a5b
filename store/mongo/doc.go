// Package mongo implements store.Store on MongoDB using the official v2
// driver. Jobs, fingerprints and schedules live in three collections.
// Conditional updates filter on the expected fields, and fingerprint
// reservation relies on _id uniqueness for atomic insert-if-absent.
//
//	store, err := mongo.Open(ctx, "mongodb://localhost:27017", "scrapper")
//	if err != nil { ... }
//	defer store.Close()
//	store.Migrate(ctx)
//
// BSON datetimes have millisecond precision; stored timestamps are
// truncated accordingly.
package mongo
