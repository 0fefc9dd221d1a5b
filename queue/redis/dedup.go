package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
)

// Fingerprint entries are hashes {job_id, created_at, expires_at}. Cooldown
// entries carry a key TTL, so Redis drops them on expiry.

// KEYS[1] entry; ARGV[1] job id, ARGV[2] created_at ms
var reserveScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('HMGET', KEYS[1], 'job_id', 'created_at', 'expires_at')
end
redis.call('HSET', KEYS[1], 'job_id', ARGV[1], 'created_at', ARGV[2])
return false
`)

// KEYS[1] entry; ARGV[1] previous job id, ARGV[2] new job id, ARGV[3] created_at ms
var replaceScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'job_id') ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'job_id', ARGV[2], 'created_at', ARGV[3])
return 1
`)

// KEYS[1] entry; ARGV[1] job id, ARGV[2] ttl ms, ARGV[3] expires_at ms
var releaseScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'job_id') ~= ARGV[1] then return 0 end
if tonumber(ARGV[2]) <= 0 then
  redis.call('DEL', KEYS[1])
else
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[3])
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`)

// ReserveFingerprint inserts e unless a live entry exists.
func (b *Broker) ReserveFingerprint(ctx context.Context, e *dedup.Entry) (*dedup.Entry, error) {
	res, err := reserveScript.Run(ctx, b.client,
		[]string{b.dedupKey(e.Fingerprint)},
		e.JobID.String(), e.CreatedAt.UnixMilli(),
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scrapper/redis: reserve fingerprint: %w", err)
	}
	return entryFromFields(e.Fingerprint, res)
}

// ReplaceFingerprint swaps the owner if it is still previous.
func (b *Broker) ReplaceFingerprint(ctx context.Context, previous id.JobID, e *dedup.Entry) (bool, error) {
	ok, err := replaceScript.Run(ctx, b.client,
		[]string{b.dedupKey(e.Fingerprint)},
		previous.String(), e.JobID.String(), e.CreatedAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("scrapper/redis: replace fingerprint: %w", err)
	}
	return ok == 1, nil
}

// ReleaseFingerprint ends jobID's ownership.
func (b *Broker) ReleaseFingerprint(ctx context.Context, fingerprint string, jobID id.JobID, ttl time.Duration) error {
	err := releaseScript.Run(ctx, b.client,
		[]string{b.dedupKey(fingerprint)},
		jobID.String(), ttl.Milliseconds(), b.now().Add(ttl).UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("scrapper/redis: release fingerprint: %w", err)
	}
	return nil
}

// LookupFingerprint returns the live entry, or nil.
func (b *Broker) LookupFingerprint(ctx context.Context, fingerprint string) (*dedup.Entry, error) {
	res, err := b.client.HMGet(ctx, b.dedupKey(fingerprint), "job_id", "created_at", "expires_at").Result()
	if err != nil {
		return nil, fmt.Errorf("scrapper/redis: lookup fingerprint: %w", err)
	}
	if res[0] == nil {
		return nil, nil
	}
	return entryFromFields(fingerprint, res)
}

func entryFromFields(fp string, fields []any) (*dedup.Entry, error) {
	if len(fields) != 3 {
		return nil, fmt.Errorf("scrapper/redis: fingerprint entry: unexpected reply %v", fields)
	}
	raw, _ := fields[0].(string)
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return nil, fmt.Errorf("scrapper/redis: fingerprint entry: %w", err)
	}
	e := &dedup.Entry{Fingerprint: fp, JobID: jobID}
	if ms, ok := millis(fields[1]); ok {
		e.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, ok := millis(fields[2]); ok {
		t := time.UnixMilli(ms).UTC()
		e.ExpiresAt = &t
	}
	return e, nil
}

func millis(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
