// Package redis implements queue.Broker and dedup.Index on Redis.
//
// Messages live in a sorted set scored by the instant they become visible
// (unix milliseconds). Each message has a hash holding its msgpack-encoded
// envelope, its delivery count and the token of the current delivery.
// Claiming, acking and nacking run as Lua scripts so the visibility check
// and the update are atomic.
//
// The scripts build message keys from the queue prefix passed in ARGV, so
// all queue keys share one hash tag and one Redis Cluster slot. A single
// broker prefix is therefore served by a single shard.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	b := redisqueue.New(client, redisqueue.WithVisibilityTimeout(2*time.Minute))
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rahulsharmaah/content-scrapper/dedup"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/queue"
)

// Compile-time interface checks.
var (
	_ queue.Broker   = (*Broker)(nil)
	_ queue.Lengther = (*Broker)(nil)
	_ dedup.Index    = (*Broker)(nil)
)

// Option configures the Broker.
type Option func(*Broker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithPrefix sets the key prefix. Defaults to "scrapper:". Queue keys wrap
// it in a hash tag.
func WithPrefix(p string) Option {
	return func(b *Broker) { b.prefix = p }
}

// WithVisibilityTimeout sets how long a delivery stays hidden.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(b *Broker) { b.visibility = d }
}

// Broker is a Redis-backed queue.Broker.
type Broker struct {
	client     goredis.Cmdable
	logger     *slog.Logger
	prefix     string
	visibility time.Duration
	now        func() time.Time
}

// New creates a Broker. The caller owns the Redis client lifecycle.
func New(client goredis.Cmdable, opts ...Option) *Broker {
	b := &Broker{
		client:     client,
		logger:     slog.Default(),
		prefix:     "scrapper:",
		visibility: 2 * time.Minute,
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Ping verifies the Redis connection is alive.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// envelope is the msgpack payload of a queued message.
type envelope struct {
	JobID      string    `msgpack:"job_id"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
}

// KEYS[1] queue zset, KEYS[2] sequence
// ARGV[1] message key prefix, ARGV[2] body, ARGV[3] visible-at ms
var enqueueScript = goredis.NewScript(`
local mid = tostring(redis.call('INCR', KEYS[2]))
redis.call('HSET', ARGV[1] .. mid, 'body', ARGV[2], 'deliveries', 0)
redis.call('ZADD', KEYS[1], ARGV[3], mid)
return mid
`)

// KEYS[1] queue zset
// ARGV[1] message key prefix, ARGV[2] now ms, ARGV[3] visibility ms
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[2], 'LIMIT', 0, 1)
if #ids == 0 then return false end
local mid = ids[1]
local key = ARGV[1] .. mid
local body = redis.call('HGET', key, 'body')
if not body then
  redis.call('ZREM', KEYS[1], mid)
  return false
end
local n = redis.call('HINCRBY', key, 'deliveries', 1)
local token = mid .. ':' .. n
redis.call('HSET', key, 'token', token)
redis.call('ZADD', KEYS[1], tonumber(ARGV[2]) + tonumber(ARGV[3]), mid)
return {token, body, n}
`)

// KEYS[1] queue zset, KEYS[2] message hash
// ARGV[1] mid, ARGV[2] token, ARGV[3] now ms
var ackScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) <= tonumber(ARGV[3]) then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
return 1
`)

// KEYS[1] queue zset, KEYS[2] message hash
// ARGV[1] mid, ARGV[2] token, ARGV[3] now ms, ARGV[4] visible-at ms
var nackScript = goredis.NewScript(`
if redis.call('HGET', KEYS[2], 'token') ~= ARGV[2] then return 0 end
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) <= tonumber(ARGV[3]) then return 0 end
redis.call('HDEL', KEYS[2], 'token')
redis.call('ZADD', KEYS[1], ARGV[4], ARGV[1])
return 1
`)

// Enqueue adds a message visible after delay.
func (b *Broker) Enqueue(ctx context.Context, jobID id.JobID, delay time.Duration) error {
	now := b.now()
	body, err := msgpack.Marshal(&envelope{JobID: jobID.String(), EnqueuedAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("scrapper/redis: encode envelope: %w", err)
	}

	visibleAt := now.Add(max(delay, 0)).UnixMilli()
	err = enqueueScript.Run(ctx, b.client,
		[]string{b.queueKey(), b.seqKey()},
		b.messagePrefix(), body, visibleAt,
	).Err()
	if err != nil {
		return fmt.Errorf("scrapper/redis: enqueue: %w", err)
	}
	return nil
}

// Dequeue claims the earliest visible message.
func (b *Broker) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	res, err := claimScript.Run(ctx, b.client,
		[]string{b.queueKey()},
		b.messagePrefix(), b.now().UnixMilli(), b.visibility.Milliseconds(),
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, queue.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("scrapper/redis: dequeue: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("scrapper/redis: dequeue: unexpected reply %v", res)
	}

	token, _ := res[0].(string)
	body, _ := res[1].(string)
	deliveries, _ := res[2].(int64)

	var env envelope
	if err := msgpack.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("scrapper/redis: decode envelope: %w", err)
	}
	jobID, err := id.ParseJobID(env.JobID)
	if err != nil {
		return nil, fmt.Errorf("scrapper/redis: decode envelope: %w", err)
	}

	return &queue.Delivery{
		JobID:      jobID,
		Token:      token,
		Deliveries: int(deliveries),
		EnqueuedAt: env.EnqueuedAt,
	}, nil
}

// Ack deletes the delivered message.
func (b *Broker) Ack(ctx context.Context, token string) error {
	mid, err := midOf(token)
	if err != nil {
		return err
	}
	ok, err := ackScript.Run(ctx, b.client,
		[]string{b.queueKey(), b.messagePrefix() + mid},
		mid, token, b.now().UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("scrapper/redis: ack: %w", err)
	}
	if ok == 0 {
		return queue.ErrInvalidToken
	}
	return nil
}

// Nack makes the delivered message visible after delay.
func (b *Broker) Nack(ctx context.Context, token string, delay time.Duration) error {
	mid, err := midOf(token)
	if err != nil {
		return err
	}
	now := b.now()
	ok, err := nackScript.Run(ctx, b.client,
		[]string{b.queueKey(), b.messagePrefix() + mid},
		mid, token, now.UnixMilli(), now.Add(max(delay, 0)).UnixMilli(),
	).Int()
	if err != nil {
		return fmt.Errorf("scrapper/redis: nack: %w", err)
	}
	if ok == 0 {
		return queue.ErrInvalidToken
	}
	return nil
}

// Len returns the number of queued messages, visible or not.
func (b *Broker) Len(ctx context.Context) (int64, error) {
	n, err := b.client.ZCard(ctx, b.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("scrapper/redis: len: %w", err)
	}
	return n, nil
}

func midOf(token string) (string, error) {
	mid, n, ok := strings.Cut(token, ":")
	if !ok || mid == "" {
		return "", queue.ErrInvalidToken
	}
	if _, err := strconv.Atoi(n); err != nil {
		return "", queue.ErrInvalidToken
	}
	return mid, nil
}
