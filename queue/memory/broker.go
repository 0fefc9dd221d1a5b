// Package memory provides an in-process queue.Broker with visibility
// timeouts. Safe for concurrent use.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/queue"
)

var _ queue.Broker = (*Broker)(nil)

// Option configures a Broker.
type Option func(*Broker)

// WithVisibilityTimeout sets how long a delivery stays hidden.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(b *Broker) { b.visibility = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

type message struct {
	seq        uint64
	jobID      id.JobID
	visibleAt  time.Time
	enqueuedAt time.Time
	deliveries int
	token      string
}

// Broker is an in-memory queue.
type Broker struct {
	mu         sync.Mutex
	messages   map[uint64]*message
	byToken    map[string]*message
	seq        uint64
	visibility time.Duration
	now        func() time.Time
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		messages:   make(map[uint64]*message),
		byToken:    make(map[string]*message),
		visibility: 2 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue adds a message visible after delay.
func (b *Broker) Enqueue(_ context.Context, jobID id.JobID, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.seq++
	b.messages[b.seq] = &message{
		seq:        b.seq,
		jobID:      jobID,
		visibleAt:  now.Add(max(delay, 0)),
		enqueuedAt: now,
	}
	return nil
}

// Dequeue claims the earliest visible message.
func (b *Broker) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var next *message
	for _, m := range b.messages {
		if m.visibleAt.After(now) {
			continue
		}
		if next == nil || m.visibleAt.Before(next.visibleAt) ||
			(m.visibleAt.Equal(next.visibleAt) && m.seq < next.seq) {
			next = m
		}
	}
	if next == nil {
		return nil, queue.ErrEmpty
	}

	if next.token != "" {
		delete(b.byToken, next.token)
	}
	next.deliveries++
	next.token = strconv.FormatUint(next.seq, 10) + "." + strconv.Itoa(next.deliveries)
	next.visibleAt = now.Add(b.visibility)
	b.byToken[next.token] = next

	return &queue.Delivery{
		JobID:      next.jobID,
		Token:      next.token,
		Deliveries: next.deliveries,
		EnqueuedAt: next.enqueuedAt,
	}, nil
}

// Ack deletes the delivered message.
func (b *Broker) Ack(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.claimed(token)
	if err != nil {
		return err
	}
	delete(b.byToken, token)
	delete(b.messages, m.seq)
	return nil
}

// Nack makes the delivered message visible after delay.
func (b *Broker) Nack(_ context.Context, token string, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, err := b.claimed(token)
	if err != nil {
		return err
	}
	delete(b.byToken, token)
	m.token = ""
	m.visibleAt = b.now().Add(max(delay, 0))
	return nil
}

// Len returns the number of messages, visible or not.
func (b *Broker) Len(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.messages)), nil
}

// claimed returns the message held by token if its lease is still valid.
func (b *Broker) claimed(token string) (*message, error) {
	m, ok := b.byToken[token]
	if !ok || m.token != token || !m.visibleAt.After(b.now()) {
		return nil, queue.ErrInvalidToken
	}
	return m, nil
}
