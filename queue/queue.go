package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
)

var (
	// ErrEmpty is returned by Dequeue when no message is visible.
	ErrEmpty = errors.New("queue: empty")

	// ErrInvalidToken is returned by Ack and Nack when the token does not
	// match the current delivery, typically because the visibility
	// timeout elapsed and the message was redelivered.
	ErrInvalidToken = errors.New("queue: invalid or expired delivery token")
)

// Delivery is one delivery of a queued job reference.
type Delivery struct {
	JobID id.JobID
	// Token identifies this delivery for Ack and Nack.
	Token string
	// Deliveries counts how many times the message was handed out,
	// including this one.
	Deliveries int
	EnqueuedAt time.Time
}

// Broker is the queue adapter.
type Broker interface {
	// Enqueue makes jobID visible after delay.
	Enqueue(ctx context.Context, jobID id.JobID, delay time.Duration) error

	// Dequeue claims the earliest visible message and hides it for the
	// visibility timeout. Returns ErrEmpty when nothing is visible.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Ack removes the delivered message for good.
	Ack(ctx context.Context, token string) error

	// Nack makes the delivered message visible again after delay.
	Nack(ctx context.Context, token string, delay time.Duration) error
}

// Lengther is implemented by brokers that can report their depth.
type Lengther interface {
	Len(ctx context.Context) (int64, error)
}
