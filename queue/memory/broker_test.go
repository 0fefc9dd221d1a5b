package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/queue"
	"github.com/rahulsharmaah/content-scrapper/queue/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBroker(vis time.Duration) (*memory.Broker, *clock) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return memory.New(memory.WithVisibilityTimeout(vis), memory.WithClock(c.Now)), c
}

func TestDequeueEmpty(t *testing.T) {
	b, _ := newBroker(time.Minute)
	if _, err := b.Dequeue(context.Background()); !errors.Is(err, queue.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestFIFOAndAck(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroker(time.Minute)
	first, second := id.NewJobID(), id.NewJobID()
	_ = b.Enqueue(ctx, first, 0)
	_ = b.Enqueue(ctx, second, 0)

	d1, err := b.Dequeue(ctx)
	if err != nil || d1.JobID.String() != first.String() {
		t.Fatalf("first dequeue = %+v, %v", d1, err)
	}
	d2, _ := b.Dequeue(ctx)
	if d2.JobID.String() != second.String() {
		t.Fatalf("second dequeue = %s", d2.JobID)
	}

	if err := b.Ack(ctx, d1.Token); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := b.Ack(ctx, d1.Token); !errors.Is(err, queue.ErrInvalidToken) {
		t.Fatalf("double ack: expected ErrInvalidToken, got %v", err)
	}
	if n, _ := b.Len(ctx); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

func TestDelayedEnqueue(t *testing.T) {
	ctx := context.Background()
	b, c := newBroker(time.Minute)
	_ = b.Enqueue(ctx, id.NewJobID(), 10*time.Second)

	if _, err := b.Dequeue(ctx); !errors.Is(err, queue.ErrEmpty) {
		t.Fatalf("delayed message visible early: %v", err)
	}
	c.Advance(10 * time.Second)
	if _, err := b.Dequeue(ctx); err != nil {
		t.Fatalf("delayed message not visible: %v", err)
	}
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	ctx := context.Background()
	b, c := newBroker(30 * time.Second)
	jobID := id.NewJobID()
	_ = b.Enqueue(ctx, jobID, 0)

	d1, _ := b.Dequeue(ctx)
	if _, err := b.Dequeue(ctx); !errors.Is(err, queue.ErrEmpty) {
		t.Fatal("in-flight message delivered twice")
	}

	c.Advance(31 * time.Second)
	d2, err := b.Dequeue(ctx)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if d2.JobID.String() != jobID.String() || d2.Deliveries != 2 || d2.Token == d1.Token {
		t.Fatalf("unexpected redelivery %+v", d2)
	}

	// The stale token can no longer ack.
	if err := b.Ack(ctx, d1.Token); !errors.Is(err, queue.ErrInvalidToken) {
		t.Fatalf("stale ack: expected ErrInvalidToken, got %v", err)
	}
	if err := b.Ack(ctx, d2.Token); err != nil {
		t.Fatalf("current ack: %v", err)
	}
}

func TestNackWithDelay(t *testing.T) {
	ctx := context.Background()
	b, c := newBroker(time.Minute)
	_ = b.Enqueue(ctx, id.NewJobID(), 0)

	d, _ := b.Dequeue(ctx)
	if err := b.Nack(ctx, d.Token, 5*time.Second); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if _, err := b.Dequeue(ctx); !errors.Is(err, queue.ErrEmpty) {
		t.Fatal("nacked message visible before delay")
	}
	c.Advance(5 * time.Second)
	again, err := b.Dequeue(ctx)
	if err != nil || again.Deliveries != 2 {
		t.Fatalf("after delay: %+v, %v", again, err)
	}
}

func TestConcurrentDequeueDeliversOnce(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroker(time.Minute)
	for range 100 {
		_ = b.Enqueue(ctx, id.NewJobID(), 0)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				d, err := b.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[d.JobID.String()]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 100 {
		t.Fatalf("delivered %d distinct jobs, want 100", len(seen))
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Fatalf("job %s delivered %d times", jobID, n)
		}
	}
}
