// Package queue buffers ingested matches between the HTTP API and the
// store writers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a match without blocking. It fails with ErrFull when
	// the queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, m model.Match) error

	// Dequeue returns the channel matches are delivered on. The channel is
	// closed once the queue is closed and drained.
	Dequeue() <-chan model.Match

	// Len returns the current number of queued matches.
	Len() int

	// Close stops accepting matches. Queued matches stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	matches  chan model.Match
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.matches = make(chan model.Match, q.capacity)
	q.report()
	return q
}

// Enqueue adds a match to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, m model.Match) error { //nolint:gocritic // hugeParam: Match is passed by value for channel semantics
	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordIngestRejected("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordIngestRejected("context_cancelled")
		return err
	}

	select {
	case q.matches <- m:
		metrics.RecordIngestEnqueued()
		q.report()
		return nil
	default:
		metrics.RecordIngestRejected("queue_full")
		return ErrFull
	}
}

// Dequeue returns the delivery channel.
func (q *InMemoryQueue) Dequeue() <-chan model.Match {
	return q.matches
}

// Len returns the current number of queued matches.
func (q *InMemoryQueue) Len() int {
	return len(q.matches)
}

// Capacity returns the maximum number of queued matches.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close stops accepting matches.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.matches)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) report() {
	metrics.SetIngestQueue(len(q.matches), q.capacity)
}
