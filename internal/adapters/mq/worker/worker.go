// Package worker drains the ingestion queue into the match store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	"github.com/okian/sandscore/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultBatchSize     = 100
	defaultFlushInterval = 200 * time.Millisecond
)

// Writer persists matches. A batch either lands whole or not at all.
type Writer interface {
	InsertMatches(ctx context.Context, matches []model.Match) error
}

// Queue defines how workers receive matches.
type Queue interface {
	Dequeue() <-chan model.Match
}

// Counters accumulates what a worker has written.
type Counters struct {
	Written    atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
}

// InMemoryWorker batches queued matches and writes them to the store.
type InMemoryWorker struct {
	queue  Queue
	writer Writer
	name   string

	batchSize     int
	flushInterval time.Duration
	counters      *Counters
	onFailed      func(ctx context.Context, m model.Match)

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, writer Writer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:         queue,
		writer:        writer,
		name:          "worker",
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("ingest")
	}
	if w.counters == nil {
		w.counters = &Counters{}
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. It returns when ctx is canceled, Shutdown is
// called, or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	in := w.queue.Dequeue()
	batch := make([]model.Match, 0, w.batchSize)
	for {
		// Block for the first match of a batch.
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			batch = append(batch, m)
		}

		open := w.fill(ctx, in, &batch)
		w.write(ctx, batch)
		batch = batch[:0]
		if !open {
			return
		}
	}
}

// fill tops the batch up until it is full, the flush interval passes, or
// the queue closes. It reports whether the queue is still open.
func (w *InMemoryWorker) fill(ctx context.Context, in <-chan model.Match, batch *[]model.Match) bool {
	timer := time.NewTimer(w.flushInterval)
	defer timer.Stop()
	for len(*batch) < w.batchSize {
		select {
		case m, ok := <-in:
			if !ok {
				return false
			}
			*batch = append(*batch, m)
		case <-timer.C:
			return true
		case <-ctx.Done():
			return true
		case <-w.shutdown:
			return true
		}
	}
	return true
}

// write stores a batch. When the batch is refused, matches are retried one
// at a time so a single duplicate does not drop its neighbours.
func (w *InMemoryWorker) write(ctx context.Context, batch []model.Match) {
	start := time.Now()
	var written, duplicates, failed int
	defer func() {
		w.counters.Written.Add(int64(written))
		w.counters.Duplicates.Add(int64(duplicates))
		w.counters.Failed.Add(int64(failed))
		metrics.RecordIngestBatch(len(batch), written, duplicates, failed,
			float64(time.Since(start).Microseconds())/1000)
	}()

	err := w.writer.InsertMatches(ctx, batch)
	if err == nil {
		written = len(batch)
		return
	}
	if len(batch) > 1 {
		w.logger.Debug(ctx, "batch refused, writing matches one by one",
			logger.Int("size", len(batch)),
			logger.Error(err),
		)
	}
	for _, m := range batch {
		merr := err
		if len(batch) > 1 {
			merr = w.writer.InsertMatches(ctx, []model.Match{m})
		}
		switch {
		case merr == nil:
			written++
		case errors.Is(merr, sqlite.ErrAlreadyExists):
			duplicates++
			w.logger.Debug(ctx, "match already stored", logger.String("match_id", m.ID))
		default:
			failed++
			w.logger.Error(ctx, "match write failed",
				logger.String("match_id", m.ID),
				logger.Error(merr),
			)
			if w.onFailed != nil {
				w.onFailed(ctx, m)
			}
		}
	}
}

// Shutdown stops the worker after its current batch.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers, at least one, sharing
// the same queue and writer. opts apply to every worker.
func NewPool(workerCount int, queue Queue, writer Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    queue,
		counters: &Counters{},
		logger:   logger.Get().Named("ingest-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{withCounters(p.counters)}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(queue, writer, wopts...)
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Written returns the number of matches stored by the pool.
func (p *Pool) Written() int64 { return p.counters.Written.Load() }

// Duplicates returns the number of matches the store already held.
func (p *Pool) Duplicates() int64 { return p.counters.Duplicates.Load() }

// Failed returns the number of matches that could not be stored.
func (p *Pool) Failed() int64 { return p.counters.Failed.Load() }

// Shutdown closes the queue and waits for the workers to drain it or for
// ctx to end, whichever comes first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("drain ingestion queue: %w", ctx.Err())
		}
	}
	return nil
}
