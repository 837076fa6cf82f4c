package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/sandscore/internal/adapters/mq/queue"
	"github.com/okian/sandscore/internal/adapters/mq/worker"
	"github.com/okian/sandscore/internal/domain/dedupe"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
)

// Ingestion defaults.
const (
	defaultIngestQueueSize = 10000
	defaultIngestWorkers   = 1
	defaultIngestBatchSize = 100
	defaultDedupeCapacity  = 50000
)

// ErrIngestStopped is returned by SubmitMatch when the ingestion pipeline
// is not running.
var ErrIngestStopped = errors.New("match ingestion not running")

// IngestStats describes the ingestion pipeline.
type IngestStats struct {
	Running    bool  `json:"running"`
	Workers    int   `json:"workers"`
	Queued     int   `json:"queued"`
	Capacity   int   `json:"capacity"`
	Seen       int64 `json:"seen"`
	Written    int64 `json:"written"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// WithIngestQueueSize sets the capacity of the ingestion queue.
func WithIngestQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ingestQueueSize = n
		}
	}
}

// WithIngestWorkers sets the number of store writers.
func WithIngestWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ingestWorkers = n
		}
	}
}

// WithIngestBatchSize caps the number of matches written per transaction.
func WithIngestBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.ingestBatchSize = n
		}
	}
}

// Start launches the ingestion workers. It is a no-op when already started.
// Workers outlive ctx's cancellation so Stop can drain the queue.
func (s *Service) Start(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if s.pool != nil {
		return nil
	}
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.ingestQueueSize))
	s.pool = worker.NewPool(s.ingestWorkers, s.queue, s.store,
		worker.WithBatchSize(s.ingestBatchSize),
		worker.WithLogger(s.logger.Named("ingest")),
		// A match that never reached the store may be submitted again.
		worker.WithOnFailed(func(ctx context.Context, m model.Match) {
			s.deduper.Unrecord(ctx, m.ID)
		}),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWorkers = cancel
	s.pool.Start(runCtx)

	s.logger.Info(ctx, "match ingestion started",
		logger.Int("workers", s.ingestWorkers),
		logger.Int("queue_size", s.ingestQueueSize),
		logger.Int("batch_size", s.ingestBatchSize),
	)
	return nil
}

// Stop closes the ingestion queue and waits, bounded by ctx, for the
// workers to write what is left.
func (s *Service) Stop(ctx context.Context) error {
	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	if s.pool == nil {
		return nil
	}
	err := s.pool.Shutdown(ctx)
	s.stopWorkers()
	s.logger.Info(ctx, "match ingestion stopped",
		logger.Any("written", s.pool.Written()),
		logger.Any("duplicates", s.pool.Duplicates()),
		logger.Any("failed", s.pool.Failed()),
	)
	s.stopped = s.pool
	s.pool, s.queue = nil, nil
	return err
}

// SubmitMatch validates m and queues it for storage. A match id seen
// before is reported as a duplicate and not queued again. Stored matches
// count from the next recalculation on.
func (s *Service) SubmitMatch(ctx context.Context, m model.Match) (duplicate bool, err error) {
	if err := m.Validate(); err != nil {
		return false, err
	}

	s.ingestMu.RLock()
	defer s.ingestMu.RUnlock()
	if s.queue == nil {
		return false, ErrIngestStopped
	}

	if s.deduper.SeenAndRecord(ctx, m.ID) {
		s.logger.Debug(ctx, "duplicate match submitted", logger.String("match_id", m.ID))
		return true, nil
	}
	if err := s.queue.Enqueue(ctx, m); err != nil {
		// Forget the id so the client can retry.
		s.deduper.Unrecord(ctx, m.ID)
		if errors.Is(err, queue.ErrClosed) {
			return false, ErrIngestStopped
		}
		return false, fmt.Errorf("enqueue match %s: %w", m.ID, err)
	}
	return false, nil
}

func (s *Service) ingestStats() IngestStats {
	s.ingestMu.RLock()
	defer s.ingestMu.RUnlock()

	st := IngestStats{
		Workers:  s.ingestWorkers,
		Capacity: s.ingestQueueSize,
		Seen:     s.deduper.Size(),
	}
	pool := s.pool
	if pool == nil {
		pool = s.stopped
	} else {
		st.Running = true
		st.Queued = s.queue.Len()
	}
	if pool != nil {
		st.Written = pool.Written()
		st.Duplicates = pool.Duplicates()
		st.Failed = pool.Failed()
	}
	return st
}

func newDeduper() dedupe.Deduper {
	return dedupe.NewInMemoryDeduper(dedupe.WithCapacity(defaultDedupeCapacity))
}
