package worker

import (
	"context"
	"time"

	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBatchSize caps the number of matches written at once.
func WithBatchSize(n int) Option {
	return func(w *InMemoryWorker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long a partial batch waits for more matches.
func WithFlushInterval(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithOnFailed sets a callback run for every match that could not be
// stored, before it is counted as failed.
func WithOnFailed(fn func(ctx context.Context, m model.Match)) Option {
	return func(w *InMemoryWorker) {
		w.onFailed = fn
	}
}

func withCounters(c *Counters) Option {
	return func(w *InMemoryWorker) {
		w.counters = c
	}
}
