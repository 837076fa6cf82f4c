package engine

import (
	"time"

	"github.com/okian/sandscore/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the source of the reference instant. It is read once per Run.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithReferenceTime pins the reference instant used for time decay.
func WithReferenceTime(t time.Time) Option {
	return func(e *Engine) {
		if !t.IsZero() {
			e.clock = func() time.Time { return t }
		}
	}
}

// WithObserver registers a hook called after every pass.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithHistory makes Run return the final pass's per-match rating trail.
func WithHistory(enabled bool) Option {
	return func(e *Engine) {
		e.history = enabled
	}
}
