package engine

import (
	"context"
	"time"

	"github.com/okian/sandscore/internal/domain/model"
)

// Result is the authoritative output of a run: the final pass's ratings.
type Result struct {
	// Profiles holds every known player, sorted by id.
	Profiles []model.Profile
	// Records holds processed matches, wins and losses per bracket and
	// player. Players without a processed match are absent.
	Records map[model.Bracket]map[string]model.Record
	// History is every player's rating after each match of the final
	// pass, in bracket order and then match order. Empty unless the
	// engine was built WithHistory.
	History []model.RatingChange
	Stats   Stats
}

// Stats summarises a run.
type Stats struct {
	Passes                  int
	MatchesTotal            int
	MatchesValid            int
	MatchesProcessedPerPass []int
	MatchesSkipped          int
	DuplicatesSkipped       int
	PassDeltas              []float64
	ReferenceTime           time.Time
	Duration                time.Duration
}

// PassReport describes one completed pass.
type PassReport struct {
	Pass      int
	Passes    int
	Processed int
	// Delta is the summed absolute rating change of every player against
	// the previous pass's final ratings (the input snapshot for pass 1).
	Delta    float64
	Duration time.Duration
}

// Observer receives a report after every pass. It must not retain state
// owned by the engine.
type Observer interface {
	ObservePass(ctx context.Context, r PassReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r PassReport)

// ObservePass calls f.
func (f ObserverFunc) ObservePass(ctx context.Context, r PassReport) { f(ctx, r) }
