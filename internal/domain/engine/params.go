package engine

import (
	"fmt"
	"math"

	"github.com/okian/sandscore/internal/domain/model"
)

// Default engine parameters.
const (
	DefaultPasses        = 10
	DefaultHalfLifeDays  = 180
	DefaultMinTimeWeight = 0.1
	DefaultVolatility    = 0.06
)

// Params are the numeric settings of a recalculation.
type Params struct {
	// Passes is the number of full replays of the match history.
	Passes int
	// HalfLifeDays is the age at which an outcome counts half.
	HalfLifeDays float64
	// MinTimeWeight floors the decay so old matches keep some signal.
	MinTimeWeight float64
	// DefaultRating and DefaultDeviation seed every player each pass.
	DefaultRating    float64
	DefaultDeviation float64
	// Volatility is the constant sigma of the update.
	Volatility float64
}

// DefaultParams returns the production settings.
func DefaultParams() Params {
	return Params{
		Passes:           DefaultPasses,
		HalfLifeDays:     DefaultHalfLifeDays,
		MinTimeWeight:    DefaultMinTimeWeight,
		DefaultRating:    model.DefaultRating,
		DefaultDeviation: model.DefaultDeviation,
		Volatility:       DefaultVolatility,
	}
}

// Validate rejects parameters the engine cannot run with.
func (p Params) Validate() error {
	switch {
	case p.Passes < 1:
		return fmt.Errorf("%w: passes must be at least 1, got %d", ErrInvalidConfig, p.Passes)
	case !(p.HalfLifeDays > 0) || math.IsInf(p.HalfLifeDays, 1):
		return fmt.Errorf("%w: half-life must be positive, got %v", ErrInvalidConfig, p.HalfLifeDays)
	case !(p.MinTimeWeight >= 0 && p.MinTimeWeight <= 1):
		return fmt.Errorf("%w: min time weight must be in [0,1], got %v", ErrInvalidConfig, p.MinTimeWeight)
	case !finite(p.DefaultRating):
		return fmt.Errorf("%w: default rating %v", ErrInvalidConfig, p.DefaultRating)
	case !(p.DefaultDeviation > 0) || !finite(p.DefaultDeviation):
		return fmt.Errorf("%w: default deviation must be positive, got %v", ErrInvalidConfig, p.DefaultDeviation)
	case !(p.Volatility > 0) || !finite(p.Volatility):
		return fmt.Errorf("%w: volatility must be positive, got %v", ErrInvalidConfig, p.Volatility)
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
