// Package decay weights match outcomes by age with an exponential
// half-life and a floor, pulling old results toward a draw.
package decay

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const hoursPerDay = 24

// ErrInvalidParams reports an unusable half-life or floor.
var ErrInvalidParams = errors.New("invalid decay parameters")

// Weighter converts match age into an outcome weight.
type Weighter struct {
	halfLifeDays float64
	minWeight    float64
}

// New builds a Weighter. halfLifeDays must be positive and minWeight must
// lie in [0,1].
func New(halfLifeDays, minWeight float64) (Weighter, error) {
	if !(halfLifeDays > 0) || math.IsInf(halfLifeDays, 1) {
		return Weighter{}, fmt.Errorf("%w: half-life %v days", ErrInvalidParams, halfLifeDays)
	}
	if !(minWeight >= 0 && minWeight <= 1) {
		return Weighter{}, fmt.Errorf("%w: min weight %v", ErrInvalidParams, minWeight)
	}
	return Weighter{halfLifeDays: halfLifeDays, minWeight: minWeight}, nil
}

// HalfLifeDays returns the configured half-life.
func (w Weighter) HalfLifeDays() float64 { return w.halfLifeDays }

// MinWeight returns the configured floor.
func (w Weighter) MinWeight() float64 { return w.minWeight }

// Weight returns max(0.5^(age/halfLife), minWeight).
func (w Weighter) Weight(ageDays float64) float64 {
	return math.Max(math.Pow(0.5, ageDays/w.halfLifeDays), w.minWeight)
}

// ForMatch returns the weight of a match played at playedAt, seen from now.
func (w Weighter) ForMatch(playedAt, now time.Time) float64 {
	return w.Weight(float64(AgeDays(playedAt, now)))
}

// AgeDays returns the whole days elapsed between playedAt and now. Partial
// days are dropped and matches after now have age zero.
func AgeDays(playedAt, now time.Time) int {
	elapsed := now.Sub(playedAt)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed.Hours() / hoursPerDay)
}

// Blend pulls a raw outcome toward 0.5 in proportion to the weight.
func Blend(raw, weight float64) float64 {
	return 0.5 + (raw-0.5)*weight
}
