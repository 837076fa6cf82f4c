// Package glicko implements the per-player rating update used by the
// engine: a Glicko-2 step against a single opponent rating with the
// volatility held constant.
//
// Names follow Glickman's paper:
//   - Mu, Phi: rating and deviation on the internal (Glicko-2) scale.
//   - G: weight that shrinks the influence of uncertain opponents.
//   - E: expected score against the opponent.
//   - V: estimated variance of the rating from this one outcome.
//
// The canonical algorithm re-estimates volatility on every rating period
// with an iterative root finder. Here volatility is a fixed system
// parameter and the new deviation is computed from it directly.
package glicko

import (
	"errors"
	"fmt"
	"math"
)

// Scale conversion and output bounds.
const (
	Scale  = 173.7178
	Center = 1500.0

	MinRating    = 100
	MaxRating    = 3000
	MinDeviation = 30
	MaxDeviation = 350

	// maxExponent bounds the logistic argument so math.Exp stays finite.
	maxExponent = 500.0
)

// Sentinel errors.
var (
	ErrNonFinite    = errors.New("non-finite rating")
	ErrInvalidScore = errors.New("score out of range")
)

// Rating is a rating and deviation pair on the display scale.
type Rating struct {
	Rating    float64
	Deviation float64
}

// Mu converts a display rating to the internal scale.
func Mu(rating float64) float64 { return (rating - Center) / Scale }

// Phi converts a display deviation to the internal scale.
func Phi(deviation float64) float64 { return deviation / Scale }

// G is the opponent-uncertainty weight. G(0) == 1 and it strictly
// decreases as phi grows.
func G(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

// ExpectedScore returns E(s | mu, muOpp, phiOpp).
func ExpectedScore(mu, muOpp, phiOpp float64) float64 {
	x := -G(phiOpp) * (mu - muOpp)
	x = math.Max(-maxExponent, math.Min(maxExponent, x))
	return 1 / (1 + math.Exp(x))
}

// Update applies one outcome against opponent to player. score is the
// player's result in [0,1]; fractional values are decayed outcomes.
// The returned rating is rounded and clamped to the output bounds.
func Update(player, opponent Rating, volatility, score float64) (Rating, error) {
	if score < 0 || score > 1 || math.IsNaN(score) {
		return Rating{}, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	mu, phi := Mu(player.Rating), Phi(player.Deviation)
	muOpp, phiOpp := Mu(opponent.Rating), Phi(opponent.Deviation)

	g := G(phiOpp)
	e := ExpectedScore(mu, muOpp, phiOpp)
	v := 1 / (g * g * e * (1 - e))

	phiStar := math.Sqrt(phi*phi + volatility*volatility)
	newPhi := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	newMu := mu + newPhi*newPhi*g*(score-e)

	rating := newMu*Scale + Center
	deviation := newPhi * Scale
	if !finite(rating) || !finite(deviation) {
		return Rating{}, fmt.Errorf("%w: rating=%v deviation=%v", ErrNonFinite, rating, deviation)
	}
	return Rating{
		Rating:    clamp(math.RoundToEven(rating), MinRating, MaxRating),
		Deviation: clamp(math.RoundToEven(deviation), MinDeviation, MaxDeviation),
	}, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
