package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/sandscore/internal/domain/decay"
	"github.com/okian/sandscore/internal/domain/glicko"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
)

// ratings is the live per-bracket state of one pass.
type ratings map[string]glicko.Rating

// passOutput is what one pass produces.
type passOutput struct {
	states    map[model.Bracket]ratings
	processed int
	// history is only filled when the pass was asked to record it, in
	// bracket order and then match order.
	history []model.RatingChange
}

// runPass folds every bracket from a fresh default state. Brackets run
// concurrently; the first error in bracket order wins.
func (e *Engine) runPass(ctx context.Context, pass int, ids []string, schedule map[model.Bracket][]scheduled, record bool) (passOutput, error) {
	brackets := model.Brackets()
	states := make([]ratings, len(brackets))
	counts := make([]int, len(brackets))
	trails := make([][]model.RatingChange, len(brackets))
	errs := make([]error, len(brackets))

	var wg sync.WaitGroup
	for i, b := range brackets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var trail *[]model.RatingChange
			if record {
				trails[i] = make([]model.RatingChange, 0, 4*len(schedule[b]))
				trail = &trails[i]
			}
			states[i], counts[i], errs[i] = e.fold(e.fresh(ids), schedule[b], trail)
		}()
	}
	wg.Wait()

	out := passOutput{states: make(map[model.Bracket]ratings, len(brackets))}
	for i, b := range brackets {
		if errs[i] != nil {
			err := fmt.Errorf("pass %d, bracket %s: %w", pass, b, errs[i])
			e.logger.Error(ctx, "pass aborted", logger.Error(err))
			return passOutput{}, err
		}
		out.states[b] = states[i]
		out.processed += counts[i]
		out.history = append(out.history, trails[i]...)
	}
	return out, nil
}

// fresh returns a new state with every known player at the defaults.
func (e *Engine) fresh(ids []string) ratings {
	state := make(ratings, len(ids))
	seed := glicko.Rating{Rating: e.params.DefaultRating, Deviation: e.params.DefaultDeviation}
	for _, id := range ids {
		state[id] = seed
	}
	return state
}

// fold reduces the ordered schedule over state. Order matters: each step
// reads the ratings written by every step before it. A non-nil trail
// receives every player's rating after each match.
func (e *Engine) fold(state ratings, schedule []scheduled, trail *[]model.RatingChange) (ratings, int, error) {
	for i, s := range schedule {
		if err := e.step(state, s, trail); err != nil {
			return nil, i, err
		}
	}
	return state, len(schedule), nil
}

// step rates one match: both composites and all four updates are computed
// from the state before the match, then written back together.
func (e *Engine) step(state ratings, s scheduled, trail *[]model.RatingChange) error {
	m := s.match
	team1 := glicko.Composite(state[m.Team1.Player1], state[m.Team1.Player2])
	team2 := glicko.Composite(state[m.Team2.Player1], state[m.Team2.Player2])
	score1 := decay.Blend(m.Score(1), s.weight)
	score2 := decay.Blend(m.Score(2), s.weight)

	updates := [4]struct {
		id       string
		opponent glicko.Rating
		score    float64
	}{
		{m.Team1.Player1, team2, score1},
		{m.Team1.Player2, team2, score1},
		{m.Team2.Player1, team1, score2},
		{m.Team2.Player2, team1, score2},
	}

	var next [4]glicko.Rating
	for i, u := range updates {
		r, err := glicko.Update(state[u.id], u.opponent, e.params.Volatility, u.score)
		if err != nil {
			return fmt.Errorf("match %s, player %s: %w", m.ID, u.id, err)
		}
		next[i] = r
	}
	for i, u := range updates {
		state[u.id] = next[i]
	}
	if trail != nil {
		for i, u := range updates {
			*trail = append(*trail, model.RatingChange{
				MatchID:   m.ID,
				PlayerID:  u.id,
				Bracket:   m.Bracket,
				PlayedAt:  m.PlayedAt,
				Won:       m.WinningTeam == i/2+1,
				Rating:    int(next[i].Rating),
				Deviation: int(next[i].Deviation),
			})
		}
	}
	return nil
}
