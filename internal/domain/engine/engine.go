// Package engine recomputes every player's rating from the full match
// history.
//
// A run validates and orders the matches, then replays them a fixed
// number of times. Each pass starts every known player from the default
// rating and folds the matches in chronological order, so later matches
// in a pass see the ratings produced by earlier ones. The final pass's
// ratings are the result. Brackets share no state and are folded
// concurrently; matches within a bracket never are.
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/sandscore/internal/domain/decay"
	"github.com/okian/sandscore/internal/domain/dedupe"
	"github.com/okian/sandscore/internal/domain/glicko"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
)

// Engine runs batch recalculations. It is safe for concurrent use; each
// Run owns its own state.
type Engine struct {
	params    Params
	weighter  decay.Weighter
	clock     func() time.Time
	observers []Observer
	history   bool
	logger    logger.Logger
}

// New validates params and constructs an Engine.
func New(params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	w, err := decay.New(params.HalfLifeDays, params.MinTimeWeight)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine{
		params:   params,
		weighter: w,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("engine")
	}
	return e, nil
}

// Params returns the engine's parameters.
func (e *Engine) Params() Params { return e.params }

// scheduled is a match with its precomputed outcome weight.
type scheduled struct {
	match  model.Match
	weight float64
}

// Run recomputes ratings for every player in players from matches.
// Matches may arrive in any order. A match naming a player absent from
// players is skipped and counted; a structurally invalid match or a
// non-finite rating aborts the run.
func (e *Engine) Run(ctx context.Context, players model.Snapshot, matches []model.Match) (Result, error) {
	start := time.Now()
	stats := Stats{Passes: e.params.Passes, MatchesTotal: len(matches)}

	valid, err := e.prepare(ctx, players, matches, &stats)
	if err != nil {
		return Result{}, err
	}

	now := e.clock()
	stats.ReferenceTime = now
	schedule, records := e.plan(valid, now)

	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e.logger.Info(ctx, "starting rating recalculation",
		logger.Int("players", len(ids)),
		logger.Int("matches", stats.MatchesTotal),
		logger.Int("valid_matches", stats.MatchesValid),
		logger.Int("passes", e.params.Passes),
		logger.Float64("half_life_days", e.params.HalfLifeDays),
		logger.String("reference_time", now.UTC().Format(time.RFC3339)),
	)

	prev := initialState(players, ids)
	var (
		final   map[model.Bracket]ratings
		history []model.RatingChange
	)
	for pass := 1; pass <= e.params.Passes; pass++ {
		passStart := time.Now()
		out, err := e.runPass(ctx, pass, ids, schedule, e.history && pass == e.params.Passes)
		if err != nil {
			return Result{}, err
		}
		states, processed := out.states, out.processed
		history = out.history
		delta := totalDelta(prev, states, ids)
		stats.MatchesProcessedPerPass = append(stats.MatchesProcessedPerPass, processed)
		stats.PassDeltas = append(stats.PassDeltas, delta)

		report := PassReport{
			Pass:      pass,
			Passes:    e.params.Passes,
			Processed: processed,
			Delta:     delta,
			Duration:  time.Since(passStart),
		}
		e.logger.Debug(ctx, "pass complete",
			logger.Int("pass", pass),
			logger.Int("processed", processed),
			logger.Float64("delta", delta),
		)
		for _, o := range e.observers {
			o.ObservePass(ctx, report)
		}
		prev, final = states, states
	}

	stats.Duration = time.Since(start)
	e.logger.Info(ctx, "rating recalculation complete",
		logger.Int("passes", e.params.Passes),
		logger.Int("skipped", stats.MatchesSkipped),
		logger.Int("duplicates", stats.DuplicatesSkipped),
		logger.Duration("duration", stats.Duration),
	)

	return Result{
		Profiles: snapshotOf(players, ids, final),
		Records:  records,
		History:  history,
		Stats:    stats,
	}, nil
}

// prepare validates, de-duplicates, filters and orders the matches.
func (e *Engine) prepare(ctx context.Context, players model.Snapshot, matches []model.Match, stats *Stats) ([]model.Match, error) {
	seen := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(len(matches)))
	valid := make([]model.Match, 0, len(matches))
	for _, m := range matches {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if seen.SeenAndRecord(ctx, m.ID) {
			stats.DuplicatesSkipped++
			e.logger.Debug(ctx, "duplicate match skipped", logger.String("match_id", m.ID))
			continue
		}
		if missing, ok := missingPlayer(players, m); ok {
			stats.MatchesSkipped++
			e.logger.Debug(ctx, "match references unknown player, skipping",
				logger.String("match_id", m.ID),
				logger.String("player_id", missing),
			)
			continue
		}
		valid = append(valid, m)
	}
	if stats.MatchesSkipped > 0 {
		e.logger.Warn(ctx, "skipping matches with missing players", logger.Int("skipped", stats.MatchesSkipped))
	}

	// Matches sharing a timestamp are ordered by id so input order never matters.
	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].PlayedAt.Equal(valid[j].PlayedAt) {
			return valid[i].PlayedAt.Before(valid[j].PlayedAt)
		}
		return valid[i].ID < valid[j].ID
	})
	stats.MatchesValid = len(valid)
	return valid, nil
}

// plan splits matches by bracket, fixes each match's weight against now
// and tallies every player's win/loss record.
func (e *Engine) plan(matches []model.Match, now time.Time) (map[model.Bracket][]scheduled, map[model.Bracket]map[string]model.Record) {
	schedule := make(map[model.Bracket][]scheduled, len(model.Brackets()))
	records := make(map[model.Bracket]map[string]model.Record, len(model.Brackets()))
	for _, b := range model.Brackets() {
		records[b] = make(map[string]model.Record)
	}
	for _, m := range matches {
		schedule[m.Bracket] = append(schedule[m.Bracket], scheduled{
			match:  m,
			weight: e.weighter.ForMatch(m.PlayedAt, now),
		})
		for i, id := range m.Participants() {
			rec := records[m.Bracket][id]
			rec.Played++
			if m.WinningTeam == i/2+1 {
				rec.Wins++
			} else {
				rec.Losses++
			}
			records[m.Bracket][id] = rec
		}
	}
	return schedule, records
}

func missingPlayer(players model.Snapshot, m model.Match) (string, bool) {
	for _, id := range m.Participants() {
		if _, ok := players[id]; !ok {
			return id, true
		}
	}
	return "", false
}

func initialState(players model.Snapshot, ids []string) map[model.Bracket]ratings {
	out := make(map[model.Bracket]ratings, len(model.Brackets()))
	for _, b := range model.Brackets() {
		state := make(ratings, len(ids))
		for _, id := range ids {
			r := players[id].For(b)
			state[id] = glicko.Rating{Rating: float64(r.Rating), Deviation: float64(r.Deviation)}
		}
		out[b] = state
	}
	return out
}

func totalDelta(prev, next map[model.Bracket]ratings, ids []string) float64 {
	var sum float64
	for _, b := range model.Brackets() {
		for _, id := range ids {
			sum += math.Abs(next[b][id].Rating - prev[b][id].Rating)
		}
	}
	return sum
}

func snapshotOf(players model.Snapshot, ids []string, states map[model.Bracket]ratings) []model.Profile {
	out := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		p := model.Profile{ID: id, Username: players[id].Username}
		for _, b := range model.Brackets() {
			r := states[b][id]
			p = p.With(b, model.Rating{
				Rating:    int(math.Round(r.Rating)),
				Deviation: int(math.Round(r.Deviation)),
			})
		}
		out = append(out, p)
	}
	return out
}
