package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sandscore/internal/domain/model"
)

// namespace scopes the deterministic ids of generated players and matches.
var namespace = uuid.MustParse("6f1c9a52-3c1e-4d7b-9a35-1f0b7e2c8d44")

// Season is a generated history.
type Season struct {
	Players []Player
	Matches []model.Match
}

// Generator produces reproducible synthetic seasons.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// NewGenerator returns a generator for cfg. The season depends only on
// cfg, never on the wall clock unless cfg.Now is zero.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

func (g *Generator) id(kind string, parts ...any) string {
	return uuid.NewSHA1(namespace, fmt.Appendf(nil, "%d/%s/%v", g.cfg.Seed, kind, parts)).String()
}

// Generate builds the players and matches of every bracket.
func (g *Generator) Generate() (Season, error) {
	if g.cfg.Players < 4 {
		return Season{}, fmt.Errorf("need at least 4 players per bracket, got %d", g.cfg.Players)
	}
	if g.cfg.Days < 1 {
		return Season{}, fmt.Errorf("days must be positive, got %d", g.cfg.Days)
	}
	now := g.cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var season Season
	for _, b := range model.Brackets() {
		pool := make([]Player, g.cfg.Players)
		for i := range pool {
			pool[i] = Player{
				ID:       g.id("player", b, i),
				Username: fmt.Sprintf("%s-%03d", b, i+1),
				Bracket:  string(b),
				Skill:    skillMean + g.rng.NormFloat64()*skillSD,
			}
		}
		for i := 0; i < g.cfg.Matches; i++ {
			season.Matches = append(season.Matches, g.match(b, i, pool, now))
		}
		season.Players = append(season.Players, pool...)
	}
	return season, nil
}

// match draws four distinct players and decides the result from their
// mean skill.
func (g *Generator) match(b model.Bracket, i int, pool []Player, now time.Time) model.Match {
	idx := g.rng.Perm(len(pool))[:4]
	p := [4]Player{pool[idx[0]], pool[idx[1]], pool[idx[2]], pool[idx[3]]}

	s1 := (p[0].Skill + p[1].Skill) / 2
	s2 := (p[2].Skill + p[3].Skill) / 2
	winner := 2
	if g.rng.Float64() < WinProbability(s1, s2) {
		winner = 1
	}

	age := time.Duration(g.rng.Float64() * float64(g.cfg.Days) * float64(24*time.Hour))
	return model.Match{
		ID:          g.id("match", b, i),
		Bracket:     b,
		PlayedAt:    now.Add(-age).Truncate(time.Second),
		Team1:       model.Team{Player1: p[0].ID, Player2: p[1].ID},
		Team2:       model.Team{Player1: p[2].ID, Player2: p[3].ID},
		WinningTeam: winner,
	}
}

// Orphans returns n matches that include a guest with no profile. They are
// stored but never rated.
func (g *Generator) Orphans(season Season, n int) []model.Match {
	if n <= 0 || len(season.Matches) == 0 {
		return nil
	}
	out := make([]model.Match, 0, n)
	for i := 0; i < n; i++ {
		m := season.Matches[g.rng.IntN(len(season.Matches))]
		m.ID = g.id("orphan", i)
		m.Team2.Player2 = g.id("guest", i)
		out = append(out, m)
	}
	return out
}

// WinProbability is the chance a team of mean skill a beats one of mean
// skill b.
func WinProbability(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/skillScale))
}
