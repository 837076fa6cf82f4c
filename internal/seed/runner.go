// Package seed generates reproducible synthetic seasons, stores them in a
// ratings database and optionally checks the leaderboards a running
// service produces from them.
package seed

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
)

// Run executes a complete seeding run.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now(), SkillCorrelation: map[string]float64{}}

	log.Info(ctx, "starting seed",
		logger.String("db_path", cfg.DBPath),
		logger.Int("players", cfg.Players),
		logger.Int("matches", cfg.Matches),
		logger.Int("days", cfg.Days),
		logger.Any("seed", cfg.Seed),
		logger.String("base_url", cfg.BaseURL),
	)

	// Step 1: Generate the season
	gen := NewGenerator(cfg)
	season, err := gen.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate season: %w", err)
	}
	orphans := gen.Orphans(season, cfg.Orphans)

	// Step 2: Store it
	if err := store(ctx, cfg, season, orphans, stats); err != nil {
		return nil, err
	}
	log.Info(ctx, "season stored",
		logger.Int("players", stats.PlayersCreated),
		logger.Int("deactivated", stats.PlayersDeactivated),
		logger.Int("matches", stats.MatchesCreated),
		logger.Int("orphans", stats.OrphanMatches),
	)

	// Step 3: Ask a running service to rate it and verify the leaderboards
	if cfg.BaseURL != "" {
		if err := verifyService(ctx, cfg, season, stats); err != nil {
			return nil, fmt.Errorf("verify service: %w", err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

func store(ctx context.Context, cfg Config, season Season, orphans []model.Match, stats *Stats) error {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	profiles := make([]model.Profile, len(season.Players))
	for i, p := range season.Players {
		profiles[i] = model.NewProfile(p.ID)
		profiles[i].Username = p.Username
	}
	if err := db.UpsertProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("store profiles: %w", err)
	}
	stats.PlayersCreated = len(profiles)

	matches := append(append([]model.Match{}, season.Matches...), orphans...)
	if err := db.InsertMatches(ctx, matches); err != nil {
		return fmt.Errorf("store matches: %w", err)
	}
	stats.MatchesCreated = len(season.Matches)
	stats.OrphanMatches = len(orphans)

	// The last players of each bracket retire.
	perBracket := len(season.Players) / len(model.Brackets())
	for bi := range model.Brackets() {
		for i := 0; i < cfg.Inactive && i < perBracket; i++ {
			p := season.Players[(bi+1)*perBracket-1-i]
			if err := db.SetActive(ctx, p.ID, false); err != nil {
				return fmt.Errorf("deactivate %s: %w", p.ID, err)
			}
			stats.PlayersDeactivated++
		}
	}
	return nil
}

func verifyService(ctx context.Context, cfg Config, season Season, stats *Stats) error {
	log := logger.Get().Named("seed")
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := client.checkHealth(ctx); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}
	summary, err := client.recalculate(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "recalculation finished", logger.Any("summary", summary))

	skills := make(map[string]float64, len(season.Players))
	for _, p := range season.Players {
		skills[p.ID] = p.Skill
	}
	for _, b := range model.Brackets() {
		entries, err := client.leaderboard(ctx, string(b), cfg.TopN)
		if err != nil {
			return err
		}
		if err := verifyLeaderboard(entries); err != nil {
			return fmt.Errorf("bracket %s: %w", b, err)
		}
		stats.LeaderboardEntries += len(entries)
		rho := skillCorrelation(entries, skills)
		if !math.IsNaN(rho) {
			stats.SkillCorrelation[string(b)] = rho
		}
		for _, e := range entries {
			log.Debug(ctx, "leaderboard entry",
				logger.String("bracket", string(b)),
				logger.Int("rank", e.Rank),
				logger.String("username", e.Username),
				logger.Int("rating", e.Rating),
				logger.Int("rating_deviation", e.Deviation),
				logger.Float64("skill", skills[e.PlayerID]),
			)
		}
		log.Info(ctx, "leaderboard verified",
			logger.String("bracket", string(b)),
			logger.Int("entries", len(entries)),
			logger.Float64("skill_correlation", rho),
		)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("players_created", stats.PlayersCreated),
		logger.Int("players_deactivated", stats.PlayersDeactivated),
		logger.Int("matches_created", stats.MatchesCreated),
		logger.Int("orphan_matches", stats.OrphanMatches),
		logger.Int("leaderboard_entries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
	)
}
