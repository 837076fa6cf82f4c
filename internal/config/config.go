// Package config defines the sandscore configuration and how it is loaded.
//
// Conventions:
//   - New(ctx) returns a Config populated with defaults.
//   - Load(ctx, path) layers a YAML file and SANDSCORE_ env vars on top;
//     it does not validate.
//   - Validate reports problems wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/okian/sandscore/internal/domain/engine"
	"github.com/okian/sandscore/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address of the read API, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database holding profiles and matches.
	DBPath string `koanf:"db_path"`

	// CSVPath, when set, receives a ratings export after every recalculation.
	CSVPath string `koanf:"csv_path"`

	// DryRun computes ratings without writing them back to the database.
	DryRun bool `koanf:"dry_run"`

	// NumPasses is the number of full replays of the match history.
	NumPasses int `koanf:"num_passes"`

	// HalfLifeDays is the age at which a match outcome counts half.
	HalfLifeDays float64 `koanf:"half_life_days"`

	// MinTimeWeight floors the decay of old matches.
	MinTimeWeight float64 `koanf:"min_time_weight"`

	DefaultRating          float64 `koanf:"default_rating"`
	DefaultRatingDeviation float64 `koanf:"default_rating_deviation"`
	Volatility             float64 `koanf:"volatility"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Match ingestion through POST /matches.
	IngestQueueSize int `koanf:"ingest_queue_size"`
	IngestWorkers   int `koanf:"ingest_workers"`
	IngestBatchSize int `koanf:"ingest_batch_size"`
}

// New creates a Config with defaults. Context is accepted first to follow
// the project-wide convention.
func New(_ context.Context) *Config {
	p := engine.DefaultParams()
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBPath:                 "sandscore.db",
		NumPasses:              p.Passes,
		HalfLifeDays:           p.HalfLifeDays,
		MinTimeWeight:          p.MinTimeWeight,
		DefaultRating:          model.DefaultRating,
		DefaultRatingDeviation: model.DefaultDeviation,
		Volatility:             p.Volatility,
		MaxLeaderboardLimit:    100,
		IngestQueueSize:        10000,
		IngestWorkers:          1,
		IngestBatchSize:        100,
	}
}

// EngineParams maps the rating settings onto engine parameters.
func (c *Config) EngineParams() engine.Params {
	return engine.Params{
		Passes:           c.NumPasses,
		HalfLifeDays:     c.HalfLifeDays,
		MinTimeWeight:    c.MinTimeWeight,
		DefaultRating:    c.DefaultRating,
		DefaultDeviation: c.DefaultRatingDeviation,
		Volatility:       c.Volatility,
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit < 1 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive, got %d", ErrInvalidConfig, c.MaxLeaderboardLimit)
	}
	if c.IngestQueueSize < 1 || c.IngestWorkers < 1 || c.IngestBatchSize < 1 {
		return fmt.Errorf("%w: ingest queue size, workers and batch size must be positive", ErrInvalidConfig)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if err := c.EngineParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ParseLevel maps a log level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
