// Command seed fills a ratings database with a reproducible synthetic
// season and, given --url, checks the leaderboards a running sandscore
// computes from it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/okian/sandscore/internal/seed"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	cfg := seed.Config{}
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", "sandscore.db", "SQLite database to populate")
	fs.IntVar(&cfg.Players, "players", seed.DefaultPlayers, "players per bracket")
	fs.IntVar(&cfg.Matches, "matches", seed.DefaultMatches, "matches per bracket")
	fs.IntVar(&cfg.Days, "days", seed.DefaultDays, "spread matches over this many days")
	fs.Uint64Var(&cfg.Seed, "seed", 1, "random seed; equal seeds give equal seasons")
	fs.IntVar(&cfg.Inactive, "inactive", 0, "players per bracket to mark inactive")
	fs.IntVar(&cfg.Orphans, "orphans", 0, "matches naming a player without a profile")
	fs.StringVar(&cfg.BaseURL, "url", "", "base URL of a running service to recalculate and verify")
	fs.IntVar(&cfg.TopN, "top", seed.DefaultTopN, "leaderboard entries to verify per bracket")
	fs.DurationVar(&cfg.Timeout, "timeout", seed.DefaultTimeout, "HTTP request timeout")
	fs.StringVar(&cfg.LogFile, "log", "", "also write logs to this file")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "enable debug logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	closer, err := seed.SetupLogging(cfg.LogFile, cfg.Verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	if _, err := seed.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Seed failed: " + err.Error() + "\n")
		cancel()
		stop()
		os.Exit(1)
	}
}
