// Package service recalculates ratings and serves the published standings
// to the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sandscore/internal/adapters/export"
	"github.com/okian/sandscore/internal/adapters/mq/queue"
	"github.com/okian/sandscore/internal/adapters/mq/worker"
	repository "github.com/okian/sandscore/internal/adapters/repository"
	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	"github.com/okian/sandscore/internal/domain/decay"
	"github.com/okian/sandscore/internal/domain/dedupe"
	"github.com/okian/sandscore/internal/domain/engine"
	"github.com/okian/sandscore/internal/domain/model"
	"github.com/okian/sandscore/pkg/logger"
	"github.com/okian/sandscore/pkg/metrics"
)

// ErrRecalculationRunning is returned when a recalculation is requested
// while another one is still in progress.
var ErrRecalculationRunning = errors.New("recalculation already running")

// exampleAges are the match ages whose decay weights are logged on each run.
var exampleAges = []float64{7, 30, 90, 180, 365}

// Store is the persistence the service reads history from and writes
// ratings and ingested matches to.
type Store interface {
	InsertMatches(ctx context.Context, matches []model.Match) error
	ListActiveProfiles(ctx context.Context) (model.Snapshot, error)
	ListMatches(ctx context.Context) ([]model.Match, error)
	SaveRatings(ctx context.Context, profiles []model.Profile) error
	SaveHistory(ctx context.Context, changes []model.RatingChange) error
	ListHistory(ctx context.Context, playerID string, bracket model.Bracket) ([]model.RatingChange, error)
	Stats(ctx context.Context) (sqlite.Stats, error)
}

// RunSummary describes the last completed recalculation.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	FinishedAt        time.Time `json:"finished_at"`
	ReferenceTime     time.Time `json:"reference_time"`
	DurationMs        float64   `json:"duration_ms"`
	Passes            int       `json:"passes"`
	Players           int       `json:"players"`
	MatchesTotal      int       `json:"matches_total"`
	MatchesValid      int       `json:"matches_valid"`
	MatchesSkipped    int       `json:"matches_skipped"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	FinalPassDelta    float64   `json:"final_pass_delta"`
	HistoryRows       int       `json:"history_rows"`
	DryRun            bool      `json:"dry_run"`
	Saved             bool      `json:"saved"`
	CSVPath           string    `json:"csv_path,omitempty"`
}

// Stats is the service state exposed on /stats.
type Stats struct {
	Running   bool                  `json:"running"`
	LastRun   *RunSummary           `json:"last_run,omitempty"`
	Store     *sqlite.Stats         `json:"store,omitempty"`
	Standings map[model.Bracket]int `json:"standings"`
	Ingest    IngestStats           `json:"ingest"`
}

// Service runs recalculations and answers leaderboard queries.
type Service struct {
	store     Store
	engine    *engine.Engine
	weighter  decay.Weighter
	standings repository.Store

	engineOpts []engine.Option
	dryRun     bool
	csvPath    string

	running atomic.Bool
	mu      sync.RWMutex
	lastRun *RunSummary

	// Match ingestion
	deduper         dedupe.Deduper
	ingestQueueSize int
	ingestWorkers   int
	ingestBatchSize int
	ingestMu        sync.RWMutex
	queue           *queue.InMemoryQueue
	pool            *worker.Pool
	stopped         *worker.Pool
	stopWorkers     context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDryRun computes ratings without saving them.
func WithDryRun(dryRun bool) Option {
	return func(s *Service) {
		s.dryRun = dryRun
	}
}

// WithCSVPath exports every recalculation to path. Empty disables export.
func WithCSVPath(path string) Option {
	return func(s *Service) {
		s.csvPath = path
	}
}

// WithStandings sets the standings store the service publishes to.
func WithStandings(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.standings = st
		}
	}
}

// WithEngineOptions passes extra options to the rating engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// New constructs a Service reading from store with the given engine parameters.
func New(ctx context.Context, store Store, params engine.Params, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("service: store is required")
	}
	s := &Service{
		store:           store,
		deduper:         newDeduper(),
		ingestQueueSize: defaultIngestQueueSize,
		ingestWorkers:   defaultIngestWorkers,
		ingestBatchSize: defaultIngestBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.standings == nil {
		s.standings = repository.NewTreapStore(ctx)
	}

	engineOpts := append([]engine.Option{
		engine.WithHistory(true),
		engine.WithLogger(s.logger.Named("engine")),
		engine.WithObserver(engine.ObserverFunc(s.observePass)),
	}, s.engineOpts...)
	e, err := engine.New(params, engineOpts...)
	if err != nil {
		return nil, err
	}
	w, err := decay.New(params.HalfLifeDays, params.MinTimeWeight)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrInvalidConfig, err)
	}
	s.engine, s.weighter = e, w
	return s, nil
}

func (s *Service) observePass(ctx context.Context, r engine.PassReport) {
	metrics.RecordPass(r.Processed, r.Delta)
	s.logger.Info(ctx, "pass complete",
		logger.Int("pass", r.Pass),
		logger.Int("of", r.Passes),
		logger.Int("processed", r.Processed),
		logger.Float64("delta", r.Delta),
		logger.Duration("took", r.Duration),
	)
}

// Recalculate reloads the history, recomputes every rating, saves the
// result unless in dry-run mode, exports it when configured, and
// republishes the standings. Only one recalculation runs at a time.
func (s *Service) Recalculate(ctx context.Context) (engine.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return engine.Result{}, ErrRecalculationRunning
	}
	defer s.running.Store(false)

	runID := uuid.NewString()
	log := s.logger
	start := time.Now()

	res, summary, err := s.recalculate(ctx, runID)
	if err != nil {
		metrics.RecordRecalculationError()
		log.Error(ctx, "recalculation failed", logger.String("run_id", runID), logger.Error(err))
		return engine.Result{}, err
	}

	summary.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	metrics.RecordRecalculation(summary.DurationMs, summary.FinishedAt.Unix())

	s.mu.Lock()
	s.lastRun = summary
	s.mu.Unlock()

	log.Info(ctx, "recalculation complete",
		logger.String("run_id", runID),
		logger.Int("players", summary.Players),
		logger.Int("matches_valid", summary.MatchesValid),
		logger.Int("matches_skipped", summary.MatchesSkipped),
		logger.Int("duplicates_skipped", summary.DuplicatesSkipped),
		logger.Bool("saved", summary.Saved),
		logger.Float64("duration_ms", summary.DurationMs),
	)
	return res, nil
}

func (s *Service) recalculate(ctx context.Context, runID string) (engine.Result, *RunSummary, error) {
	params := s.engine.Params()
	weights := make([]logger.Field, 0, len(exampleAges)+2)
	weights = append(weights, logger.String("run_id", runID), logger.Float64("half_life_days", params.HalfLifeDays))
	for _, age := range exampleAges {
		weights = append(weights, logger.Float64(fmt.Sprintf("weight_%gd", age), s.weighter.Weight(age)))
	}
	s.logger.Info(ctx, "time decay weights", weights...)

	players, err := s.store.ListActiveProfiles(ctx)
	if err != nil {
		return engine.Result{}, nil, fmt.Errorf("load profiles: %w", err)
	}
	matches, err := s.store.ListMatches(ctx)
	if err != nil {
		return engine.Result{}, nil, fmt.Errorf("load matches: %w", err)
	}
	s.logger.Info(ctx, "history loaded",
		logger.String("run_id", runID),
		logger.Int("players", len(players)),
		logger.Int("matches", len(matches)),
	)

	res, err := s.engine.Run(ctx, players, matches)
	if err != nil {
		return engine.Result{}, nil, err
	}
	metrics.RecordMatchesFiltered(res.Stats.MatchesSkipped, res.Stats.DuplicatesSkipped)

	summary := &RunSummary{
		RunID:             runID,
		ReferenceTime:     res.Stats.ReferenceTime,
		Passes:            res.Stats.Passes,
		Players:           len(res.Profiles),
		MatchesTotal:      res.Stats.MatchesTotal,
		MatchesValid:      res.Stats.MatchesValid,
		MatchesSkipped:    res.Stats.MatchesSkipped,
		DuplicatesSkipped: res.Stats.DuplicatesSkipped,
		HistoryRows:       len(res.History),
		DryRun:            s.dryRun,
	}
	if n := len(res.Stats.PassDeltas); n > 0 {
		summary.FinalPassDelta = res.Stats.PassDeltas[n-1]
	}

	if s.dryRun {
		s.logger.Info(ctx, "dry run, ratings not saved", logger.String("run_id", runID))
	} else {
		if err := s.store.SaveRatings(ctx, res.Profiles); err != nil {
			return engine.Result{}, nil, fmt.Errorf("save ratings: %w", err)
		}
		if err := s.store.SaveHistory(ctx, res.History); err != nil {
			return engine.Result{}, nil, fmt.Errorf("save rating history: %w", err)
		}
		summary.Saved = true
	}

	if s.csvPath != "" {
		if err := export.WriteFile(s.csvPath, res.Profiles); err != nil {
			return engine.Result{}, nil, fmt.Errorf("export csv: %w", err)
		}
		summary.CSVPath = s.csvPath
		s.logger.Info(ctx, "ratings exported", logger.String("path", s.csvPath))
	}

	if err := s.publish(ctx, res); err != nil {
		return engine.Result{}, nil, fmt.Errorf("publish standings: %w", err)
	}
	summary.FinishedAt = time.Now().UTC()
	return res, summary, nil
}

// publish replaces every bracket's standings with the result.
func (s *Service) publish(ctx context.Context, res engine.Result) error {
	for _, b := range model.Brackets() {
		records := res.Records[b]
		rows := make([]repository.Standing, 0, len(records))
		for _, p := range res.Profiles {
			rec := records[p.ID]
			if rec.Played == 0 {
				continue
			}
			r := p.For(b)
			rows = append(rows, repository.Standing{
				PlayerID:  p.ID,
				Username:  p.Username,
				Rating:    r.Rating,
				Deviation: r.Deviation,
				Matches:   rec.Played,
				Wins:      rec.Wins,
				Losses:    rec.Losses,
			})
		}
		if err := s.standings.Replace(ctx, b, rows); err != nil {
			return err
		}
	}
	return nil
}

// TopN returns the top n entries of a bracket.
func (s *Service) TopN(ctx context.Context, bracket model.Bracket, n int) ([]repository.Entry, error) {
	entries, err := s.standings.TopN(ctx, bracket, n)
	if err != nil {
		metrics.RecordLeaderboardError()
		return nil, err
	}
	return entries, nil
}

// Rank returns a player's standing in a bracket.
func (s *Service) Rank(ctx context.Context, bracket model.Bracket, playerID string) (repository.Entry, error) {
	entry, err := s.standings.Rank(ctx, bracket, playerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			metrics.RecordLeaderboardError()
		}
		return repository.Entry{}, err
	}
	return entry, nil
}

// History returns a player's rating after each match of a bracket, as
// saved by the last recalculation that was not a dry run.
func (s *Service) History(ctx context.Context, bracket model.Bracket, playerID string) ([]model.RatingChange, error) {
	changes, err := s.store.ListHistory(ctx, playerID, bracket)
	if err != nil {
		return nil, fmt.Errorf("load rating history: %w", err)
	}
	return changes, nil
}

// Running reports whether a recalculation is in progress.
func (s *Service) Running() bool {
	return s.running.Load()
}

// LastRun returns the summary of the last successful recalculation, if any.
func (s *Service) LastRun() *RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	cp := *s.lastRun
	return &cp
}

// GetStats returns service statistics for monitoring. Store errors are
// logged and leave the store section empty.
func (s *Service) GetStats(ctx context.Context) Stats {
	st := Stats{
		Running:   s.Running(),
		LastRun:   s.LastRun(),
		Standings: make(map[model.Bracket]int, len(model.Brackets())),
		Ingest:    s.ingestStats(),
	}
	if dbStats, err := s.store.Stats(ctx); err != nil {
		s.logger.Warn(ctx, "store stats unavailable", logger.Error(err))
	} else {
		st.Store = &dbStats
	}
	for _, b := range model.Brackets() {
		n, err := s.standings.Count(ctx, b)
		if err == nil {
			st.Standings[b] = n
		}
	}
	return st
}
