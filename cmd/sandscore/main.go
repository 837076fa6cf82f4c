// Command sandscore recalculates player ratings from the match history in
// a SQLite database and, with --serve, publishes the standings over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/okian/sandscore/internal/adapters/http/api"
	"github.com/okian/sandscore/internal/adapters/http/swagger"
	"github.com/okian/sandscore/internal/adapters/storage/sqlite"
	service "github.com/okian/sandscore/internal/app"
	"github.com/okian/sandscore/internal/config"
	"github.com/okian/sandscore/pkg/logger"
	"github.com/okian/sandscore/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Stderr.WriteString("sandscore: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// flags holds command line overrides. Only flags set explicitly replace
// configured values.
type flags struct {
	set *pflag.FlagSet

	configPath string
	dbPath     string
	csvPath    string
	addr       string
	logLevel   string
	logFormat  string
	passes     int
	halfLife   float64
	dryRun     bool
	serve      bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{set: pflag.NewFlagSet("sandscore", pflag.ContinueOnError)}
	fs := f.set
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (default $"+config.EnvConfigPath+")")
	fs.StringVar(&f.dbPath, "db", "", "SQLite database path")
	fs.StringVar(&f.csvPath, "csv", "", "write the computed ratings to this CSV file")
	fs.StringVar(&f.addr, "addr", "", "HTTP listen address used with --serve")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text or json")
	fs.IntVarP(&f.passes, "passes", "p", 0, "number of passes over the match history")
	fs.Float64Var(&f.halfLife, "half-life", 0, "days after which a match outcome counts half")
	fs.BoolVar(&f.dryRun, "dry-run", false, "compute ratings without saving them")
	fs.BoolVar(&f.serve, "serve", false, "keep running and serve the leaderboard API")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// apply copies explicitly set flags onto cfg.
func (f *flags) apply(cfg *config.Config) {
	changed := f.set.Changed
	if changed("db") {
		cfg.DBPath = f.dbPath
	}
	if changed("csv") {
		cfg.CSVPath = f.csvPath
	}
	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("passes") {
		cfg.NumPasses = f.passes
	}
	if changed("half-life") {
		cfg.HalfLifeDays = f.halfLife
	}
	if changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
}

func loadConfig(ctx context.Context, f *flags) (*config.Config, error) {
	cfg, err := config.Load(ctx, f.configPath)
	if err != nil {
		return nil, err
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) error {
	if err := logger.InitWithWriter(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return logger.SetLevelString(cfg.LogLevel)
}

// registerRuntimeCollectors exposes Go runtime and process metrics on the
// service registry. Repeated registration is ignored.
func registerRuntimeCollectors() {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := metrics.GetRegistry().Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Get().Warn(context.Background(), "runtime collector not registered", logger.Error(err))
			}
		}
	}
}

func run(ctx context.Context, args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, f)
	if err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}
	log := logger.Get()
	registerRuntimeCollectors()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "close database", logger.Error(err))
		}
	}()

	svc, err := service.New(ctx, store, cfg.EngineParams(),
		service.WithLogger(log.Named("service")),
		service.WithDryRun(cfg.DryRun),
		service.WithCSVPath(cfg.CSVPath),
		service.WithIngestQueueSize(cfg.IngestQueueSize),
		service.WithIngestWorkers(cfg.IngestWorkers),
		service.WithIngestBatchSize(cfg.IngestBatchSize),
	)
	if err != nil {
		return err
	}

	log.Info(ctx, "sandscore starting",
		logger.String("db_path", cfg.DBPath),
		logger.Int("passes", cfg.NumPasses),
		logger.Float64("half_life_days", cfg.HalfLifeDays),
		logger.Bool("dry_run", cfg.DryRun),
		logger.Bool("serve", f.serve),
	)

	if _, err := svc.Recalculate(ctx); err != nil {
		return err
	}
	if !f.serve {
		return nil
	}
	return serve(ctx, cfg, svc)
}

// serve runs the HTTP API until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config, svc *service.Service) error {
	log := logger.Get()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}
	defer func() {
		// Queued matches are written before the database closes.
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			log.Error(ctx, "ingestion shutdown failed", logger.Error(err))
		}
	}()

	mux := http.NewServeMux()
	api.NewServer(svc, cfg.MaxLeaderboardLimit).Register(ctx, mux)
	swagger.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}
	log.Info(ctx, "server stopped")
	return nil
}
