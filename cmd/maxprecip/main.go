// Command maxprecip computes the daily maximum precipitation accumulation of
// one day from the given radar scans and the rate cache, then exits.
//
// Usage:
//
//	maxprecip -date 20230821 -window "1 H" -results-dir out /data/fiuta/2023082*.h5
//	maxprecip -date 20230821 -scan-glob '/data/fiuta/{date}*_fiuta.h5'
//	maxprecip -date 20230821 -site fiuta    # reduce the existing cache only
//
// Environment variables (and a .env file) set the defaults; flags override them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-maxprecip/internal/app"
	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/pipeline"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Version = version

	date, scanGlob, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	logger := observability.RunLogger(observability.NewLogger(cfg), uuid.NewString())
	metrics := observability.NewMetrics()

	paths := flag.Args()
	if scanGlob != "" {
		matches, err := pipeline.LookbackGlob(date, scanGlob)
		if err != nil {
			return err
		}
		paths = append(paths, matches...)
	}

	a, err := app.New(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	event, runErr := a.Pipeline.Run(ctx, date, paths)
	if runErr == nil {
		logger.Info("products written",
			"accumulation", event.AccumFile,
			"time_of_max", event.TimeFile,
			"max_accumulation_mm", event.MaxAccumulation,
		)
	}

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, event.SiteID); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
	}
	return runErr
}

// parseFlags applies command-line overrides to cfg and returns the target
// date and the optional lookback scan pattern.
func parseFlags(cfg *config.Config, args []string) (time.Time, string, error) {
	fs := flag.CommandLine
	var (
		dateStr  = fs.String("date", "", "target day as YYYYMMDD (default: yesterday, UTC)")
		window   = fs.String("window", cfg.Window.Raw, `accumulation window, e.g. "1 D", "3 H", "30 min"`)
		scanGlob = fs.String("scan-glob", "", "also read raw scans matching this pattern for the day and the day before ({yyyy} {mm} {dd} {date})")
	)
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "rate cache directory")
	fs.StringVar(&cfg.ResultsDir, "results-dir", cfg.ResultsDir, "product output directory")
	fs.StringVar(&cfg.Site, "site", cfg.Site, "site to reduce when no scans are given")
	fs.StringVar(&cfg.DBZField, "dbz-field", cfg.DBZField, "reflectivity field for rate conversion (DBZH or DBZHC)")
	fs.IntVar(&cfg.Grid.Size, "size", cfg.Grid.Size, "grid size in pixels per side")
	fs.IntVar(&cfg.Grid.Resolution, "resolution", cfg.Grid.Resolution, "grid resolution in metres")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "spatial chunk size (0 selects one from the grid)")
	fs.IntVar(&cfg.ScansPerHour, "scans-per-hour", cfg.ScansPerHour, "nominal number of scans per hour")
	fs.BoolVar(&cfg.IgnoreCache, "ignore-cache", cfg.IgnoreCache, "regenerate existing cache entries")
	fs.BoolVar(&cfg.IsolateScanErrors, "isolate-errors", cfg.IsolateScanErrors, "skip scans that fail instead of aborting")
	if err := fs.Parse(args); err != nil {
		return time.Time{}, "", err
	}

	w, err := domain.ParseWindow(*window)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid -window: %w", err)
	}
	cfg.Window = w

	date := domain.PreviousDay(clockwork.NewRealClock())
	if *dateStr != "" {
		if date, err = time.Parse(domain.DateLayout, *dateStr); err != nil {
			return time.Time{}, "", fmt.Errorf("invalid -date %q: %w", *dateStr, err)
		}
	}
	if fs.NArg() == 0 && *scanGlob == "" && cfg.Site == "" {
		fs.Usage()
		return time.Time{}, "", errors.New("no scans given: pass scan files, -scan-glob or -site")
	}
	return date, *scanGlob, cfg.Validate()
}
