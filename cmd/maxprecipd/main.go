// Command maxprecipd computes the previous day's maximum precipitation
// accumulation on a schedule and serves health, status and metrics endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/storm-data-maxprecip/internal/adapter/http"
	"github.com/couchcryptid/storm-data-maxprecip/internal/app"
	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/scheduler"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Version = version

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	a, err := app.New(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(cfg, a.Pipeline, clockwork.NewRealClock(), logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, a.Pipeline, sched, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Start(ctx) }()

	schedStopped := false
	select {
	case <-ctx.Done():
	case err := <-schedDone:
		schedStopped = true
		if err != nil {
			logger.Error("scheduler error", "error", err)
		}
		stop()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if !schedStopped {
		select {
		case <-schedDone:
		case <-shutdownCtx.Done():
			logger.Warn("run still in progress at shutdown deadline")
		}
	}
	if err := a.Close(); err != nil {
		logger.Error("close error", "error", err)
	}

	logger.Info("shutdown complete")
}
