// Package scheduler runs the daily maximum computation for the previous UTC
// day on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/pipeline"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner computes the products of one day.
type Runner interface {
	Run(ctx context.Context, date time.Time, scanPaths []string) (domain.ProductEvent, error)
}

// Scheduler triggers one run per schedule tick. Overlapping ticks are skipped.
type Scheduler struct {
	runner   Runner
	schedule string
	scanGlob string
	clock    clockwork.Clock
	logger   *slog.Logger
	cron     *cron.Cron

	mu     sync.Mutex
	status domain.RunStatus
}

// New creates a Scheduler using cfg.Schedule (with seconds) and cfg.ScanGlob.
func New(cfg *config.Config, runner Runner, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		runner:   runner,
		schedule: cfg.Schedule,
		scanGlob: cfg.ScanGlob,
		clock:    clock,
		logger:   logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
}

// Start schedules the job and blocks until ctx is cancelled. A run in
// progress is allowed to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid MAXPRECIP_SCHEDULE %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduler started", "schedule", s.schedule, "scan_glob", s.scanGlob)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce processes the previous UTC day. Raw scans are selected with the
// lookback glob when one is configured; otherwise the existing cache is reduced.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	date := domain.PreviousDay(s.clock)
	if !s.begin(date) {
		return ErrRunInProgress
	}

	var (
		event domain.ProductEvent
		err   error
	)
	defer func() { s.finish(event, err) }()

	var paths []string
	if s.scanGlob != "" {
		if paths, err = pipeline.LookbackGlob(date, s.scanGlob); err != nil {
			return err
		}
	}
	logger := observability.RunLogger(s.logger, uuid.NewString())
	logger.Info("scheduled run starting", "date", date.Format(time.DateOnly), "scans", len(paths))
	event, err = s.runner.Run(observability.ContextWithLogger(ctx, logger), date, paths)
	if err == nil {
		logger.Info("scheduled run finished", "product", event.AccumFile, "max_accumulation_mm", event.MaxAccumulation)
	}
	return err
}

// RunStatus returns the state of the current or most recent run.
func (s *Scheduler) RunStatus() domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.Product != nil {
		p := *st.Product
		st.Product = &p
	}
	return st
}

func (s *Scheduler) begin(date time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running {
		return false
	}
	s.status = domain.RunStatus{
		Date:      date.Format(domain.DateLayout),
		StartedAt: s.clock.Now().UTC(),
		Running:   true,
	}
	return true
}

func (s *Scheduler) finish(event domain.ProductEvent, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = false
	s.status.FinishedAt = s.clock.Now().UTC()
	if err != nil {
		s.status.Error = err.Error()
		return
	}
	s.status.Product = &event
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
