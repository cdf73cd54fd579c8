// Package pipeline computes daily maximum precipitation accumulations: it
// grids raw radar scans into a rate cache, loads the cached series for a day
// plus lookback, evaluates the rolling-window maximum and writes the
// accumulation and time-of-maximum rasters.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/gridding"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/series"
)

// ScanReader decodes the lowest elevation of a raw radar file.
type ScanReader interface {
	Read(ctx context.Context, path string) (*domain.Scan, error)
}

// ArrayStore persists gridded rate rasters and opens them back as a lazily read dataset.
type ArrayStore interface {
	Exists(path string) (bool, error)
	WriteRate(path string, r *domain.RateRaster, enc domain.Encoding) error
	OpenDataset(ctx context.Context, paths []string) (*series.Dataset, error)
}

// RasterWriter writes georeferenced product rasters.
type RasterWriter interface {
	WriteLayer(path string, l *domain.Layer) error
	UpdateAttrs(path string, attrs map[string]string) error
	ReadLayer(path string) (*domain.Layer, error)
}

// Publisher announces finished products.
type Publisher interface {
	Publish(ctx context.Context, event domain.ProductEvent) error
}

// Uploader copies a product file to object storage under key.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// Deps are the collaborators of a Pipeline. Publisher and Uploader are optional.
type Deps struct {
	Reader    ScanReader
	Engine    gridding.Engine
	Store     ArrayStore
	Rasters   RasterWriter
	Publisher Publisher
	Uploader  Uploader
	Clock     clockwork.Clock
}

// Pipeline runs the daily maximum computation for one configuration.
type Pipeline struct {
	cfg       *config.Config
	cache     *CacheWriter
	loader    *Loader
	rasters   RasterWriter
	publisher Publisher
	uploader  Uploader
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline. The configuration is validated.
func New(cfg *config.Config, deps Deps, logger *slog.Logger, metrics *observability.Metrics) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Reader == nil || deps.Engine == nil || deps.Store == nil || deps.Rasters == nil {
		return nil, errors.New("pipeline needs a scan reader, gridding engine, array store and raster writer")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	cache, err := NewCacheWriter(cfg, deps.Reader, deps.Engine, deps.Store, deps.Rasters, logger, metrics)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		cache:     cache,
		loader:    NewLoader(deps.Store, logger, metrics),
		rasters:   deps.Rasters,
		publisher: deps.Publisher,
		uploader:  deps.Uploader,
		clock:     deps.Clock,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// CheckReadiness returns nil when the cache and results directories are usable.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if err := os.MkdirAll(p.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("cache directory: %w", err)
	}
	if fi, err := os.Stat(p.cfg.ResultsDir); err != nil {
		return fmt.Errorf("results directory: %w", err)
	} else if !fi.IsDir() {
		return fmt.Errorf("results directory %s is not a directory", p.cfg.ResultsDir)
	}
	return nil
}

// Run computes the products of date from scanPaths and the rate cache and
// returns the event describing them. With no scans, the configured site's
// existing cache is reduced.
func (p *Pipeline) Run(ctx context.Context, date time.Time, scanPaths []string) (domain.ProductEvent, error) {
	date = domain.Date(date)
	start := p.clock.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	logger := observability.LoggerFromContext(ctx, p.logger).With("date", date.Format(time.DateOnly))
	logger.Info("updating precipitation raster cache", "scans", len(scanPaths))
	site, err := p.cache.Update(ctx, scanPaths)
	if err != nil {
		// Isolated scan failures are reported but do not stop the run.
		if !p.cfg.IsolateScanErrors || site == "" || errors.Is(err, domain.ErrMixedSites) || ctx.Err() != nil {
			return domain.ProductEvent{}, fmt.Errorf("update cache: %w", err)
		}
		logger.Warn("some scans were not cached", "error", err)
	}
	switch {
	case site == "" && p.cfg.Site == "":
		return domain.ProductEvent{}, domain.ErrNoScans
	case site == "":
		site = p.cfg.Site
	case p.cfg.Site != "" && site != p.cfg.Site:
		return domain.ProductEvent{}, fmt.Errorf("%w: scans from %s, configured %s", domain.ErrMixedSites, site, p.cfg.Site)
	}
	logger = logger.With("site", site)

	key := domain.NewCacheKey(date, site, p.cfg.Grid, p.cfg.Correction())
	paths, err := LookbackGlob(date, filepath.Join(p.cfg.CacheDir, key.Glob(domain.CacheExt)))
	if err != nil {
		return domain.ProductEvent{}, err
	}
	chunk := p.cfg.ChunkSize
	if chunk == 0 {
		chunk = AutoChunk(p.cfg.Grid.Size)
	}
	logger.Info("loading cached precipitation rasters", "files", len(paths), "chunk", chunk)
	s, err := p.loader.Load(ctx, paths, chunk)
	if err != nil {
		return domain.ProductEvent{}, fmt.Errorf("load cache: %w", err)
	}

	dm, err := Reduce(ctx, s, date, p.cfg.Window, p.cfg.ScansPerHour)
	if err != nil {
		return domain.ProductEvent{}, fmt.Errorf("reduce %s: %w", site, err)
	}
	p.metrics.ChunksEvaluated.Add(float64(dm.Chunks))
	logger.Info("maximum accumulation computed",
		"window", p.cfg.Window.Raw,
		"iwin", dm.WindowLength,
		"timesteps", dm.Timesteps,
		"chunks", dm.Chunks,
	)

	event, err := p.emit(ctx, site, dm)
	if err != nil {
		return domain.ProductEvent{}, err
	}
	event.ProcessedAt = p.clock.Now().UTC()

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, event); err != nil {
			return event, fmt.Errorf("publish product event: %w", err)
		}
	}

	p.metrics.MaxAccum.WithLabelValues(site).Set(event.MaxAccumulation)
	p.metrics.RunDuration.Observe(p.clock.Since(start).Seconds())
	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	logger.Info("products written",
		"accum_file", event.AccumFile,
		"time_file", event.TimeFile,
		"max_accumulation_mm", event.MaxAccumulation,
	)
	return event, nil
}

// emit writes both product rasters and uploads them when object storage is configured.
func (p *Pipeline) emit(ctx context.Context, site string, dm *DailyMax) (domain.ProductEvent, error) {
	corr := p.cfg.Correction()
	event := domain.NewProductEvent(site, dm.Date, p.cfg.Window, p.cfg.Grid, corr)
	accumName, timeName := domain.ProductNames(site, dm.Date, p.cfg.Window, p.cfg.Grid, corr)

	if err := os.MkdirAll(p.cfg.ResultsDir, 0o755); err != nil {
		return event, fmt.Errorf("create results directory: %w", err)
	}
	tl, err := timeLayer(dm, timeName)
	if err != nil {
		return event, err
	}
	layers := []derivedLayer{accumulationLayer(dm, accumName, p.cfg.Window), tl}
	for _, dl := range layers {
		path := filepath.Join(p.cfg.ResultsDir, dl.name)
		if err := dl.emit(p.rasters, path, dm, p.cfg.Grid); err != nil {
			return event, err
		}
		p.metrics.ProductsWritten.Inc()
		if p.uploader != nil {
			key := site + "/" + event.Date + "/" + dl.name
			if err := p.uploader.Upload(ctx, key, path); err != nil {
				return event, fmt.Errorf("upload %s: %w", dl.name, err)
			}
		}
	}

	event.AccumFile = accumName
	event.TimeFile = timeName
	event.MaxAccumulation = dm.Peak()
	event.Timesteps = dm.Timesteps
	return event, nil
}
