package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"os"
	"path/filepath"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/gridding"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
)

// scanAccumDir holds the per-scan accumulation rasters under the results directory.
const scanAccumDir = "scan_accums"

// Accumulation attributes shared by per-scan and daily rasters.
const (
	accumUnits        = "mm"
	accumStandardName = "lwe_thickness_of_precipitation_amount"
)

// CacheWriter grids raw scans into the rate cache.
type CacheWriter struct {
	reader    ScanReader
	engine    gridding.Engine
	projector *gridding.Projector
	store     ArrayStore
	rasters   RasterWriter

	cacheDir     string
	resultsDir   string
	grid         domain.GridConfig
	corr         domain.Correction
	dbzField     string
	zr           gridding.ZR
	scansPerHour int
	ignoreCache  bool
	isolate      bool
	history      string

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewCacheWriter creates a CacheWriter for cfg.
func NewCacheWriter(cfg *config.Config, reader ScanReader, engine gridding.Engine, store ArrayStore, rasters RasterWriter, logger *slog.Logger, metrics *observability.Metrics) (*CacheWriter, error) {
	projector, err := gridding.NewProjector(cfg.Grid.Proj4)
	if err != nil {
		return nil, fmt.Errorf("grid projection: %w", err)
	}
	return &CacheWriter{
		reader:       reader,
		engine:       engine,
		projector:    projector,
		store:        store,
		rasters:      rasters,
		cacheDir:     cfg.CacheDir,
		resultsDir:   cfg.ResultsDir,
		grid:         cfg.Grid,
		corr:         cfg.Correction(),
		dbzField:     cfg.DBZField,
		zr:           gridding.ZR{A: cfg.ZRA, B: cfg.ZRB},
		scansPerHour: cfg.ScansPerHour,
		ignoreCache:  cfg.IgnoreCache,
		isolate:      cfg.IsolateScanErrors,
		history:      "storm-data-maxprecip " + cfg.Version,
		logger:       logger,
		metrics:      metrics,
	}, nil
}

// Update makes sure every scan in scanPaths has a cache entry and returns
// the site the scans came from. Entries that exist are kept unless the cache
// is ignored.
//
// By default the first failing scan aborts the batch. With isolated errors,
// failures are logged and the remaining scans processed; all failures are
// returned joined. Scans from more than one site always abort.
func (c *CacheWriter) Update(ctx context.Context, scanPaths []string) (string, error) {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	if c.resultsDir != "" && len(scanPaths) > 0 {
		if err := os.MkdirAll(filepath.Join(c.resultsDir, scanAccumDir), 0o755); err != nil {
			return "", fmt.Errorf("create scan accumulation directory: %w", err)
		}
	}

	logger := observability.LoggerFromContext(ctx, c.logger)
	var (
		site string
		errs []error
	)
	for _, path := range scanPaths {
		if err := ctx.Err(); err != nil {
			return site, err
		}
		scanSite, result, err := c.updateScan(ctx, path, site)
		if err != nil {
			c.metrics.ScansTotal.WithLabelValues(observability.ScanFailed).Inc()
			err = fmt.Errorf("scan %s: %w", path, err)
			if !c.isolate || errors.Is(err, domain.ErrMixedSites) {
				return site, err
			}
			logger.Error("scan failed, continuing", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		c.metrics.ScansTotal.WithLabelValues(result).Inc()
		site = scanSite
	}
	return site, errors.Join(errs...)
}

// updateScan caches one scan. site is the site seen so far in the batch.
func (c *CacheWriter) updateScan(ctx context.Context, path, site string) (string, string, error) {
	logger := observability.LoggerFromContext(ctx, c.logger)
	scan, err := c.reader.Read(ctx, path)
	if err != nil {
		return "", "", err
	}
	if !domain.ValidSiteID(scan.SiteID) {
		return "", "", fmt.Errorf("%w: source %q", domain.ErrMissingSiteID, scan.Source)
	}
	if site != "" && scan.SiteID != site {
		return "", "", fmt.Errorf("%w: %s after %s", domain.ErrMixedSites, scan.SiteID, site)
	}

	key := domain.NewCacheKey(scan.BeginTime, scan.SiteID, c.grid, c.corr)
	cachePath := filepath.Join(c.cacheDir, key.Name(domain.CacheExt))
	exists, err := c.store.Exists(cachePath)
	if err != nil {
		return "", "", err
	}
	if exists && !c.ignoreCache {
		logger.Debug("cache entry exists", "path", cachePath)
		return scan.SiteID, observability.ScanCached, nil
	}

	if scan.Provenance == nil {
		logger.Warn("caching scan without provenance", "path", path, "error", domain.ErrMissingProvenance)
	}
	if err := gridding.ConvertZR(&scan.Sweep, c.dbzField, c.zr); err != nil {
		return "", "", err
	}
	params, err := c.projector.Params(scan, c.grid)
	if err != nil {
		return "", "", err
	}
	g, err := c.engine.Grid(scan, domain.LWE, gridding.BasicFilter(domain.LWE), params)
	if err != nil {
		return "", "", fmt.Errorf("grid: %w", err)
	}

	attrs := make(map[string]string, len(scan.Provenance)+1)
	maps.Copy(attrs, scan.Provenance)
	attrs["history"] = c.history
	raster := &domain.RateRaster{
		Time:  scan.BeginTime,
		X:     g.X,
		Y:     g.Y,
		Rate:  zeroMissing(g.Data),
		EPSG:  c.grid.EPSG,
		Attrs: attrs,
	}
	if err := c.store.WriteRate(cachePath, raster, domain.DefaultEncoding()); err != nil {
		return "", "", err
	}
	logger.Info("scan cached", "path", cachePath, "site", scan.SiteID, "time", scan.BeginTime)

	if c.resultsDir != "" {
		tif := filepath.Join(c.resultsDir, scanAccumDir, key.Name(domain.TIFExt))
		if err := c.rasters.WriteLayer(tif, c.scanAccumulation(raster)); err != nil {
			return "", "", err
		}
	}
	return scan.SiteID, observability.ScanGridded, nil
}

// scanAccumulation is the rate of r over one nominal scan interval, in mm.
func (c *CacheWriter) scanAccumulation(r *domain.RateRaster) *domain.Layer {
	acc := sparse.ZerosDense(r.Rate.Shape...)
	for i, v := range r.Rate.Elements {
		acc.Elements[i] = v / float64(c.scansPerHour)
	}
	attrs := maps.Clone(r.Attrs)
	attrs["units"] = accumUnits
	attrs["standard_name"] = accumStandardName
	attrs["_FillValue"] = fmt.Sprint(domain.DefaultEncoding().FillValue)
	return &domain.Layer{
		Data:       acc,
		X:          r.X,
		Y:          r.Y,
		Resolution: float64(c.grid.Resolution),
		EPSG:       r.EPSG,
		Encoding:   domain.DefaultEncoding(),
		Attrs:      attrs,
	}
}

func zeroMissing(a *sparse.DenseArray) *sparse.DenseArray {
	out := sparse.ZerosDense(a.Shape...)
	for i, v := range a.Elements {
		if !math.IsNaN(v) {
			out.Elements[i] = v
		}
	}
	return out
}
