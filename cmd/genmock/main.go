// Command genmock writes a synthetic rate cache: a Gaussian rain cell that
// crosses the grid at a constant speed, one file per scan. The files are
// written by the same store the pipeline uses, so the cache can be reduced
// with maxprecip -site.
//
// Usage:
//
//	go run ./cmd/genmock -cache-dir /tmp/maksicache -site fiuta -date 20230821 -size 256 -resolution 1000
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// cell is a rain cell whose centre moves linearly across the grid.
type cell struct {
	peak   float64 // mm/h at the centre
	sigma  float64 // metres
	x0, y0 float64
	vx, vy float64 // metres per second
}

func (c cell) rate(x, y float64, elapsed time.Duration) float64 {
	s := elapsed.Seconds()
	dx := x - (c.x0 + c.vx*s)
	dy := y - (c.y0 + c.vy*s)
	return c.peak * math.Exp(-(dx*dx+dy*dy)/(2*c.sigma*c.sigma))
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	grid := domain.DefaultGrid()
	var (
		cacheDir     = flag.String("cache-dir", config.DefaultCacheDir, "rate cache directory")
		site         = flag.String("site", "fiuta", "site identifier")
		dateStr      = flag.String("date", "", "day to generate as YYYYMMDD; the day before is generated too (required)")
		scansPerHour = flag.Int("scans-per-hour", 12, "scans per hour")
		peak         = flag.Float64("peak", 40, "peak rain rate in mm/h")
		centerX      = flag.Float64("center-x", 0, "projected x of the grid centre")
		centerY      = flag.Float64("center-y", 0, "projected y of the grid centre")
	)
	flag.IntVar(&grid.Size, "size", 256, "grid size in pixels per side")
	flag.IntVar(&grid.Resolution, "resolution", 1000, "grid resolution in metres")
	flag.Parse()

	if *dateStr == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -date")
	}
	date, err := time.Parse(domain.DateLayout, *dateStr)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}
	if !domain.ValidSiteID(*site) {
		return fmt.Errorf("invalid -site %q", *site)
	}
	if err := grid.Validate(); err != nil {
		return err
	}
	if *scansPerHour <= 0 || 60%*scansPerHour != 0 {
		return fmt.Errorf("-scans-per-hour must divide 60, got %d", *scansPerHour)
	}
	if err := os.MkdirAll(*cacheDir, 0o755); err != nil {
		return err
	}

	x := grid.CellCenters(*centerX)
	y := grid.CellCenters(*centerY)
	half := grid.HalfExtent()
	start := date.AddDate(0, 0, -1)
	span := 48 * time.Hour
	// The cell crosses the grid diagonally once over the two days.
	c := cell{
		peak:  *peak,
		sigma: half / 8,
		x0:    *centerX - half,
		y0:    *centerY - half,
		vx:    2 * half / span.Seconds(),
		vy:    2 * half / span.Seconds(),
	}

	store := netcdf.NewStore(1, 1)
	defer store.Close()

	step := domain.ScanInterval(*scansPerHour)
	n := 0
	for t := start; t.Before(start.Add(span)); t = t.Add(step) {
		r := &domain.RateRaster{
			Time:  t,
			X:     x,
			Y:     y,
			Rate:  sparse.ZerosDense(len(y), len(x)),
			EPSG:  grid.EPSG,
			Attrs: map[string]string{"source": "NOD:" + *site, "history": "genmock"},
		}
		elapsed := t.Sub(start)
		for iy, yy := range y {
			for ix, xx := range x {
				if v := c.rate(xx, yy, elapsed); v >= 0.1 {
					r.Rate.Set(v, iy, ix)
				}
			}
		}
		name := domain.NewCacheKey(t, *site, grid, domain.Uncorrected).Name(domain.CacheExt)
		if err := store.WriteRate(filepath.Join(*cacheDir, name), r, domain.DefaultEncoding()); err != nil {
			return err
		}
		n++
	}
	log.Printf("wrote %d cache files for %s to %s", n, *site, *cacheDir)
	return nil
}
