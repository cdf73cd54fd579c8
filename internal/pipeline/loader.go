package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/observability"
	"github.com/couchcryptid/storm-data-maxprecip/internal/series"
)

// AutoChunk picks a spatial chunk size for a grid of size×size cells.
func AutoChunk(size int) int {
	switch {
	case size > 1500:
		return 128
	case size > 250:
		return 256
	default:
		return size
	}
}

// Loader opens cached rate rasters as a time series.
type Loader struct {
	store   ArrayStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader reading from store.
func NewLoader(store ArrayStore, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{store: store, logger: logger, metrics: metrics}
}

// Load opens paths and returns their series split into chunk×chunk spatial
// chunks. Times are rounded to the minute and sorted; of several files with
// the same minute the first in path order is kept.
func (l *Loader) Load(ctx context.Context, paths []string, chunk int) (*series.Series, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no cached rasters", domain.ErrInsufficientData)
	}
	ds, err := l.store.OpenDataset(ctx, paths)
	if err != nil {
		return nil, err
	}
	l.metrics.CacheFilesLoaded.Add(float64(len(ds.Frames)))

	frames := make([]series.Frame, len(ds.Frames))
	for i, f := range ds.Frames {
		frames[i] = minuteFrame{Frame: f, t: f.Time().UTC().Round(time.Minute)}
	}
	slices.SortStableFunc(frames, func(a, b series.Frame) int {
		return a.Time().Compare(b.Time())
	})
	kept := frames[:0]
	for _, f := range frames {
		if n := len(kept); n > 0 && kept[n-1].Time().Equal(f.Time()) {
			observability.LoggerFromContext(ctx, l.logger).Warn("dropping duplicate timestep", "path", f.Name(), "kept", kept[n-1].Name(), "time", f.Time())
			continue
		}
		kept = append(kept, f)
	}
	return series.New(kept, ds.X, ds.Y, ds.Attrs, chunk)
}

// minuteFrame reports the time of a frame rounded to the minute.
type minuteFrame struct {
	series.Frame
	t time.Time
}

func (f minuteFrame) Time() time.Time { return f.t }
