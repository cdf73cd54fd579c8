package netcdf

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/series"
)

// Frame is one cached raster, read through the store's handle cache.
type Frame struct {
	path    string
	t       time.Time
	ny, nx  int
	enc     domain.Encoding
	tiles   tileGrid
	offsets []int32
	store   *Store
}

// Name returns the file path.
func (f *Frame) Name() string { return f.path }

// Time returns the stored timestep.
func (f *Frame) Time() time.Time { return f.t }

// ReadWindow reads rows [y0, y1) and columns [x0, x1) of the rate.
func (f *Frame) ReadWindow(y0, y1, x0, x1 int) ([]float64, error) {
	if y0 < 0 || x0 < 0 || y1 > f.ny || x1 > f.nx || y0 >= y1 || x0 >= x1 {
		return nil, fmt.Errorf("window [%d:%d, %d:%d] outside %dx%d raster", y0, y1, x0, x1, f.ny, f.nx)
	}
	h, err := f.store.handles.get(f.path)
	if err != nil {
		return nil, err
	}
	w := x1 - x0
	out := make([]float64, (y1-y0)*w)
	size := f.tiles.size
	for ty := y0 / size; ty*size < y1; ty++ {
		for tx := x0 / size; tx*size < x1; tx++ {
			vals, err := f.readTile(h, ty, tx)
			if err != nil {
				return nil, err
			}
			ty0, ty1, tx0, tx1 := f.tiles.bounds(ty, tx)
			tw := tx1 - tx0
			for y := max(y0, ty0); y < min(y1, ty1); y++ {
				for x := max(x0, tx0); x < min(x1, tx1); x++ {
					out[(y-y0)*w+x-x0] = f.enc.Unpack(vals[(y-ty0)*tw+x-tx0])
				}
			}
		}
	}
	return out, nil
}

func (f *Frame) readTile(h *handle, ty, tx int) ([]uint16, error) {
	i := ty*f.tiles.cols() + tx
	start, end := int(f.offsets[i]), int(f.offsets[i+1])
	data := make([]uint8, end-start)
	if _, err := h.cdf.Reader(domain.LWE, []int{start}, []int{end}).Read(data); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	y0, y1, x0, x1 := f.tiles.bounds(ty, tx)
	vals, err := inflateTile(data, (y1-y0)*(x1-x0))
	if err != nil {
		return nil, fmt.Errorf("inflate tile %d,%d of %s: %w", ty, tx, f.path, err)
	}
	return vals, nil
}

// OpenDataset opens the headers of paths, up to the configured number at a
// time, and returns their frames in path order. Every file must share the
// grid of the first.
func (s *Store) OpenDataset(ctx context.Context, paths []string) (*series.Dataset, error) {
	headers := make([]*header, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.handles.evictStale(path); err != nil {
				return fmt.Errorf("close stale %s: %w", path, err)
			}
			h, err := openHandle(path)
			if err != nil {
				return err
			}
			defer h.file.Close()
			hdr, err := readHeader(h.cdf)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			headers[i] = hdr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds := &series.Dataset{Frames: make([]series.Frame, len(paths))}
	if len(paths) == 0 {
		return ds, nil
	}
	first := headers[0]
	ds.X, ds.Y, ds.Attrs = first.x, first.y, first.attrs
	for i, hdr := range headers {
		if !slices.Equal(hdr.x, first.x) || !slices.Equal(hdr.y, first.y) {
			return nil, fmt.Errorf("%w: %s grid differs from %s", domain.ErrGridMismatch, paths[i], paths[0])
		}
		ds.Frames[i] = &Frame{
			path:    paths[i],
			t:       hdr.time,
			ny:      len(hdr.y),
			nx:      len(hdr.x),
			enc:     hdr.enc,
			tiles:   hdr.tiles,
			offsets: hdr.offsets,
			store:   s,
		}
	}
	return ds, nil
}
