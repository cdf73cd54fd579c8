// Package netcdf stores gridded precipitation rates as netCDF-3 classic files,
// one timestep per file, and reads them back as lazily loaded frames.
//
// Rates are packed as unsigned 16-bit integers with _FillValue 65535 (stored as
// -1) and scale_factor 0.01, then zlib-compressed in square tiles. netCDF-3
// has no compression of its own, so the rate variable holds the concatenated
// zlib streams and tile_offsets their byte bounds; tile_size and the x and y
// coordinates give the raster shape. A window read inflates only the tiles it
// overlaps.
package netcdf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ctessum/cdf"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

const (
	timeUnits = "seconds since 1970-01-01 00:00:00"
	rateUnits = "mm h-1"

	tileOffsetsVar = "tile_offsets"
)

// Store reads and writes cached rate rasters.
type Store struct {
	workers int
	handles *handleCache
}

// NewStore returns a Store that opens up to openWorkers file headers at once
// and keeps up to maxOpenFiles files open for reading.
func NewStore(openWorkers, maxOpenFiles int) *Store {
	return &Store{
		workers: max(1, openWorkers),
		handles: newHandleCache(maxOpenFiles),
	}
}

// Close closes every file kept open for reading.
func (s *Store) Close() error {
	return s.handles.closeAll()
}

// Exists reports whether a cache entry exists at path.
func (s *Store) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// WriteRate writes r to path. The file is written under a temporary name and
// renamed into place, so readers never see a partial entry.
func (s *Store) WriteRate(path string, r *domain.RateRaster, enc domain.Encoding) error {
	if err := enc.Validate(); err != nil {
		return err
	}
	ny, nx := len(r.Y), len(r.X)
	if r.Rate == nil || len(r.Rate.Shape) != 2 || r.Rate.Shape[0] != ny || r.Rate.Shape[1] != nx {
		return fmt.Errorf("rate raster shape does not match %dx%d coordinates", ny, nx)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeRate(tmp, r, enc); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	if err := s.handles.evict(path); err != nil {
		return fmt.Errorf("close replaced %s: %w", path, err)
	}
	return nil
}

func writeRate(f *os.File, r *domain.RateRaster, enc domain.Encoding) error {
	ny, nx := len(r.Y), len(r.X)
	packed := make([]uint16, len(r.Rate.Elements))
	for i, v := range r.Rate.Elements {
		packed[i] = enc.Pack(v)
	}
	tiles := tileGrid{ny: ny, nx: nx, size: tileSize}
	payload, offsets, err := compressTiles(packed, tiles)
	if err != nil {
		return err
	}

	h := cdf.NewHeader(
		[]string{"time", "y", "x", "tile_bound", "zlib_bytes"},
		[]int{1, ny, nx, len(offsets), len(payload)},
	)

	// Sort the names so they write in the same order every time.
	names := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		h.AddAttribute("", k, r.Attrs[k])
	}
	h.AddAttribute("", "crs", fmt.Sprintf("EPSG:%d", r.EPSG))
	h.AddAttribute("", "epsg", []int32{int32(r.EPSG)})

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)
	h.AddAttribute("time", "standard_name", "time")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "units", "m")
	h.AddAttribute("y", "standard_name", "projection_y_coordinate")
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "units", "m")
	h.AddAttribute("x", "standard_name", "projection_x_coordinate")

	h.AddVariable(tileOffsetsVar, []string{"tile_bound"}, []int32{0})
	h.AddAttribute(tileOffsetsVar, "long_name", "byte offsets of the compressed tiles")

	h.AddVariable(domain.LWE, []string{"zlib_bytes"}, []uint8{0})
	h.AddAttribute(domain.LWE, "dimensions", "time y x")
	h.AddAttribute(domain.LWE, "compression", "zlib")
	h.AddAttribute(domain.LWE, "tile_size", []int32{tileSize})
	h.AddAttribute(domain.LWE, "units", rateUnits)
	h.AddAttribute(domain.LWE, "standard_name", domain.LWE)
	h.AddAttribute(domain.LWE, "_Unsigned", "true")
	h.AddAttribute(domain.LWE, "_FillValue", []int16{int16(enc.FillValue)})
	h.AddAttribute(domain.LWE, "scale_factor", []float64{enc.ScaleFactor})
	h.Define()

	cf, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("create header: %w", err)
	}

	if err := writeVar(cf, "time", []float64{float64(r.Time.UTC().Unix())}); err != nil {
		return err
	}
	if err := writeVar(cf, "y", r.Y); err != nil {
		return err
	}
	if err := writeVar(cf, "x", r.X); err != nil {
		return err
	}
	if err := writeVar(cf, tileOffsetsVar, offsets); err != nil {
		return err
	}
	return writeVar(cf, domain.LWE, payload)
}

func writeVar(f *cdf.File, v string, data any) error {
	end := f.Header.Lengths(v)
	start := make([]int, len(end))
	w := f.Writer(v, start, end)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write variable %s: %w", v, err)
	}
	return nil
}

// Info describes one cache file without reading its data.
type Info struct {
	Time     time.Time
	X, Y     []float64
	Encoding domain.Encoding
	Attrs    map[string]string
}

// Inspect reads the header of the cache file at path.
func (s *Store) Inspect(path string) (*Info, error) {
	h, err := openHandle(path)
	if err != nil {
		return nil, err
	}
	defer h.file.Close()
	hdr, err := readHeader(h.cdf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Info{Time: hdr.time, X: hdr.x, Y: hdr.y, Encoding: hdr.enc, Attrs: hdr.attrs}, nil
}

// header is the metadata of one cache file.
type header struct {
	time    time.Time
	x, y    []float64
	enc     domain.Encoding
	attrs   map[string]string
	tiles   tileGrid
	offsets []int32
}

func readHeader(f *cdf.File) (*header, error) {
	lengths := f.Header.Lengths(domain.LWE)
	if len(lengths) != 1 {
		return nil, fmt.Errorf("variable %s has dimensions %v, want compressed bytes", domain.LWE, lengths)
	}
	if c, _ := f.Header.GetAttribute(domain.LWE, "compression").(string); c != "zlib" {
		return nil, fmt.Errorf("variable %s: unsupported compression %q", domain.LWE, c)
	}
	size, ok := f.Header.GetAttribute(domain.LWE, "tile_size").([]int32)
	if !ok || len(size) == 0 || size[0] <= 0 {
		return nil, fmt.Errorf("variable %s has no tile_size", domain.LWE)
	}
	if units, _ := f.Header.GetAttribute("time", "units").(string); units != timeUnits {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}
	t, err := readFloats(f, "time")
	if err != nil {
		return nil, err
	}
	if len(t) != 1 {
		return nil, fmt.Errorf("want one timestep, got %d", len(t))
	}
	x, err := readFloats(f, "x")
	if err != nil {
		return nil, err
	}
	y, err := readFloats(f, "y")
	if err != nil {
		return nil, err
	}
	tiles := tileGrid{ny: len(y), nx: len(x), size: int(size[0])}
	offsets, err := readOffsets(f, tiles, lengths[0])
	if err != nil {
		return nil, err
	}
	enc, err := readEncoding(f)
	if err != nil {
		return nil, err
	}

	attrs := make(map[string]string)
	for _, name := range f.Header.Attributes("") {
		if v, ok := f.Header.GetAttribute("", name).(string); ok {
			attrs[name] = v
		}
	}
	return &header{
		time:    time.Unix(int64(t[0]), 0).UTC(),
		x:       x,
		y:       y,
		enc:     enc,
		attrs:   attrs,
		tiles:   tiles,
		offsets: offsets,
	}, nil
}

// readOffsets reads the tile byte bounds and checks they cover the payload.
func readOffsets(f *cdf.File, tiles tileGrid, nbytes int) ([]int32, error) {
	lengths := f.Header.Lengths(tileOffsetsVar)
	if len(lengths) != 1 || lengths[0] != tiles.count()+1 {
		return nil, fmt.Errorf("variable %s has dimensions %v, want %d tile bounds", tileOffsetsVar, lengths, tiles.count()+1)
	}
	offsets := make([]int32, lengths[0])
	if _, err := f.Reader(tileOffsetsVar, nil, nil).Read(offsets); err != nil {
		return nil, fmt.Errorf("read variable %s: %w", tileOffsetsVar, err)
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, fmt.Errorf("variable %s is not ascending", tileOffsetsVar)
		}
	}
	if offsets[0] != 0 || int(offsets[len(offsets)-1]) != nbytes {
		return nil, fmt.Errorf("tile offsets do not span the %d compressed bytes", nbytes)
	}
	return offsets, nil
}

func readFloats(f *cdf.File, v string) ([]float64, error) {
	lengths := f.Header.Lengths(v)
	if len(lengths) != 1 {
		return nil, fmt.Errorf("variable %s: want one dimension, got %v", v, lengths)
	}
	buf := make([]float64, lengths[0])
	if _, err := f.Reader(v, nil, nil).Read(buf); err != nil {
		return nil, fmt.Errorf("read variable %s: %w", v, err)
	}
	return buf, nil
}

func readEncoding(f *cdf.File) (domain.Encoding, error) {
	if u, _ := f.Header.GetAttribute(domain.LWE, "_Unsigned").(string); u != "true" {
		return domain.Encoding{}, fmt.Errorf("variable %s is not unsigned", domain.LWE)
	}
	var enc domain.Encoding
	switch v := f.Header.GetAttribute(domain.LWE, "scale_factor").(type) {
	case []float64:
		if len(v) > 0 {
			enc.ScaleFactor = v[0]
		}
	case []float32:
		if len(v) > 0 {
			enc.ScaleFactor = float64(v[0])
		}
	}
	fill, ok := f.Header.GetAttribute(domain.LWE, "_FillValue").([]int16)
	if !ok || len(fill) == 0 {
		return domain.Encoding{}, fmt.Errorf("variable %s has no short _FillValue", domain.LWE)
	}
	enc.FillValue = uint16(fill[0])
	if err := enc.Validate(); err != nil {
		return domain.Encoding{}, fmt.Errorf("variable %s: %w", domain.LWE, err)
	}
	return enc, nil
}
