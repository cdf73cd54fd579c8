// Package odim reads the lowest elevation of ODIM HDF5 polar volumes.
package odim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

const timeLayout = "20060102150405"

// volume is the metadata of one ODIM file, detached from the HDF5 handle.
// Moment arrays are read on demand.
type volume struct {
	what, where attrs
	datasets    []*dataset
}

type dataset struct {
	name             string
	index            int
	what, where, how attrs
	moments          []*moment
}

type moment struct {
	name string
	what attrs
	load func() (any, error)
}

// Reader decodes ODIM HDF5 volumes into scans.
type Reader struct {
	fields []string
}

// NewReader returns a Reader that decodes the named moments of the lowest
// elevation. With no names every moment is decoded.
func NewReader(fields ...string) *Reader {
	return &Reader{fields: fields}
}

// Read opens path, decodes its lowest elevation and releases the file.
func (r *Reader) Read(ctx context.Context, path string) (*domain.Scan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer root.Close()

	vol, err := loadVolume(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	scan, err := r.decode(vol)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	scan.Path = path
	return scan, nil
}

func loadVolume(root api.Group) (*volume, error) {
	vol := &volume{what: groupAttrs(root, "what"), where: groupAttrs(root, "where")}
	for _, name := range root.ListSubgroups() {
		idx, ok := groupIndex(name, "dataset")
		if !ok {
			continue
		}
		g, err := root.GetGroup(name)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", name, err)
		}
		ds := &dataset{
			name:  name,
			index: idx,
			what:  groupAttrs(g, "what"),
			where: groupAttrs(g, "where"),
			how:   groupAttrs(g, "how"),
		}
		for _, sub := range g.ListSubgroups() {
			if _, ok := groupIndex(sub, "data"); !ok {
				continue
			}
			mg, err := g.GetGroup(sub)
			if err != nil {
				return nil, fmt.Errorf("group %s/%s: %w", name, sub, err)
			}
			ds.moments = append(ds.moments, &moment{
				name: name + "/" + sub,
				what: groupAttrs(mg, "what"),
				load: func() (any, error) {
					vg, err := mg.GetVarGetter("data")
					if err != nil {
						return nil, err
					}
					return vg.Values()
				},
			})
		}
		vol.datasets = append(vol.datasets, ds)
	}
	slices.SortFunc(vol.datasets, func(a, b *dataset) int { return a.index - b.index })
	return vol, nil
}

func groupAttrs(g api.Group, name string) attrs {
	sub, err := g.GetGroup(name)
	if err != nil || sub == nil {
		return attrs{}
	}
	return readAttrs(sub.Attributes())
}

// groupIndex parses names like "dataset3" or "data1".
func groupIndex(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (r *Reader) decode(vol *volume) (*domain.Scan, error) {
	scan := &domain.Scan{}
	if src, ok := vol.what.String("source"); ok && src != "" {
		scan.Source = src
		scan.Provenance = domain.ParseSource(src)
	}
	// Empty when the source has no NOD; callers validate.
	scan.SiteID = scan.Provenance["NOD"]

	var ok bool
	if scan.Latitude, ok = vol.where.Float("lat"); !ok {
		return nil, errors.New("missing where/lat")
	}
	if scan.Longitude, ok = vol.where.Float("lon"); !ok {
		return nil, errors.New("missing where/lon")
	}
	scan.Altitude = vol.where.FloatOr("height", 0)

	ds := lowestElevation(vol.datasets)
	if ds == nil {
		return nil, errors.New("no datasets")
	}
	t, err := beginTime(ds.what, vol.what)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.name, err)
	}
	scan.BeginTime = t

	sweep, err := r.decodeSweep(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ds.name, err)
	}
	scan.Sweep = *sweep
	return scan, nil
}

// lowestElevation returns the dataset with the smallest elevation angle; the
// first one wins on ties.
func lowestElevation(datasets []*dataset) *dataset {
	var best *dataset
	bestEl := math.Inf(1)
	for _, ds := range datasets {
		el := ds.where.FloatOr("elangle", math.Inf(1))
		if best == nil || el < bestEl {
			best, bestEl = ds, el
		}
	}
	return best
}

// beginTime reads the dataset start time, falling back to the nominal time
// of the volume.
func beginTime(dsWhat, rootWhat attrs) (time.Time, error) {
	date, okDate := dsWhat.String("startdate")
	clock, okTime := dsWhat.String("starttime")
	if !okDate || !okTime {
		date, okDate = rootWhat.String("date")
		clock, okTime = rootWhat.String("time")
	}
	if !okDate || !okTime {
		return time.Time{}, errors.New("missing start date and time")
	}
	t, err := time.Parse(timeLayout, date+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time: %w", err)
	}
	return t.UTC(), nil
}

func (r *Reader) decodeSweep(ds *dataset) (*domain.Sweep, error) {
	rscale, ok := ds.where.Float("rscale")
	if !ok {
		return nil, errors.New("missing where/rscale")
	}
	sweep := &domain.Sweep{
		Elevation:  ds.where.FloatOr("elangle", 0),
		RangeStart: ds.where.FloatOr("rstart", 0)*1000 + rscale/2,
		RangeStep:  rscale,
		Fields:     make(map[string]*sparse.DenseArray),
	}

	nrays := int(ds.where.FloatOr("nrays", 0))
	for _, m := range ds.moments {
		quantity, ok := m.what.String("quantity")
		if !ok {
			quantity, _ = ds.what.String("quantity")
		}
		if quantity == "" || !r.wants(quantity) {
			continue
		}
		field, err := decodeMoment(m, ds.what)
		if err != nil {
			return nil, fmt.Errorf("%s (%s): %w", m.name, quantity, err)
		}
		if nrays == 0 {
			nrays = field.Shape[0]
		}
		if field.Shape[0] != nrays {
			return nil, fmt.Errorf("%s has %d rays, want %d", quantity, field.Shape[0], nrays)
		}
		sweep.Fields[quantity] = field
	}
	for _, name := range r.fields {
		if _, ok := sweep.Fields[name]; !ok {
			return nil, fmt.Errorf("no %s moment", name)
		}
	}
	if nrays == 0 {
		return nil, errors.New("no rays")
	}
	sweep.Azimuths = azimuths(ds.how, nrays)
	return sweep, nil
}

func (r *Reader) wants(quantity string) bool {
	return len(r.fields) == 0 || slices.Contains(r.fields, quantity)
}

// decodeMoment applies gain and offset and masks nodata and undetect as NaN.
// Scaling attributes in the moment group take precedence over the dataset's.
func decodeMoment(m *moment, dsWhat attrs) (*sparse.DenseArray, error) {
	raw, err := m.load()
	if err != nil {
		return nil, err
	}
	values, nrow, ncol, err := flatten(raw)
	if err != nil {
		return nil, err
	}
	lookup := func(key string, def float64) float64 {
		if v, ok := m.what.Float(key); ok {
			return v
		}
		return dsWhat.FloatOr(key, def)
	}
	gain := lookup("gain", 1)
	offset := lookup("offset", 0)
	nodata := lookup("nodata", math.NaN())
	undetect := lookup("undetect", math.NaN())

	out := sparse.ZerosDense(nrow, ncol)
	for i, v := range values {
		if v == nodata || v == undetect || math.IsNaN(v) {
			out.Elements[i] = math.NaN()
			continue
		}
		out.Elements[i] = v*gain + offset
	}
	return out, nil
}

// azimuths returns ray centre azimuths in degrees. When the file records
// start and stop angles per ray their midpoints are used, otherwise rays are
// spread evenly from north.
func azimuths(how attrs, nrays int) []float64 {
	out := make([]float64, nrays)
	start, okStart := how.Floats("startazA")
	stop, okStop := how.Floats("stopazA")
	if okStart && okStop && len(start) == nrays && len(stop) == nrays {
		for i := range out {
			b, e := start[i], stop[i]
			if e < b {
				e += 360
			}
			out[i] = math.Mod((b+e)/2, 360)
		}
		return out
	}
	for i := range out {
		out[i] = (float64(i) + 0.5) * 360 / float64(nrays)
	}
	return out
}
