package pipeline

import (
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// derivedLayer is one product raster of a DailyMax. The accumulation and
// time-of-maximum variants differ in data, attributes and encoding only.
type derivedLayer struct {
	name     string
	data     *sparse.DenseArray
	attrs    map[string]string
	encoding domain.Encoding
	// post are attributes attached by rewriting the file after it is written.
	post map[string]string
}

func accumulationLayer(dm *DailyMax, name string, w domain.Window) derivedLayer {
	enc := domain.DefaultEncoding()
	return derivedLayer{
		name: name,
		data: dm.Max,
		attrs: withProvenance(dm.Attrs, map[string]string{
			"units":         accumUnits,
			"standard_name": accumStandardName,
			"_FillValue":    fmt.Sprint(enc.FillValue),
			"long_name":     "maximum precipitation accumulation",
			"cell_methods":  w.CellMethods(),
		}),
		encoding: enc,
	}
}

// timeLayer holds, per pixel, the end time of the maximal window in minutes
// since the earliest such time in the layer.
func timeLayer(dm *DailyMax, name string) (derivedLayer, error) {
	ny, nx := dm.Max.Shape[0], dm.Max.Shape[1]
	var ref time.Time
	for iy := range ny {
		for ix := range nx {
			if t, ok := dm.TimeAt(iy, ix); ok && (ref.IsZero() || t.Before(ref)) {
				ref = t
			}
		}
	}
	if ref.IsZero() {
		return derivedLayer{}, fmt.Errorf("%w: no pixel has a complete window", domain.ErrInsufficientData)
	}

	enc := domain.Encoding{FillValue: domain.DefaultEncoding().FillValue, ScaleFactor: 1}
	data := sparse.ZerosDense(ny, nx)
	for iy := range ny {
		for ix := range nx {
			t, ok := dm.TimeAt(iy, ix)
			if !ok {
				data.Set(math.NaN(), iy, ix)
				continue
			}
			data.Set(t.Sub(ref).Minutes(), iy, ix)
		}
	}
	return derivedLayer{
		name: name,
		data: data,
		attrs: withProvenance(dm.Attrs, map[string]string{
			"long_name":  "end time of maximum precipitation accumulation period",
			"_FillValue": fmt.Sprint(enc.FillValue),
		}),
		encoding: enc,
		post:     map[string]string{"units": "minutes since " + ref.UTC().Format(time.DateTime)},
	}, nil
}

// emit writes the layer to path, then attaches the post-write attributes.
func (dl derivedLayer) emit(w RasterWriter, path string, dm *DailyMax, grid domain.GridConfig) error {
	l := &domain.Layer{
		Data:       dl.data,
		X:          dm.X,
		Y:          dm.Y,
		Resolution: float64(grid.Resolution),
		EPSG:       grid.EPSG,
		Encoding:   dl.encoding,
		Attrs:      dl.attrs,
	}
	if err := w.WriteLayer(path, l); err != nil {
		return fmt.Errorf("write %s: %w", dl.name, err)
	}
	if len(dl.post) == 0 {
		return nil
	}
	if err := w.UpdateAttrs(path, dl.post); err != nil {
		return fmt.Errorf("update attributes of %s: %w", dl.name, err)
	}
	return nil
}

// withProvenance returns attrs over a copy of the series provenance.
func withProvenance(provenance, attrs map[string]string) map[string]string {
	out := maps.Clone(provenance)
	if out == nil {
		out = make(map[string]string, len(attrs))
	}
	maps.Copy(out, attrs)
	return out
}
