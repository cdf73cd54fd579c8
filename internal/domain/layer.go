package domain

import (
	"errors"
	"fmt"

	"github.com/ctessum/sparse"
)

// Layer is one georeferenced raster band as written to a product file.
type Layer struct {
	// Data is (len(Y), len(X)) in physical units, rows ascending in y
	// (south to north). NaN is written as the fill value.
	Data *sparse.DenseArray
	X, Y []float64 // cell centres, ascending
	// Resolution is the cell size in metres.
	Resolution float64
	EPSG       int
	Encoding   Encoding
	// Attrs become dataset-level metadata items.
	Attrs map[string]string
}

// Validate checks that the data, coordinates and georeferencing agree.
func (l *Layer) Validate() error {
	if l.Data == nil || len(l.Data.Shape) != 2 {
		return errors.New("layer data must be 2-D")
	}
	if l.Data.Shape[0] != len(l.Y) || l.Data.Shape[1] != len(l.X) {
		return fmt.Errorf("layer data %v does not match %dx%d coordinates", l.Data.Shape, len(l.Y), len(l.X))
	}
	if len(l.X) == 0 || len(l.Y) == 0 {
		return errors.New("empty layer")
	}
	if l.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %g", l.Resolution)
	}
	if l.EPSG <= 0 || l.EPSG > 65535 {
		return fmt.Errorf("unsupported EPSG code %d", l.EPSG)
	}
	return l.Encoding.Validate()
}
