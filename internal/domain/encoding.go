package domain

import (
	"fmt"
	"math"
)

// Encoding describes how rasters are packed on disk: unsigned 16-bit
// integers with a fill value and a scale factor. The rate cache and every
// product share DefaultEncoding.
type Encoding struct {
	FillValue   uint16
	ScaleFactor float64
}

// DefaultEncoding is the fixed cache encoding: fill 65535, scale 0.01.
func DefaultEncoding() Encoding {
	return Encoding{FillValue: math.MaxUint16, ScaleFactor: 0.01}
}

// Validate reports whether e can pack values.
func (e Encoding) Validate() error {
	if e.ScaleFactor <= 0 || math.IsNaN(e.ScaleFactor) {
		return fmt.Errorf("scale factor must be positive, got %g", e.ScaleFactor)
	}
	return nil
}

// Pack quantises v. NaN maps to the fill value; other values are rounded and
// clamped below it.
func (e Encoding) Pack(v float64) uint16 {
	if math.IsNaN(v) {
		return e.FillValue
	}
	q := math.Round(v / e.ScaleFactor)
	if q <= 0 {
		return 0
	}
	if q >= float64(e.FillValue) {
		return e.FillValue - 1
	}
	return uint16(q)
}

// Unpack reverses Pack; the fill value becomes NaN.
func (e Encoding) Unpack(q uint16) float64 {
	if q == e.FillValue {
		return math.NaN()
	}
	return float64(q) * e.ScaleFactor
}
