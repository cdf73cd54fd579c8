package odim

import (
	"fmt"
	"math"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// attrs is a detached copy of one HDF5 attribute group (what, where or how).
type attrs map[string]any

func readAttrs(m api.AttributeMap) attrs {
	out := make(attrs)
	if m == nil {
		return out
	}
	for _, k := range m.Keys() {
		if v, ok := m.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// String returns a string attribute. Fixed-length HDF5 strings may carry
// trailing NULs, which are trimmed.
func (a attrs) String(key string) (string, bool) {
	switch v := a[key].(type) {
	case string:
		return strings.TrimRight(v, "\x00 "), true
	case []string:
		if len(v) > 0 {
			return strings.TrimRight(v[0], "\x00 "), true
		}
	case []byte:
		return strings.TrimRight(string(v), "\x00 "), true
	}
	return "", false
}

// Float returns a numeric attribute. Scalars and the first element of
// one-element arrays are accepted.
func (a attrs) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint8:
		return float64(v), true
	case []float64:
		return first(v)
	case []float32:
		return first(v)
	case []int64:
		return first(v)
	case []int32:
		return first(v)
	case []int16:
		return first(v)
	case []uint64:
		return first(v)
	case []uint32:
		return first(v)
	case []uint16:
		return first(v)
	}
	return math.NaN(), false
}

// FloatOr returns the numeric attribute or def when absent.
func (a attrs) FloatOr(key string, def float64) float64 {
	if v, ok := a.Float(key); ok {
		return v
	}
	return def
}

// Floats returns a numeric array attribute.
func (a attrs) Floats(key string) ([]float64, bool) {
	switch v := a[key].(type) {
	case []float64:
		return v, true
	case []float32:
		return toFloat64(v), true
	case []int64:
		return toFloat64(v), true
	case []int32:
		return toFloat64(v), true
	}
	return nil, false
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

func first[T number](v []T) (float64, bool) {
	if len(v) == 0 {
		return math.NaN(), false
	}
	return float64(v[0]), true
}

func toFloat64[T number](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func rows2D[T number](v [][]T) ([]float64, int, int) {
	if len(v) == 0 {
		return nil, 0, 0
	}
	nrows, ncols := len(v), len(v[0])
	out := make([]float64, 0, nrows*ncols)
	for _, row := range v {
		out = append(out, toFloat64(row)...)
	}
	return out, nrows, ncols
}

// flatten converts the 2-D array returned by the HDF5 reader to row-major float64.
func flatten(values any) ([]float64, int, int, error) {
	var (
		out        []float64
		nrow, ncol int
	)
	switch v := values.(type) {
	case [][]uint8:
		out, nrow, ncol = rows2D(v)
	case [][]int8:
		out, nrow, ncol = rows2D(v)
	case [][]uint16:
		out, nrow, ncol = rows2D(v)
	case [][]int16:
		out, nrow, ncol = rows2D(v)
	case [][]uint32:
		out, nrow, ncol = rows2D(v)
	case [][]int32:
		out, nrow, ncol = rows2D(v)
	case [][]uint64:
		out, nrow, ncol = rows2D(v)
	case [][]int64:
		out, nrow, ncol = rows2D(v)
	case [][]float32:
		out, nrow, ncol = rows2D(v)
	case [][]float64:
		out, nrow, ncol = rows2D(v)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported data array type %T", values)
	}
	if len(out) != nrow*ncol {
		return nil, 0, 0, fmt.Errorf("ragged data array %dx%d with %d values", nrow, ncol, len(out))
	}
	return out, nrow, ncol, nil
}
