package series

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ctessum/sparse"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// missing marks a NaN value in the quantised stack.
const missing = -1

// Reduction is the lazy per-pixel maximum of a rolling sum.
type Reduction struct {
	rolling *Rolling
}

// Result is a materialised reduction.
type Result struct {
	// Max is (ny, nx) in the rolling sum's units; NaN where no complete
	// window exists.
	Max *sparse.DenseArray
	// Index holds, per pixel in row-major order, the position in Times of the
	// last timestep of the maximal window, or -1.
	Index []int
	// Times is the time axis of the reduced series.
	Times []time.Time
	// Chunks is the number of spatial chunks evaluated.
	Chunks int
}

// TimeAt returns the end time of the maximal window of pixel (iy, ix).
func (r *Result) TimeAt(iy, ix int) (time.Time, bool) {
	i := r.Index[iy*r.Max.Shape[1]+ix]
	if i < 0 {
		return time.Time{}, false
	}
	return r.Times[i], true
}

// LastTime is the final timestep of the reduced series.
func (r *Result) LastTime() time.Time { return r.Times[len(r.Times)-1] }

// Compute evaluates the graph chunk by chunk. When two windows reach the same
// maximum the earliest one wins. The context is checked between chunks.
func (red *Reduction) Compute(ctx context.Context) (*Result, error) {
	r := red.rolling
	s := r.src
	if r.window <= 0 {
		return nil, fmt.Errorf("rolling window must be positive, got %d", r.window)
	}
	if r.quantum <= 0 || r.divisor <= 0 {
		return nil, fmt.Errorf("invalid quantum %g or divisor %g", r.quantum, r.divisor)
	}
	if s.Len() < r.window {
		return nil, fmt.Errorf("%w: %d timesteps selected, window needs %d", domain.ErrInsufficientData, s.Len(), r.window)
	}

	ny, nx := len(s.y), len(s.x)
	res := &Result{
		Max:   sparse.ZerosDense(ny, nx),
		Index: make([]int, ny*nx),
		Times: s.times,
	}
	for y0 := 0; y0 < ny; y0 += s.chunk {
		for x0 := 0; x0 < nx; x0 += s.chunk {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			y1, x1 := min(y0+s.chunk, ny), min(x0+s.chunk, nx)
			if err := red.computeChunk(res, y0, y1, x0, x1); err != nil {
				return nil, err
			}
			res.Chunks++
		}
	}
	return res, nil
}

func (red *Reduction) computeChunk(res *Result, y0, y1, x0, x1 int) error {
	r := red.rolling
	s := r.src
	w := x1 - x0
	n := (y1 - y0) * w

	stack := make([][]int32, s.Len())
	for t, f := range s.frames {
		vals, err := f.ReadWindow(y0, y1, x0, x1)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name(), err)
		}
		if len(vals) != n {
			return fmt.Errorf("read %s: got %d values, want %d", f.Name(), len(vals), n)
		}
		stack[t] = quantise(vals, r.quantum)
	}

	nx := len(s.x)
	for k := 0; k < n; k++ {
		var sum, best int64
		gaps := 0
		bestAt := -1
		for t := range stack {
			v := stack[t][k]
			if v == missing {
				gaps++
			} else {
				sum += int64(v)
			}
			if t >= r.window {
				old := stack[t-r.window][k]
				if old == missing {
					gaps--
				} else {
					sum -= int64(old)
				}
			}
			if t < r.window-1 || gaps > 0 {
				continue
			}
			if bestAt < 0 || sum > best {
				best, bestAt = sum, t
			}
		}

		iy, ix := y0+k/w, x0+k%w
		idx := iy*nx + ix
		res.Index[idx] = bestAt
		if bestAt < 0 {
			res.Max.Elements[idx] = math.NaN()
			continue
		}
		res.Max.Elements[idx] = float64(best) * r.quantum / r.divisor
	}
	return nil
}

func quantise(vals []float64, quantum float64) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			out[i] = missing
			continue
		}
		out[i] = int32(math.Round(v / quantum))
	}
	return out
}
