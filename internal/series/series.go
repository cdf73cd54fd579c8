// Package series evaluates rolling-window maxima over a time-ordered stack of
// cached rate rasters without materialising the stack.
//
// Operations build a lazy graph, Series → Slice → Rolling → Max, which is
// evaluated once by Reduction.Compute, one spatial chunk at a time. Only the
// frames' values for the current chunk and the reduced 2-D result are held in
// memory.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// Frame is one timestep of the stack, read on demand.
type Frame interface {
	// Name identifies the frame in logs, typically its file path.
	Name() string
	Time() time.Time
	// ReadWindow returns rows [y0, y1) and columns [x0, x1) in row-major
	// order: non-negative values in physical units, NaN where missing.
	ReadWindow(y0, y1, x0, x1 int) ([]float64, error)
}

// Dataset is a set of frames sharing one grid, as opened from the cache.
type Dataset struct {
	Frames []Frame
	X, Y   []float64
	// Attrs are the attributes of the first frame.
	Attrs map[string]string
}

// Series is a lazily read stack of frames, strictly ascending in time, split
// into square spatial chunks.
type Series struct {
	frames []Frame
	times  []time.Time
	x, y   []float64
	attrs  map[string]string
	chunk  int
}

// New returns a series over frames. Times must be strictly ascending and
// chunk positive.
func New(frames []Frame, x, y []float64, attrs map[string]string, chunk int) (*Series, error) {
	if chunk <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunk)
	}
	if len(x) == 0 || len(y) == 0 {
		return nil, errors.New("empty grid")
	}
	times := make([]time.Time, len(frames))
	for i, f := range frames {
		times[i] = f.Time()
		if i > 0 && !times[i].After(times[i-1]) {
			return nil, fmt.Errorf("frame %s at %s does not follow %s", f.Name(), times[i], times[i-1])
		}
	}
	return &Series{frames: frames, times: times, x: x, y: y, attrs: attrs, chunk: chunk}, nil
}

// Len is the number of timesteps.
func (s *Series) Len() int { return len(s.frames) }

// Times returns the time axis.
func (s *Series) Times() []time.Time { return s.times }

// X returns the column coordinates.
func (s *Series) X() []float64 { return s.x }

// Y returns the row coordinates.
func (s *Series) Y() []float64 { return s.y }

// Attrs returns the dataset attributes.
func (s *Series) Attrs() map[string]string { return s.attrs }

// Chunk is the side length of a spatial chunk.
func (s *Series) Chunk() int { return s.chunk }

// Step returns the native time step of the series.
func (s *Series) Step() (time.Duration, error) {
	return domain.NativeStep(s.times)
}

// Slice returns the timesteps within [start, end], both inclusive.
func (s *Series) Slice(start, end time.Time) *Series {
	lo, hi := 0, len(s.times)
	for lo < hi && s.times[lo].Before(start) {
		lo++
	}
	for hi > lo && s.times[hi-1].After(end) {
		hi--
	}
	out := *s
	out.frames = s.frames[lo:hi]
	out.times = s.times[lo:hi]
	return &out
}

// Rolling returns the right-aligned sum over window consecutive timesteps,
// divided by divisor. Values are summed as integer multiples of quantum, so
// rasters stored with that scale factor sum exactly.
func (s *Series) Rolling(window int, quantum, divisor float64) *Rolling {
	return &Rolling{src: s, window: window, quantum: quantum, divisor: divisor}
}

// Rolling is a lazy rolling-sum node.
type Rolling struct {
	src     *Series
	window  int
	quantum float64
	divisor float64
}

// Max reduces the rolling sums over time.
func (r *Rolling) Max() *Reduction {
	return &Reduction{rolling: r}
}
