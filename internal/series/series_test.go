package series

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

const (
	quantum      = 0.01
	scansPerHour = 12
)

var t0 = time.Date(2023, 8, 21, 0, 0, 0, 0, time.UTC)

// memFrame is an in-memory frame of ny×nx values.
type memFrame struct {
	t      time.Time
	nx     int
	values []float64
	reads  int
	err    error
}

func (f *memFrame) Name() string    { return fmt.Sprintf("mem-%s", f.t.Format(time.RFC3339)) }
func (f *memFrame) Time() time.Time { return f.t }

func (f *memFrame) ReadWindow(y0, y1, x0, x1 int) ([]float64, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, 0, (y1-y0)*(x1-x0))
	for y := y0; y < y1; y++ {
		out = append(out, f.values[y*f.nx+x0:y*f.nx+x1]...)
	}
	return out, nil
}

// stack builds n frames of an ny×nx grid at 5-minute steps; value returns the
// rate of pixel (y, x) at timestep t.
func stack(n, ny, nx int, value func(t, y, x int) float64) []*memFrame {
	frames := make([]*memFrame, n)
	for t := range frames {
		f := &memFrame{t: t0.Add(time.Duration(t) * 5 * time.Minute), nx: nx, values: make([]float64, ny*nx)}
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				f.values[y*nx+x] = value(t, y, x)
			}
		}
		frames[t] = f
	}
	return frames
}

func newSeries(t *testing.T, frames []*memFrame, ny, nx, chunk int) *Series {
	t.Helper()
	ff := make([]Frame, len(frames))
	for i, f := range frames {
		ff[i] = f
	}
	s, err := New(ff, make([]float64, nx), make([]float64, ny), map[string]string{"NOD": "fiuta"}, chunk)
	require.NoError(t, err)
	return s
}

// spike puts 12 mm/h at pixel (0, 0) during timesteps 6, 7 and 8.
func spike(t, y, x int) float64 {
	if y == 0 && x == 0 && t >= 6 && t <= 8 {
		return 12
	}
	return 0
}

func TestReduction_SpikeShorterWindow(t *testing.T) {
	s := newSeries(t, stack(16, 2, 2, spike), 2, 2, 2)

	res, err := s.Rolling(2, quantum, scansPerHour).Max().Compute(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Max.Get(0, 0), 1e-12)
	at, ok := res.TimeAt(0, 0)
	require.True(t, ok)
	assert.Equal(t, t0.Add(7*5*time.Minute), at, "first window covering two spike steps")

	assert.Equal(t, 0.0, res.Max.Get(1, 1))
	at, ok = res.TimeAt(1, 1)
	require.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Minute), at, "all-zero pixel takes the first complete window")
}

func TestReduction_SpikeLongerWindow(t *testing.T) {
	s := newSeries(t, stack(16, 2, 2, spike), 2, 2, 2)

	res, err := s.Rolling(6, quantum, scansPerHour).Max().Compute(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 3.0, res.Max.Get(0, 0), 1e-12)
	at, ok := res.TimeAt(0, 0)
	require.True(t, ok)
	assert.Equal(t, t0.Add(8*5*time.Minute), at, "first window holding the whole spike")
	assert.Equal(t, 0.0, res.Max.Get(0, 1))
}

func TestReduction_TieEarliestWins(t *testing.T) {
	burst := func(t, y, x int) float64 {
		if t == 3 || t == 10 {
			return 0.37
		}
		return 0
	}
	s := newSeries(t, stack(14, 1, 1, burst), 1, 1, 1)

	res, err := s.Rolling(1, quantum, scansPerHour).Max().Compute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Index[0])
	assert.InDelta(t, 0.37/scansPerHour, res.Max.Get(0, 0), 1e-12)
}

func TestReduction_QuantisedSumsCompareExactly(t *testing.T) {
	// 0.1+0.2 exceeds 0.3 in floating point but not in quanta.
	vals := []float64{0.3, 0, 0.1, 0.2, 0}
	s := newSeries(t, stack(len(vals), 1, 1, func(t, _, _ int) float64 { return vals[t] }), 1, 1, 1)

	res, err := s.Rolling(2, quantum, 1).Max().Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index[0])
}

func TestReduction_MissingValuesBreakWindows(t *testing.T) {
	values := func(t, y, x int) float64 {
		switch {
		case t == 2:
			return math.NaN()
		case t == 1 || t == 3:
			return 10
		}
		return 1
	}
	s := newSeries(t, stack(6, 1, 1, values), 1, 1, 1)

	res, err := s.Rolling(2, quantum, 1).Max().Compute(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 11, res.Max.Get(0, 0), 1e-9)
	assert.Equal(t, 1, res.Index[0], "window (0,1) sums 11; windows touching t=2 are skipped")

	allMissing := newSeries(t, stack(3, 1, 1, func(int, int, int) float64 { return math.NaN() }), 1, 1, 1)
	res, err = allMissing.Rolling(2, quantum, 1).Max().Compute(context.Background())
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Max.Get(0, 0)))
	_, ok := res.TimeAt(0, 0)
	assert.False(t, ok)
}

func TestReduction_ChunkingDoesNotChangeResult(t *testing.T) {
	value := func(t, y, x int) float64 { return float64((t*7+y*3+x*5)%11) * 0.25 }
	whole := newSeries(t, stack(12, 5, 5, value), 5, 5, 5)
	chunked := newSeries(t, stack(12, 5, 5, value), 5, 5, 2)

	a, err := whole.Rolling(3, quantum, scansPerHour).Max().Compute(context.Background())
	require.NoError(t, err)
	b, err := chunked.Rolling(3, quantum, scansPerHour).Max().Compute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, a.Chunks)
	assert.Equal(t, 9, b.Chunks)
	assert.Equal(t, a.Max.Elements, b.Max.Elements)
	assert.Equal(t, a.Index, b.Index)
}

func TestReduction_InsufficientData(t *testing.T) {
	s := newSeries(t, stack(3, 1, 1, spike), 1, 1, 1)
	_, err := s.Rolling(4, quantum, scansPerHour).Max().Compute(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestReduction_ReadError(t *testing.T) {
	frames := stack(3, 1, 1, spike)
	frames[1].err = errors.New("disk gone")
	s := newSeries(t, frames, 1, 1, 1)

	_, err := s.Rolling(2, quantum, scansPerHour).Max().Compute(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}

func TestReduction_Cancelled(t *testing.T) {
	frames := stack(3, 2, 2, spike)
	s := newSeries(t, frames, 2, 2, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Rolling(2, quantum, scansPerHour).Max().Compute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, frames[0].reads)
}

func TestSeries_Slice(t *testing.T) {
	s := newSeries(t, stack(10, 1, 1, spike), 1, 1, 1)

	sub := s.Slice(t0.Add(10*time.Minute), t0.Add(30*time.Minute))
	require.Equal(t, 5, sub.Len())
	assert.Equal(t, t0.Add(10*time.Minute), sub.Times()[0])
	assert.Equal(t, t0.Add(30*time.Minute), sub.Times()[4])

	assert.Zero(t, s.Slice(t0.Add(time.Hour), t0.Add(2*time.Hour)).Len())
	assert.Equal(t, 10, s.Len(), "slicing leaves the source intact")
}

func TestSeries_Step(t *testing.T) {
	s := newSeries(t, stack(4, 1, 1, spike), 1, 1, 1)
	step, err := s.Step()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, step)
}

func TestNew_RejectsUnorderedFrames(t *testing.T) {
	frames := stack(3, 1, 1, spike)
	_, err := New([]Frame{frames[1], frames[0]}, []float64{0}, []float64{0}, nil, 1)
	assert.Error(t, err)

	_, err = New([]Frame{frames[0], frames[0]}, []float64{0}, []float64{0}, nil, 1)
	assert.Error(t, err, "duplicate times")

	_, err = New([]Frame{frames[0]}, []float64{0}, []float64{0}, nil, 0)
	assert.Error(t, err)
}
