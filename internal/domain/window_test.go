package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2023, 8, 21, 0, 0, 0, 0, time.UTC)

// fiveMinuteSeries returns timesteps every 5 minutes in [from, to).
func fiveMinuteSeries(from, to time.Time) []time.Time {
	var out []time.Time
	for t := from; t.Before(to); t = t.Add(5 * time.Minute) {
		out = append(out, t)
	}
	return out
}

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in       string
		duration time.Duration
		label    string
	}{
		{"1 D", 24 * time.Hour, "1d"},
		{"1D", 24 * time.Hour, "1d"},
		{"D", 24 * time.Hour, "d"},
		{"12H", 12 * time.Hour, "12h"},
		{"3 h", 3 * time.Hour, "3h"},
		{"30min", 30 * time.Minute, "30min"},
		{"45T", 45 * time.Minute, "45t"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			w, err := ParseWindow(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.duration, w.Duration)
			assert.Equal(t, tt.label, w.Label())
		})
	}

	for _, bad := range []string{"", "2 D", "25H", "0H", "1 fortnight", "-1H"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := ParseWindow(bad)
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestWindow_CellMethods(t *testing.T) {
	w, err := ParseWindow("1 D")
	require.NoError(t, err)
	assert.Equal(t, "time: maximum (interval: 1 d)", w.CellMethods())
}

func TestFloorTime(t *testing.T) {
	ts := time.Date(2023, 8, 21, 13, 47, 0, 0, time.UTC)
	assert.Equal(t, testDate, FloorTime(ts, 24*time.Hour))
	assert.Equal(t, time.Date(2023, 8, 21, 12, 0, 0, 0, time.UTC), FloorTime(ts, 3*time.Hour))
	assert.Equal(t, time.Date(2023, 8, 21, 13, 45, 0, 0, time.UTC), FloorTime(ts, 5*time.Minute))
}

func TestNativeStep(t *testing.T) {
	t.Run("regular", func(t *testing.T) {
		step, err := NativeStep(fiveMinuteSeries(testDate, testDate.Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, step)
	})

	t.Run("missing scans use the median", func(t *testing.T) {
		times := fiveMinuteSeries(testDate, testDate.Add(time.Hour))
		times = append(times[:3], times[5:]...)
		step, err := NativeStep(times)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, step)
	})

	t.Run("even number of gaps averages the middle pair", func(t *testing.T) {
		times := []time.Time{testDate, testDate.Add(4 * time.Minute), testDate.Add(10 * time.Minute)}
		step, err := NativeStep(times)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, step)
	})

	t.Run("single timestep", func(t *testing.T) {
		_, err := NativeStep([]time.Time{testDate})
		assert.ErrorIs(t, err, ErrInsufficientData)
	})
}

func TestCheckStep(t *testing.T) {
	require.NoError(t, CheckStep(5*time.Minute, 12))
	assert.ErrorIs(t, CheckStep(10*time.Minute, 12), ErrScanIntervalMismatch)
	assert.ErrorIs(t, CheckStep(5*time.Minute, 0), ErrScanIntervalMismatch)
}

func TestWindowLength(t *testing.T) {
	twoDays := fiveMinuteSeries(testDate.AddDate(0, 0, -1), testDate.AddDate(0, 0, 1))

	t.Run("one day of five minute scans", func(t *testing.T) {
		iwin, err := WindowLength(twoDays, 24*time.Hour, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 288, iwin)
	})

	t.Run("one hour", func(t *testing.T) {
		iwin, err := WindowLength(twoDays, time.Hour, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 12, iwin)
	})

	t.Run("one complete day is enough", func(t *testing.T) {
		times := append([]time.Time{}, twoDays[:100]...)
		times = append(times, twoDays[288:]...)
		iwin, err := WindowLength(times, 24*time.Hour, 5*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 288, iwin)
	})

	t.Run("no complete group", func(t *testing.T) {
		times := append([]time.Time{}, twoDays[:287]...)
		times = append(times, twoDays[289:575]...)
		_, err := WindowLength(times, 24*time.Hour, 5*time.Minute)
		assert.ErrorIs(t, err, ErrInconsistentTimestepGrouping)
	})

	t.Run("window not a multiple of the step", func(t *testing.T) {
		_, err := WindowLength(twoDays, 7*time.Minute, 5*time.Minute)
		assert.True(t, errors.Is(err, ErrInconsistentTimestepGrouping))
	})
}

func TestSelectionBounds(t *testing.T) {
	start, end := SelectionBounds(testDate, 24*time.Hour, 5*time.Minute)
	assert.Equal(t, time.Date(2023, 8, 20, 0, 5, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 8, 21, 23, 55, 0, 0, time.UTC), end)

	start, end = SelectionBounds(testDate.Add(13*time.Hour), time.Hour, 5*time.Minute)
	assert.Equal(t, time.Date(2023, 8, 20, 23, 5, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2023, 8, 21, 23, 55, 0, 0, time.UTC), end)
}
