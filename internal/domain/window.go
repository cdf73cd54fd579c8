package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

// MaxWindow is the longest supported window. One day of lookback is loaded,
// which covers any window up to a day.
const MaxWindow = 24 * time.Hour

var windowRe = regexp.MustCompile(`^(\d*)\s*([A-Za-z]+)$`)

// Window is a requested accumulation period, written the way frequency strings
// are usually written: "1 D", "1D", "12H", "30min".
type Window struct {
	Raw      string
	Duration time.Duration
}

// ParseWindow parses s. A missing count means one unit.
func ParseWindow(s string) (Window, error) {
	trimmed := strings.TrimSpace(s)
	m := windowRe.FindStringSubmatch(trimmed)
	if m == nil {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return Window{}, fmt.Errorf("%w: %q: %v", ErrInvalidWindow, s, err)
		}
		n = v
	}
	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "d", "day", "days":
		unit = 24 * time.Hour
	case "h", "hour", "hours":
		unit = time.Hour
	case "t", "min", "mins", "minute", "minutes":
		unit = time.Minute
	default:
		return Window{}, fmt.Errorf("%w: %q: unknown unit %q", ErrInvalidWindow, s, m[2])
	}
	d := time.Duration(n) * unit
	if d <= 0 || d > MaxWindow {
		return Window{}, fmt.Errorf("%w: %q: must be positive and at most %s", ErrInvalidWindow, s, MaxWindow)
	}
	return Window{Raw: trimmed, Duration: d}, nil
}

// Label is the window as embedded in product names: no spaces, lower case ("1d").
func (w Window) Label() string {
	return strings.ToLower(strings.ReplaceAll(w.Raw, " ", ""))
}

// CellMethods is the CF cell_methods value describing the reduction.
func (w Window) CellMethods() string {
	return fmt.Sprintf("time: maximum (interval: %s)", strings.ToLower(w.Raw))
}

// FloorTime floors t to a multiple of d counted from the Unix epoch.
func FloorTime(t time.Time, d time.Duration) time.Time {
	ns := t.UnixNano()
	r := ns % int64(d)
	if r < 0 {
		r += int64(d)
	}
	return time.Unix(0, ns-r).UTC()
}

// NativeStep returns the spacing of an ascending time axis: the common gap
// when every gap is equal, otherwise the median gap, which tolerates the odd
// missing scan.
func NativeStep(times []time.Time) (time.Duration, error) {
	if len(times) < 2 {
		return 0, fmt.Errorf("%w: need at least two timesteps, got %d", ErrInsufficientData, len(times))
	}
	gaps := make([]time.Duration, len(times)-1)
	regular := true
	for i := 1; i < len(times); i++ {
		gaps[i-1] = times[i].Sub(times[i-1])
		if gaps[i-1] != gaps[0] {
			regular = false
		}
	}
	if regular {
		return gaps[0], nil
	}
	slices.Sort(gaps)
	n := len(gaps)
	if n%2 == 1 {
		return gaps[n/2], nil
	}
	return (gaps[n/2-1] + gaps[n/2]) / 2, nil
}

// ScanInterval is the nominal spacing of scans taken scansPerHour times an hour.
func ScanInterval(scansPerHour int) time.Duration {
	return time.Hour / time.Duration(scansPerHour)
}

// CheckStep fails when the observed native step disagrees with the configured
// scan frequency. The accumulation divides rates by scansPerHour, so a wrong
// frequency would silently scale every product.
func CheckStep(step time.Duration, scansPerHour int) error {
	if scansPerHour <= 0 {
		return fmt.Errorf("%w: scans per hour must be positive, got %d", ErrScanIntervalMismatch, scansPerHour)
	}
	if want := ScanInterval(scansPerHour); step != want {
		return fmt.Errorf("%w: observed %s, configured %s (%d per hour)", ErrScanIntervalMismatch, step, want, scansPerHour)
	}
	return nil
}

// WindowLength returns iwin, the number of native timesteps that make up one
// window. Timesteps are grouped by flooring them to the window length; the
// fullest group must hold exactly window/step timesteps.
func WindowLength(times []time.Time, window, step time.Duration) (int, error) {
	if step <= 0 {
		return 0, fmt.Errorf("%w: non-positive step %s", ErrInconsistentTimestepGrouping, step)
	}
	if window%step != 0 {
		return 0, fmt.Errorf("%w: window %s is not a multiple of step %s", ErrInconsistentTimestepGrouping, window, step)
	}
	want := int(window / step)
	groups := make(map[time.Time]int)
	largest := 0
	for _, t := range times {
		k := FloorTime(t, window)
		groups[k]++
		largest = max(largest, groups[k])
	}
	if largest != want {
		return 0, fmt.Errorf("%w: fullest %s group has %d timesteps, want %d (step %s, %d groups)",
			ErrInconsistentTimestepGrouping, window, largest, want, step, len(groups))
	}
	return want, nil
}

// SelectionBounds returns the inclusive time range whose rolling windows end
// within the target day: [date - window + step, date + 1 day - step].
func SelectionBounds(date time.Time, window, step time.Duration) (start, end time.Time) {
	day := Date(date)
	return day.Add(-window + step), day.Add(24*time.Hour - step)
}
