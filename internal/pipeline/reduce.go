package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
	"github.com/couchcryptid/storm-data-maxprecip/internal/series"
)

// DailyMax is the reduced rolling accumulation of one day.
type DailyMax struct {
	*series.Result

	// Date is the calendar day of the last selected timestep.
	Date time.Time
	X, Y []float64
	// Attrs is the provenance of the series.
	Attrs        map[string]string
	WindowLength int
	Timesteps    int
}

// Reduce evaluates the maximum accumulation over window for date. Sums end
// within [date, date+1d-step] and their inputs start no earlier than
// date-window+step.
func Reduce(ctx context.Context, s *series.Series, date time.Time, window domain.Window, scansPerHour int) (*DailyMax, error) {
	step, err := s.Step()
	if err != nil {
		return nil, err
	}
	if err := domain.CheckStep(step, scansPerHour); err != nil {
		return nil, err
	}
	iwin, err := domain.WindowLength(s.Times(), window.Duration, step)
	if err != nil {
		return nil, err
	}
	start, end := domain.SelectionBounds(date, window.Duration, step)
	sel := s.Slice(start, end)
	res, err := sel.Rolling(iwin, domain.DefaultEncoding().ScaleFactor, float64(scansPerHour)).Max().Compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s to %s: %w", start.Format(time.DateTime), end.Format(time.DateTime), err)
	}
	return &DailyMax{
		Result:       res,
		Date:         domain.Date(res.LastTime()),
		X:            s.X(),
		Y:            s.Y(),
		Attrs:        s.Attrs(),
		WindowLength: iwin,
		Timesteps:    sel.Len(),
	}, nil
}

// Peak is the largest accumulation of the day, or 0 when there is none.
func (d *DailyMax) Peak() float64 {
	peak := 0.0
	for _, v := range d.Max.Elements {
		if !math.IsNaN(v) && v > peak {
			peak = v
		}
	}
	return peak
}
