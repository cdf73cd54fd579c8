package pipeline

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// LookbackGlob lists the files matching pattern for date and the day before
// it, sorted and without duplicates. The pattern may use {yyyy}, {mm}, {dd}
// and {date} (YYYYMMDD).
func LookbackGlob(date time.Time, pattern string) ([]string, error) {
	day := domain.Date(date)
	var out []string
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day} {
		matches, err := filepath.Glob(expandPattern(pattern, d))
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func expandPattern(pattern string, d time.Time) string {
	return strings.NewReplacer(
		"{yyyy}", d.Format("2006"),
		"{mm}", d.Format("01"),
		"{dd}", d.Format("02"),
		"{date}", d.Format(domain.DateLayout),
	).Replace(pattern)
}
