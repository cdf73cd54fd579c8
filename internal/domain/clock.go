package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Today returns midnight UTC of the current day according to c.
// Callers pass their own clock so tests can freeze time with clockwork.NewFakeClockAt.
func Today(c clockwork.Clock) time.Time {
	return Date(c.Now())
}

// PreviousDay returns midnight UTC of the day before the current day according to c.
// The scheduled job always processes the last complete UTC day.
func PreviousDay(c clockwork.Clock) time.Time {
	return Today(c).AddDate(0, 0, -1)
}

// Date truncates t to midnight of its UTC calendar day.
func Date(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
