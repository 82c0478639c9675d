// Package timeutil provides calendar-day helpers used by login streaks and
// date-only columns. A calendar day is read in the location of the time
// value that carries it; callers pick the location by choosing what
// "today" means for them.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultLocation is used by Now. Services override it from configuration.
var DefaultLocation = time.UTC

// Now returns the current time in DefaultLocation.
func Now() time.Time {
	return time.Now().In(DefaultLocation)
}

// LoadLocation resolves a timezone name, falling back to UTC for "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Day is a calendar date without time of day or location.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t as seen in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// Date returns the day as midnight UTC, the representation stored in DATE columns.
func (d Day) Date() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day n days later (or earlier for negative n).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Date().AddDate(0, 0, n))
}

// Equal reports whether both values name the same calendar day.
func (d Day) Equal(other Day) bool {
	return d == other
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DaysBetween returns to - from in whole calendar days. Negative when to is earlier.
func DaysBetween(from, to Day) int {
	return int(to.Date().Sub(from.Date()).Hours() / 24)
}

// StartOfDay returns 00:00:00 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	return DayOf(t1).Equal(DayOf(t2))
}

// IsConsecutiveDay checks if t2 falls on the calendar day right after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return DaysBetween(DayOf(t1), DayOf(t2)) == 1
}
