// Package timeutil provides civil-date helpers bound to a single reference
// time zone. The tracker decides "did this happen today" by comparing civil
// dates in that zone, never by subtracting durations, so the helpers stay
// correct across DST transitions and offsets that are not whole hours.
package timeutil

import (
	"fmt"
	"strings"
	"time"

	// Embedded zone database so LoadZone works in minimal containers.
	_ "time/tzdata"
)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard time format (HH:MM).
	FormatTime = "15:04"
	// FormatClock is the 12-hour clock used in report footers.
	FormatClock = "03:04 PM"
	// FormatMinute identifies a civil minute.
	FormatMinute = "2006-01-02T15:04"
)

// Date is a civil date as observed in some time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// String returns the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// LoadZone resolves an IANA zone name. Unlike time.LoadLocation it rejects
// the empty string instead of silently returning UTC.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("timeutil: empty time zone name")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load zone %q: %w", name, err)
	}
	return loc, nil
}

// In converts t to loc, treating a nil loc as UTC.
func In(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// CivilDate returns the calendar date of t in loc.
func CivilDate(t time.Time, loc *time.Location) Date {
	y, m, d := In(t, loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

// IsSameLocalDay reports whether a and b fall on the same civil date in loc.
func IsSameLocalDay(a, b time.Time, loc *time.Location) bool {
	return CivilDate(a, loc) == CivilDate(b, loc)
}

// StartOfDay returns local midnight of the civil day containing t.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}

// MinuteKey identifies the civil minute containing t in loc.
func MinuteKey(t time.Time, loc *time.Location) string {
	return In(t, loc).Format(FormatMinute)
}

// ClockOn returns hour:minute on the civil day of t in loc. A wall time
// skipped by a DST gap resolves to one real instant next to the gap, as
// time.Date does.
func ClockOn(t time.Time, loc *time.Location, hour, minute int) time.Time {
	local := In(t, loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, local.Location())
}

// IsAtMinute reports whether t falls within the minute starting at
// hour:minute on its civil day in loc. Exactly one minute matches per day,
// including days where that wall time is skipped or repeated.
func IsAtMinute(t time.Time, loc *time.Location, hour, minute int) bool {
	start := ClockOn(t, loc, hour, minute)
	return !t.Before(start) && t.Before(start.Add(time.Minute))
}

// FormatIn formats t in loc with the given layout.
func FormatIn(t time.Time, loc *time.Location, layout string) string {
	return In(t, loc).Format(layout)
}

// Clock abstracts the wall clock for components that compare against "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }
