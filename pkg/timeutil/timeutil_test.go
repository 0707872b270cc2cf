package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadZone(name)
	require.NoError(t, err)
	return loc
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestIsSameLocalDay_Reflexive(t *testing.T) {
	zones := []string{"UTC", "Asia/Kolkata", "Asia/Kathmandu", "America/New_York", "Australia/Lord_Howe"}
	instants := []string{
		"2024-01-01T00:00:00Z",
		"2024-03-10T07:30:00Z",
		"2024-11-03T05:59:59Z",
		"2024-06-01T18:20:00Z",
	}
	for _, z := range zones {
		loc := mustZone(t, z)
		for _, s := range instants {
			ts := mustParse(t, s)
			assert.True(t, IsSameLocalDay(ts, ts, loc), "%s in %s", s, z)
		}
	}
}

func TestIsSameLocalDay_KolkataMidnight(t *testing.T) {
	loc := mustZone(t, "Asia/Kolkata")
	before := mustParse(t, "2024-06-01T23:50:00+05:30")
	after := mustParse(t, "2024-06-02T00:05:00+05:30")

	assert.False(t, IsSameLocalDay(before, after, loc))
	assert.Equal(t, "2024-06-01", CivilDate(before, loc).String())
	assert.Equal(t, "2024-06-02", CivilDate(after, loc).String())
}

func TestIsSameLocalDay_SameUTCDayDifferentLocalDay(t *testing.T) {
	loc := mustZone(t, "Asia/Kolkata")
	// Both on 2024-06-01 in UTC, but 19:00Z is already June 2 in Kolkata.
	a := mustParse(t, "2024-06-01T10:00:00Z")
	b := mustParse(t, "2024-06-01T19:00:00Z")

	assert.True(t, IsSameLocalDay(a, b, time.UTC))
	assert.False(t, IsSameLocalDay(a, b, loc))
}

func TestIsSameLocalDay_NonWholeHourOffset(t *testing.T) {
	loc := mustZone(t, "Asia/Kathmandu") // UTC+05:45
	lateEvening := mustParse(t, "2024-06-01T18:14:00Z") // 23:59 local
	pastMidnight := mustParse(t, "2024-06-01T18:16:00Z") // 00:01 local

	assert.False(t, IsSameLocalDay(lateEvening, pastMidnight, loc))
	assert.True(t, IsSameLocalDay(lateEvening, mustParse(t, "2024-05-31T18:15:00Z"), loc))
}

func TestIsSameLocalDay_DSTTransitions(t *testing.T) {
	loc := mustZone(t, "America/New_York")

	// Spring forward: 23-hour day.
	early := mustParse(t, "2024-03-10T00:30:00-05:00")
	late := mustParse(t, "2024-03-10T23:30:00-04:00")
	assert.True(t, IsSameLocalDay(early, late, loc))

	// Fall back: 25-hour day; the repeated 01:30 is still November 3.
	first := mustParse(t, "2024-11-03T01:30:00-04:00")
	second := mustParse(t, "2024-11-03T01:30:00-05:00")
	end := mustParse(t, "2024-11-03T23:59:00-05:00")
	assert.True(t, IsSameLocalDay(first, second, loc))
	assert.True(t, IsSameLocalDay(first, end, loc))
	assert.False(t, IsSameLocalDay(end, end.Add(2*time.Minute), loc))
}

func TestIsSameLocalDay_NilLocationIsUTC(t *testing.T) {
	a := mustParse(t, "2024-06-01T23:59:00Z")
	b := mustParse(t, "2024-06-02T00:00:00Z")
	assert.False(t, IsSameLocalDay(a, b, nil))
}

func TestLoadZone(t *testing.T) {
	_, err := LoadZone("")
	assert.Error(t, err)

	_, err = LoadZone("Mars/Olympus_Mons")
	assert.Error(t, err)

	loc, err := LoadZone(" Asia/Kolkata ")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestMinuteKeyAndIsAtMinute(t *testing.T) {
	loc := mustZone(t, "Asia/Kolkata")
	ts := mustParse(t, "2024-06-01T16:00:45Z") // 21:30:45 IST

	assert.Equal(t, "2024-06-01T21:30", MinuteKey(ts, loc))
	assert.True(t, IsAtMinute(ts, loc, 21, 30))
	assert.False(t, IsAtMinute(ts, time.UTC, 21, 30))
	assert.Equal(t, MinuteKey(ts, loc), MinuteKey(ts.Add(10*time.Second), loc))
}

func TestIsAtMinute_OncePerDayAcrossDST(t *testing.T) {
	ny := mustZone(t, "America/New_York")

	tests := []struct {
		name  string
		from  string
		clock [2]int
	}{
		{"spring forward gap", "2024-03-10T04:00:00Z", [2]int{2, 30}},
		{"fall back repeat", "2024-11-03T04:00:00Z", [2]int{1, 30}},
		{"ordinary day", "2024-06-01T04:00:00Z", [2]int{2, 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := mustParse(t, tt.from)
			var matches int
			for ts := start; ts.Before(start.Add(6 * time.Hour)); ts = ts.Add(30 * time.Second) {
				if IsAtMinute(ts, ny, tt.clock[0], tt.clock[1]) {
					matches++
				}
			}
			assert.Equal(t, 2, matches, "two half-minute samples in exactly one minute")
		})
	}
}

func TestStartOfDay(t *testing.T) {
	loc := mustZone(t, "Asia/Kolkata")
	ts := mustParse(t, "2024-06-01T19:00:00Z")

	start := StartOfDay(ts, loc)
	assert.Equal(t, "2024-06-02T00:00:00+05:30", start.Format(time.RFC3339))
}
