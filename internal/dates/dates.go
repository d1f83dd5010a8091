// Package dates provides calendar-day helpers for delivery schedules.
//
// Delivery dates travel as "YYYY-MM-DD" strings. All comparisons here happen
// at calendar-day granularity: timestamps are truncated to their day before
// any ordering decision, so "today at 23:59" and "today at 00:00" partition a
// date list identically.
package dates

import (
	"fmt"
	"time"
)

// Layout is the wire format for delivery dates.
const Layout = "2006-01-02"

// Parse parses a YYYY-MM-DD date string into a UTC midnight value.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
	}
	return t, nil
}

// Day truncates a timestamp to its calendar day, normalized to UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PartitionByToday splits dates into those strictly before today and those on
// or after today. Source order is preserved in both partitions. Entries that
// do not parse are excluded from both and returned in malformed; one bad
// entry never aborts the split.
func PartitionByToday(dateStrs []string, today time.Time) (past, future, malformed []string) {
	day := Day(today)
	for _, s := range dateStrs {
		t, err := Parse(s)
		if err != nil {
			malformed = append(malformed, s)
			continue
		}
		if t.Before(day) {
			past = append(past, s)
		} else {
			future = append(future, s)
		}
	}
	return past, future, malformed
}

// EarliestFuture returns the minimum date on or after today, or false if the
// list holds no such date.
func EarliestFuture(dateStrs []string, today time.Time) (string, bool) {
	_, future, _ := PartitionByToday(dateStrs, today)
	return Earliest(future)
}

// Earliest returns the minimum parseable date in the list, or false if none
// parse.
func Earliest(dateStrs []string) (string, bool) {
	var (
		best    string
		bestDay time.Time
		found   bool
	)
	for _, s := range dateStrs {
		t, err := Parse(s)
		if err != nil {
			continue
		}
		if !found || t.Before(bestDay) {
			best, bestDay, found = s, t, true
		}
	}
	return best, found
}

// DaysUntil returns the signed calendar-day difference between date and
// today. Zero when date is today, negative when it has passed.
func DaysUntil(dateStr string, today time.Time) (int, error) {
	t, err := Parse(dateStr)
	if err != nil {
		return 0, err
	}
	return int(t.Sub(Day(today)).Hours() / 24), nil
}
