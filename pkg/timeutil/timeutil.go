// Package timeutil provides calendar helpers for period bucketing.
// Aggregation, ranking keys, and league periods all bucket activity by
// calendar day, ISO week, or calendar month in a single arena timezone,
// so every boundary computation lives here.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultLocation is the timezone used for day/week/month boundaries when
// the caller does not supply one. Arenas are scored in UTC by default.
var DefaultLocation = time.UTC

// Common date formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatMonth is the year-month format (YYYY-MM).
	FormatMonth = "2006-01"
)

// Now returns the current time in the default location.
func Now() time.Time {
	return time.Now().In(DefaultLocation)
}

// Date creates a time at midnight in the default location.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, DefaultLocation)
}

// StartOfDay returns the start of the day (00:00:00) in the default location.
func StartOfDay(t time.Time) time.Time {
	local := t.In(DefaultLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, DefaultLocation)
}

// EndOfDay returns the end of the day (23:59:59.999999999).
func EndOfDay(t time.Time) time.Time {
	local := t.In(DefaultLocation)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, DefaultLocation)
}

// StartOfWeek returns the start of the ISO week (Monday 00:00:00).
func StartOfWeek(t time.Time) time.Time {
	local := t.In(DefaultLocation)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// EndOfWeek returns the end of the ISO week (Sunday 23:59:59).
func EndOfWeek(t time.Time) time.Time {
	return EndOfDay(StartOfWeek(t).AddDate(0, 0, 6))
}

// StartOfMonth returns the first day of the month at 00:00:00.
func StartOfMonth(t time.Time) time.Time {
	local := t.In(DefaultLocation)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, DefaultLocation)
}

// EndOfMonth returns the last instant of the month.
func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(StartOfMonth(t).AddDate(0, 1, -1))
}

// ISOWeek returns the ISO-8601 year and week number for a time.
func ISOWeek(t time.Time) (year, week int) {
	return t.In(DefaultLocation).ISOWeek()
}

// ISOWeekString formats a time as "{year}-W{week}", e.g. "2026-W35".
// Week numbers are zero-padded to two digits so keys sort lexically.
func ISOWeekString(t time.Time) string {
	year, week := ISOWeek(t)
	return fmt.Sprintf("%d-W%02d", year, week)
}

// DateString formats a time as YYYY-MM-DD in the default location.
func DateString(t time.Time) string {
	return t.In(DefaultLocation).Format(FormatDate)
}

// MonthString formats a time as YYYY-MM in the default location.
func MonthString(t time.Time) string {
	return t.In(DefaultLocation).Format(FormatMonth)
}

// ParseDate parses a YYYY-MM-DD string in the default location.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, DefaultLocation)
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := t1.In(DefaultLocation), t2.In(DefaultLocation)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the number of whole days between two times,
// always non-negative.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// DaysInRange enumerates every calendar day from from to to inclusive.
func DaysInRange(from, to time.Time) []time.Time {
	start := StartOfDay(from)
	end := StartOfDay(to)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
