package ranking

import (
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// Scope keys name one ordered index per arena and period. Every component
// that reads or writes the index derives keys through these helpers so the
// naming stays consistent across backends.

// DailyKey returns the scope key for one arena's calendar day.
func DailyKey(arenaID string, day time.Time) string {
	return fmt.Sprintf("%s:daily:%s", arenaID, timeutil.DateString(day))
}

// WeeklyKey returns the scope key for the ISO week containing t.
func WeeklyKey(arenaID string, t time.Time) string {
	return fmt.Sprintf("%s:weekly:%s", arenaID, timeutil.ISOWeekString(t))
}

// MonthlyKey returns the scope key for the calendar month containing t.
func MonthlyKey(arenaID string, t time.Time) string {
	return fmt.Sprintf("%s:monthly:%s", arenaID, timeutil.MonthString(t))
}

// LeagueKey returns the scope key for one arena's league tier standings.
func LeagueKey(arenaID, tierID string) string {
	return fmt.Sprintf("%s:league:%s", arenaID, tierID)
}
