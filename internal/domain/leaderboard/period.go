// Package leaderboard builds period leaderboard views. Views are always
// computed from the durable snapshot store, never from the ranking index, so
// a flushed or rebuilding index can never change what a leaderboard shows.
package leaderboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD
// ══════════════════════════════════════════════════════════════════════════════

// Period selects which window of snapshots a view covers.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ErrUnknownPeriod is returned for a period outside daily/weekly/monthly.
var ErrUnknownPeriod = errors.New("leaderboard: unknown period")

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPeriod, s)
	}
}

// Policy holds the configurable window shapes.
type Policy struct {
	// WeeklyWindowDays is the length of the sliding weekly window ending
	// today.
	WeeklyWindowDays int `koanf:"weekly_window_days"`

	// MonthlyWindowDays, when positive, turns the monthly view into a
	// sliding window of that many days. Zero means calendar month to date.
	MonthlyWindowDays int `koanf:"monthly_window_days"`
}

// DefaultPolicy returns a 7-day weekly window and calendar month-to-date.
func DefaultPolicy() Policy {
	return Policy{WeeklyWindowDays: 7}
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if p.WeeklyWindowDays <= 0 {
		return fmt.Errorf("leaderboard: weekly window days must be positive, got %d", p.WeeklyWindowDays)
	}
	if p.MonthlyWindowDays < 0 {
		return fmt.Errorf("leaderboard: monthly window days cannot be negative, got %d", p.MonthlyWindowDays)
	}
	return nil
}

// Resolve turns the period into a concrete date range relative to now.
func (p Policy) Resolve(period Period, now time.Time) (scoring.DateRange, error) {
	switch period {
	case PeriodDaily:
		return scoring.SingleDay(now), nil
	case PeriodWeekly:
		return scoring.NewDateRange(now.AddDate(0, 0, -(p.WeeklyWindowDays-1)), now)
	case PeriodMonthly:
		if p.MonthlyWindowDays > 0 {
			return scoring.NewDateRange(now.AddDate(0, 0, -(p.MonthlyWindowDays-1)), now)
		}
		return scoring.NewDateRange(timeutil.StartOfMonth(now), now)
	default:
		return scoring.DateRange{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}
}
