// Package scoring contains the score aggregation domain for arena ranking.
// It turns one member's raw daily activity counters into a bounded composite
// score and a durable point-in-time record, the PerformanceSnapshot, which is
// the source of truth every leaderboard and league computation is derived from.
package scoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrArenaIDEmpty is returned when an arena id is missing.
	ErrArenaIDEmpty = errors.New("scoring: arena id cannot be empty")

	// ErrMemberIDEmpty is returned when a member id is missing.
	ErrMemberIDEmpty = errors.New("scoring: member id cannot be empty")

	// ErrSnapshotNotFound is returned when no snapshot exists for a query.
	ErrSnapshotNotFound = errors.New("scoring: snapshot not found")

	// ErrInvalidDateRange is returned when a range ends before it starts.
	ErrInvalidDateRange = errors.New("scoring: invalid date range")
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// DateRange is an inclusive calendar-day range.
type DateRange struct {
	From time.Time
	To   time.Time
}

// NewDateRange builds a range normalized to day boundaries.
func NewDateRange(from, to time.Time) (DateRange, error) {
	r := DateRange{From: timeutil.StartOfDay(from), To: timeutil.EndOfDay(to)}
	if r.To.Before(r.From) {
		return DateRange{}, ErrInvalidDateRange
	}
	return r, nil
}

// SingleDay returns a range covering exactly one calendar day.
func SingleDay(day time.Time) DateRange {
	return DateRange{From: timeutil.StartOfDay(day), To: timeutil.EndOfDay(day)}
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Days returns the number of calendar days the range spans.
func (r DateRange) Days() int {
	return timeutil.DaysBetween(r.From, r.To) + 1
}

// String returns a human-readable representation of the range.
func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", timeutil.DateString(r.From), timeutil.DateString(r.To))
}

// RawActivity holds one member's raw study-tracker counters for one day.
// FocusRatio is nil when the tracker reported no focus measurements for the
// day; a ratio of 0 is a real measurement and is kept as-is.
type RawActivity struct {
	// AssignedUnits is the total units of work assigned for the day.
	AssignedUnits int

	// CompletedUnits is how many of the assigned units were completed.
	CompletedUnits int

	// ActiveMinutes is the total minutes of tracked study time.
	ActiveMinutes int

	// FocusRatio is the average focus measurement in [0,1], if any.
	FocusRatio *float64
}

// ══════════════════════════════════════════════════════════════════════════════
// PERFORMANCE SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// PerformanceSnapshot is the durable per-member-per-day record of aggregated
// activity and its composite score. It is created only by the Aggregator and
// is immutable except for idempotent recomputation of the same day.
type PerformanceSnapshot struct {
	// ArenaID identifies the group the member is ranked within.
	ArenaID string `json:"arena_id"`

	// MemberID identifies the member.
	MemberID string `json:"member_id"`

	// Date is the calendar day the snapshot covers (midnight, arena timezone).
	Date time.Time `json:"date"`

	// AssignedUnits and CompletedUnits are the day's mission counters.
	AssignedUnits  int `json:"assigned_units"`
	CompletedUnits int `json:"completed_units"`

	// AchievementPct is completed/assigned × 100, 0 when nothing was assigned.
	AchievementPct float64 `json:"achievement_pct"`

	// ActiveMinutes is the day's total tracked study time.
	ActiveMinutes int `json:"active_minutes"`

	// AvgFocusRatio is the day's average focus in [0,1], nil without focus data.
	AvgFocusRatio *float64 `json:"avg_focus_ratio,omitempty"`

	// Score is the bounded composite score in [0,100].
	Score float64 `json:"score"`

	// CreatedAt is when the snapshot was (re)computed.
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the natural upsert key of the snapshot.
func (s *PerformanceSnapshot) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.ArenaID, s.MemberID, timeutil.DateString(s.Date))
}

// Validate checks the snapshot's identity fields.
func (s *PerformanceSnapshot) Validate() error {
	if s.ArenaID == "" {
		return ErrArenaIDEmpty
	}
	if s.MemberID == "" {
		return ErrMemberIDEmpty
	}
	if s.Date.IsZero() {
		return fmt.Errorf("scoring: snapshot date cannot be zero")
	}
	return nil
}
