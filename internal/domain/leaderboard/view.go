package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
)

// ErrNilSnapshotStore is returned when the builder is constructed without a
// snapshot store.
var ErrNilSnapshotStore = errors.New("leaderboard: snapshot store cannot be nil")

// ══════════════════════════════════════════════════════════════════════════════
// VIEW TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one member's aggregated standing over the view period. Unit and
// minute counters are summed across the member's days; achievement is
// recomputed from the summed units; score and focus are averaged over the
// days the member was active.
type Entry struct {
	Rank           int      `json:"rank"`
	MemberID       string   `json:"member_id"`
	AvgScore       float64  `json:"avg_score"`
	AchievementPct float64  `json:"achievement_pct"`
	AssignedUnits  int      `json:"assigned_units"`
	CompletedUnits int      `json:"completed_units"`
	ActiveMinutes  int      `json:"active_minutes"`
	AvgFocusRatio  *float64 `json:"avg_focus_ratio,omitempty"`
	DaysActive     int      `json:"days_active"`
}

// View is a full arena leaderboard for one period.
type View struct {
	ArenaID      string            `json:"arena_id"`
	Period       Period            `json:"period"`
	Range        scoring.DateRange `json:"range"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Entries      []Entry           `json:"entries"`
	TotalMembers int               `json:"total_members"`
}

// MyRanking is a view together with the requesting member's own entry.
// Me is nil when the member has no activity in the period.
type MyRanking struct {
	View *View  `json:"view"`
	Me   *Entry `json:"me,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// BUILDER
// ══════════════════════════════════════════════════════════════════════════════

// Builder computes leaderboard views from stored snapshots.
type Builder struct {
	snapshots scoring.SnapshotStore
	policy    Policy
	logger    *slog.Logger
}

// NewBuilder constructs a builder, validating the period policy.
func NewBuilder(snapshots scoring.SnapshotStore, policy Policy, logger *slog.Logger) (*Builder, error) {
	if snapshots == nil {
		return nil, ErrNilSnapshotStore
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{snapshots: snapshots, policy: policy, logger: logger}, nil
}

// Build computes the arena's leaderboard for the period containing now.
// An arena with no activity yields an empty view, not an error.
func (b *Builder) Build(ctx context.Context, arenaID string, period Period, now time.Time) (*View, error) {
	if arenaID == "" {
		return nil, scoring.ErrArenaIDEmpty
	}

	rng, err := b.policy.Resolve(period, now)
	if err != nil {
		return nil, err
	}

	snaps, err := b.snapshots.Snapshots(ctx, arenaID, rng)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: read snapshots: %w", err)
	}

	view := &View{
		ArenaID:      arenaID,
		Period:       period,
		Range:        rng,
		GeneratedAt:  time.Now().UTC(),
		Entries:      aggregate(snaps),
		TotalMembers: 0,
	}
	view.TotalMembers = len(view.Entries)

	b.logger.Debug("leaderboard view built",
		slog.String("arena_id", arenaID),
		slog.String("period", string(period)),
		slog.Int("members", view.TotalMembers),
	)
	return view, nil
}

// BuildMyRanking computes the full view and pulls out the member's entry.
func (b *Builder) BuildMyRanking(ctx context.Context, arenaID, memberID string, period Period, now time.Time) (*MyRanking, error) {
	if memberID == "" {
		return nil, scoring.ErrMemberIDEmpty
	}

	view, err := b.Build(ctx, arenaID, period, now)
	if err != nil {
		return nil, err
	}

	out := &MyRanking{View: view}
	for i := range view.Entries {
		if view.Entries[i].MemberID == memberID {
			me := view.Entries[i]
			out.Me = &me
			break
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

type memberAgg struct {
	assigned   int
	completed  int
	minutes    int
	scoreSum   float64
	focusSum   float64
	focusDays  int
	daysActive int
}

// aggregate folds snapshots into ranked entries, best first.
func aggregate(snaps []*scoring.PerformanceSnapshot) []Entry {
	byMember := make(map[string]*memberAgg)
	for _, s := range snaps {
		agg, ok := byMember[s.MemberID]
		if !ok {
			agg = &memberAgg{}
			byMember[s.MemberID] = agg
		}
		agg.assigned += s.AssignedUnits
		agg.completed += s.CompletedUnits
		agg.minutes += s.ActiveMinutes
		agg.scoreSum += s.Score
		agg.daysActive++
		if s.AvgFocusRatio != nil {
			agg.focusSum += *s.AvgFocusRatio
			agg.focusDays++
		}
	}

	entries := make([]Entry, 0, len(byMember))
	for memberID, agg := range byMember {
		e := Entry{
			MemberID:       memberID,
			AvgScore:       round2(agg.scoreSum / float64(agg.daysActive)),
			AssignedUnits:  agg.assigned,
			CompletedUnits: agg.completed,
			ActiveMinutes:  agg.minutes,
			DaysActive:     agg.daysActive,
		}
		if agg.assigned > 0 {
			e.AchievementPct = math.Round(float64(agg.completed) / float64(agg.assigned) * 100)
		}
		if agg.focusDays > 0 {
			f := agg.focusSum / float64(agg.focusDays)
			e.AvgFocusRatio = &f
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgScore != entries[j].AvgScore {
			return entries[i].AvgScore > entries[j].AvgScore
		}
		return entries[i].MemberID < entries[j].MemberID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
