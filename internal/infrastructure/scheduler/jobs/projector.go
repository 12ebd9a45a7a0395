// Package jobs contains the scheduled batch jobs: daily aggregation,
// weekly league classification, and ranking index rebuilds.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INDEX PROJECTOR
// ══════════════════════════════════════════════════════════════════════════════

// IndexProjector writes ranking scores derived from durable snapshots
// into the ranking index. The index is a rebuildable cache: every key it
// holds can be reproduced from the snapshot store through this type.
type IndexProjector struct {
	snapshots   scoring.SnapshotStore
	assignments league.AssignmentStore
	index       ranking.Index
	logger      *slog.Logger
}

var (
	// ErrNilIndex is returned when the projector is built without an index.
	ErrNilIndex = errors.New("jobs: ranking index is nil")

	// ErrNilSnapshots is returned when the projector is built without a snapshot store.
	ErrNilSnapshots = errors.New("jobs: snapshot store is nil")
)

// NewIndexProjector creates a projector over the given stores and index.
func NewIndexProjector(snapshots scoring.SnapshotStore, assignments league.AssignmentStore, index ranking.Index, logger *slog.Logger) (*IndexProjector, error) {
	if snapshots == nil {
		return nil, ErrNilSnapshots
	}
	if index == nil {
		return nil, ErrNilIndex
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IndexProjector{
		snapshots:   snapshots,
		assignments: assignments,
		index:       index,
		logger:      logger,
	}, nil
}

// ProjectDay refreshes the daily, weekly, and monthly keys touched by the
// given day. The daily key gets the day's composite scores; the weekly and
// monthly keys get each member's mean score over the containing window.
func (p *IndexProjector) ProjectDay(ctx context.Context, arenaID string, day time.Time) (int, error) {
	daySnaps, err := p.snapshots.Snapshots(ctx, arenaID, scoring.SingleDay(day))
	if err != nil {
		return 0, fmt.Errorf("load day snapshots: %w", err)
	}

	scores := make([]ranking.MemberScore, 0, len(daySnaps))
	for _, snap := range daySnaps {
		scores = append(scores, ranking.MemberScore{MemberID: snap.MemberID, Score: snap.Score})
	}

	written, err := p.index.BulkSetScores(ctx, ranking.DailyKey(arenaID, day), scores)
	if err != nil {
		return 0, fmt.Errorf("write daily key: %w", err)
	}

	weekRange, err := scoring.NewDateRange(timeutil.StartOfWeek(day), timeutil.EndOfWeek(day))
	if err != nil {
		return written, err
	}
	n, err := p.projectWindow(ctx, arenaID, ranking.WeeklyKey(arenaID, day), weekRange)
	if err != nil {
		return written, fmt.Errorf("write weekly key: %w", err)
	}
	written += n

	monthRange, err := scoring.NewDateRange(timeutil.StartOfMonth(day), timeutil.EndOfMonth(day))
	if err != nil {
		return written, err
	}
	n, err = p.projectWindow(ctx, arenaID, ranking.MonthlyKey(arenaID, day), monthRange)
	if err != nil {
		return written, fmt.Errorf("write monthly key: %w", err)
	}
	written += n

	return written, nil
}

// projectWindow writes each member's mean composite score over rng to key.
func (p *IndexProjector) projectWindow(ctx context.Context, arenaID, key string, rng scoring.DateRange) (int, error) {
	snaps, err := p.snapshots.Snapshots(ctx, arenaID, rng)
	if err != nil {
		return 0, err
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, snap := range snaps {
		sums[snap.MemberID] += snap.Score
		counts[snap.MemberID]++
	}

	scores := make([]ranking.MemberScore, 0, len(sums))
	for memberID, sum := range sums {
		scores = append(scores, ranking.MemberScore{
			MemberID: memberID,
			Score:    roundScore(sum / float64(counts[memberID])),
		})
	}

	return p.index.BulkSetScores(ctx, key, scores)
}

// RebuildRange drops and repopulates every daily, weekly, and monthly key
// the range touches. Used to recover the index after data loss or a
// backend swap.
func (p *IndexProjector) RebuildRange(ctx context.Context, arenaID string, rng scoring.DateRange) error {
	days := timeutil.DaysInRange(rng.From, rng.To)

	weekKeys := make(map[string]time.Time)
	monthKeys := make(map[string]time.Time)

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rebuild aborted: %w", err)
		}

		dailyKey := ranking.DailyKey(arenaID, day)
		if err := p.index.DeleteKey(ctx, dailyKey); err != nil {
			return fmt.Errorf("drop %s: %w", dailyKey, err)
		}

		daySnaps, err := p.snapshots.Snapshots(ctx, arenaID, scoring.SingleDay(day))
		if err != nil {
			return fmt.Errorf("load day snapshots: %w", err)
		}
		scores := make([]ranking.MemberScore, 0, len(daySnaps))
		for _, snap := range daySnaps {
			scores = append(scores, ranking.MemberScore{MemberID: snap.MemberID, Score: snap.Score})
		}
		if _, err := p.index.BulkSetScores(ctx, dailyKey, scores); err != nil {
			return fmt.Errorf("rebuild %s: %w", dailyKey, err)
		}

		weekKeys[ranking.WeeklyKey(arenaID, day)] = day
		monthKeys[ranking.MonthlyKey(arenaID, day)] = day
	}

	for key, day := range weekKeys {
		if err := p.index.DeleteKey(ctx, key); err != nil {
			return fmt.Errorf("drop %s: %w", key, err)
		}
		weekRange, err := scoring.NewDateRange(timeutil.StartOfWeek(day), timeutil.EndOfWeek(day))
		if err != nil {
			return err
		}
		if _, err := p.projectWindow(ctx, arenaID, key, weekRange); err != nil {
			return fmt.Errorf("rebuild %s: %w", key, err)
		}
	}

	for key, day := range monthKeys {
		if err := p.index.DeleteKey(ctx, key); err != nil {
			return fmt.Errorf("drop %s: %w", key, err)
		}
		monthRange, err := scoring.NewDateRange(timeutil.StartOfMonth(day), timeutil.EndOfMonth(day))
		if err != nil {
			return err
		}
		if _, err := p.projectWindow(ctx, arenaID, key, monthRange); err != nil {
			return fmt.Errorf("rebuild %s: %w", key, err)
		}
	}

	p.logger.Info("index range rebuilt",
		slog.String("arena_id", arenaID),
		slog.String("range", rng.String()),
		slog.Int("days", len(days)),
	)

	return nil
}

// ProjectLeague repopulates the per-tier league keys from the period's
// assignments, scored by each member's period average.
func (p *IndexProjector) ProjectLeague(ctx context.Context, arenaID string, catalog *league.Catalog, periodStart time.Time) error {
	if p.assignments == nil {
		return league.ErrAssignmentNotFound
	}

	for _, tier := range catalog.Tiers() {
		key := ranking.LeagueKey(arenaID, tier.ID)
		if err := p.index.DeleteKey(ctx, key); err != nil {
			return fmt.Errorf("drop %s: %w", key, err)
		}
	}

	asgs, err := p.assignments.Assignments(ctx, arenaID, periodStart)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}

	byTier := make(map[string][]ranking.MemberScore)
	for _, a := range asgs {
		byTier[a.TierID] = append(byTier[a.TierID], ranking.MemberScore{
			MemberID: a.MemberID,
			Score:    a.AvgScore,
		})
	}

	for tierID, scores := range byTier {
		if _, err := p.index.BulkSetScores(ctx, ranking.LeagueKey(arenaID, tierID), scores); err != nil {
			return fmt.Errorf("write league key %s: %w", tierID, err)
		}
	}

	p.logger.Info("league index projected",
		slog.String("arena_id", arenaID),
		slog.Int("members", len(asgs)),
		slog.Int("tiers", len(byTier)),
	)

	return nil
}

func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
