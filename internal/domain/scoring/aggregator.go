package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

const weightSumEpsilon = 1e-9

var (
	// ErrInvalidWeights is returned when the score weights do not sum to 1.
	ErrInvalidWeights = errors.New("scoring: weights must be non-negative and sum to 1")

	// ErrInvalidReferenceMinutes is returned for a non-positive study-time
	// normalization baseline.
	ErrInvalidReferenceMinutes = errors.New("scoring: reference minutes must be positive")

	// ErrNilActivitySource is returned when the aggregator is built without a source.
	ErrNilActivitySource = errors.New("scoring: activity source cannot be nil")

	// ErrNilSnapshotStore is returned when the aggregator is built without a store.
	ErrNilSnapshotStore = errors.New("scoring: snapshot store cannot be nil")
)

// Weights are the fractions of the composite score contributed by each
// activity dimension. They must be non-negative and sum to 1.
type Weights struct {
	Achievement float64 `koanf:"achievement"`
	StudyTime   float64 `koanf:"study_time"`
	Focus       float64 `koanf:"focus"`
}

// DefaultWeights returns the standard 50/30/20 split.
func DefaultWeights() Weights {
	return Weights{Achievement: 0.5, StudyTime: 0.3, Focus: 0.2}
}

// Validate checks the weight invariants.
func (w Weights) Validate() error {
	if w.Achievement < 0 || w.StudyTime < 0 || w.Focus < 0 {
		return ErrInvalidWeights
	}
	if math.Abs(w.Achievement+w.StudyTime+w.Focus-1.0) > weightSumEpsilon {
		return ErrInvalidWeights
	}
	return nil
}

// Config controls how raw activity is folded into a composite score.
type Config struct {
	// Weights split the composite across the three activity dimensions.
	Weights Weights `koanf:"weights"`

	// ReferenceMinutes is the daily study time that counts as full effort.
	// Minutes at or above it score 100 on the study-time dimension.
	ReferenceMinutes int `koanf:"reference_minutes"`

	// NeutralFocusScore is the focus sub-score substituted when a member has
	// no focus measurements for the day. A measured ratio of 0 is never
	// replaced by it.
	NeutralFocusScore float64 `koanf:"neutral_focus_score"`
}

// DefaultConfig returns production defaults: 50/30/20 weights, an 8-hour
// reference day, and a neutral focus of 50.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		ReferenceMinutes:  480,
		NeutralFocusScore: 50,
	}
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.ReferenceMinutes <= 0 {
		return ErrInvalidReferenceMinutes
	}
	if c.NeutralFocusScore < 0 || c.NeutralFocusScore > 100 {
		return fmt.Errorf("scoring: neutral focus score must be in [0,100], got %v", c.NeutralFocusScore)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE COMPUTATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementPct returns completed/assigned × 100, clamped to [0,100].
// A day with nothing assigned scores 0 on this dimension.
func AchievementPct(raw RawActivity) float64 {
	if raw.AssignedUnits <= 0 {
		return 0
	}
	return clamp(float64(raw.CompletedUnits) / float64(raw.AssignedUnits) * 100)
}

// ComposeScore folds raw activity into the bounded composite score.
func (c Config) ComposeScore(raw RawActivity) float64 {
	achievement := AchievementPct(raw)

	study := clamp(float64(raw.ActiveMinutes) / float64(c.ReferenceMinutes) * 100)

	focus := c.NeutralFocusScore
	if raw.FocusRatio != nil {
		focus = clamp(*raw.FocusRatio * 100)
	}

	score := c.Weights.Achievement*achievement +
		c.Weights.StudyTime*study +
		c.Weights.Focus*focus
	return round2(clamp(score))
}

// BuildSnapshot constructs the snapshot for one member's day of raw activity.
func (c Config) BuildSnapshot(arenaID, memberID string, day time.Time, raw RawActivity) *PerformanceSnapshot {
	return &PerformanceSnapshot{
		ArenaID:        arenaID,
		MemberID:       memberID,
		Date:           day,
		AssignedUnits:  raw.AssignedUnits,
		CompletedUnits: raw.CompletedUnits,
		AchievementPct: round2(AchievementPct(raw)),
		ActiveMinutes:  raw.ActiveMinutes,
		AvgFocusRatio:  raw.FocusRatio,
		Score:          c.ComposeScore(raw),
		CreatedAt:      time.Now().UTC(),
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR
// ══════════════════════════════════════════════════════════════════════════════

// Aggregator fetches raw activity, computes composite scores and persists
// performance snapshots. Recomputing an already aggregated day is safe: the
// snapshot for (arena, member, date) is simply replaced.
type Aggregator struct {
	cfg       Config
	source    ActivitySource
	snapshots SnapshotStore
	logger    *slog.Logger
}

// NewAggregator builds an aggregator, validating the configuration up front.
func NewAggregator(cfg Config, source ActivitySource, snapshots SnapshotStore, logger *slog.Logger) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ErrNilActivitySource
	}
	if snapshots == nil {
		return nil, ErrNilSnapshotStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, source: source, snapshots: snapshots, logger: logger}, nil
}

// Config returns the aggregator's effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// AggregateMember fetches one member's activity for the day, computes the
// composite score and upserts the snapshot. It returns the stored snapshot.
func (a *Aggregator) AggregateMember(ctx context.Context, arenaID, memberID string, day time.Time) (*PerformanceSnapshot, error) {
	if arenaID == "" {
		return nil, ErrArenaIDEmpty
	}
	if memberID == "" {
		return nil, ErrMemberIDEmpty
	}

	raw, err := a.source.FetchActivity(ctx, memberID, SingleDay(day))
	if err != nil {
		return nil, fmt.Errorf("scoring: fetch activity for member %s: %w", memberID, err)
	}

	snap := a.cfg.BuildSnapshot(arenaID, memberID, day, raw)
	if err := a.snapshots.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("scoring: store snapshot for member %s: %w", memberID, err)
	}
	return snap, nil
}

// AggregateArena aggregates every given member for the day, one at a time.
// A failure for one member is recorded in the returned stats and does not
// stop the run; the error return is non-nil only when the context is
// cancelled mid-run.
func (a *Aggregator) AggregateArena(ctx context.Context, arenaID string, memberIDs []string, day time.Time) (*RunStats, error) {
	stats := NewRunStats(arenaID, day, len(memberIDs))

	a.logger.Info("starting arena aggregation",
		slog.String("arena_id", arenaID),
		slog.Time("day", day),
		slog.Int("members", len(memberIDs)),
	)

	for _, memberID := range memberIDs {
		if err := ctx.Err(); err != nil {
			stats.Finish()
			return stats, fmt.Errorf("scoring: arena aggregation interrupted: %w", err)
		}

		snap, err := a.AggregateMember(ctx, arenaID, memberID, day)
		if err != nil {
			stats.RecordFailure(memberID, err)
			a.logger.Error("member aggregation failed",
				slog.String("arena_id", arenaID),
				slog.String("member_id", memberID),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.RecordSuccess(snap)
	}

	stats.Finish()
	a.logger.Info("arena aggregation completed",
		slog.String("arena_id", arenaID),
		slog.Int("aggregated", stats.Aggregated),
		slog.Int("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}
