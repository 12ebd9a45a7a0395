package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/metrics"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY CLASSIFICATION JOB
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyClassificationJob classifies every arena's members into league
// tiers by their average score over the most recent complete ISO week,
// then projects the new assignments into the per-tier ranking keys.
// Reruns for the same period are idempotent.
type WeeklyClassificationJob struct {
	directory  arena.Directory
	classifier *league.Classifier
	projector  *IndexProjector
	config     WeeklyClassificationConfig
	metrics    *metrics.Manager
	logger     *slog.Logger

	lastRunStats atomic.Value // *WeeklyClassificationStats
}

// WeeklyClassificationConfig contains configuration for the job.
type WeeklyClassificationConfig struct {
	// WeekOffset selects the target week relative to now; -1 classifies
	// the previous ISO week, the usual setting for a Monday run.
	WeekOffset int `koanf:"week_offset"`

	// Timeout bounds the whole run.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultWeeklyClassificationConfig returns sensible defaults.
func DefaultWeeklyClassificationConfig() WeeklyClassificationConfig {
	return WeeklyClassificationConfig{
		WeekOffset: -1,
		Timeout:    10 * time.Minute,
	}
}

// WeeklyClassificationStats summarizes one run across all arenas.
type WeeklyClassificationStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Period      scoring.DateRange
	Arenas      int
	Classified  int
	Promotions  int
	Demotions   int
	Failed      int
	Results     []*league.ClassificationResult
}

// NewWeeklyClassificationJob creates the job. The metrics manager may be nil.
func NewWeeklyClassificationJob(
	directory arena.Directory,
	classifier *league.Classifier,
	projector *IndexProjector,
	config WeeklyClassificationConfig,
	mgr *metrics.Manager,
	logger *slog.Logger,
) (*WeeklyClassificationJob, error) {
	if directory == nil {
		return nil, ErrNilDirectory
	}
	if classifier == nil {
		return nil, ErrNilClassifier
	}
	if projector == nil {
		return nil, ErrNilProjector
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &WeeklyClassificationJob{
		directory:  directory,
		classifier: classifier,
		projector:  projector,
		config:     config,
		metrics:    mgr,
		logger:     logger,
	}, nil
}

// Name returns the job name.
func (j *WeeklyClassificationJob) Name() string {
	return "weekly_classification"
}

// Description returns a human-readable description.
func (j *WeeklyClassificationJob) Description() string {
	return "Assigns league tiers from weekly average scores and refreshes league ranking keys"
}

// Run executes the weekly classification job.
func (j *WeeklyClassificationJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	anchor := timeutil.Now().AddDate(0, 0, 7*j.config.WeekOffset)
	period, err := scoring.NewDateRange(timeutil.StartOfWeek(anchor), timeutil.EndOfWeek(anchor))
	if err != nil {
		return fmt.Errorf("resolve period: %w", err)
	}

	stats := &WeeklyClassificationStats{
		StartedAt: startedAt,
		Period:    period,
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	arenaIDs, err := j.directory.ArenaIDs(ctx)
	if err != nil {
		return fmt.Errorf("list arenas: %w", err)
	}
	stats.Arenas = len(arenaIDs)

	j.logger.Info("starting weekly classification",
		slog.String("period", period.String()),
		slog.Int("arenas", len(arenaIDs)),
	)

	for _, arenaID := range arenaIDs {
		arenaStarted := time.Now()

		result, err := j.classifier.ClassifyArena(ctx, arenaID, period)
		if err != nil {
			return fmt.Errorf("classify arena %s: %w", arenaID, err)
		}

		stats.Results = append(stats.Results, result)
		stats.Classified += len(result.Assignments)
		stats.Promotions += result.Promotions
		stats.Demotions += result.Demotions
		stats.Failed += result.Failed
		j.metrics.RecordClassification(result.Promotions, result.Demotions, time.Since(arenaStarted))

		if err := j.projector.ProjectLeague(ctx, arenaID, j.classifier.Catalog(), period.From); err != nil {
			j.logger.Error("league projection failed, league keys are stale",
				slog.String("arena_id", arenaID),
				slog.Any("error", err),
			)
		}
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("weekly classification completed",
		slog.String("period", period.String()),
		slog.Duration("duration", stats.Duration),
		slog.Int("classified", stats.Classified),
		slog.Int("promotions", stats.Promotions),
		slog.Int("demotions", stats.Demotions),
		slog.Int("failed", stats.Failed),
	)

	return nil
}

// LastRunStats returns statistics from the most recent run, or nil.
func (j *WeeklyClassificationJob) LastRunStats() *WeeklyClassificationStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*WeeklyClassificationStats)
}
