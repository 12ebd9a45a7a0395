package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/metrics"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY AGGREGATION JOB
// ══════════════════════════════════════════════════════════════════════════════

// DailyAggregationJob pulls raw activity for every active member of every
// arena, composes the day's performance snapshots, and projects the fresh
// scores into the ranking index. Per-member failures are recorded and do
// not stop the run; a failed index projection is logged and skipped since
// the index can always be rebuilt from the snapshots.
type DailyAggregationJob struct {
	directory  arena.Directory
	aggregator *scoring.Aggregator
	projector  *IndexProjector
	config     DailyAggregationConfig
	metrics    *metrics.Manager
	logger     *slog.Logger

	lastRunStats atomic.Value // *DailyAggregationStats
}

// DailyAggregationConfig contains configuration for the daily aggregation job.
type DailyAggregationConfig struct {
	// DayOffset selects the target day relative to now; -1 aggregates
	// yesterday, which is the usual setting for a just-after-midnight run.
	DayOffset int `koanf:"day_offset"`

	// Timeout bounds the whole run.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultDailyAggregationConfig returns sensible defaults.
func DefaultDailyAggregationConfig() DailyAggregationConfig {
	return DailyAggregationConfig{
		DayOffset: -1,
		Timeout:   15 * time.Minute,
	}
}

// DailyAggregationStats summarizes one run across all arenas.
type DailyAggregationStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	Day           time.Time
	Arenas        int
	Aggregated    int
	Failed        int
	IndexedScores int
	ArenaStats    []*scoring.RunStats
}

var (
	// ErrNilDirectory is returned when a job is built without the roster.
	ErrNilDirectory = errors.New("jobs: member directory is nil")

	// ErrNilAggregator is returned when the aggregation job is built without an aggregator.
	ErrNilAggregator = errors.New("jobs: aggregator is nil")

	// ErrNilClassifier is returned when the classification job is built without a classifier.
	ErrNilClassifier = errors.New("jobs: classifier is nil")

	// ErrNilProjector is returned when a job is built without the index projector.
	ErrNilProjector = errors.New("jobs: index projector is nil")
)

// NewDailyAggregationJob creates the job. The metrics manager may be nil.
func NewDailyAggregationJob(
	directory arena.Directory,
	aggregator *scoring.Aggregator,
	projector *IndexProjector,
	config DailyAggregationConfig,
	mgr *metrics.Manager,
	logger *slog.Logger,
) (*DailyAggregationJob, error) {
	if directory == nil {
		return nil, ErrNilDirectory
	}
	if aggregator == nil {
		return nil, ErrNilAggregator
	}
	if projector == nil {
		return nil, ErrNilProjector
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DailyAggregationJob{
		directory:  directory,
		aggregator: aggregator,
		projector:  projector,
		config:     config,
		metrics:    mgr,
		logger:     logger,
	}, nil
}

// Name returns the job name.
func (j *DailyAggregationJob) Name() string {
	return "daily_aggregation"
}

// Description returns a human-readable description.
func (j *DailyAggregationJob) Description() string {
	return "Aggregates raw activity into daily performance snapshots and refreshes ranking keys"
}

// Run executes the daily aggregation job.
func (j *DailyAggregationJob) Run(ctx context.Context) error {
	startedAt := time.Now()
	day := timeutil.StartOfDay(timeutil.Now().AddDate(0, 0, j.config.DayOffset))

	stats := &DailyAggregationStats{
		StartedAt: startedAt,
		Day:       day,
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

	j.logger.Info("starting daily aggregation",
		slog.String("day", timeutil.DateString(day)),
		slog.Int("arenas", len(arenaIDs)),
	)

	for _, arenaID := range arenaIDs {
		arenaStarted := time.Now()

		memberIDs, err := j.directory.ActiveMemberIDs(ctx, arenaID)
		if err != nil {
			j.logger.Error("failed to load arena roster",
				slog.String("arena_id", arenaID),
				slog.Any("error", err),
			)
			continue
		}

		runStats, err := j.aggregator.AggregateArena(ctx, arenaID, memberIDs, day)
		if err != nil {
			// Only a cancelled context aborts an arena run.
			return fmt.Errorf("aggregate arena %s: %w", arenaID, err)
		}
		stats.ArenaStats = append(stats.ArenaStats, runStats)
		stats.Aggregated += runStats.Aggregated
		stats.Failed += runStats.Failed
		j.metrics.RecordAggregation(runStats.Aggregated, runStats.Failed, time.Since(arenaStarted))

		written, err := j.projector.ProjectDay(ctx, arenaID, day)
		if err != nil {
			j.logger.Error("index projection failed, index is stale until next rebuild",
				slog.String("arena_id", arenaID),
				slog.Any("error", err),
			)
			continue
		}
		stats.IndexedScores += written
	}

	stats.CompletedAt = time.Now()
	stats.Duration = stats.CompletedAt.Sub(startedAt)
	j.lastRunStats.Store(stats)

	j.logger.Info("daily aggregation completed",
		slog.String("day", timeutil.DateString(day)),
		slog.Duration("duration", stats.Duration),
		slog.Int("aggregated", stats.Aggregated),
		slog.Int("failed", stats.Failed),
		slog.Int("indexed_scores", stats.IndexedScores),
	)

	return nil
}

// LastRunStats returns statistics from the most recent run, or nil.
func (j *DailyAggregationJob) LastRunStats() *DailyAggregationStats {
	stats := j.lastRunStats.Load()
	if stats == nil {
		return nil
	}
	return stats.(*DailyAggregationStats)
}
