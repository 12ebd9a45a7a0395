package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INDEX REBUILD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RebuildIndexJob reconstructs the ranking index from durable snapshots.
// Everything the index holds is derived state, so the whole key space for
// the lookback window can be dropped and rewritten at any time: after a
// Redis flush, a backend swap, or a projection bug.
type RebuildIndexJob struct {
	directory arena.Directory
	projector *IndexProjector
	config    RebuildIndexConfig
	logger    *slog.Logger
}

// RebuildIndexConfig contains configuration for the rebuild job.
type RebuildIndexConfig struct {
	// LookbackDays is how many days of keys to rebuild, ending today.
	LookbackDays int `koanf:"lookback_days"`

	// Timeout bounds the whole run.
	Timeout time.Duration `koanf:"timeout"`
}

// DefaultRebuildIndexConfig returns sensible defaults.
func DefaultRebuildIndexConfig() RebuildIndexConfig {
	return RebuildIndexConfig{
		LookbackDays: 35,
		Timeout:      30 * time.Minute,
	}
}

// NewRebuildIndexJob creates the job.
func NewRebuildIndexJob(
	directory arena.Directory,
	projector *IndexProjector,
	config RebuildIndexConfig,
	logger *slog.Logger,
) (*RebuildIndexJob, error) {
	if directory == nil {
		return nil, ErrNilDirectory
	}
	if projector == nil {
		return nil, ErrNilProjector
	}
	if config.LookbackDays <= 0 {
		config.LookbackDays = 35
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RebuildIndexJob{
		directory: directory,
		projector: projector,
		config:    config,
		logger:    logger,
	}, nil
}

// Name returns the job name.
func (j *RebuildIndexJob) Name() string {
	return "rebuild_index"
}

// Description returns a human-readable description.
func (j *RebuildIndexJob) Description() string {
	return "Rebuilds ranking index keys from durable performance snapshots"
}

// Run executes the rebuild job.
func (j *RebuildIndexJob) Run(ctx context.Context) error {
	startedAt := time.Now()

	today := timeutil.StartOfDay(timeutil.Now())
	rng, err := scoring.NewDateRange(today.AddDate(0, 0, -(j.config.LookbackDays-1)), today)
	if err != nil {
		return fmt.Errorf("resolve lookback range: %w", err)
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

	j.logger.Info("starting index rebuild",
		slog.String("range", rng.String()),
		slog.Int("arenas", len(arenaIDs)),
	)

	for _, arenaID := range arenaIDs {
		if err := j.projector.RebuildRange(ctx, arenaID, rng); err != nil {
			return fmt.Errorf("rebuild arena %s: %w", arenaID, err)
		}
	}

	j.logger.Info("index rebuild completed",
		slog.String("range", rng.String()),
		slog.Duration("duration", time.Since(startedAt)),
	)

	return nil
}
