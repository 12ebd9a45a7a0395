package jobs

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/memory"
	"github.com/arena-hub/arena-rank/pkg/metrics"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// fakeSource serves canned per-member activity.
type fakeSource struct {
	byMember map[string]scoring.RawActivity
}

func (f *fakeSource) FetchActivity(_ context.Context, memberID string, _ scoring.DateRange) (scoring.RawActivity, error) {
	return f.byMember[memberID], nil
}

type fixture struct {
	directory   *memory.Directory
	snapshots   *memory.SnapshotStore
	assignments *memory.AssignmentStore
	index       *memory.RankingIndex
	projector   *IndexProjector
}

func newFixture(t *testing.T, memberIDs ...string) *fixture {
	t.Helper()

	f := &fixture{
		directory:   memory.NewDirectory(),
		snapshots:   memory.NewSnapshotStore(),
		assignments: memory.NewAssignmentStore(),
		index:       memory.NewRankingIndex(),
	}

	ctx := context.Background()
	for _, id := range memberIDs {
		require.NoError(t, f.directory.UpsertMember(ctx, &arena.Member{
			ArenaID:  "arena-1",
			MemberID: id,
			Active:   true,
			JoinedAt: time.Now(),
		}))
	}

	projector, err := NewIndexProjector(f.snapshots, f.assignments, f.index, slog.Default())
	require.NoError(t, err)
	f.projector = projector

	return f
}

func seedSnapshot(t *testing.T, f *fixture, memberID string, day time.Time, score float64) {
	t.Helper()
	require.NoError(t, f.snapshots.UpsertSnapshot(context.Background(), &scoring.PerformanceSnapshot{
		ArenaID:  "arena-1",
		MemberID: memberID,
		Date:     timeutil.StartOfDay(day),
		Score:    score,
	}))
}

func scrapeMetrics(t *testing.T, mgr *metrics.Manager) string {
	t.Helper()
	rec := httptest.NewRecorder()
	mgr.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func memberOrder(entries []ranking.RankedEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.MemberID
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Daily aggregation
// ─────────────────────────────────────────────────────────────────────────────

func TestDailyAggregationJob(t *testing.T) {
	f := newFixture(t, "ada", "ben", "cya")

	focus := 0.9
	source := &fakeSource{byMember: map[string]scoring.RawActivity{
		"ada": {AssignedUnits: 10, CompletedUnits: 10, ActiveMinutes: 480, FocusRatio: &focus},
		"ben": {AssignedUnits: 10, CompletedUnits: 5, ActiveMinutes: 240},
		"cya": {AssignedUnits: 10, CompletedUnits: 1, ActiveMinutes: 30},
	}}

	aggregator, err := scoring.NewAggregator(scoring.DefaultConfig(), source, f.snapshots, slog.Default())
	require.NoError(t, err)

	mgr := metrics.NewManager()
	job, err := NewDailyAggregationJob(f.directory, aggregator, f.projector, DefaultDailyAggregationConfig(), mgr, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "daily_aggregation", job.Name())

	require.NoError(t, job.Run(context.Background()))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Arenas)
	assert.Equal(t, 3, stats.Aggregated)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, f.snapshots.Len())

	// The run shows up in the exposition.
	exposed := scrapeMetrics(t, mgr)
	assert.Contains(t, exposed, "arena_rank_snapshots_aggregated_total 3")
	assert.Contains(t, exposed, "arena_rank_aggregation_failures_total 0")

	// Daily key ordered by composite score.
	day := timeutil.StartOfDay(timeutil.Now().AddDate(0, 0, -1))
	entries, err := f.index.TopN(context.Background(), ranking.DailyKey("arena-1", day), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "ben", "cya"}, memberOrder(entries))

	// Weekly and monthly keys got the same members.
	n, err := f.index.Count(context.Background(), ranking.WeeklyKey("arena-1", day))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = f.index.Count(context.Background(), ranking.MonthlyKey("arena-1", day))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDailyAggregationJobRerunIdempotent(t *testing.T) {
	f := newFixture(t, "ada")
	source := &fakeSource{byMember: map[string]scoring.RawActivity{
		"ada": {AssignedUnits: 4, CompletedUnits: 2, ActiveMinutes: 120},
	}}

	aggregator, err := scoring.NewAggregator(scoring.DefaultConfig(), source, f.snapshots, slog.Default())
	require.NoError(t, err)
	job, err := NewDailyAggregationJob(f.directory, aggregator, f.projector, DefaultDailyAggregationConfig(), nil, slog.Default())
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, f.snapshots.Len())

	day := timeutil.StartOfDay(timeutil.Now().AddDate(0, 0, -1))
	n, err := f.index.Count(context.Background(), ranking.DailyKey("arena-1", day))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// ─────────────────────────────────────────────────────────────────────────────
// Index projection
// ─────────────────────────────────────────────────────────────────────────────

func TestProjectDayAveragesWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Two days in the same ISO week.
	monday := timeutil.StartOfWeek(timeutil.Date(2026, 8, 26))
	tuesday := monday.AddDate(0, 0, 1)
	seedSnapshot(t, f, "ada", monday, 80)
	seedSnapshot(t, f, "ada", tuesday, 60)

	_, err := f.projector.ProjectDay(ctx, "arena-1", tuesday)
	require.NoError(t, err)

	// Daily key holds the day's score, weekly key the window mean.
	daily, err := f.index.Score(ctx, ranking.DailyKey("arena-1", tuesday), "ada")
	require.NoError(t, err)
	assert.InDelta(t, 60, daily, 1e-9)

	weekly, err := f.index.Score(ctx, ranking.WeeklyKey("arena-1", tuesday), "ada")
	require.NoError(t, err)
	assert.InDelta(t, 70, weekly, 1e-9)
}

// ─────────────────────────────────────────────────────────────────────────────
// Weekly classification
// ─────────────────────────────────────────────────────────────────────────────

func TestWeeklyClassificationJob(t *testing.T) {
	f := newFixture(t, "m1", "m2", "m3", "m4")
	ctx := context.Background()

	// Seed the previous ISO week, the job's default target.
	weekStart := timeutil.StartOfWeek(timeutil.Now().AddDate(0, 0, -7))
	seedSnapshot(t, f, "m1", weekStart, 95)
	seedSnapshot(t, f, "m2", weekStart, 80)
	seedSnapshot(t, f, "m3", weekStart, 60)
	seedSnapshot(t, f, "m4", weekStart, 40)

	classifier, err := league.NewClassifier(league.DefaultCatalog(), f.snapshots, f.assignments, slog.Default())
	require.NoError(t, err)

	mgr := metrics.NewManager()
	job, err := NewWeeklyClassificationJob(f.directory, classifier, f.projector, DefaultWeeklyClassificationConfig(), mgr, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "weekly_classification", job.Name())

	require.NoError(t, job.Run(ctx))

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 4, stats.Classified)
	assert.Equal(t, 0, stats.Failed)
	assert.Contains(t, scrapeMetrics(t, mgr), "arena_rank_classification_runs_total 1")

	asgs, err := f.assignments.Assignments(ctx, "arena-1", weekStart)
	require.NoError(t, err)
	require.Len(t, asgs, 4)

	// Every classified member landed in exactly one league key.
	total := 0
	for _, tier := range league.DefaultCatalog().Tiers() {
		n, err := f.index.Count(ctx, ranking.LeagueKey("arena-1", tier.ID))
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, 4, total)
}

// ─────────────────────────────────────────────────────────────────────────────
// Index rebuild
// ─────────────────────────────────────────────────────────────────────────────

func TestRebuildIndexJob(t *testing.T) {
	f := newFixture(t, "ada", "ben")
	ctx := context.Background()

	yesterday := timeutil.StartOfDay(timeutil.Now().AddDate(0, 0, -1))
	seedSnapshot(t, f, "ada", yesterday, 88)
	seedSnapshot(t, f, "ben", yesterday, 44)

	// Poison the index with an entry the snapshots do not back.
	dailyKey := ranking.DailyKey("arena-1", yesterday)
	require.NoError(t, f.index.SetScore(ctx, dailyKey, "ghost", 99))

	job, err := NewRebuildIndexJob(f.directory, f.projector, RebuildIndexConfig{LookbackDays: 3}, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "rebuild_index", job.Name())

	require.NoError(t, job.Run(ctx))

	entries, err := f.index.TopN(ctx, dailyKey, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "ben"}, memberOrder(entries))

	n, err := f.index.Count(ctx, ranking.WeeklyKey("arena-1", yesterday))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJobConstructorsValidate(t *testing.T) {
	f := newFixture(t)

	_, err := NewDailyAggregationJob(nil, nil, f.projector, DefaultDailyAggregationConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNilDirectory)

	_, err = NewWeeklyClassificationJob(f.directory, nil, f.projector, DefaultWeeklyClassificationConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrNilClassifier)

	_, err = NewRebuildIndexJob(f.directory, nil, DefaultRebuildIndexConfig(), nil)
	assert.ErrorIs(t, err, ErrNilProjector)

	_, err = NewIndexProjector(nil, f.assignments, f.index, nil)
	assert.ErrorIs(t, err, ErrNilSnapshots)
}
