package league

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type fakeSnapshots struct {
	snaps []*scoring.PerformanceSnapshot
}

func (f *fakeSnapshots) UpsertSnapshot(_ context.Context, snap *scoring.PerformanceSnapshot) error {
	f.snaps = append(f.snaps, snap)
	return nil
}

func (f *fakeSnapshots) Snapshots(_ context.Context, arenaID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	var out []*scoring.PerformanceSnapshot
	for _, s := range f.snaps {
		if s.ArenaID == arenaID && rng.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSnapshots) MemberSnapshots(_ context.Context, arenaID, memberID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	var out []*scoring.PerformanceSnapshot
	for _, s := range f.snaps {
		if s.ArenaID == arenaID && s.MemberID == memberID && rng.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeAssignments struct {
	rows      map[string]*Assignment // keyed arena:member:periodStart
	upsertErr map[string]error
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{rows: make(map[string]*Assignment), upsertErr: make(map[string]error)}
}

func assignmentKey(arenaID, memberID string, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s", arenaID, memberID, periodStart.Format("2006-01-02"))
}

func (f *fakeAssignments) UpsertAssignment(_ context.Context, a *Assignment) error {
	if err := f.upsertErr[a.MemberID]; err != nil {
		return err
	}
	f.rows[assignmentKey(a.ArenaID, a.MemberID, a.PeriodStart)] = a
	return nil
}

func (f *fakeAssignments) LatestAssignmentBefore(_ context.Context, arenaID, memberID string, cutoff time.Time) (*Assignment, error) {
	var latest *Assignment
	for _, a := range f.rows {
		if a.ArenaID != arenaID || a.MemberID != memberID || !a.PeriodStart.Before(cutoff) {
			continue
		}
		if latest == nil || a.PeriodStart.After(latest.PeriodStart) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrAssignmentNotFound
	}
	return latest, nil
}

func (f *fakeAssignments) Assignments(_ context.Context, arenaID string, periodStart time.Time) ([]*Assignment, error) {
	var out []*Assignment
	for _, a := range f.rows {
		if a.ArenaID == arenaID && a.PeriodStart.Equal(periodStart) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func TestNewCatalogValidation(t *testing.T) {
	t.Run("default catalog is valid", func(t *testing.T) {
		c := DefaultCatalog()
		assert.Equal(t, 5, c.Size())
		assert.Equal(t, "bronze", c.Lowest().ID)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewCatalog(nil)
		assert.ErrorIs(t, err, ErrEmptyCatalog)
	})

	t.Run("gap between bands", func(t *testing.T) {
		_, err := NewCatalog([]Tier{
			{ID: "low", RankOrder: 1, LowerPct: 60, UpperPct: 100},
			{ID: "high", RankOrder: 2, LowerPct: 0, UpperPct: 50},
		})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
	})

	t.Run("does not end at 100", func(t *testing.T) {
		_, err := NewCatalog([]Tier{
			{ID: "low", RankOrder: 1, LowerPct: 50, UpperPct: 90},
			{ID: "high", RankOrder: 2, LowerPct: 0, UpperPct: 50},
		})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
	})

	t.Run("non-contiguous rank orders", func(t *testing.T) {
		_, err := NewCatalog([]Tier{
			{ID: "low", RankOrder: 1, LowerPct: 50, UpperPct: 100},
			{ID: "high", RankOrder: 3, LowerPct: 0, UpperPct: 50},
		})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
	})

	t.Run("duplicate tier id", func(t *testing.T) {
		_, err := NewCatalog([]Tier{
			{ID: "x", RankOrder: 1, LowerPct: 50, UpperPct: 100},
			{ID: "x", RankOrder: 2, LowerPct: 0, UpperPct: 50},
		})
		assert.ErrorIs(t, err, ErrInvalidCatalog)
	})
}

func TestTierForPercentile(t *testing.T) {
	c := DefaultCatalog()

	cases := []struct {
		percentile float64
		tierID     string
	}{
		{5, "master"},
		{10, "master"}, // upper bound is inclusive
		{10.5, "diamond"},
		{25, "diamond"},
		{40, "gold"},
		{75, "silver"},
		{76, "bronze"},
		{100, "bronze"},
	}
	for _, tc := range cases {
		tier, err := c.TierForPercentile(tc.percentile)
		require.NoError(t, err)
		assert.Equal(t, tc.tierID, tier.ID, "percentile %.1f", tc.percentile)
	}

	_, err := c.TierForPercentile(0)
	assert.ErrorIs(t, err, ErrTierNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

func weekOf(day time.Time) scoring.DateRange {
	rng, _ := scoring.NewDateRange(day, day.AddDate(0, 0, 6))
	return rng
}

func snapshotFor(arenaID, memberID string, day time.Time, score float64) *scoring.PerformanceSnapshot {
	return &scoring.PerformanceSnapshot{ArenaID: arenaID, MemberID: memberID, Date: day, Score: score}
}

func newTestClassifier(t *testing.T, snaps *fakeSnapshots, assigns *fakeAssignments) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultCatalog(), snaps, assigns, slog.Default())
	require.NoError(t, err)
	return c
}

func TestClassifyArenaTenMembers(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	period := weekOf(monday)

	snaps := &fakeSnapshots{}
	for i := 0; i < 10; i++ {
		// m0 best (score 100), m9 worst (score 10).
		snaps.snaps = append(snaps.snaps, snapshotFor("arena-1", fmt.Sprintf("m%d", i), monday, float64(100-i*10)))
	}
	assigns := newFakeAssignments()

	result, err := newTestClassifier(t, snaps, assigns).ClassifyArena(ctx, "arena-1", period)
	require.NoError(t, err)
	require.Len(t, result.Assignments, 10)

	tierByMember := make(map[string]string)
	for _, a := range result.Assignments {
		tierByMember[a.MemberID] = a.TierID
	}

	// Percentiles land at 10, 20, ..., 100.
	assert.Equal(t, "master", tierByMember["m0"])
	assert.Equal(t, "diamond", tierByMember["m1"])
	assert.Equal(t, "gold", tierByMember["m2"])
	assert.Equal(t, "gold", tierByMember["m4"])
	assert.Equal(t, "silver", tierByMember["m5"])
	assert.Equal(t, "silver", tierByMember["m6"])
	assert.Equal(t, "bronze", tierByMember["m8"])
	assert.Equal(t, "bronze", tierByMember["m9"])
}

func TestNewEntrantsAreNeverDemoted(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	snaps := &fakeSnapshots{snaps: []*scoring.PerformanceSnapshot{
		snapshotFor("arena-1", "ada", monday, 90),
		snapshotFor("arena-1", "ben", monday, 10),
	}}
	assigns := newFakeAssignments()

	result, err := newTestClassifier(t, snaps, assigns).ClassifyArena(ctx, "arena-1", weekOf(monday))
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)

	for _, a := range result.Assignments {
		assert.False(t, a.Demoted, "new entrant %s must not be demoted", a.MemberID)
	}

	var ada, ben *Assignment
	for _, a := range result.Assignments {
		if a.MemberID == "ada" {
			ada = a
		} else {
			ben = a
		}
	}
	// ada lands above the lowest tier, which counts as a promotion from the
	// new-entrant baseline; ben stays at the baseline.
	assert.True(t, ada.Promoted)
	assert.False(t, ben.Promoted)
	assert.Equal(t, "bronze", ben.TierID)
}

func TestPromotionAndDemotionAcrossPeriods(t *testing.T) {
	ctx := context.Background()
	week1 := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	week2 := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	snaps := &fakeSnapshots{snaps: []*scoring.PerformanceSnapshot{
		// Week 1: ada on top, ben at the bottom.
		snapshotFor("arena-1", "ada", week1, 95),
		snapshotFor("arena-1", "ben", week1, 20),
		// Week 2: reversed.
		snapshotFor("arena-1", "ada", week2, 20),
		snapshotFor("arena-1", "ben", week2, 95),
	}}
	assigns := newFakeAssignments()
	classifier := newTestClassifier(t, snaps, assigns)

	_, err := classifier.ClassifyArena(ctx, "arena-1", weekOf(week1))
	require.NoError(t, err)

	result, err := classifier.ClassifyArena(ctx, "arena-1", weekOf(week2))
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)

	byMember := make(map[string]*Assignment)
	for _, a := range result.Assignments {
		byMember[a.MemberID] = a
	}

	assert.True(t, byMember["ben"].Promoted)
	assert.False(t, byMember["ben"].Demoted)
	assert.True(t, byMember["ada"].Demoted)
	assert.False(t, byMember["ada"].Promoted)
	assert.Equal(t, 1, result.Promotions)
	assert.Equal(t, 1, result.Demotions)
}

func TestClassifyArenaRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	snaps := &fakeSnapshots{snaps: []*scoring.PerformanceSnapshot{
		snapshotFor("arena-1", "ada", monday, 90),
		snapshotFor("arena-1", "ben", monday, 40),
	}}
	assigns := newFakeAssignments()
	classifier := newTestClassifier(t, snaps, assigns)

	first, err := classifier.ClassifyArena(ctx, "arena-1", weekOf(monday))
	require.NoError(t, err)
	second, err := classifier.ClassifyArena(ctx, "arena-1", weekOf(monday))
	require.NoError(t, err)

	// Same period re-run produces the same placements and does not count the
	// period's own rows as prior history.
	assert.Len(t, assigns.rows, 2)
	for i := range first.Assignments {
		assert.Equal(t, first.Assignments[i].TierID, second.Assignments[i].TierID)
		assert.Equal(t, first.Assignments[i].Promoted, second.Assignments[i].Promoted)
		assert.Equal(t, first.Assignments[i].Demoted, second.Assignments[i].Demoted)
	}
}

func TestClassifyArenaAveragesMultipleDays(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	snaps := &fakeSnapshots{snaps: []*scoring.PerformanceSnapshot{
		snapshotFor("arena-1", "ada", monday, 40),
		snapshotFor("arena-1", "ada", monday.AddDate(0, 0, 1), 80),
		snapshotFor("arena-1", "ben", monday, 50),
	}}
	assigns := newFakeAssignments()

	result, err := newTestClassifier(t, snaps, assigns).ClassifyArena(ctx, "arena-1", weekOf(monday))
	require.NoError(t, err)
	require.Len(t, result.Assignments, 2)

	// ada averages 60 and outranks ben at 50.
	assert.Equal(t, "ada", result.Assignments[0].MemberID)
	assert.InDelta(t, 60.0, result.Assignments[0].AvgScore, 1e-9)
	assert.InDelta(t, 50.0, result.Assignments[0].Percentile, 1e-9)
}

func TestClassifyArenaEmptyPeriod(t *testing.T) {
	ctx := context.Background()
	result, err := newTestClassifier(t, &fakeSnapshots{}, newFakeAssignments()).
		ClassifyArena(ctx, "arena-1", weekOf(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Empty(t, result.Assignments)
	assert.Zero(t, result.Failed)
}

func TestClassifyArenaIsolatesStoreFailures(t *testing.T) {
	ctx := context.Background()
	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)

	snaps := &fakeSnapshots{snaps: []*scoring.PerformanceSnapshot{
		snapshotFor("arena-1", "ada", monday, 90),
		snapshotFor("arena-1", "ben", monday, 70),
		snapshotFor("arena-1", "cid", monday, 50),
	}}
	assigns := newFakeAssignments()
	assigns.upsertErr["ben"] = fmt.Errorf("connection reset")

	result, err := newTestClassifier(t, snaps, assigns).ClassifyArena(ctx, "arena-1", weekOf(monday))
	require.NoError(t, err)

	assert.Len(t, result.Assignments, 2)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ben", result.Errors[0].MemberID)
}
