package scoring

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func focusPtr(v float64) *float64 { return &v }

// fakeSource serves canned activity per member and can fail selectively.
type fakeSource struct {
	activity map[string]RawActivity
	failFor  map[string]error
}

func (f *fakeSource) FetchActivity(_ context.Context, memberID string, _ DateRange) (RawActivity, error) {
	if err, ok := f.failFor[memberID]; ok {
		return RawActivity{}, err
	}
	return f.activity[memberID], nil
}

// fakeStore keeps snapshots in a map keyed by snapshot key.
type fakeStore struct {
	mu    sync.Mutex
	snaps map[string]*PerformanceSnapshot
	err   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snaps: make(map[string]*PerformanceSnapshot)}
}

func (f *fakeStore) UpsertSnapshot(_ context.Context, snap *PerformanceSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Key()] = snap
	return nil
}

func (f *fakeStore) Snapshots(_ context.Context, arenaID string, rng DateRange) ([]*PerformanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*PerformanceSnapshot
	for _, s := range f.snaps {
		if s.ArenaID == arenaID && rng.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) MemberSnapshots(_ context.Context, arenaID, memberID string, rng DateRange) ([]*PerformanceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*PerformanceSnapshot
	for _, s := range f.snaps {
		if s.ArenaID == arenaID && s.MemberID == memberID && rng.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())
	assert.NoError(t, Weights{Achievement: 1}.Validate())

	assert.ErrorIs(t, Weights{Achievement: 0.5, StudyTime: 0.3, Focus: 0.3}.Validate(), ErrInvalidWeights)
	assert.ErrorIs(t, Weights{Achievement: 1.2, StudyTime: -0.2}.Validate(), ErrInvalidWeights)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ReferenceMinutes = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidReferenceMinutes)

	cfg = DefaultConfig()
	cfg.NeutralFocusScore = 101
	assert.Error(t, cfg.Validate())
}

func TestComposeScore(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("typical day", func(t *testing.T) {
		// 80% achievement, half the reference day, 0.75 focus.
		raw := RawActivity{
			AssignedUnits:  10,
			CompletedUnits: 8,
			ActiveMinutes:  240,
			FocusRatio:     focusPtr(0.75),
		}
		assert.InDelta(t, 70.0, cfg.ComposeScore(raw), 1e-9)
	})

	t.Run("missing focus uses neutral", func(t *testing.T) {
		raw := RawActivity{AssignedUnits: 10, CompletedUnits: 10, ActiveMinutes: 480}
		// 0.5*100 + 0.3*100 + 0.2*50
		assert.InDelta(t, 90.0, cfg.ComposeScore(raw), 1e-9)
	})

	t.Run("measured zero focus stays zero", func(t *testing.T) {
		raw := RawActivity{AssignedUnits: 10, CompletedUnits: 10, ActiveMinutes: 480, FocusRatio: focusPtr(0)}
		assert.InDelta(t, 80.0, cfg.ComposeScore(raw), 1e-9)
	})

	t.Run("no assigned units scores zero achievement", func(t *testing.T) {
		raw := RawActivity{ActiveMinutes: 480, FocusRatio: focusPtr(1)}
		assert.InDelta(t, 50.0, cfg.ComposeScore(raw), 1e-9)
	})

	t.Run("dimensions clamp at 100", func(t *testing.T) {
		raw := RawActivity{
			AssignedUnits:  10,
			CompletedUnits: 25,   // over-completion
			ActiveMinutes:  2000, // way past reference
			FocusRatio:     focusPtr(1.5),
		}
		assert.InDelta(t, 100.0, cfg.ComposeScore(raw), 1e-9)
	})

	t.Run("empty day scores only neutral focus", func(t *testing.T) {
		assert.InDelta(t, 10.0, cfg.ComposeScore(RawActivity{}), 1e-9)
	})
}

func TestAggregateMember(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	source := &fakeSource{activity: map[string]RawActivity{
		"m1": {AssignedUnits: 10, CompletedUnits: 8, ActiveMinutes: 240, FocusRatio: focusPtr(0.75)},
	}}
	store := newFakeStore()

	agg, err := NewAggregator(DefaultConfig(), source, store, slog.Default())
	require.NoError(t, err)

	snap, err := agg.AggregateMember(ctx, "arena-1", "m1", day)
	require.NoError(t, err)
	assert.Equal(t, "arena-1", snap.ArenaID)
	assert.Equal(t, 80.0, snap.AchievementPct)
	assert.Equal(t, 70.0, snap.Score)
	assert.Len(t, store.snaps, 1)

	// Recomputing the same day replaces, not duplicates.
	_, err = agg.AggregateMember(ctx, "arena-1", "m1", day)
	require.NoError(t, err)
	assert.Len(t, store.snaps, 1)

	_, err = agg.AggregateMember(ctx, "", "m1", day)
	assert.ErrorIs(t, err, ErrArenaIDEmpty)
	_, err = agg.AggregateMember(ctx, "arena-1", "", day)
	assert.ErrorIs(t, err, ErrMemberIDEmpty)
}

func TestAggregateArenaIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	source := &fakeSource{
		activity: map[string]RawActivity{
			"m1": {AssignedUnits: 10, CompletedUnits: 10, ActiveMinutes: 480, FocusRatio: focusPtr(1)},
			"m3": {AssignedUnits: 10, CompletedUnits: 5, ActiveMinutes: 120, FocusRatio: focusPtr(0.5)},
		},
		failFor: map[string]error{"m2": errors.New("tracker unavailable")},
	}
	store := newFakeStore()

	agg, err := NewAggregator(DefaultConfig(), source, store, slog.Default())
	require.NoError(t, err)

	stats, err := agg.AggregateArena(ctx, "arena-1", []string{"m1", "m2", "m3"}, day)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalMembers)
	assert.Equal(t, 2, stats.Aggregated)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "m2", stats.Errors[0].MemberID)
	assert.Contains(t, stats.Errors[0].Error, "tracker unavailable")
	assert.Len(t, store.snaps, 2)
	assert.False(t, stats.CompletedAt.IsZero())
}

func TestAggregateArenaStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := &fakeSource{activity: map[string]RawActivity{}}
	agg, err := NewAggregator(DefaultConfig(), source, newFakeStore(), slog.Default())
	require.NoError(t, err)

	stats, err := agg.AggregateArena(ctx, "arena-1", []string{"m1"}, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Aggregated)
}

func TestNewAggregatorValidation(t *testing.T) {
	store := newFakeStore()
	source := &fakeSource{}

	bad := DefaultConfig()
	bad.Weights.Focus = 0.9
	_, err := NewAggregator(bad, source, store, nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	_, err = NewAggregator(DefaultConfig(), nil, store, nil)
	assert.ErrorIs(t, err, ErrNilActivitySource)

	_, err = NewAggregator(DefaultConfig(), source, nil, nil)
	assert.ErrorIs(t, err, ErrNilSnapshotStore)
}

func TestDateRange(t *testing.T) {
	from := time.Date(2026, 8, 1, 15, 30, 0, 0, time.UTC)
	to := time.Date(2026, 8, 3, 2, 0, 0, 0, time.UTC)

	rng, err := NewDateRange(from, to)
	require.NoError(t, err)
	assert.Equal(t, 3, rng.Days())
	assert.True(t, rng.Contains(time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)))
	assert.False(t, rng.Contains(time.Date(2026, 8, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-08-01..2026-08-03", rng.String())

	_, err = NewDateRange(to, from)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	day := SingleDay(time.Date(2026, 8, 31, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, day.Days())
}
