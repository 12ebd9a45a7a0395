package query

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/memory"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// Wednesday 2026-08-26; its ISO week runs Mon 24th through Sun 30th.
var anchor = timeutil.Date(2026, int(time.August), 26)

type fixture struct {
	snapshots   *memory.SnapshotStore
	assignments *memory.AssignmentStore
	index       *memory.RankingIndex
	builder     *leaderboard.Builder
	catalog     *league.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		snapshots:   memory.NewSnapshotStore(),
		assignments: memory.NewAssignmentStore(),
		index:       memory.NewRankingIndex(),
		catalog:     league.DefaultCatalog(),
	}

	builder, err := leaderboard.NewBuilder(f.snapshots, leaderboard.DefaultPolicy(), slog.Default())
	require.NoError(t, err)
	f.builder = builder

	return f
}

func (f *fixture) seedSnapshot(t *testing.T, memberID string, day time.Time, score float64) {
	t.Helper()
	require.NoError(t, f.snapshots.UpsertSnapshot(context.Background(), &scoring.PerformanceSnapshot{
		ArenaID:  "arena-1",
		MemberID: memberID,
		Date:     timeutil.StartOfDay(day),
		Score:    score,
	}))
}

func memberOrder(entries []leaderboard.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.MemberID
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// GetLeaderboard
// ─────────────────────────────────────────────────────────────────────────────

func TestGetLeaderboardOrdersAndPaginates(t *testing.T) {
	f := newFixture(t)
	f.seedSnapshot(t, "ada", anchor, 91)
	f.seedSnapshot(t, "ben", anchor, 74)
	f.seedSnapshot(t, "cya", anchor, 88)

	h, err := NewGetLeaderboardHandler(f.builder)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetLeaderboardQuery{
		ArenaID: "arena-1",
		Period:  "daily",
		At:      anchor,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ada", "cya", "ben"}, memberOrder(result.Entries))
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, 3, result.TotalMembers)
	assert.False(t, result.HasMore)
	assert.Equal(t, 1, result.Page)

	// The second page of size 2 holds only the last member.
	page2, err := h.Handle(context.Background(), GetLeaderboardQuery{
		ArenaID: "arena-1",
		Period:  "daily",
		Limit:   2,
		Offset:  2,
		At:      anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ben"}, memberOrder(page2.Entries))
	assert.Equal(t, 2, page2.Page)
	assert.False(t, page2.HasMore)
}

func TestGetLeaderboardWeeklyAveragesDays(t *testing.T) {
	f := newFixture(t)
	f.seedSnapshot(t, "ada", anchor, 80)
	f.seedSnapshot(t, "ada", anchor.AddDate(0, 0, -1), 60)

	h, err := NewGetLeaderboardHandler(f.builder)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetLeaderboardQuery{
		ArenaID: "arena-1",
		Period:  "weekly",
		At:      anchor,
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.InDelta(t, 70.0, result.Entries[0].AvgScore, 1e-9)
	assert.Equal(t, 2, result.Entries[0].DaysActive)
}

func TestGetLeaderboardValidation(t *testing.T) {
	h, err := NewGetLeaderboardHandler(mustBuilder(t))
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Period: "daily"})
	assert.ErrorIs(t, err, ErrArenaIDRequired)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{ArenaID: "arena-1", Period: "fortnightly"})
	assert.ErrorIs(t, err, leaderboard.ErrUnknownPeriod)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{ArenaID: "arena-1", Period: "daily", Limit: -1})
	assert.ErrorIs(t, err, ErrNegativeLimit)
}

func mustBuilder(t *testing.T) *leaderboard.Builder {
	t.Helper()
	b, err := leaderboard.NewBuilder(memory.NewSnapshotStore(), leaderboard.DefaultPolicy(), slog.Default())
	require.NoError(t, err)
	return b
}

// ─────────────────────────────────────────────────────────────────────────────
// GetMyRanking
// ─────────────────────────────────────────────────────────────────────────────

func TestGetMyRanking(t *testing.T) {
	f := newFixture(t)
	f.seedSnapshot(t, "ada", anchor, 91)
	f.seedSnapshot(t, "ben", anchor, 74)

	h, err := NewGetMyRankingHandler(f.builder)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetMyRankingQuery{
		ArenaID:  "arena-1",
		MemberID: "ben",
		Period:   "daily",
		At:       anchor,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Me)
	assert.Equal(t, 2, result.Me.Rank)
	assert.Equal(t, 2, result.TotalMembers)

	// The full ordered standings ride along with the member's own entry.
	require.Len(t, result.Entries, 2)
	assert.Equal(t, []string{"ada", "ben"}, memberOrder(result.Entries))
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, result.Entries[1], *result.Me)

	// A member without activity gets the view but no own entry.
	idle, err := h.Handle(context.Background(), GetMyRankingQuery{
		ArenaID:  "arena-1",
		MemberID: "zoe",
		Period:   "daily",
		At:       anchor,
	})
	require.NoError(t, err)
	assert.Nil(t, idle.Me)
	assert.Equal(t, 2, idle.TotalMembers)
	assert.Len(t, idle.Entries, 2)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetMyLeague / GetLeagueLeaderboard
// ─────────────────────────────────────────────────────────────────────────────

func seedAssignment(t *testing.T, f *fixture, memberID, tierID string, periodStart time.Time, avgScore, percentile float64, promoted bool) {
	t.Helper()
	require.NoError(t, f.assignments.UpsertAssignment(context.Background(), &league.Assignment{
		ArenaID:     "arena-1",
		MemberID:    memberID,
		PeriodStart: periodStart,
		TierID:      tierID,
		Percentile:  percentile,
		AvgScore:    avgScore,
		Promoted:    promoted,
		AssignedAt:  periodStart,
	}))
}

func TestGetMyLeague(t *testing.T) {
	f := newFixture(t)
	weekStart := timeutil.StartOfWeek(anchor)
	seedAssignment(t, f, "ada", "gold", weekStart, 82.5, 30, true)
	seedAssignment(t, f, "ben", "gold", weekStart, 79.0, 40, false)

	key := ranking.LeagueKey("arena-1", "gold")
	_, err := f.index.BulkSetScores(context.Background(), key, []ranking.MemberScore{
		{MemberID: "ada", Score: 82.5},
		{MemberID: "ben", Score: 79.0},
	})
	require.NoError(t, err)

	h, err := NewGetMyLeagueHandler(f.assignments, f.catalog, f.index)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetMyLeagueQuery{
		ArenaID:  "arena-1",
		MemberID: "ben",
		At:       anchor.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Equal(t, "gold", result.TierID)
	assert.Equal(t, "Gold", result.TierName)
	assert.InDelta(t, 79.0, result.AvgScore, 1e-9)
	assert.False(t, result.Promoted)
	assert.Equal(t, 2, result.TierRank)
	assert.Equal(t, 2, result.TierSize)
}

func TestGetMyLeagueWithoutAssignment(t *testing.T) {
	f := newFixture(t)

	h, err := NewGetMyLeagueHandler(f.assignments, f.catalog, f.index)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), GetMyLeagueQuery{ArenaID: "arena-1", MemberID: "zoe"})
	assert.ErrorIs(t, err, league.ErrAssignmentNotFound)
}

func TestGetLeagueLeaderboard(t *testing.T) {
	f := newFixture(t)
	key := ranking.LeagueKey("arena-1", "silver")
	_, err := f.index.BulkSetScores(context.Background(), key, []ranking.MemberScore{
		{MemberID: "ada", Score: 61},
		{MemberID: "ben", Score: 58},
		{MemberID: "cya", Score: 66},
	})
	require.NoError(t, err)

	h, err := NewGetLeagueLeaderboardHandler(f.catalog, f.index)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetLeagueLeaderboardQuery{
		ArenaID: "arena-1",
		TierID:  "silver",
		Limit:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, "Silver", result.TierName)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "cya", result.Entries[0].MemberID)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, 3, result.TotalInTier)

	_, err = h.Handle(context.Background(), GetLeagueLeaderboardQuery{ArenaID: "arena-1", TierID: "wood"})
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Live standings
// ─────────────────────────────────────────────────────────────────────────────

func seedIndexScope(t *testing.T, f *fixture) string {
	t.Helper()
	key := ranking.DailyKey("arena-1", anchor)
	_, err := f.index.BulkSetScores(context.Background(), key, []ranking.MemberScore{
		{MemberID: "ada", Score: 91},
		{MemberID: "ben", Score: 74},
		{MemberID: "cya", Score: 88},
		{MemberID: "dot", Score: 74},
	})
	require.NoError(t, err)
	return key
}

func TestGetTopStandings(t *testing.T) {
	f := newFixture(t)
	key := seedIndexScope(t, f)

	h, err := NewGetTopStandingsHandler(f.index)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetTopStandingsQuery{
		ArenaID: "arena-1",
		Scope:   ScopeDaily,
		Limit:   3,
		At:      anchor,
	})
	require.NoError(t, err)
	assert.Equal(t, key, result.Key)
	require.Len(t, result.Entries, 3)
	// Equal scores order by member id ascending: ben before dot.
	assert.Equal(t, "ada", result.Entries[0].MemberID)
	assert.Equal(t, "cya", result.Entries[1].MemberID)
	assert.Equal(t, "ben", result.Entries[2].MemberID)
	assert.Equal(t, 4, result.Total)

	_, err = h.Handle(context.Background(), GetTopStandingsQuery{ArenaID: "arena-1", Scope: "hourly"})
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestGetNearbyStandings(t *testing.T) {
	f := newFixture(t)
	seedIndexScope(t, f)

	h, err := NewGetNearbyStandingsHandler(f.index)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetNearbyStandingsQuery{
		ArenaID:  "arena-1",
		MemberID: "cya",
		Scope:    ScopeDaily,
		Radius:   1,
		At:       anchor,
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	require.NotNil(t, result.Me)
	assert.Equal(t, "cya", result.Me.MemberID)
	assert.Equal(t, 2, result.Me.Rank)

	_, err = h.Handle(context.Background(), GetNearbyStandingsQuery{
		ArenaID:  "arena-1",
		MemberID: "zoe",
		Scope:    ScopeDaily,
		At:       anchor,
	})
	assert.ErrorIs(t, err, ranking.ErrMemberNotFound)
}

func TestGetStandingsPage(t *testing.T) {
	f := newFixture(t)
	seedIndexScope(t, f)

	h, err := NewGetStandingsPageHandler(f.index)
	require.NoError(t, err)

	result, err := h.Handle(context.Background(), GetStandingsPageQuery{
		ArenaID: "arena-1",
		Scope:   ScopeDaily,
		Start:   1,
		Stop:    2,
		At:      anchor,
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "cya", result.Entries[0].MemberID)
	assert.Equal(t, 2, result.Entries[0].Rank)
	assert.Equal(t, "ben", result.Entries[1].MemberID)

	_, err = h.Handle(context.Background(), GetStandingsPageQuery{
		ArenaID: "arena-1",
		Scope:   ScopeDaily,
		Start:   3,
		Stop:    1,
	})
	assert.ErrorIs(t, err, ranking.ErrInvalidRange)
}
