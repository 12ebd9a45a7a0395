package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arena-hub/arena-rank/internal/application/query"
	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/internal/infrastructure/persistence/memory"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

var anchor = timeutil.Date(2026, int(time.August), 26)

func newTestServer(t *testing.T) (*Server, *memory.SnapshotStore, *memory.RankingIndex, *memory.AssignmentStore) {
	t.Helper()

	snapshots := memory.NewSnapshotStore()
	assignments := memory.NewAssignmentStore()
	index := memory.NewRankingIndex()
	catalog := league.DefaultCatalog()

	builder, err := leaderboard.NewBuilder(snapshots, leaderboard.DefaultPolicy(), slog.Default())
	require.NoError(t, err)

	lb, err := query.NewGetLeaderboardHandler(builder)
	require.NoError(t, err)
	mr, err := query.NewGetMyRankingHandler(builder)
	require.NoError(t, err)
	ml, err := query.NewGetMyLeagueHandler(assignments, catalog, index)
	require.NoError(t, err)
	ll, err := query.NewGetLeagueLeaderboardHandler(catalog, index)
	require.NoError(t, err)
	top, err := query.NewGetTopStandingsHandler(index)
	require.NoError(t, err)
	near, err := query.NewGetNearbyStandingsHandler(index)
	require.NoError(t, err)
	page, err := query.NewGetStandingsPageHandler(index)
	require.NoError(t, err)

	srv, err := NewServer(DefaultConfig(), Dependencies{
		Leaderboard:       lb,
		MyRanking:         mr,
		MyLeague:          ml,
		LeagueLeaderboard: ll,
		TopStandings:      top,
		NearbyStandings:   near,
		StandingsPage:     page,
		Logger:            slog.Default(),
	})
	require.NoError(t, err)

	return srv, snapshots, index, assignments
}

func doRequest(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec, body := doRequest(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = doRequest(t, srv, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, snapshots, _, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, snapshots.UpsertSnapshot(ctx, &scoring.PerformanceSnapshot{
		ArenaID: "arena-1", MemberID: "ada", Date: anchor, Score: 91,
	}))
	require.NoError(t, snapshots.UpsertSnapshot(ctx, &scoring.PerformanceSnapshot{
		ArenaID: "arena-1", MemberID: "ben", Date: anchor, Score: 74,
	}))

	rec, body := doRequest(t, srv, "/api/v1/arenas/arena-1/leaderboard?period=daily&at=2026-08-26")
	require.Equal(t, http.StatusOK, rec.Code)

	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "ada", first["member_id"])
	assert.EqualValues(t, 1, first["rank"])

	// Unknown period is a 400, not a 500.
	rec, body = doRequest(t, srv, "/api/v1/arenas/arena-1/leaderboard?period=fortnightly")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", body["error"])
}

func TestMyRankingEndpoint(t *testing.T) {
	srv, snapshots, _, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, snapshots.UpsertSnapshot(ctx, &scoring.PerformanceSnapshot{
		ArenaID: "arena-1", MemberID: "ada", Date: anchor, Score: 91,
	}))
	require.NoError(t, snapshots.UpsertSnapshot(ctx, &scoring.PerformanceSnapshot{
		ArenaID: "arena-1", MemberID: "ben", Date: anchor, Score: 74,
	}))

	rec, body := doRequest(t, srv, "/api/v1/arenas/arena-1/members/ben/ranking?period=daily&at=2026-08-26")
	require.Equal(t, http.StatusOK, rec.Code)

	// The whole ordered list is in the response, not just the member's entry.
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "ada", entries[0].(map[string]any)["member_id"])
	assert.Equal(t, "ben", entries[1].(map[string]any)["member_id"])

	me := body["me"].(map[string]any)
	assert.EqualValues(t, 2, me["rank"])
	assert.EqualValues(t, 2, body["total_members"])
}

func TestStandingsEndpoints(t *testing.T) {
	srv, _, index, _ := newTestServer(t)
	key := ranking.DailyKey("arena-1", anchor)
	_, err := index.BulkSetScores(context.Background(), key, []ranking.MemberScore{
		{MemberID: "ada", Score: 91},
		{MemberID: "ben", Score: 74},
		{MemberID: "cya", Score: 88},
	})
	require.NoError(t, err)

	rec, body := doRequest(t, srv, "/api/v1/arenas/arena-1/standings?scope=daily&limit=2&at=2026-08-26")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["entries"], 2)
	assert.EqualValues(t, 3, body["total"])

	rec, body = doRequest(t, srv, "/api/v1/arenas/arena-1/standings?scope=daily&start=1&stop=2&at=2026-08-26")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "cya", entries[0].(map[string]any)["member_id"])

	rec, _ = doRequest(t, srv, "/api/v1/arenas/arena-1/members/cya/nearby?scope=daily&radius=1&at=2026-08-26")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Absent member maps to 404.
	rec, body = doRequest(t, srv, "/api/v1/arenas/arena-1/members/zoe/nearby?scope=daily&at=2026-08-26")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestLeagueEndpoints(t *testing.T) {
	srv, _, index, assignments := newTestServer(t)
	ctx := context.Background()
	weekStart := timeutil.StartOfWeek(anchor)
	require.NoError(t, assignments.UpsertAssignment(ctx, &league.Assignment{
		ArenaID: "arena-1", MemberID: "ada", PeriodStart: weekStart,
		TierID: "gold", Percentile: 30, AvgScore: 82.5, AssignedAt: weekStart,
	}))
	_, err := index.BulkSetScores(ctx, ranking.LeagueKey("arena-1", "gold"), []ranking.MemberScore{
		{MemberID: "ada", Score: 82.5},
	})
	require.NoError(t, err)

	rec, body := doRequest(t, srv, "/api/v1/arenas/arena-1/members/ada/league?at=2026-09-02")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gold", body["tier_id"])
	assert.EqualValues(t, 1, body["tier_rank"])

	rec, _ = doRequest(t, srv, "/api/v1/arenas/arena-1/members/zoe/league")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doRequest(t, srv, "/api/v1/arenas/arena-1/leagues/gold")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Gold", body["tier_name"])
	assert.EqualValues(t, 1, body["total_in_tier"])
}

func TestNewServerRequiresHandlers(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.ErrorIs(t, err, ErrMissingHandlers)
}
