package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arena-hub/arena-rank/internal/application/query"
	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	uptime := time.Since(s.startedAt)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": uptime.String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		if err := s.deps.Pinger.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness probe failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", "storage unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & RANKING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetLeaderboardQuery{
		ArenaID: r.PathValue("arena"),
		Period:  defaultString(r.URL.Query().Get("period"), "daily"),
		Limit:   queryInt(r, "limit"),
		Offset:  queryInt(r, "offset"),
		At:      queryDate(r, "at"),
	}

	result, err := s.deps.Leaderboard.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMyRanking(w http.ResponseWriter, r *http.Request) {
	q := query.GetMyRankingQuery{
		ArenaID:  r.PathValue("arena"),
		MemberID: r.PathValue("member"),
		Period:   defaultString(r.URL.Query().Get("period"), "daily"),
		At:       queryDate(r, "at"),
	}

	result, err := s.deps.MyRanking.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	arenaID := r.PathValue("arena")
	scope := query.Scope(defaultString(r.URL.Query().Get("scope"), "daily"))
	at := queryDate(r, "at")

	// start/stop select an explicit position window, otherwise limit picks
	// the top of the scope.
	if r.URL.Query().Has("start") || r.URL.Query().Has("stop") {
		result, err := s.deps.StandingsPage.Handle(r.Context(), query.GetStandingsPageQuery{
			ArenaID: arenaID,
			Scope:   scope,
			Start:   queryInt(r, "start"),
			Stop:    queryInt(r, "stop"),
			At:      at,
		})
		if err != nil {
			s.writeQueryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := s.deps.TopStandings.Handle(r.Context(), query.GetTopStandingsQuery{
		ArenaID: arenaID,
		Scope:   scope,
		Limit:   queryInt(r, "limit"),
		At:      at,
	})
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := query.GetNearbyStandingsQuery{
		ArenaID:  r.PathValue("arena"),
		MemberID: r.PathValue("member"),
		Scope:    query.Scope(defaultString(r.URL.Query().Get("scope"), "daily")),
		Radius:   queryInt(r, "radius"),
		At:       queryDate(r, "at"),
	}

	result, err := s.deps.NearbyStandings.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEAGUE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleMyLeague(w http.ResponseWriter, r *http.Request) {
	q := query.GetMyLeagueQuery{
		ArenaID:  r.PathValue("arena"),
		MemberID: r.PathValue("member"),
		At:       queryDate(r, "at"),
	}

	result, err := s.deps.MyLeague.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLeagueLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetLeagueLeaderboardQuery{
		ArenaID: r.PathValue("arena"),
		TierID:  r.PathValue("tier"),
		Limit:   queryInt(r, "limit"),
	}

	result, err := s.deps.LeagueLeaderboard.Handle(r.Context(), q)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// writeQueryError maps domain errors onto HTTP status codes.
func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ranking.ErrMemberNotFound),
		errors.Is(err, league.ErrAssignmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, query.ErrArenaIDRequired),
		errors.Is(err, query.ErrMemberIDRequired),
		errors.Is(err, query.ErrTierIDRequired),
		errors.Is(err, query.ErrNegativeLimit),
		errors.Is(err, query.ErrNegativeOffset),
		errors.Is(err, query.ErrNegativeRadius),
		errors.Is(err, query.ErrUnknownScope),
		errors.Is(err, leaderboard.ErrUnknownPeriod),
		errors.Is(err, ranking.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, ranking.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "query failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func queryInt(r *http.Request, name string) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// queryDate parses an optional YYYY-MM-DD anchor, zero when absent or bad.
func queryDate(r *http.Request, name string) time.Time {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}
	}
	t, err := timeutil.ParseDate(v)
	if err != nil {
		return time.Time{}
	}
	return t
}
