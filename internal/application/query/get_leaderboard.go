// Package query contains the read side of the service. Queries never modify
// state; each one is a self-contained use case with its own request and
// response types, handled by a small handler wired with the domain
// collaborators it reads from.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/leaderboard"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrArenaIDRequired is returned when a query omits the arena id.
	ErrArenaIDRequired = errors.New("query: arena id is required")

	// ErrMemberIDRequired is returned when a query omits the member id.
	ErrMemberIDRequired = errors.New("query: member id is required")

	// ErrNegativeLimit is returned for a negative page size.
	ErrNegativeLimit = errors.New("query: limit cannot be negative")

	// ErrNegativeOffset is returned for a negative page offset.
	ErrNegativeOffset = errors.New("query: offset cannot be negative")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD
// Returns one arena's leaderboard for a daily/weekly/monthly period, built
// from stored performance snapshots, with offset pagination over the ranked
// entries.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery holds the leaderboard request parameters.
type GetLeaderboardQuery struct {
	// ArenaID selects the arena. Required.
	ArenaID string

	// Period is "daily", "weekly" or "monthly".
	Period string

	// Limit is the page size (default 20, capped at 100).
	Limit int

	// Offset is the zero-based position of the first entry returned.
	Offset int

	// At anchors the period; zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetLeaderboardQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
	}
	if q.Limit < 0 {
		return ErrNegativeLimit
	}
	if q.Offset < 0 {
		return ErrNegativeOffset
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.At.IsZero() {
		q.At = timeutil.Now()
	}
	return nil
}

// GetLeaderboardResult is one page of a period leaderboard.
type GetLeaderboardResult struct {
	ArenaID      string              `json:"arena_id"`
	Period       string              `json:"period"`
	Range        scoring.DateRange   `json:"range"`
	Entries      []leaderboard.Entry `json:"entries"`
	TotalMembers int                 `json:"total_members"`
	HasMore      bool                `json:"has_more"`
	Page         int                 `json:"page"`
	PageSize     int                 `json:"page_size"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// GetLeaderboardHandler serves leaderboard pages.
type GetLeaderboardHandler struct {
	builder *leaderboard.Builder
}

// NewGetLeaderboardHandler wires the handler to a view builder.
func NewGetLeaderboardHandler(builder *leaderboard.Builder) (*GetLeaderboardHandler, error) {
	if builder == nil {
		return nil, leaderboard.ErrNilSnapshotStore
	}
	return &GetLeaderboardHandler{builder: builder}, nil
}

// Handle builds the period view and slices out the requested page.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	period, err := leaderboard.ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}

	view, err := h.builder.Build(ctx, q.ArenaID, period, q.At)
	if err != nil {
		return nil, fmt.Errorf("query: build leaderboard for arena %q: %w", q.ArenaID, err)
	}

	page := paginate(view.Entries, q.Offset, q.Limit)
	return &GetLeaderboardResult{
		ArenaID:      view.ArenaID,
		Period:       string(view.Period),
		Range:        view.Range,
		Entries:      page,
		TotalMembers: view.TotalMembers,
		HasMore:      q.Offset+len(page) < len(view.Entries),
		Page:         q.Offset/q.Limit + 1,
		PageSize:     q.Limit,
		GeneratedAt:  view.GeneratedAt,
	}, nil
}

// paginate slices [offset, offset+limit) out of entries without copying.
func paginate(entries []leaderboard.Entry, offset, limit int) []leaderboard.Entry {
	if offset >= len(entries) {
		return []leaderboard.Entry{}
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end]
}

// ══════════════════════════════════════════════════════════════════════════════
// GET MY RANKING
// A member's own standing inside the period leaderboard, reported even when
// the member falls outside the page a client is showing.
// ══════════════════════════════════════════════════════════════════════════════

// GetMyRankingQuery asks for one member's standing in one arena period.
type GetMyRankingQuery struct {
	ArenaID  string
	MemberID string
	Period   string

	// At anchors the period; zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetMyRankingQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
	}
	if q.MemberID == "" {
		return ErrMemberIDRequired
	}
	if q.At.IsZero() {
		q.At = timeutil.Now()
	}
	return nil
}

// GetMyRankingResult carries the full ordered standings together with the
// member's own entry. Me is nil when the member has no activity in the
// period; Rank then stays 0.
type GetMyRankingResult struct {
	ArenaID      string              `json:"arena_id"`
	MemberID     string              `json:"member_id"`
	Period       string              `json:"period"`
	Range        scoring.DateRange   `json:"range"`
	Entries      []leaderboard.Entry `json:"entries"`
	Me           *leaderboard.Entry  `json:"me,omitempty"`
	TotalMembers int                 `json:"total_members"`
	GeneratedAt  time.Time           `json:"generated_at"`
}

// GetMyRankingHandler serves single-member standing lookups.
type GetMyRankingHandler struct {
	builder *leaderboard.Builder
}

// NewGetMyRankingHandler wires the handler to a view builder.
func NewGetMyRankingHandler(builder *leaderboard.Builder) (*GetMyRankingHandler, error) {
	if builder == nil {
		return nil, leaderboard.ErrNilSnapshotStore
	}
	return &GetMyRankingHandler{builder: builder}, nil
}

// Handle resolves the member's standing for the period.
func (h *GetMyRankingHandler) Handle(ctx context.Context, q GetMyRankingQuery) (*GetMyRankingResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	period, err := leaderboard.ParsePeriod(q.Period)
	if err != nil {
		return nil, err
	}

	mr, err := h.builder.BuildMyRanking(ctx, q.ArenaID, q.MemberID, period, q.At)
	if err != nil {
		return nil, fmt.Errorf("query: build ranking for member %q: %w", q.MemberID, err)
	}

	return &GetMyRankingResult{
		ArenaID:      mr.View.ArenaID,
		MemberID:     q.MemberID,
		Period:       string(mr.View.Period),
		Range:        mr.View.Range,
		Entries:      mr.View.Entries,
		Me:           mr.Me,
		TotalMembers: mr.View.TotalMembers,
		GeneratedAt:  mr.View.GeneratedAt,
	}, nil
}
