package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ErrTierIDRequired is returned when a league query omits the tier id.
var ErrTierIDRequired = errors.New("query: tier id is required")

// ══════════════════════════════════════════════════════════════════════════════
// GET MY LEAGUE
// A member's current league placement: tier, percentile, movement flags, and
// the standing inside the tier's ranking scope when the index holds it.
// ══════════════════════════════════════════════════════════════════════════════

// GetMyLeagueQuery asks for one member's league placement.
type GetMyLeagueQuery struct {
	ArenaID  string
	MemberID string

	// At is the cutoff for "current": the placement returned is the latest
	// one whose period started before it. Zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetMyLeagueQuery) Validate() error {
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

// GetMyLeagueResult is one member's placement. TierRank is the one-based
// position inside the tier's scope, 0 when the index has no entry for the
// member (the scope is rebuilt after classification runs).
type GetMyLeagueResult struct {
	ArenaID     string    `json:"arena_id"`
	MemberID    string    `json:"member_id"`
	TierID      string    `json:"tier_id"`
	TierName    string    `json:"tier_name"`
	Percentile  float64   `json:"percentile"`
	AvgScore    float64   `json:"avg_score"`
	Promoted    bool      `json:"promoted"`
	Demoted     bool      `json:"demoted"`
	PeriodStart time.Time `json:"period_start"`
	TierRank    int       `json:"tier_rank"`
	TierSize    int       `json:"tier_size"`
}

// GetMyLeagueHandler serves league placement lookups.
type GetMyLeagueHandler struct {
	assignments league.AssignmentStore
	catalog     *league.Catalog
	index       ranking.Index
}

// NewGetMyLeagueHandler wires the handler. The index is optional; without it
// TierRank and TierSize stay 0.
func NewGetMyLeagueHandler(assignments league.AssignmentStore, catalog *league.Catalog, index ranking.Index) (*GetMyLeagueHandler, error) {
	if assignments == nil {
		return nil, league.ErrNilAssignmentStore
	}
	if catalog == nil {
		return nil, league.ErrEmptyCatalog
	}
	return &GetMyLeagueHandler{assignments: assignments, catalog: catalog, index: index}, nil
}

// Handle resolves the member's latest placement before the cutoff.
func (h *GetMyLeagueHandler) Handle(ctx context.Context, q GetMyLeagueQuery) (*GetMyLeagueResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	a, err := h.assignments.LatestAssignmentBefore(ctx, q.ArenaID, q.MemberID, q.At)
	if err != nil {
		return nil, fmt.Errorf("query: league placement for member %q: %w", q.MemberID, err)
	}

	result := &GetMyLeagueResult{
		ArenaID:     a.ArenaID,
		MemberID:    a.MemberID,
		TierID:      a.TierID,
		Percentile:  a.Percentile,
		AvgScore:    a.AvgScore,
		Promoted:    a.Promoted,
		Demoted:     a.Demoted,
		PeriodStart: a.PeriodStart,
	}
	if tier, err := h.catalog.TierByID(a.TierID); err == nil {
		result.TierName = tier.Name
	}

	if h.index != nil {
		key := ranking.LeagueKey(q.ArenaID, a.TierID)
		if rank, err := h.index.Rank(ctx, key, q.MemberID); err == nil {
			result.TierRank = rank + 1
		}
		if n, err := h.index.Count(ctx, key); err == nil {
			result.TierSize = n
		}
	}

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET LEAGUE LEADERBOARD
// The ordered standings of one tier, read straight from the tier's ranking
// scope. Scores are the period averages written by the last classification.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeagueLeaderboardQuery asks for one tier's standings.
type GetLeagueLeaderboardQuery struct {
	ArenaID string
	TierID  string

	// Limit caps the entries returned (default 20, capped at 100).
	Limit int
}

// Validate checks the parameters and fills defaults in place.
func (q *GetLeagueLeaderboardQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
	}
	if q.TierID == "" {
		return ErrTierIDRequired
	}
	if q.Limit < 0 {
		return ErrNegativeLimit
	}
	if q.Limit == 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	return nil
}

// GetLeagueLeaderboardResult is one tier's ordered standings.
type GetLeagueLeaderboardResult struct {
	ArenaID     string                `json:"arena_id"`
	TierID      string                `json:"tier_id"`
	TierName    string                `json:"tier_name"`
	Entries     []ranking.RankedEntry `json:"entries"`
	TotalInTier int                   `json:"total_in_tier"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetLeagueLeaderboardHandler serves tier standings.
type GetLeagueLeaderboardHandler struct {
	catalog *league.Catalog
	index   ranking.Index
}

// NewGetLeagueLeaderboardHandler wires the handler.
func NewGetLeagueLeaderboardHandler(catalog *league.Catalog, index ranking.Index) (*GetLeagueLeaderboardHandler, error) {
	if catalog == nil {
		return nil, league.ErrEmptyCatalog
	}
	if index == nil {
		return nil, ranking.ErrUnavailable
	}
	return &GetLeagueLeaderboardHandler{catalog: catalog, index: index}, nil
}

// Handle reads the tier's scope from the index.
func (h *GetLeagueLeaderboardHandler) Handle(ctx context.Context, q GetLeagueLeaderboardQuery) (*GetLeagueLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tier, err := h.catalog.TierByID(q.TierID)
	if err != nil {
		return nil, err
	}

	key := ranking.LeagueKey(q.ArenaID, tier.ID)
	entries, err := h.index.TopN(ctx, key, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query: league standings for tier %q: %w", tier.ID, err)
	}
	total, err := h.index.Count(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("query: league size for tier %q: %w", tier.ID, err)
	}

	return &GetLeagueLeaderboardResult{
		ArenaID:     q.ArenaID,
		TierID:      tier.ID,
		TierName:    tier.Name,
		Entries:     entries,
		TotalInTier: total,
		GeneratedAt: timeutil.Now(),
	}, nil
}
