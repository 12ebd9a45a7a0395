package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/ranking"
	"github.com/arena-hub/arena-rank/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIVE STANDINGS
// Reads served straight from the ranking index: top-N, a member's
// neighbourhood, and arbitrary position pages over the daily, weekly and
// monthly scopes. These reflect whatever the index holds right now, ahead of
// the durable snapshot-built views.
// ══════════════════════════════════════════════════════════════════════════════

// Scope names an index key family for one arena.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeWeekly  Scope = "weekly"
	ScopeMonthly Scope = "monthly"
)

// ErrUnknownScope is returned for a scope outside daily/weekly/monthly.
var ErrUnknownScope = errors.New("query: unknown standings scope")

// scopeKey resolves the index key for an arena scope anchored at t.
func scopeKey(arenaID string, scope Scope, t time.Time) (string, error) {
	switch scope {
	case ScopeDaily:
		return ranking.DailyKey(arenaID, t), nil
	case ScopeWeekly:
		return ranking.WeeklyKey(arenaID, t), nil
	case ScopeMonthly:
		return ranking.MonthlyKey(arenaID, t), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Top standings
// ─────────────────────────────────────────────────────────────────────────────

// GetTopStandingsQuery asks for the best N members of one arena scope.
type GetTopStandingsQuery struct {
	ArenaID string
	Scope   Scope

	// Limit caps the entries returned (default 20, capped at 100).
	Limit int

	// At anchors the scope key; zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetTopStandingsQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
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
	if q.At.IsZero() {
		q.At = timeutil.Now()
	}
	return nil
}

// StandingsResult is an ordered slice of one arena scope.
type StandingsResult struct {
	ArenaID     string                `json:"arena_id"`
	Scope       Scope                 `json:"scope"`
	Key         string                `json:"key"`
	Entries     []ranking.RankedEntry `json:"entries"`
	Total       int                   `json:"total"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetTopStandingsHandler serves top-N reads from the index.
type GetTopStandingsHandler struct {
	index ranking.Index
}

// NewGetTopStandingsHandler wires the handler.
func NewGetTopStandingsHandler(index ranking.Index) (*GetTopStandingsHandler, error) {
	if index == nil {
		return nil, ranking.ErrUnavailable
	}
	return &GetTopStandingsHandler{index: index}, nil
}

// Handle reads the scope's best entries.
func (h *GetTopStandingsHandler) Handle(ctx context.Context, q GetTopStandingsQuery) (*StandingsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key, err := scopeKey(q.ArenaID, q.Scope, q.At)
	if err != nil {
		return nil, err
	}

	entries, err := h.index.TopN(ctx, key, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query: top standings for %q: %w", key, err)
	}
	total, err := h.index.Count(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("query: standings size for %q: %w", key, err)
	}

	return &StandingsResult{
		ArenaID:     q.ArenaID,
		Scope:       q.Scope,
		Key:         key,
		Entries:     entries,
		Total:       total,
		GeneratedAt: timeutil.Now(),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Neighbourhood
// ─────────────────────────────────────────────────────────────────────────────

// ErrNegativeRadius is returned for a negative neighbourhood radius.
var ErrNegativeRadius = errors.New("query: radius cannot be negative")

// GetNearbyStandingsQuery asks for the members ranked around one member.
type GetNearbyStandingsQuery struct {
	ArenaID  string
	MemberID string
	Scope    Scope

	// Radius is the number of neighbours on each side (default 2).
	Radius int

	// At anchors the scope key; zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetNearbyStandingsQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
	}
	if q.MemberID == "" {
		return ErrMemberIDRequired
	}
	if q.Radius < 0 {
		return ErrNegativeRadius
	}
	if q.Radius == 0 {
		q.Radius = 2
	}
	if q.At.IsZero() {
		q.At = timeutil.Now()
	}
	return nil
}

// NearbyStandingsResult is the window around the member. Me points at the
// member's own entry inside Entries.
type NearbyStandingsResult struct {
	ArenaID     string                `json:"arena_id"`
	MemberID    string                `json:"member_id"`
	Scope       Scope                 `json:"scope"`
	Key         string                `json:"key"`
	Entries     []ranking.RankedEntry `json:"entries"`
	Me          *ranking.RankedEntry  `json:"me"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// GetNearbyStandingsHandler serves neighbourhood reads from the index.
type GetNearbyStandingsHandler struct {
	index ranking.Index
}

// NewGetNearbyStandingsHandler wires the handler.
func NewGetNearbyStandingsHandler(index ranking.Index) (*GetNearbyStandingsHandler, error) {
	if index == nil {
		return nil, ranking.ErrUnavailable
	}
	return &GetNearbyStandingsHandler{index: index}, nil
}

// Handle reads the member's neighbourhood. An absent member surfaces the
// index's ranking.ErrMemberNotFound unchanged so callers can branch on it.
func (h *GetNearbyStandingsHandler) Handle(ctx context.Context, q GetNearbyStandingsQuery) (*NearbyStandingsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key, err := scopeKey(q.ArenaID, q.Scope, q.At)
	if err != nil {
		return nil, err
	}

	entries, err := h.index.Nearby(ctx, key, q.MemberID, q.Radius)
	if err != nil {
		return nil, fmt.Errorf("query: nearby standings for %q in %q: %w", q.MemberID, key, err)
	}

	result := &NearbyStandingsResult{
		ArenaID:     q.ArenaID,
		MemberID:    q.MemberID,
		Scope:       q.Scope,
		Key:         key,
		Entries:     entries,
		GeneratedAt: timeutil.Now(),
	}
	for i := range entries {
		if entries[i].MemberID == q.MemberID {
			result.Me = &entries[i]
			break
		}
	}
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Position pages
// ─────────────────────────────────────────────────────────────────────────────

// GetStandingsPageQuery asks for an arbitrary position window of one scope.
type GetStandingsPageQuery struct {
	ArenaID string
	Scope   Scope

	// Start and Stop are inclusive zero-based positions.
	Start int
	Stop  int

	// At anchors the scope key; zero means now.
	At time.Time
}

// Validate checks the parameters and fills defaults in place.
func (q *GetStandingsPageQuery) Validate() error {
	if q.ArenaID == "" {
		return ErrArenaIDRequired
	}
	if q.Start < 0 || q.Stop < q.Start {
		return ranking.ErrInvalidRange
	}
	if q.At.IsZero() {
		q.At = timeutil.Now()
	}
	return nil
}

// GetStandingsPageHandler serves position-window reads from the index.
type GetStandingsPageHandler struct {
	index ranking.Index
}

// NewGetStandingsPageHandler wires the handler.
func NewGetStandingsPageHandler(index ranking.Index) (*GetStandingsPageHandler, error) {
	if index == nil {
		return nil, ranking.ErrUnavailable
	}
	return &GetStandingsPageHandler{index: index}, nil
}

// Handle reads positions [Start, Stop] of the scope.
func (h *GetStandingsPageHandler) Handle(ctx context.Context, q GetStandingsPageQuery) (*StandingsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key, err := scopeKey(q.ArenaID, q.Scope, q.At)
	if err != nil {
		return nil, err
	}

	entries, err := h.index.Range(ctx, key, q.Start, q.Stop)
	if err != nil {
		return nil, fmt.Errorf("query: standings page for %q: %w", key, err)
	}
	total, err := h.index.Count(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("query: standings size for %q: %w", key, err)
	}

	return &StandingsResult{
		ArenaID:     q.ArenaID,
		Scope:       q.Scope,
		Key:         key,
		Entries:     entries,
		Total:       total,
		GeneratedAt: timeutil.Now(),
	}, nil
}
