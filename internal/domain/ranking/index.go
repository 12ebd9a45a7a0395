// Package ranking defines the ordered score index that powers leaderboards.
// An Index keeps, per scope key, a set of members ordered by score descending
// with deterministic tie-breaking, and answers rank and range queries.
// Implementations live in the persistence layer: a Redis sorted-set backend
// for production and an in-memory tree backend for tests and single-node runs.
package ranking

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrKeyEmpty is returned when a scope key is missing.
	ErrKeyEmpty = errors.New("ranking: scope key cannot be empty")

	// ErrMemberIDEmpty is returned when a member id is missing.
	ErrMemberIDEmpty = errors.New("ranking: member id cannot be empty")

	// ErrMemberNotFound is returned when the member is not in the index key.
	ErrMemberNotFound = errors.New("ranking: member not found")

	// ErrInvalidRange is returned for a malformed position range.
	ErrInvalidRange = errors.New("ranking: invalid position range")

	// ErrUnavailable is returned when the index backend cannot be reached.
	ErrUnavailable = errors.New("ranking: index unavailable")
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// MemberScore is one member's score for bulk writes.
type MemberScore struct {
	MemberID string  `json:"member_id"`
	Score    float64 `json:"score"`
}

// RankedEntry is one member's position in an ordered read. Rank is the
// one-based display position: the highest-scored member has rank 1. Equal
// scores order by member id ascending so repeated reads are stable.
type RankedEntry struct {
	MemberID string  `json:"member_id"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// ══════════════════════════════════════════════════════════════════════════════
// INDEX
// ══════════════════════════════════════════════════════════════════════════════

// Index is an ordered score index over named scopes. All operations are safe
// for concurrent use. Writes to a key that does not exist yet create it;
// reads from a missing key behave as reads from an empty one.
type Index interface {
	// SetScore inserts the member or replaces its score.
	SetScore(ctx context.Context, key, memberID string, score float64) error

	// IncrementScore adds delta (which may be negative) to the member's
	// score, inserting it at delta when absent, and returns the new score.
	IncrementScore(ctx context.Context, key, memberID string, delta float64) (float64, error)

	// BulkSetScores applies many SetScore writes atomically per backend
	// semantics and returns how many entries were written.
	BulkSetScores(ctx context.Context, key string, scores []MemberScore) (int, error)

	// Score returns the member's current score, or ErrMemberNotFound.
	Score(ctx context.Context, key, memberID string) (float64, error)

	// Rank returns the member's zero-based descending rank, or
	// ErrMemberNotFound.
	Rank(ctx context.Context, key, memberID string) (int, error)

	// TopN returns the n best entries in rank order. Fewer are returned when
	// the key holds fewer members.
	TopN(ctx context.Context, key string, n int) ([]RankedEntry, error)

	// Range returns entries at zero-based positions [start, stop] inclusive,
	// in rank order. A start past the end yields an empty slice.
	Range(ctx context.Context, key string, start, stop int) ([]RankedEntry, error)

	// Nearby returns the member and up to radius neighbours on each side, in
	// rank order. Near the edges the window is truncated, not shifted.
	Nearby(ctx context.Context, key, memberID string, radius int) ([]RankedEntry, error)

	// RemoveMember deletes the member from the key. Removing an absent
	// member is not an error.
	RemoveMember(ctx context.Context, key, memberID string) error

	// DeleteKey drops the whole scope.
	DeleteKey(ctx context.Context, key string) error

	// Count returns the number of members under the key.
	Count(ctx context.Context, key string) (int, error)
}
