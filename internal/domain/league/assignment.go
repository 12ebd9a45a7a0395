package league

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Assignment is one member's league placement for one competition period.
// The natural key is (arena, member, period start); re-running classification
// for the same period replaces the previous row.
type Assignment struct {
	ID            uuid.UUID `json:"id"`
	ArenaID       string    `json:"arena_id"`
	MemberID      string    `json:"member_id"`
	PeriodStart   time.Time `json:"period_start"`
	TierID        string    `json:"tier_id"`
	TierRankOrder int       `json:"tier_rank_order"`
	Percentile    float64   `json:"percentile"`
	AvgScore      float64   `json:"avg_score"`
	Promoted      bool      `json:"promoted"`
	Demoted       bool      `json:"demoted"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// AssignmentStore persists league assignments.
type AssignmentStore interface {
	// UpsertAssignment inserts or replaces the assignment for its
	// (arena, member, period start) key.
	UpsertAssignment(ctx context.Context, a *Assignment) error

	// LatestAssignmentBefore returns the member's most recent assignment
	// whose period started strictly before the cutoff, or
	// ErrAssignmentNotFound.
	LatestAssignmentBefore(ctx context.Context, arenaID, memberID string, cutoff time.Time) (*Assignment, error)

	// Assignments returns every assignment of one arena period.
	Assignments(ctx context.Context, arenaID string, periodStart time.Time) ([]*Assignment, error)
}
