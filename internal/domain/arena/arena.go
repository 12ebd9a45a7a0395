// Package arena holds the member roster model. The ranking jobs only need to
// know which arenas exist and which members compete in each.
package arena

import (
	"context"
	"errors"
	"time"
)

// ErrMemberNotFound is returned when a roster lookup misses.
var ErrMemberNotFound = errors.New("arena: member not found")

// Member is one roster entry.
type Member struct {
	ArenaID     string    `json:"arena_id"`
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Directory reads and maintains the arena roster.
type Directory interface {
	// UpsertMember inserts or updates one roster entry.
	UpsertMember(ctx context.Context, m *Member) error

	// ActiveMemberIDs returns the ids of the arena's active members.
	ActiveMemberIDs(ctx context.Context, arenaID string) ([]string, error)

	// ArenaIDs returns every arena that has at least one active member.
	ArenaIDs(ctx context.Context) ([]string, error)

	// DeactivateMember marks a member inactive without deleting history.
	DeactivateMember(ctx context.Context, arenaID, memberID string) error
}
