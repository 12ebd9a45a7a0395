package postgres

import (
	"context"
	"fmt"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER DIRECTORY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MemberRepository implements arena.Directory on PostgreSQL.
type MemberRepository struct {
	conn *Connection
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(conn *Connection) *MemberRepository {
	return &MemberRepository{conn: conn}
}

var _ arena.Directory = (*MemberRepository)(nil)

// UpsertMember inserts or updates one roster entry.
func (r *MemberRepository) UpsertMember(ctx context.Context, m *arena.Member) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO arena_members (arena_id, member_id, display_name, active, joined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (arena_id, member_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			active       = EXCLUDED.active,
			updated_at   = NOW()
	`, m.ArenaID, m.MemberID, m.DisplayName, m.Active, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// ActiveMemberIDs returns the ids of the arena's active members.
func (r *MemberRepository) ActiveMemberIDs(ctx context.Context, arenaID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT member_id FROM arena_members
		WHERE arena_id = $1 AND active
		ORDER BY member_id
	`, arenaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ArenaIDs returns every arena that has at least one active member.
func (r *MemberRepository) ArenaIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT DISTINCT arena_id FROM arena_members
		WHERE active
		ORDER BY arena_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query arenas: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan arena row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeactivateMember marks a member inactive without deleting history.
func (r *MemberRepository) DeactivateMember(ctx context.Context, arenaID, memberID string) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE arena_members SET active = FALSE, updated_at = NOW()
		WHERE arena_id = $1 AND member_id = $2
	`, arenaID, memberID)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return arena.ErrMemberNotFound
	}
	return nil
}
