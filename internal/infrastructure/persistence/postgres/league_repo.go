package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arena-hub/arena-rank/internal/domain/league"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEAGUE ASSIGNMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LeagueRepository implements league.AssignmentStore on PostgreSQL.
type LeagueRepository struct {
	conn *Connection
}

// NewLeagueRepository creates a new LeagueRepository.
func NewLeagueRepository(conn *Connection) *LeagueRepository {
	return &LeagueRepository{conn: conn}
}

var _ league.AssignmentStore = (*LeagueRepository)(nil)

const upsertAssignmentSQL = `
	INSERT INTO league_assignments
		(id, arena_id, member_id, period_start, tier_id, tier_rank_order,
		 percentile, avg_score, promoted, demoted, assigned_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (arena_id, member_id, period_start) DO UPDATE SET
		id              = EXCLUDED.id,
		tier_id         = EXCLUDED.tier_id,
		tier_rank_order = EXCLUDED.tier_rank_order,
		percentile      = EXCLUDED.percentile,
		avg_score       = EXCLUDED.avg_score,
		promoted        = EXCLUDED.promoted,
		demoted         = EXCLUDED.demoted,
		assigned_at     = EXCLUDED.assigned_at
`

// UpsertAssignment inserts or replaces the assignment for its natural key.
func (r *LeagueRepository) UpsertAssignment(ctx context.Context, a *league.Assignment) error {
	_, err := r.conn.Exec(ctx, upsertAssignmentSQL,
		a.ID,
		a.ArenaID,
		a.MemberID,
		a.PeriodStart,
		a.TierID,
		a.TierRankOrder,
		a.Percentile,
		a.AvgScore,
		a.Promoted,
		a.Demoted,
		a.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

const selectAssignmentColumns = `
	SELECT id, arena_id, member_id, period_start, tier_id, tier_rank_order,
	       percentile, avg_score, promoted, demoted, assigned_at
	FROM league_assignments
`

// LatestAssignmentBefore returns the member's most recent assignment whose
// period started strictly before the cutoff.
func (r *LeagueRepository) LatestAssignmentBefore(ctx context.Context, arenaID, memberID string, cutoff time.Time) (*league.Assignment, error) {
	row := r.conn.QueryRow(ctx, selectAssignmentColumns+`
		WHERE arena_id = $1 AND member_id = $2 AND period_start < $3
		ORDER BY period_start DESC
		LIMIT 1
	`, arenaID, memberID, cutoff)

	a, err := scanAssignment(row)
	if IsNoRows(err) {
		return nil, league.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest assignment: %w", err)
	}
	return a, nil
}

// Assignments returns every assignment of one arena period.
func (r *LeagueRepository) Assignments(ctx context.Context, arenaID string, periodStart time.Time) ([]*league.Assignment, error) {
	rows, err := r.conn.Query(ctx, selectAssignmentColumns+`
		WHERE arena_id = $1 AND period_start = $2
		ORDER BY tier_rank_order DESC, percentile
	`, arenaID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []*league.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// scanAssignment reads one assignment from a row scanner.
func scanAssignment(row pgx.Row) (*league.Assignment, error) {
	var a league.Assignment
	err := row.Scan(
		&a.ID,
		&a.ArenaID,
		&a.MemberID,
		&a.PeriodStart,
		&a.TierID,
		&a.TierRankOrder,
		&a.Percentile,
		&a.AvgScore,
		&a.Promoted,
		&a.Demoted,
		&a.AssignedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
