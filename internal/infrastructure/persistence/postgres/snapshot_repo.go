package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements scoring.SnapshotStore on PostgreSQL. One row
// per (arena, member, date); aggregation re-runs replace the row in place.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

var _ scoring.SnapshotStore = (*SnapshotRepository)(nil)

const upsertSnapshotSQL = `
	INSERT INTO performance_snapshots
		(arena_id, member_id, snapshot_date, assigned_units, completed_units,
		 achievement_pct, active_minutes, avg_focus_ratio, score, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (arena_id, member_id, snapshot_date) DO UPDATE SET
		assigned_units  = EXCLUDED.assigned_units,
		completed_units = EXCLUDED.completed_units,
		achievement_pct = EXCLUDED.achievement_pct,
		active_minutes  = EXCLUDED.active_minutes,
		avg_focus_ratio = EXCLUDED.avg_focus_ratio,
		score           = EXCLUDED.score,
		created_at      = EXCLUDED.created_at
`

// UpsertSnapshot inserts or replaces one snapshot.
func (r *SnapshotRepository) UpsertSnapshot(ctx context.Context, snap *scoring.PerformanceSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	_, err := r.conn.Exec(ctx, upsertSnapshotSQL,
		snap.ArenaID,
		snap.MemberID,
		snap.Date,
		snap.AssignedUnits,
		snap.CompletedUnits,
		snap.AchievementPct,
		snap.ActiveMinutes,
		snap.AvgFocusRatio,
		snap.Score,
		snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// BulkUpsertSnapshots writes many snapshots in one transaction using a
// batched pipeline.
func (r *SnapshotRepository) BulkUpsertSnapshots(ctx context.Context, snaps []*scoring.PerformanceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, snap := range snaps {
			if err := snap.Validate(); err != nil {
				return err
			}
			batch.Queue(upsertSnapshotSQL,
				snap.ArenaID,
				snap.MemberID,
				snap.Date,
				snap.AssignedUnits,
				snap.CompletedUnits,
				snap.AchievementPct,
				snap.ActiveMinutes,
				snap.AvgFocusRatio,
				snap.Score,
				snap.CreatedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range snaps {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert snapshot in batch: %w", err)
			}
		}
		return nil
	})
}

const selectSnapshotColumns = `
	SELECT arena_id, member_id, snapshot_date, assigned_units, completed_units,
	       achievement_pct, active_minutes, avg_focus_ratio, score, created_at
	FROM performance_snapshots
`

// Snapshots returns every arena snapshot whose date falls inside the range.
func (r *SnapshotRepository) Snapshots(ctx context.Context, arenaID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	if arenaID == "" {
		return nil, scoring.ErrArenaIDEmpty
	}

	rows, err := r.conn.Query(ctx, selectSnapshotColumns+`
		WHERE arena_id = $1 AND snapshot_date BETWEEN $2 AND $3
		ORDER BY snapshot_date, member_id
	`, arenaID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// MemberSnapshots returns one member's snapshots inside the range.
func (r *SnapshotRepository) MemberSnapshots(ctx context.Context, arenaID, memberID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	if arenaID == "" {
		return nil, scoring.ErrArenaIDEmpty
	}
	if memberID == "" {
		return nil, scoring.ErrMemberIDEmpty
	}

	rows, err := r.conn.Query(ctx, selectSnapshotColumns+`
		WHERE arena_id = $1 AND member_id = $2 AND snapshot_date BETWEEN $3 AND $4
		ORDER BY snapshot_date
	`, arenaID, memberID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query member snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// DeleteSnapshotsBefore removes snapshots older than the cutoff day and
// returns how many rows were dropped.
func (r *SnapshotRepository) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn.Exec(ctx,
		`DELETE FROM performance_snapshots WHERE snapshot_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanSnapshots collects snapshot rows.
func scanSnapshots(rows pgx.Rows) ([]*scoring.PerformanceSnapshot, error) {
	var out []*scoring.PerformanceSnapshot
	for rows.Next() {
		var snap scoring.PerformanceSnapshot
		if err := rows.Scan(
			&snap.ArenaID,
			&snap.MemberID,
			&snap.Date,
			&snap.AssignedUnits,
			&snap.CompletedUnits,
			&snap.AchievementPct,
			&snap.ActiveMinutes,
			&snap.AvgFocusRatio,
			&snap.Score,
			&snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, &snap)
	}
	return out, rows.Err()
}
