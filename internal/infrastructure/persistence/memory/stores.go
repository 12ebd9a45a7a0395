package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arena-hub/arena-rank/internal/domain/league"
	"github.com/arena-hub/arena-rank/internal/domain/scoring"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT STORE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotStore keeps performance snapshots in a map keyed by their natural
// (arena, member, date) key.
type SnapshotStore struct {
	mu    sync.RWMutex
	snaps map[string]*scoring.PerformanceSnapshot
}

// NewSnapshotStore returns an empty store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snaps: make(map[string]*scoring.PerformanceSnapshot)}
}

var _ scoring.SnapshotStore = (*SnapshotStore)(nil)

// UpsertSnapshot inserts or replaces the snapshot for its natural key.
func (s *SnapshotStore) UpsertSnapshot(_ context.Context, snap *scoring.PerformanceSnapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	s.snaps[snap.Key()] = &cp
	return nil
}

// Snapshots returns every arena snapshot inside the range.
func (s *SnapshotStore) Snapshots(_ context.Context, arenaID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scoring.PerformanceSnapshot
	for _, snap := range s.snaps {
		if snap.ArenaID == arenaID && rng.Contains(snap.Date) {
			cp := *snap
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemberSnapshots returns one member's snapshots inside the range.
func (s *SnapshotStore) MemberSnapshots(_ context.Context, arenaID, memberID string, rng scoring.DateRange) ([]*scoring.PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scoring.PerformanceSnapshot
	for _, snap := range s.snaps {
		if snap.ArenaID == arenaID && snap.MemberID == memberID && rng.Contains(snap.Date) {
			cp := *snap
			out = append(out, &cp)
		}
	}
	return out, nil
}

// DeleteSnapshotsBefore removes snapshots older than the cutoff day and
// returns how many were dropped.
func (s *SnapshotStore) DeleteSnapshotsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, snap := range s.snaps {
		if snap.Date.Before(cutoff) {
			delete(s.snaps, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of stored snapshots.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentStore keeps league assignments keyed by (arena, member, period
// start).
type AssignmentStore struct {
	mu   sync.RWMutex
	rows map[string]*league.Assignment
}

// NewAssignmentStore returns an empty store.
func NewAssignmentStore() *AssignmentStore {
	return &AssignmentStore{rows: make(map[string]*league.Assignment)}
}

var _ league.AssignmentStore = (*AssignmentStore)(nil)

func assignmentKey(arenaID, memberID string, periodStart time.Time) string {
	return arenaID + ":" + memberID + ":" + periodStart.UTC().Format("2006-01-02")
}

// UpsertAssignment inserts or replaces the assignment for its natural key.
func (s *AssignmentStore) UpsertAssignment(_ context.Context, a *league.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.rows[assignmentKey(a.ArenaID, a.MemberID, a.PeriodStart)] = &cp
	return nil
}

// LatestAssignmentBefore returns the member's newest assignment whose period
// started strictly before the cutoff.
func (s *AssignmentStore) LatestAssignmentBefore(_ context.Context, arenaID, memberID string, cutoff time.Time) (*league.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *league.Assignment
	for _, a := range s.rows {
		if a.ArenaID != arenaID || a.MemberID != memberID || !a.PeriodStart.Before(cutoff) {
			continue
		}
		if latest == nil || a.PeriodStart.After(latest.PeriodStart) {
			latest = a
		}
	}
	if latest == nil {
		return nil, league.ErrAssignmentNotFound
	}
	cp := *latest
	return &cp, nil
}

// Assignments returns every assignment of one arena period.
func (s *AssignmentStore) Assignments(_ context.Context, arenaID string, periodStart time.Time) ([]*league.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*league.Assignment
	for _, a := range s.rows {
		if a.ArenaID == arenaID && a.PeriodStart.Equal(periodStart) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}
