package scoring

import "context"

// ActivitySource supplies raw activity counters for a member over a range of
// days. The production implementation talks to the external study tracker;
// tests use an in-memory fake.
type ActivitySource interface {
	// FetchActivity returns the member's accumulated counters for the range.
	// A member with no tracked activity yields the zero RawActivity, not an
	// error.
	FetchActivity(ctx context.Context, memberID string, rng DateRange) (RawActivity, error)
}

// SnapshotStore persists performance snapshots. Writing the same
// (arena, member, date) again replaces the previous row.
type SnapshotStore interface {
	// UpsertSnapshot inserts or replaces one snapshot.
	UpsertSnapshot(ctx context.Context, snap *PerformanceSnapshot) error

	// Snapshots returns every snapshot in the arena whose date falls inside
	// the range, in no particular order.
	Snapshots(ctx context.Context, arenaID string, rng DateRange) ([]*PerformanceSnapshot, error)

	// MemberSnapshots returns one member's snapshots inside the range.
	MemberSnapshots(ctx context.Context, arenaID, memberID string, rng DateRange) ([]*PerformanceSnapshot, error)
}
