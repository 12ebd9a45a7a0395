package ranking

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INSTRUMENTED INDEX
// ══════════════════════════════════════════════════════════════════════════════

// OpRecorder receives one observation per index call: the operation name,
// the error it returned (nil on success) and the elapsed wall time.
type OpRecorder interface {
	RecordIndexOp(op string, err error, elapsed time.Duration)
}

// Instrument wraps an index so every call is reported to the recorder. A nil
// recorder returns the index unchanged.
func Instrument(next Index, rec OpRecorder) Index {
	if rec == nil {
		return next
	}
	return &instrumentedIndex{next: next, rec: rec}
}

type instrumentedIndex struct {
	next Index
	rec  OpRecorder
}

var _ Index = (*instrumentedIndex)(nil)

func (x *instrumentedIndex) observe(op string, started time.Time, err error) {
	x.rec.RecordIndexOp(op, err, time.Since(started))
}

func (x *instrumentedIndex) SetScore(ctx context.Context, key, memberID string, score float64) error {
	started := time.Now()
	err := x.next.SetScore(ctx, key, memberID, score)
	x.observe("set_score", started, err)
	return err
}

func (x *instrumentedIndex) IncrementScore(ctx context.Context, key, memberID string, delta float64) (float64, error) {
	started := time.Now()
	score, err := x.next.IncrementScore(ctx, key, memberID, delta)
	x.observe("increment_score", started, err)
	return score, err
}

func (x *instrumentedIndex) BulkSetScores(ctx context.Context, key string, scores []MemberScore) (int, error) {
	started := time.Now()
	n, err := x.next.BulkSetScores(ctx, key, scores)
	x.observe("bulk_set_scores", started, err)
	return n, err
}

func (x *instrumentedIndex) Score(ctx context.Context, key, memberID string) (float64, error) {
	started := time.Now()
	score, err := x.next.Score(ctx, key, memberID)
	x.observe("score", started, err)
	return score, err
}

func (x *instrumentedIndex) Rank(ctx context.Context, key, memberID string) (int, error) {
	started := time.Now()
	rank, err := x.next.Rank(ctx, key, memberID)
	x.observe("rank", started, err)
	return rank, err
}

func (x *instrumentedIndex) TopN(ctx context.Context, key string, n int) ([]RankedEntry, error) {
	started := time.Now()
	entries, err := x.next.TopN(ctx, key, n)
	x.observe("top_n", started, err)
	return entries, err
}

func (x *instrumentedIndex) Range(ctx context.Context, key string, start, stop int) ([]RankedEntry, error) {
	started := time.Now()
	entries, err := x.next.Range(ctx, key, start, stop)
	x.observe("range", started, err)
	return entries, err
}

func (x *instrumentedIndex) Nearby(ctx context.Context, key, memberID string, radius int) ([]RankedEntry, error) {
	started := time.Now()
	entries, err := x.next.Nearby(ctx, key, memberID, radius)
	x.observe("nearby", started, err)
	return entries, err
}

func (x *instrumentedIndex) RemoveMember(ctx context.Context, key, memberID string) error {
	started := time.Now()
	err := x.next.RemoveMember(ctx, key, memberID)
	x.observe("remove_member", started, err)
	return err
}

func (x *instrumentedIndex) DeleteKey(ctx context.Context, key string) error {
	started := time.Now()
	err := x.next.DeleteKey(ctx, key)
	x.observe("delete_key", started, err)
	return err
}

func (x *instrumentedIndex) Count(ctx context.Context, key string) (int, error) {
	started := time.Now()
	n, err := x.next.Count(ctx, key)
	x.observe("count", started, err)
	return n, err
}
