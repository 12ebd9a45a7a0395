package ranking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedOp struct {
	op  string
	err error
}

type opLog struct {
	ops []recordedOp
}

func (l *opLog) RecordIndexOp(op string, err error, elapsed time.Duration) {
	l.ops = append(l.ops, recordedOp{op: op, err: err})
}

// stubIndex answers every call with canned values so the decorator's
// pass-through behaviour can be checked.
type stubIndex struct {
	err error
}

func (s *stubIndex) SetScore(ctx context.Context, key, memberID string, score float64) error {
	return s.err
}

func (s *stubIndex) IncrementScore(ctx context.Context, key, memberID string, delta float64) (float64, error) {
	return 42, s.err
}

func (s *stubIndex) BulkSetScores(ctx context.Context, key string, scores []MemberScore) (int, error) {
	return len(scores), s.err
}

func (s *stubIndex) Score(ctx context.Context, key, memberID string) (float64, error) {
	return 42, s.err
}

func (s *stubIndex) Rank(ctx context.Context, key, memberID string) (int, error) {
	return 3, s.err
}

func (s *stubIndex) TopN(ctx context.Context, key string, n int) ([]RankedEntry, error) {
	return nil, s.err
}

func (s *stubIndex) Range(ctx context.Context, key string, start, stop int) ([]RankedEntry, error) {
	return nil, s.err
}

func (s *stubIndex) Nearby(ctx context.Context, key, memberID string, radius int) ([]RankedEntry, error) {
	return nil, s.err
}

func (s *stubIndex) RemoveMember(ctx context.Context, key, memberID string) error {
	return s.err
}

func (s *stubIndex) DeleteKey(ctx context.Context, key string) error { return s.err }

func (s *stubIndex) Count(ctx context.Context, key string) (int, error) { return 7, s.err }

func TestInstrumentRecordsEveryOp(t *testing.T) {
	log := &opLog{}
	idx := Instrument(&stubIndex{}, log)
	ctx := context.Background()

	require.NoError(t, idx.SetScore(ctx, "k", "ada", 90))
	_, err := idx.IncrementScore(ctx, "k", "ada", 1)
	require.NoError(t, err)
	_, err = idx.BulkSetScores(ctx, "k", []MemberScore{{MemberID: "ben", Score: 80}})
	require.NoError(t, err)
	_, err = idx.Score(ctx, "k", "ada")
	require.NoError(t, err)
	_, err = idx.Rank(ctx, "k", "ada")
	require.NoError(t, err)
	_, err = idx.TopN(ctx, "k", 5)
	require.NoError(t, err)
	_, err = idx.Range(ctx, "k", 0, 4)
	require.NoError(t, err)
	_, err = idx.Nearby(ctx, "k", "ada", 2)
	require.NoError(t, err)
	require.NoError(t, idx.RemoveMember(ctx, "k", "ada"))
	require.NoError(t, idx.DeleteKey(ctx, "k"))
	_, err = idx.Count(ctx, "k")
	require.NoError(t, err)

	names := make([]string, len(log.ops))
	for i, op := range log.ops {
		names[i] = op.op
	}
	assert.Equal(t, []string{
		"set_score", "increment_score", "bulk_set_scores", "score", "rank",
		"top_n", "range", "nearby", "remove_member", "delete_key", "count",
	}, names)
}

func TestInstrumentPassesErrorsThrough(t *testing.T) {
	log := &opLog{}
	boom := errors.New("backend down")
	idx := Instrument(&stubIndex{err: boom}, log)

	_, err := idx.Rank(context.Background(), "k", "ada")
	assert.ErrorIs(t, err, boom)

	require.Len(t, log.ops, 1)
	assert.Equal(t, "rank", log.ops[0].op)
	assert.ErrorIs(t, log.ops[0].err, boom)
}

func TestInstrumentNilRecorder(t *testing.T) {
	base := &stubIndex{}
	assert.Same(t, Index(base), Instrument(base, nil))
}
