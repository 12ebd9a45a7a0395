package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/arena-hub/arena-rank/internal/domain/ranking"
)

// keyPrefixIndex namespaces every sorted set the index owns.
const keyPrefixIndex = "rank:"

// RankingIndex implements ranking.Index on Redis sorted sets, one ZSET per
// scope key.
//
// A descending ZREVRANGE read orders equal scores by member id descending,
// the reverse of the interface's ascending tie rule, so rank and range
// reads re-resolve the equal-score runs touching the requested window and
// reorder them by member id. Middle runs sit fully inside a fetched page
// and are sorted in place.
type RankingIndex struct {
	client *Client
}

// NewRankingIndex builds the index over an established client.
func NewRankingIndex(client *Client) *RankingIndex {
	return &RankingIndex{client: client}
}

var _ ranking.Index = (*RankingIndex)(nil)

func indexKey(key string) string {
	return keyPrefixIndex + key
}

// SetScore inserts the member or replaces its score.
func (r *RankingIndex) SetScore(ctx context.Context, key, memberID string, score float64) error {
	if key == "" {
		return ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return ranking.ErrMemberIDEmpty
	}

	pipe := r.client.Raw().Pipeline()
	pipe.ZAdd(ctx, indexKey(key), redis.Z{Score: score, Member: memberID})
	r.applyTTL(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ranking_index: set score: %w", err)
	}
	return nil
}

// IncrementScore adds delta to the member's score and returns the new value.
func (r *RankingIndex) IncrementScore(ctx context.Context, key, memberID string, delta float64) (float64, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return 0, ranking.ErrMemberIDEmpty
	}

	newScore, err := r.client.Raw().ZIncrBy(ctx, indexKey(key), delta, memberID).Result()
	if err != nil {
		return 0, fmt.Errorf("ranking_index: increment score: %w", err)
	}
	if ttl := r.client.Config().KeyTTL; ttl > 0 {
		r.client.Raw().Expire(ctx, indexKey(key), ttl)
	}
	return newScore, nil
}

// BulkSetScores writes all entries through one pipelined ZAdd.
func (r *RankingIndex) BulkSetScores(ctx context.Context, key string, scores []ranking.MemberScore) (int, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}
	if len(scores) == 0 {
		return 0, nil
	}

	members := make([]redis.Z, 0, len(scores))
	for _, ms := range scores {
		if ms.MemberID == "" {
			continue
		}
		members = append(members, redis.Z{Score: ms.Score, Member: ms.MemberID})
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := r.client.Raw().Pipeline()
	pipe.ZAdd(ctx, indexKey(key), members...)
	r.applyTTL(ctx, pipe, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ranking_index: bulk set scores: %w", err)
	}
	return len(members), nil
}

// Score returns the member's current score.
func (r *RankingIndex) Score(ctx context.Context, key, memberID string) (float64, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return 0, ranking.ErrMemberIDEmpty
	}

	score, err := r.client.Raw().ZScore(ctx, indexKey(key), memberID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ranking.ErrMemberNotFound
		}
		return 0, fmt.Errorf("ranking_index: get score: %w", err)
	}
	return score, nil
}

// Rank returns the member's zero-based descending rank. ZREVRANK breaks
// ties the wrong way round, so the rank is derived from the count of
// strictly better scores plus the member's id-ordered position inside its
// own equal-score run.
func (r *RankingIndex) Rank(ctx context.Context, key, memberID string) (int, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return 0, ranking.ErrMemberIDEmpty
	}

	score, err := r.client.Raw().ZScore(ctx, indexKey(key), memberID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ranking.ErrMemberNotFound
		}
		return 0, fmt.Errorf("ranking_index: get rank: %w", err)
	}

	runStart, peers, err := r.tieRun(ctx, key, score)
	if err != nil {
		return 0, fmt.Errorf("ranking_index: get rank: %w", err)
	}
	for i, id := range peers {
		if id == memberID {
			return runStart + i, nil
		}
	}
	// The member was removed between the two reads.
	return 0, ranking.ErrMemberNotFound
}

// TopN returns the n best entries in rank order.
func (r *RankingIndex) TopN(ctx context.Context, key string, n int) ([]ranking.RankedEntry, error) {
	if n <= 0 {
		return []ranking.RankedEntry{}, nil
	}
	return r.Range(ctx, key, 0, n-1)
}

// Range returns entries at zero-based positions [start, stop] inclusive.
// The equal-score runs at the window's edges may extend past the fetched
// page, so both boundary runs are resolved in full and sliced by their
// id-ordered positions.
func (r *RankingIndex) Range(ctx context.Context, key string, start, stop int) ([]ranking.RankedEntry, error) {
	if key == "" {
		return nil, ranking.ErrKeyEmpty
	}
	if start < 0 || stop < start {
		return nil, ranking.ErrInvalidRange
	}

	zs, err := r.client.Raw().ZRevRangeWithScores(ctx, indexKey(key), int64(start), int64(stop)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranking_index: range: %w", err)
	}
	if len(zs) == 0 {
		return []ranking.RankedEntry{}, nil
	}

	headStart, headPeers, err := r.tieRun(ctx, key, zs[0].Score)
	if err != nil {
		return nil, fmt.Errorf("ranking_index: range: %w", err)
	}
	tailStart, tailPeers := headStart, headPeers
	if last := zs[len(zs)-1].Score; last != zs[0].Score {
		tailStart, tailPeers, err = r.tieRun(ctx, key, last)
		if err != nil {
			return nil, fmt.Errorf("ranking_index: range: %w", err)
		}
	}

	return assembleWindow(zs, headPeers, headStart, tailPeers, tailStart, start, stop), nil
}

// tieRun returns the zero-based position where the equal-score run for
// score begins, and the run's member ids ordered ascending.
func (r *RankingIndex) tieRun(ctx context.Context, key string, score float64) (int, []string, error) {
	bound := formatScore(score)

	higher, err := r.client.Raw().ZCount(ctx, indexKey(key), "("+bound, "+inf").Result()
	if err != nil {
		return 0, nil, err
	}
	// ZRANGEBYSCORE orders equal scores by member id ascending.
	peers, err := r.client.Raw().ZRangeByScore(ctx, indexKey(key), &redis.ZRangeBy{
		Min: bound,
		Max: bound,
	}).Result()
	if err != nil {
		return 0, nil, err
	}
	return int(higher), peers, nil
}

// formatScore renders a score so Redis parses it back to the same double.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// assembleWindow reorders one ZREVRANGE page so equal scores follow the
// member-id-ascending rule. headPeers and tailPeers carry the full
// id-ordered runs for the page's first and last score; headStart and
// tailStart are the zero-based positions where those runs begin. Runs
// between the boundary scores sit entirely inside the page.
func assembleWindow(page []redis.Z, headPeers []string, headStart int, tailPeers []string, tailStart, start, stop int) []ranking.RankedEntry {
	headScore := page[0].Score
	tailScore := page[len(page)-1].Score

	entries := make([]ranking.RankedEntry, 0, len(page))
	pos := start
	push := func(memberID string, score float64) {
		entries = append(entries, ranking.RankedEntry{
			MemberID: memberID,
			Score:    score,
			Rank:     pos + 1,
		})
		pos++
	}

	clip := func(peers []string, runStart int) []string {
		from := 0
		if start > runStart {
			from = start - runStart
		}
		to := len(peers) - 1
		if last := stop - runStart; last < to {
			to = last
		}
		return peers[from : to+1]
	}

	if headScore == tailScore {
		for _, id := range clip(headPeers, headStart) {
			push(id, headScore)
		}
		return entries
	}

	for _, id := range clip(headPeers, headStart) {
		push(id, headScore)
	}

	var run []string
	var runScore float64
	flush := func() {
		sort.Strings(run)
		for _, id := range run {
			push(id, runScore)
		}
		run = run[:0]
	}
	for _, z := range page {
		if z.Score == headScore || z.Score == tailScore {
			continue
		}
		if len(run) > 0 && z.Score != runScore {
			flush()
		}
		member, _ := z.Member.(string)
		runScore = z.Score
		run = append(run, member)
	}
	if len(run) > 0 {
		flush()
	}

	for _, id := range clip(tailPeers, tailStart) {
		push(id, tailScore)
	}

	return entries
}

// Nearby returns the member's window of neighbours, truncated at the edges.
func (r *RankingIndex) Nearby(ctx context.Context, key, memberID string, radius int) ([]ranking.RankedEntry, error) {
	if radius < 0 {
		return nil, ranking.ErrInvalidRange
	}

	rank, err := r.Rank(ctx, key, memberID)
	if err != nil {
		return nil, err
	}

	start := rank - radius
	if start < 0 {
		start = 0
	}
	return r.Range(ctx, key, start, rank+radius)
}

// RemoveMember deletes the member from the key. Redis treats removing an
// absent member as a no-op, matching the interface contract.
func (r *RankingIndex) RemoveMember(ctx context.Context, key, memberID string) error {
	if key == "" {
		return ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return ranking.ErrMemberIDEmpty
	}

	if err := r.client.Raw().ZRem(ctx, indexKey(key), memberID).Err(); err != nil {
		return fmt.Errorf("ranking_index: remove member: %w", err)
	}
	return nil
}

// DeleteKey drops the whole scope.
func (r *RankingIndex) DeleteKey(ctx context.Context, key string) error {
	if key == "" {
		return ranking.ErrKeyEmpty
	}

	if err := r.client.Raw().Del(ctx, indexKey(key)).Err(); err != nil {
		return fmt.Errorf("ranking_index: delete key: %w", err)
	}
	return nil
}

// Count returns the number of members under the key.
func (r *RankingIndex) Count(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}

	n, err := r.client.Raw().ZCard(ctx, indexKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("ranking_index: count: %w", err)
	}
	return int(n), nil
}

// applyTTL queues a key expiry on the pipeline when a TTL is configured.
func (r *RankingIndex) applyTTL(ctx context.Context, pipe redis.Pipeliner, key string) {
	if ttl := r.client.Config().KeyTTL; ttl > 0 {
		pipe.Expire(ctx, indexKey(key), ttl)
	}
}
