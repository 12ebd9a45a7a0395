// Package memory provides in-process implementations of the persistence
// ports. They back unit tests and single-node deployments where Redis and
// Postgres are not wired in.
package memory

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/arena-hub/arena-rank/internal/domain/ranking"
)

// RankingIndex is an in-memory ranking.Index backed by one treap per scope
// key. Nodes order by score descending, member id ascending, and carry
// subtree sizes so rank and positional queries run in O(log n).
type RankingIndex struct {
	mu     sync.RWMutex
	scopes map[string]*scope
}

// NewRankingIndex returns an empty index.
func NewRankingIndex() *RankingIndex {
	return &RankingIndex{scopes: make(map[string]*scope)}
}

var _ ranking.Index = (*RankingIndex)(nil)

// scope is one ordered member set: the treap plus a member→score map for
// O(1) score lookup and for locating a node's ordering key on update.
type scope struct {
	root    *node
	members map[string]float64
}

type node struct {
	memberID string
	score    float64
	priority uint64
	size     int
	left     *node
	right    *node
}

// ══════════════════════════════════════════════════════════════════════════════
// INDEX OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetScore inserts the member or moves it to its new score position.
func (idx *RankingIndex) SetScore(_ context.Context, key, memberID string, score float64) error {
	if key == "" {
		return ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return ranking.ErrMemberIDEmpty
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.scopeFor(key).set(memberID, score)
	return nil
}

// IncrementScore adds delta to the member's score, treating an absent member
// as zero, and returns the resulting score.
func (idx *RankingIndex) IncrementScore(_ context.Context, key, memberID string, delta float64) (float64, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}
	if memberID == "" {
		return 0, ranking.ErrMemberIDEmpty
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	s := idx.scopeFor(key)
	next := s.members[memberID] + delta
	s.set(memberID, next)
	return next, nil
}

// BulkSetScores writes every entry under one lock acquisition.
func (idx *RankingIndex) BulkSetScores(_ context.Context, key string, scores []ranking.MemberScore) (int, error) {
	if key == "" {
		return 0, ranking.ErrKeyEmpty
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	s := idx.scopeFor(key)
	written := 0
	for _, ms := range scores {
		if ms.MemberID == "" {
			continue
		}
		s.set(ms.MemberID, ms.Score)
		written++
	}
	return written, nil
}

// Score returns the member's current score.
func (idx *RankingIndex) Score(_ context.Context, key, memberID string) (float64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s, ok := idx.scopes[key]
	if !ok {
		return 0, ranking.ErrMemberNotFound
	}
	score, ok := s.members[memberID]
	if !ok {
		return 0, ranking.ErrMemberNotFound
	}
	return score, nil
}

// Rank returns the member's zero-based position in descending score order.
func (idx *RankingIndex) Rank(_ context.Context, key, memberID string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s, ok := idx.scopes[key]
	if !ok {
		return 0, ranking.ErrMemberNotFound
	}
	score, ok := s.members[memberID]
	if !ok {
		return 0, ranking.ErrMemberNotFound
	}
	return s.rankOf(score, memberID), nil
}

// TopN returns the n best entries.
func (idx *RankingIndex) TopN(ctx context.Context, key string, n int) ([]ranking.RankedEntry, error) {
	if n <= 0 {
		return []ranking.RankedEntry{}, nil
	}
	return idx.Range(ctx, key, 0, n-1)
}

// Range returns entries at positions [start, stop] inclusive.
func (idx *RankingIndex) Range(_ context.Context, key string, start, stop int) ([]ranking.RankedEntry, error) {
	if start < 0 || stop < start {
		return nil, ranking.ErrInvalidRange
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s, ok := idx.scopes[key]
	if !ok {
		return []ranking.RankedEntry{}, nil
	}

	total := size(s.root)
	if start >= total {
		return []ranking.RankedEntry{}, nil
	}
	if stop >= total {
		stop = total - 1
	}

	out := make([]ranking.RankedEntry, 0, stop-start+1)
	collectRange(s.root, start, stop, 0, &out)
	for i := range out {
		out[i].Rank = start + i + 1
	}
	return out, nil
}

// Nearby returns the member's window of neighbours, truncated at the edges.
func (idx *RankingIndex) Nearby(ctx context.Context, key, memberID string, radius int) ([]ranking.RankedEntry, error) {
	if radius < 0 {
		return nil, ranking.ErrInvalidRange
	}

	rank, err := idx.Rank(ctx, key, memberID)
	if err != nil {
		return nil, err
	}

	start := rank - radius
	if start < 0 {
		start = 0
	}
	return idx.Range(ctx, key, start, rank+radius)
}

// RemoveMember deletes the member from the scope if present.
func (idx *RankingIndex) RemoveMember(_ context.Context, key, memberID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s, ok := idx.scopes[key]
	if !ok {
		return nil
	}
	score, ok := s.members[memberID]
	if !ok {
		return nil
	}
	s.root = remove(s.root, score, memberID)
	delete(s.members, memberID)
	if len(s.members) == 0 {
		delete(idx.scopes, key)
	}
	return nil
}

// DeleteKey drops the whole scope.
func (idx *RankingIndex) DeleteKey(_ context.Context, key string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.scopes, key)
	return nil
}

// Count returns the number of members under the key.
func (idx *RankingIndex) Count(_ context.Context, key string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	s, ok := idx.scopes[key]
	if !ok {
		return 0, nil
	}
	return size(s.root), nil
}

// scopeFor returns the scope for the key, creating it if needed. Callers must
// hold the write lock.
func (idx *RankingIndex) scopeFor(key string) *scope {
	s, ok := idx.scopes[key]
	if !ok {
		s = &scope{members: make(map[string]float64)}
		idx.scopes[key] = s
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// TREAP
// ══════════════════════════════════════════════════════════════════════════════

// before reports whether (aScore, aID) ranks ahead of (bScore, bID):
// higher score first, member id ascending on ties.
func before(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func update(n *node) {
	n.size = size(n.left) + size(n.right) + 1
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	update(n)
	update(l)
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	update(n)
	update(r)
	return r
}

func insert(n *node, score float64, memberID string) *node {
	if n == nil {
		return &node{memberID: memberID, score: score, priority: rand.Uint64(), size: 1}
	}
	if before(score, memberID, n.score, n.memberID) {
		n.left = insert(n.left, score, memberID)
		if n.left.priority > n.priority {
			return rotateRight(n)
		}
	} else {
		n.right = insert(n.right, score, memberID)
		if n.right.priority > n.priority {
			return rotateLeft(n)
		}
	}
	update(n)
	return n
}

func remove(n *node, score float64, memberID string) *node {
	if n == nil {
		return nil
	}
	if n.memberID == memberID && n.score == score {
		switch {
		case n.left == nil:
			return n.right
		case n.right == nil:
			return n.left
		case n.left.priority > n.right.priority:
			n = rotateRight(n)
			n.right = remove(n.right, score, memberID)
		default:
			n = rotateLeft(n)
			n.left = remove(n.left, score, memberID)
		}
	} else if before(score, memberID, n.score, n.memberID) {
		n.left = remove(n.left, score, memberID)
	} else {
		n.right = remove(n.right, score, memberID)
	}
	update(n)
	return n
}

// set replaces the member's position, removing the old node first so the
// treap never holds two entries for one member.
func (s *scope) set(memberID string, score float64) {
	if old, ok := s.members[memberID]; ok {
		if old == score {
			return
		}
		s.root = remove(s.root, old, memberID)
	}
	s.root = insert(s.root, score, memberID)
	s.members[memberID] = score
}

// rankOf counts how many entries rank ahead of (score, memberID).
func (s *scope) rankOf(score float64, memberID string) int {
	rank := 0
	n := s.root
	for n != nil {
		if before(score, memberID, n.score, n.memberID) {
			n = n.left
		} else if n.memberID == memberID && n.score == score {
			return rank + size(n.left)
		} else {
			rank += size(n.left) + 1
			n = n.right
		}
	}
	return rank
}

// collectRange walks in-order and appends entries whose absolute position
// falls inside [start, stop]. offset is the position of n's leftmost entry.
func collectRange(n *node, start, stop, offset int, out *[]ranking.RankedEntry) {
	if n == nil {
		return
	}
	pos := offset + size(n.left)
	if start < pos {
		collectRange(n.left, start, stop, offset, out)
	}
	if pos >= start && pos <= stop {
		*out = append(*out, ranking.RankedEntry{MemberID: n.memberID, Score: n.score})
	}
	if stop > pos {
		collectRange(n.right, start, stop, pos+1, out)
	}
}
