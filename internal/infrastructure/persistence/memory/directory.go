package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/arena-hub/arena-rank/internal/domain/arena"
)

// Directory is an in-memory arena.Directory.
type Directory struct {
	mu      sync.RWMutex
	members map[string]map[string]*arena.Member // arenaID -> memberID -> member
}

// NewDirectory returns an empty roster.
func NewDirectory() *Directory {
	return &Directory{members: make(map[string]map[string]*arena.Member)}
}

var _ arena.Directory = (*Directory)(nil)

// UpsertMember inserts or updates one roster entry.
func (d *Directory) UpsertMember(_ context.Context, m *arena.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	byID, ok := d.members[m.ArenaID]
	if !ok {
		byID = make(map[string]*arena.Member)
		d.members[m.ArenaID] = byID
	}
	cp := *m
	byID[m.MemberID] = &cp
	return nil
}

// ActiveMemberIDs returns the ids of the arena's active members, sorted.
func (d *Directory) ActiveMemberIDs(_ context.Context, arenaID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for id, m := range d.members[arenaID] {
		if m.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ArenaIDs returns every arena with at least one active member, sorted.
func (d *Directory) ArenaIDs(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	for arenaID, byID := range d.members {
		for _, m := range byID {
			if m.Active {
				ids = append(ids, arenaID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeactivateMember marks a member inactive.
func (d *Directory) DeactivateMember(_ context.Context, arenaID, memberID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[arenaID][memberID]
	if !ok {
		return arena.ErrMemberNotFound
	}
	m.Active = false
	return nil
}
