package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Entry is a node snapshot with the wall time it was received.
type Entry struct {
	Snapshot  types.Snapshot
	UpdatedAt time.Time
}

// Store is a thread-safe registry keyed by node id.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the retention period.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put records snap for its node. A snapshot older than the one held is a
// stale re-delivery: it is ignored and Put returns false. A snapshot with
// the same timestamp refreshes liveness and is kept only if types.Newer
// prefers it, so the held entry does not depend on arrival order.
func (s *Store) Put(snap types.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.data[snap.NodeID]; ok {
		switch {
		case snap.State.Timestamp < cur.Snapshot.State.Timestamp:
			return false
		case snap.State.Timestamp == cur.Snapshot.State.Timestamp:
			if types.Newer(snap, cur.Snapshot) {
				cur.Snapshot = snap
			}
			cur.UpdatedAt = now
			return true
		}
	}
	s.data[snap.NodeID] = &Entry{Snapshot: snap, UpdatedAt: now}
	return true
}

// Get returns a copy of the entry for nodeID. The entry may be stale.
func (s *Store) Get(nodeID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[nodeID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Live reports whether e was updated within the TTL.
func (s *Store) Live(e Entry) bool {
	return e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// List returns live entries ordered by node id.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Snapshot.NodeID < out[j].Snapshot.NodeID })
	return out
}

// Merge combines the live snapshots with types.Merge.
func (s *Store) Merge(threshold float64) types.MeshState {
	entries := s.List()
	snaps := make([]types.Snapshot, len(entries))
	for i, e := range entries {
		snaps[i] = e.Snapshot
	}
	return types.Merge(threshold, snaps...)
}

// Count returns the number of entries held, stale ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries not updated since now minus TTL and returns how
// many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (at least once a second) until
// ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Info("store: evicted stale nodes", "count", n)
			}
		}
	}
}
