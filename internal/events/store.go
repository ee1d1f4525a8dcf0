package events

import (
	"sort"
	"sync"
	"time"
)

// Store keeps the latest event per target for a bounded time.
type Store struct {
	mu   sync.RWMutex
	ttl  time.Duration
	data map[string]Event
}

func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, data: make(map[string]Event)}
}

// Record stores e unless a newer event for the same target is already
// present.
func (s *Store) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.data[e.Target]; ok && cur.TS.After(e.TS) {
		return
	}
	s.data[e.Target] = e
}

// Latest returns the stored event for target.
func (s *Store) Latest(target string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[target]
	return e, ok
}

func (s *Store) Snapshot(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now, false)
}

// SnapshotAttention returns only removals, default changes and provider
// errors.
func (s *Store) SnapshotAttention(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(now, true)
}

func (s *Store) snapshotLocked(now time.Time, attentionOnly bool) []Event {
	if s.ttl > 0 {
		for target, e := range s.data {
			if now.Sub(e.TS) > s.ttl {
				delete(s.data, target)
			}
		}
	}
	result := make([]Event, 0, len(s.data))
	for _, e := range s.data {
		if attentionOnly && !IsAttentionKind(e.Kind) {
			continue
		}
		result = append(result, e)
	}
	// Newest first; ULIDs break ties between events of the same instant.
	sort.Slice(result, func(i, j int) bool {
		if result[i].TS.Equal(result[j].TS) {
			return result[i].ID > result[j].ID
		}
		return result[i].TS.After(result[j].TS)
	})
	return result
}
