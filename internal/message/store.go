package message

import (
	"sort"
	"sync"
)

// Store is the local ordered view of one channel. It is a projection of the
// document store and never originates writes.
type Store struct {
	mu       sync.RWMutex
	messages []Message
	version  uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// ReplaceAll swaps the whole view for msgs, ordered newest first. Pending
// messages sort before resolved ones; ties keep their order in msgs.
func (s *Store) ReplaceAll(msgs []Message) {
	next := make([]Message, len(msgs))
	copy(next, msgs)
	SortNewestFirst(next)

	s.mu.Lock()
	s.messages = next
	s.version++
	s.mu.Unlock()
}

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in view.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Version counts ReplaceAll calls.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Find looks a message up by id.
func (s *Store) Find(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// SortNewestFirst orders msgs by CreatedAt descending with pending messages
// first. The sort is stable.
func SortNewestFirst(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch {
		case a.Pending() && b.Pending():
			return false
		case a.Pending():
			return true
		case b.Pending():
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}
