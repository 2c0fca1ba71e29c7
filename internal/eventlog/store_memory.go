package eventlog

import (
	"context"
	"fmt"
	"sync"

	"veil/pkg/platform/sentinel"
)

// InMemoryStore keeps the log in insertion order. Appends are timestamped
// by the caller, so insertion order is chronological order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ForTarget(_ context.Context, entityType, pk string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.EntityType == entityType && e.TargetPK == pk {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemoryStore) All(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...), nil
}

func (s *InMemoryStore) AttachError(_ context.Context, entityType, pk, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].EntityType == entityType && s.entries[i].TargetPK == pk {
			s.entries[i].ErrorMessage = message
			return nil
		}
	}
	return fmt.Errorf("no log entry for %s pk=%s to attach error to: %w", entityType, pk, sentinel.ErrNotFound)
}
