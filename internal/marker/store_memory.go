package marker

import (
	"context"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	markers map[string]Marker
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{markers: make(map[string]Marker)}
}

func key(entityType, pk string) string {
	return entityType + "\x00" + pk
}

func (s *InMemoryStore) Create(_ context.Context, entityType, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(entityType, pk)
	if _, exists := s.markers[k]; exists {
		return nil
	}
	s.markers[k] = Marker{EntityType: entityType, PK: pk, CreatedAt: time.Now()}
	return nil
}

func (s *InMemoryStore) CreateBatch(ctx context.Context, markers []Marker) error {
	for _, m := range markers {
		if err := s.Create(ctx, m.EntityType, m.PK); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemoryStore) Exists(_ context.Context, entityType, pk string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.markers[key(entityType, pk)]
	return ok, nil
}
