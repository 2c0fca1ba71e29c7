package schema

import (
	"context"
	"fmt"
	"sync"

	"veil/pkg/platform/sentinel"
)

// InMemoryStore is a storage-layer stand-in implementing Store with full
// delete policy semantics. It backs the test suites and embedders that do
// not bring their own storage.
type InMemoryStore struct {
	mu         sync.RWMutex
	types      map[string]*EntityType
	records    map[string]map[string]*Record
	order      map[string][]string
	validators map[string]ValidateFunc

	preDelete  []DeleteHook
	postDelete []DeleteHook
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		types:      make(map[string]*EntityType),
		records:    make(map[string]map[string]*Record),
		order:      make(map[string][]string),
		validators: make(map[string]ValidateFunc),
	}
}

// RegisterType makes the store aware of a type so delete policies of its
// relations can be applied.
func (s *InMemoryStore) RegisterType(t *EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[t.Name] = t
	if s.records[t.Name] == nil {
		s.records[t.Name] = make(map[string]*Record)
	}
}

// SetValidator installs a per-type validation hook run on every Save.
func (s *InMemoryStore) SetValidator(entityType string, fn ValidateFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[entityType] = fn
}

// OnPreDelete registers a hook run before each delete, in registration order.
func (s *InMemoryStore) OnPreDelete(h DeleteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preDelete = append(s.preDelete, h)
}

// OnPostDelete registers a hook run after each delete.
func (s *InMemoryStore) OnPostDelete(h DeleteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postDelete = append(s.postDelete, h)
}

func (s *InMemoryStore) Get(_ context.Context, entityType string, pk any) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entityType][ValueString(pk)]
	if !ok {
		return nil, fmt.Errorf("%s pk=%s: %w", entityType, ValueString(pk), sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) Save(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.types[rec.Type.Name]; !known {
		s.types[rec.Type.Name] = rec.Type
	}
	if fn := s.validators[rec.Type.Name]; fn != nil {
		if err := fn(rec); err != nil {
			return fmt.Errorf("validate %s pk=%s: %w", rec.Type.Name, rec.PKString(), err)
		}
	}
	pk := rec.PKString()
	if pk == "" {
		return fmt.Errorf("save %s: %w: empty primary key", rec.Type.Name, sentinel.ErrInvalidState)
	}
	byPK := s.records[rec.Type.Name]
	if byPK == nil {
		byPK = make(map[string]*Record)
		s.records[rec.Type.Name] = byPK
	}
	if _, exists := byPK[pk]; !exists {
		s.order[rec.Type.Name] = append(s.order[rec.Type.Name], pk)
	}
	byPK[pk] = rec.Clone()
	return nil
}

func (s *InMemoryStore) All(_ context.Context, entityType string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for _, pk := range s.order[entityType] {
		if rec, ok := s.records[entityType][pk]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindByField(_ context.Context, entityType, field string, value any) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByField(entityType, field, value), nil
}

func (s *InMemoryStore) findByField(entityType, field string, value any) []*Record {
	want := ValueString(value)
	var out []*Record
	for _, pk := range s.order[entityType] {
		rec, ok := s.records[entityType][pk]
		if !ok {
			continue
		}
		v := rec.Get(field)
		if v == nil {
			continue
		}
		if ValueString(v) == want {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Delete applies the delete policies of every relation pointing at rec, runs
// the delete hooks and removes the record. Policy order: Protect is checked
// first so a protected delete fails before any side effects; pre-delete
// hooks (cascade resolver) run next, while linkage fields still reference
// the record; then SetNull/SetDefault/Cascade are applied.
func (s *InMemoryStore) Delete(ctx context.Context, rec *Record) error {
	referencing := s.referencingFields(rec.Type.Name)

	for _, ref := range referencing {
		if ref.field.OnDelete.Action != Protect {
			continue
		}
		s.mu.RLock()
		deps := s.findByField(ref.owner.Name, ref.field.Name, rec.PK())
		s.mu.RUnlock()
		if len(deps) > 0 {
			return fmt.Errorf(
				"cannot delete %s pk=%s: referenced by %s.%s: %w",
				rec.Type.Name, rec.PKString(), ref.owner.Name, ref.field.Name, sentinel.ErrProtected,
			)
		}
	}

	for _, h := range s.hooks(&s.preDelete) {
		if err := h(ctx, rec); err != nil {
			return err
		}
	}

	for _, ref := range referencing {
		s.mu.RLock()
		deps := s.findByField(ref.owner.Name, ref.field.Name, rec.PK())
		s.mu.RUnlock()

		for _, dep := range deps {
			switch ref.field.OnDelete.Action {
			case Cascade:
				if err := s.Delete(ctx, dep); err != nil {
					return err
				}
			case SetNull:
				dep.Set(ref.field.Name, nil)
				if err := s.Save(ctx, dep); err != nil {
					return err
				}
			case SetDefault:
				dep.Set(ref.field.Name, ref.field.Default)
				if err := s.Save(ctx, dep); err != nil {
					return err
				}
			case DoNothing, Protect:
			}
		}
	}

	s.mu.Lock()
	delete(s.records[rec.Type.Name], rec.PKString())
	s.mu.Unlock()

	for _, h := range s.hooks(&s.postDelete) {
		if err := h(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

type referencingField struct {
	owner *EntityType
	field Field
}

func (s *InMemoryStore) referencingFields(target string) []referencingField {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []referencingField
	for _, t := range s.types {
		for _, f := range t.Fields {
			if f.Kind.IsRelation() && f.RelatedType == target {
				out = append(out, referencingField{owner: t, field: f})
			}
		}
	}
	return out
}

func (s *InMemoryStore) hooks(list *[]DeleteHook) []DeleteHook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]DeleteHook(nil), (*list)...)
}
