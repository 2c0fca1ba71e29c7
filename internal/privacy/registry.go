package privacy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"veil/internal/anonymiser"
	"veil/internal/schema"
)

// Registry enrolls entity types for anonymisation. It is an explicit
// service object passed to the engine and cascade resolver, not ambient
// global state. Registration happens at startup; Finalise validates the
// relation graph before any anonymisation runs.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*BoundDescriptor
	watched     map[string]bool
	anonymisers *anonymiser.Registry
	finalised   bool
}

// NewRegistry builds a registry. Pass nil to use the default field
// anonymisers.
func NewRegistry(reg *anonymiser.Registry) *Registry {
	if reg == nil {
		reg = anonymiser.NewRegistry()
	}
	return &Registry{
		descriptors: make(map[string]*BoundDescriptor),
		watched:     make(map[string]bool),
		anonymisers: reg,
	}
}

// Anonymisers exposes the field anonymiser registry for custom kind
// registration.
func (r *Registry) Anonymisers() *anonymiser.Registry {
	return r.anonymisers
}

// Register enrolls an entity type with its privacy descriptor. A nil
// descriptor enrolls the type with defaults (all fields except the primary
// key). Registering a type twice is a configuration error.
func (r *Registry) Register(entity *schema.EntityType, d *Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalised {
		return fmt.Errorf("registry already finalised; register %s before Finalise", entity.Name)
	}
	if _, exists := r.descriptors[entity.Name]; exists {
		return fmt.Errorf("model %s already registered", entity.Name)
	}
	if d == nil {
		d = &Descriptor{}
	}
	bound, err := bindDescriptor(entity, *d, r.anonymisers)
	if err != nil {
		return err
	}
	r.descriptors[entity.Name] = bound
	return nil
}

// Finalise scans every known entity type for anonymise-on-delete relations,
// builds the watch set and validates configuration. Relations with the
// anonymise policy may only be declared on registered types; anything else
// aborts startup. Descriptor relation fields must point at registered
// types.
func (r *Registry) Finalise(allTypes []*schema.EntityType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range allTypes {
		registered := r.descriptors[t.Name] != nil
		for _, f := range t.Fields {
			if !f.Kind.IsRelation() || !f.OnDelete.Anonymise {
				continue
			}
			if !registered {
				return fmt.Errorf(
					"relationship %s.%s to %s set to anonymise on delete, but %s is not registered for anonymisation",
					t.Name, f.Name, f.RelatedType, t.Name,
				)
			}
			if r.descriptors[f.RelatedType] == nil {
				r.watched[f.RelatedType] = true
			}
		}
	}

	for name, d := range r.descriptors {
		for _, fk := range d.cfg.FKFields {
			f, _ := d.entity.Field(fk)
			if r.descriptors[f.RelatedType] == nil {
				return fmt.Errorf(
					"descriptor for %s: fk_field %s points at %s, which is not registered for anonymisation",
					name, fk, f.RelatedType,
				)
			}
		}
		for _, set := range d.cfg.SetFields {
			related := ""
			if f, ok := d.entity.Field(set); ok {
				related = f.RelatedType
			} else if rel, ok := d.entity.ReverseRelation(set); ok {
				related = rel.RelatedType
			}
			if r.descriptors[related] == nil {
				return fmt.Errorf(
					"descriptor for %s: set_field %s points at %s, which is not registered for anonymisation",
					name, set, related,
				)
			}
		}
	}

	r.finalised = true
	return nil
}

// DescriptorFor returns the bound descriptor for a type name.
func (r *Registry) DescriptorFor(name string) (*BoundDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// IsRegistered reports whether the type is enrolled for anonymisation.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[name] != nil
}

// IsWatched reports whether the type is monitored for deletes because a
// registered type anonymises when it goes away, even though the type itself
// is not enrolled.
func (r *Registry) IsWatched(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.watched[name]
}

// RegisteredTypes lists every enrolled type name, sorted for deterministic
// iteration.
func (r *Registry) RegisteredTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TypesAllowedToAnonymise lists the registered types whose descriptors
// permit anonymisation, sorted for deterministic iteration.
func (r *Registry) TypesAllowedToAnonymise() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, d := range r.descriptors {
		if d.CanAnonymise() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// SearchResult pairs an entity type with its matching records.
type SearchResult struct {
	EntityType string
	Records    []*schema.Record
}

// Search fans a term out across every registered descriptor's search
// fields.
func (r *Registry) Search(ctx context.Context, store schema.Store, term string) ([]SearchResult, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	var out []SearchResult
	for _, name := range names {
		d, _ := r.DescriptorFor(name)
		records, err := d.Search(ctx, store, term)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			out = append(out, SearchResult{EntityType: name, Records: records})
		}
	}
	return out, nil
}
