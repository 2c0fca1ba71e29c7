package privacy

import (
	"context"
	"fmt"
	"log/slog"

	"veil/internal/eventlog"
	"veil/internal/schema"
)

// HookableStore is the store surface the cascade resolver attaches to.
type HookableStore interface {
	schema.Store
	OnPreDelete(schema.DeleteHook)
	OnPostDelete(schema.DeleteHook)
}

// Cascade converts deletes of watched records into anonymisation of their
// dependents. A relation whose policy carries the anonymise flag means "when
// the record I point at is deleted, anonymise me instead of destroying me";
// the store then applies the wrapped action to the linkage field.
//
// Anonymising a record does NOT trigger this - only deleting it does.
type Cascade struct {
	registry *Registry
	engine   *Engine
	log      eventlog.Store
	logger   *slog.Logger
}

func NewCascade(registry *Registry, engine *Engine, log eventlog.Store, opts ...CascadeOption) (*Cascade, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if log == nil {
		return nil, fmt.Errorf("event log store is required")
	}
	c := &Cascade{registry: registry, engine: engine, log: log, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type CascadeOption func(*Cascade)

func WithCascadeLogger(logger *slog.Logger) CascadeOption {
	return func(c *Cascade) { c.logger = logger }
}

// Install hooks the resolver into the store's delete pipeline.
func (c *Cascade) Install(store HookableStore) {
	store.OnPreDelete(c.BeforeDelete)
	store.OnPostDelete(c.AfterDelete)
}

// BeforeDelete anonymises every dependent whose relation to the deleted
// record uses the anonymise policy. It runs while the linkage fields still
// reference the record. Dependents already anonymised no-op, so repeated
// triggers from multiple owner deletes are safe.
func (c *Cascade) BeforeDelete(ctx context.Context, rec *schema.Record) error {
	if !c.registry.IsRegistered(rec.Type.Name) && !c.registry.IsWatched(rec.Type.Name) {
		return nil
	}
	for _, name := range c.registry.RegisteredTypes() {
		desc, _ := c.registry.DescriptorFor(name)
		for _, f := range desc.EntityType().Fields {
			if !f.Kind.IsRelation() || !f.OnDelete.Anonymise || f.RelatedType != rec.Type.Name {
				continue
			}
			dependents, err := c.engine.store.FindByField(ctx, name, f.Name, rec.PK())
			if err != nil {
				return fmt.Errorf("find %s.%s dependents of %s pk=%s: %w",
					name, f.Name, rec.Type.Name, rec.PKString(), err)
			}
			for _, dep := range dependents {
				if err := c.engine.Anonymise(ctx, dep, Options{}); err != nil {
					return fmt.Errorf("anonymise %s pk=%s on delete of %s pk=%s: %w",
						name, dep.PKString(), rec.Type.Name, rec.PKString(), err)
				}
				c.engine.metrics.IncrementCascade()
			}
		}
	}
	return nil
}

// AfterDelete appends the delete log entry for registered types. Deletes
// are logged distinctly from anonymisation.
func (c *Cascade) AfterDelete(ctx context.Context, rec *schema.Record) error {
	if !c.registry.IsRegistered(rec.Type.Name) {
		return nil
	}
	return c.log.Append(ctx, eventlog.New(eventlog.EventDelete, rec.Type.Name, rec.PKString(), ""))
}
