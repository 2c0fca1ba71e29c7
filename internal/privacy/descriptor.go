package privacy

import (
	"context"
	"fmt"
	"strings"

	"veil/internal/anonymiser"
	"veil/internal/schema"
	"veil/pkg/platform/sentinel"
)

// Descriptor declares which fields and relations of an entity type are
// anonymisable, plus its search and export configuration. It is bound to a
// type at registration and immutable afterwards.
type Descriptor struct {
	// Fields are plain-value field names anonymised in place, in order. If
	// empty (and no relation fields are declared) every field except the
	// primary key is anonymised.
	Fields []string

	// FKFields hold a single related record each; anonymising the owner
	// recurses into the related record rather than nulling the reference.
	FKFields []string

	// SetFields hold a collection of related records (reverse relations or
	// many-to-many); anonymising the owner recurses into each member.
	SetFields []string

	SearchFields   []string
	ExportFields   []string
	ExportExclude  []string
	ExportFilename string

	// Retain marks the type as permanently retained: the engine silently
	// refuses to anonymise its records and writes no log entry.
	Retain bool

	// Overrides replace the kind-based anonymiser for individual fields.
	Overrides map[string]anonymiser.Func
}

type fieldClass int

const (
	classPlain fieldClass = iota
	classFK
	classSet
)

// BoundDescriptor is a descriptor resolved against its entity type: the
// anonymisation field set is computed once and every field maps to an
// explicit action, so lookups are plain map accesses.
type BoundDescriptor struct {
	entity      *schema.EntityType
	cfg         Descriptor
	fields      []string
	classes     map[string]fieldClass
	anonymisers *anonymiser.Registry
}

func bindDescriptor(entity *schema.EntityType, cfg Descriptor, reg *anonymiser.Registry) (*BoundDescriptor, error) {
	d := &BoundDescriptor{
		entity:      entity,
		cfg:         cfg,
		classes:     make(map[string]fieldClass),
		anonymisers: reg,
	}

	declared := len(cfg.Fields) > 0 || len(cfg.FKFields) > 0 || len(cfg.SetFields) > 0
	if !declared {
		for _, f := range entity.Fields {
			if f.PrimaryKey {
				continue
			}
			d.fields = append(d.fields, f.Name)
			d.classes[f.Name] = classPlain
		}
		return d, nil
	}

	for _, name := range cfg.Fields {
		if _, ok := entity.Field(name); !ok {
			return nil, fmt.Errorf("descriptor for %s: unknown field %s", entity.Name, name)
		}
		if err := d.add(name, classPlain); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.FKFields {
		f, ok := entity.Field(name)
		if !ok {
			return nil, fmt.Errorf("descriptor for %s: unknown fk_field %s", entity.Name, name)
		}
		if !f.Kind.IsRelation() {
			return nil, fmt.Errorf("descriptor for %s: fk_field %s is not a relation", entity.Name, name)
		}
		if err := d.add(name, classFK); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.SetFields {
		if f, ok := entity.Field(name); ok {
			if f.Kind != schema.KindManyToMany {
				return nil, fmt.Errorf("descriptor for %s: set_field %s is not a collection", entity.Name, name)
			}
		} else if _, ok := entity.ReverseRelation(name); !ok {
			return nil, fmt.Errorf("descriptor for %s: unknown set_field %s", entity.Name, name)
		}
		if err := d.add(name, classSet); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *BoundDescriptor) add(name string, class fieldClass) error {
	if _, dup := d.classes[name]; dup {
		return fmt.Errorf(
			"descriptor for %s: field %s appears in more than one of fields/fk_fields/set_fields",
			d.entity.Name, name,
		)
	}
	d.fields = append(d.fields, name)
	d.classes[name] = class
	return nil
}

// EntityType returns the type the descriptor is bound to.
func (d *BoundDescriptor) EntityType() *schema.EntityType {
	return d.entity
}

// CanAnonymise reports whether the engine may anonymise records of this
// type. When false the type is permanently retained.
func (d *BoundDescriptor) CanAnonymise() bool {
	return !d.cfg.Retain
}

// AnonymiseFields returns the ordered field set the engine iterates.
func (d *BoundDescriptor) AnonymiseFields() []string {
	return d.fields
}

func (d *BoundDescriptor) class(name string) (fieldClass, bool) {
	c, ok := d.classes[name]
	return c, ok
}

// AnonymiseField applies the resolved anonymiser for one declared plain
// field. Requesting a field not declared anonymisable is an error by
// design, forcing explicit registration.
func (d *BoundDescriptor) AnonymiseField(rec *schema.Record, name string) error {
	class, ok := d.classes[name]
	if !ok {
		return fmt.Errorf("field %s is not declared anonymisable on %s: %w", name, d.entity.Name, sentinel.ErrNotFound)
	}
	if class != classPlain {
		return fmt.Errorf("field %s on %s is a relation field; the engine recurses into it instead: %w",
			name, d.entity.Name, sentinel.ErrInvalidState)
	}
	if fn, ok := d.cfg.Overrides[name]; ok {
		field, _ := rec.Type.Field(name)
		replacement, err := fn(rec, field, rec.Get(name))
		if err != nil {
			return err
		}
		rec.Set(name, replacement)
		return nil
	}
	return d.anonymisers.AnonymiseField(rec, name)
}

// Search returns all records where any search field case-insensitively
// matches the term, or nothing if no search fields are declared.
func (d *BoundDescriptor) Search(ctx context.Context, store schema.Store, term string) ([]*schema.Record, error) {
	if len(d.cfg.SearchFields) == 0 {
		return nil, nil
	}
	records, err := store.All(ctx, d.entity.Name)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", d.entity.Name, err)
	}
	var out []*schema.Record
	for _, rec := range records {
		for _, name := range d.cfg.SearchFields {
			if strings.EqualFold(schema.ValueString(rec.Get(name)), term) {
				out = append(out, rec)
				break
			}
		}
	}
	return out, nil
}

// Export maps the export fields of a record to their string representation.
// Default export set: every field except the primary key, minus
// ExportExclude.
func (d *BoundDescriptor) Export(rec *schema.Record) map[string]string {
	names := d.cfg.ExportFields
	if len(names) == 0 {
		for _, f := range d.entity.Fields {
			if f.PrimaryKey {
				continue
			}
			names = append(names, f.Name)
		}
	}
	excluded := make(map[string]bool, len(d.cfg.ExportExclude))
	for _, name := range d.cfg.ExportExclude {
		excluded[name] = true
	}

	out := make(map[string]string)
	for _, name := range names {
		if excluded[name] {
			continue
		}
		out[name] = schema.ValueString(rec.Get(name))
	}
	return out
}

// ExportName returns the configured export filename, defaulting to
// "<type>.csv".
func (d *BoundDescriptor) ExportName() string {
	if d.cfg.ExportFilename != "" {
		return d.cfg.ExportFilename
	}
	return d.entity.Name + ".csv"
}
