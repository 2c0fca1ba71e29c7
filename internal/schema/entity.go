package schema

import (
	"fmt"
	"time"
)

// ReverseRelation is an explicit accessor for the records of another type
// that point at this one. The underlying storage layer derives these
// automatically; here they are declared so lookups stay plain map accesses.
type ReverseRelation struct {
	// Name is the accessor name used in descriptor set_fields.
	Name string

	// RelatedType is the entity type holding the forward relation.
	RelatedType string

	// RelatedField is the ForeignKey/OneToOne field name on RelatedType.
	RelatedField string
}

// EntityType is a record schema eligible for anonymisation. Field order is
// significant: anonymisation is applied in declared order.
type EntityType struct {
	Name    string
	Fields  []Field
	Reverse []ReverseRelation

	pk     string
	byName map[string]Field
}

// NewEntityType validates the field list and returns the type. Exactly one
// field must be marked as primary key.
func NewEntityType(name string, fields []Field, reverse ...ReverseRelation) (*EntityType, error) {
	if name == "" {
		return nil, fmt.Errorf("entity type name is required")
	}
	t := &EntityType{
		Name:    name,
		Fields:  fields,
		Reverse: reverse,
		byName:  make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := t.byName[f.Name]; dup {
			return nil, fmt.Errorf("entity type %s: duplicate field %s", name, f.Name)
		}
		t.byName[f.Name] = f
		if f.PrimaryKey {
			if t.pk != "" {
				return nil, fmt.Errorf("entity type %s: multiple primary keys (%s, %s)", name, t.pk, f.Name)
			}
			t.pk = f.Name
		}
		if f.Kind.IsRelation() || f.Kind == KindManyToMany {
			if f.RelatedType == "" {
				return nil, fmt.Errorf("entity type %s: relation field %s has no related type", name, f.Name)
			}
		}
	}
	if t.pk == "" {
		return nil, fmt.Errorf("entity type %s: no primary key field", name)
	}
	return t, nil
}

// MustEntityType is NewEntityType for statically-known schemas.
func MustEntityType(name string, fields []Field, reverse ...ReverseRelation) *EntityType {
	t, err := NewEntityType(name, fields, reverse...)
	if err != nil {
		panic(err)
	}
	return t
}

// Field returns the named field descriptor.
func (t *EntityType) Field(name string) (Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// PKName returns the primary key field name.
func (t *EntityType) PKName() string {
	return t.pk
}

// ReverseRelation returns the named reverse relation.
func (t *EntityType) ReverseRelation(name string) (ReverseRelation, bool) {
	for _, r := range t.Reverse {
		if r.Name == name {
			return r, true
		}
	}
	return ReverseRelation{}, false
}

// Record is one loaded row of an entity type. A nil value in Values means
// SQL NULL. Value conventions: int fields hold int64, decimal/float hold
// float64, binary holds []byte, date/datetime hold time.Time, time-of-day
// and duration hold time.Duration, UUID fields hold uuid.UUID, relation
// fields hold the related primary key, many-to-many fields hold []any of
// related primary keys.
type Record struct {
	Type   *EntityType
	Values map[string]any
}

// NewRecord builds a record of the given type from a value map.
func NewRecord(t *EntityType, values map[string]any) *Record {
	if values == nil {
		values = make(map[string]any)
	}
	return &Record{Type: t, Values: values}
}

// Get returns the current value of a field, nil for NULL or unset.
func (r *Record) Get(name string) any {
	return r.Values[name]
}

// Set replaces the in-memory value of a field. Nothing is persisted until
// the record is saved.
func (r *Record) Set(name string, value any) {
	r.Values[name] = value
}

// PK returns the primary key value.
func (r *Record) PK() any {
	return r.Values[r.Type.pk]
}

// PKString returns the primary key in text form. Keys may be of
// heterogeneous kinds across entity types, so stores and logs key on the
// text form.
func (r *Record) PKString() string {
	return ValueString(r.PK())
}

// Clone returns a deep-enough copy of the record: the value map is copied,
// byte and pk-list slices are duplicated.
func (r *Record) Clone() *Record {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		switch tv := v.(type) {
		case []byte:
			values[k] = append([]byte(nil), tv...)
		case []any:
			values[k] = append([]any(nil), tv...)
		default:
			values[k] = v
		}
	}
	return &Record{Type: r.Type, Values: values}
}

// ValueString renders a field value the way exports and log targets need it:
// empty string for NULL, RFC 3339 for times, fmt for everything else.
func ValueString(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case time.Time:
		return tv.Format(time.RFC3339)
	case []byte:
		return string(tv)
	default:
		return fmt.Sprint(tv)
	}
}
