package anonymiser

import (
	"time"

	"github.com/google/uuid"

	"veil/internal/schema"
)

// Func replaces one field's value according to its kind. It receives the
// whole record because several rules derive the replacement from the primary
// key. It must not mutate the record itself.
type Func func(rec *schema.Record, field schema.Field, value any) (any, error)

// Registry maps a field kind to its replacement function. Exactly one
// function per kind; registering a second replaces the first, which is the
// extension point for custom field kinds.
type Registry struct {
	funcs map[schema.FieldKind]Func
}

// NewRegistry returns a registry pre-loaded with the default policies.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[schema.FieldKind]Func)}
	r.Register(anonymiseInt, schema.KindInt)
	r.Register(anonymiseChar, schema.KindChar, schema.KindSlug, schema.KindText)
	r.Register(anonymiseBinary, schema.KindBinary)
	r.Register(anonymiseBool, schema.KindBool)
	r.Register(anonymiseDate, schema.KindDate)
	r.Register(anonymiseDateTime, schema.KindDateTime)
	r.Register(anonymiseTime, schema.KindTime)
	r.Register(anonymiseDuration, schema.KindDuration)
	r.Register(anonymiseDecimal, schema.KindDecimal, schema.KindFloat)
	r.Register(anonymiseFile, schema.KindFile, schema.KindFilePath, schema.KindImage)
	r.Register(anonymiseEmail, schema.KindEmail)
	r.Register(anonymiseIP, schema.KindIPAddress)
	r.Register(anonymiseURL, schema.KindURL)
	r.Register(anonymiseUUID, schema.KindUUID)
	r.Register(anonymiseRelationship, schema.KindForeignKey, schema.KindOneToOne)
	r.Register(anonymiseManyToMany, schema.KindManyToMany)
	return r
}

// Register installs fn for the given kinds, last registration wins.
func (r *Registry) Register(fn Func, kinds ...schema.FieldKind) {
	for _, kind := range kinds {
		r.funcs[kind] = fn
	}
}

// Resolve returns the function registered for a kind.
func (r *Registry) Resolve(kind schema.FieldKind) (Func, bool) {
	fn, ok := r.funcs[kind]
	return fn, ok
}

// AnonymiseField resolves and applies the registered function for the named
// field, mutating the record in memory. Primary keys and unregistered kinds
// are refused.
func (r *Registry) AnonymiseField(rec *schema.Record, name string) error {
	field, ok := rec.Type.Field(name)
	if !ok {
		return &AnonymiseError{Field: name, Reason: "no such field on " + rec.Type.Name}
	}
	if field.PrimaryKey {
		return errPrimaryKey()
	}
	fn, ok := r.Resolve(field.Kind)
	if !ok {
		return errUnknownKind()
	}
	replacement, err := fn(rec, field, rec.Get(name))
	if err != nil {
		return err
	}
	rec.Set(name, replacement)
	return nil
}

func anonymiseInt(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return int64(0), nil
}

func anonymiseChar(rec *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Blank && !field.Unique {
		return "", nil
	}
	return rec.PKString(), nil
}

func anonymiseBinary(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return []byte{}, nil
}

func anonymiseBool(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return false, nil
}

func anonymiseDate(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
}

func anonymiseDateTime(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return time.Now(), nil
}

func anonymiseTime(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return time.Duration(0), nil
}

func anonymiseDuration(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return time.Duration(0), nil
}

func anonymiseDecimal(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return float64(0), nil
}

func anonymiseFile(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return nil, &AnonymiseError{Field: field.Name, Reason: "can only null file fields"}
}

func anonymiseEmail(rec *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return rec.PKString() + "@anon.example.com", nil
}

func anonymiseIP(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return "0.0.0.0", nil
}

func anonymiseURL(rec *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Blank {
		return "", nil
	}
	return "http://" + rec.PKString() + ".anon.example.com", nil
}

func anonymiseUUID(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	if field.Unique {
		// Collision-safe by construction, and never equal to the original.
		return uuid.New(), nil
	}
	return uuid.Nil, nil
}

func anonymiseRelationship(_ *schema.Record, field schema.Field, _ any) (any, error) {
	if field.Null {
		return nil, nil
	}
	return nil, &AnonymiseError{Field: field.Name, Reason: "can only null relationship field; put into fk_fields instead"}
}

func anonymiseManyToMany(_ *schema.Record, field schema.Field, _ any) (any, error) {
	return nil, &AnonymiseError{Field: field.Name, Reason: "cannot anonymise ManyToManyField; put into set_fields instead"}
}
