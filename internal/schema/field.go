package schema

import "fmt"

// FieldKind identifies the declared kind of a field. The anonymiser registry
// dispatches on kind, not on field name.
type FieldKind int

const (
	KindInt FieldKind = iota
	KindChar
	KindSlug
	KindText
	KindBinary
	KindBool
	KindDate
	KindDateTime
	KindTime
	KindDuration
	KindDecimal
	KindFloat
	KindFile
	KindFilePath
	KindImage
	KindEmail
	KindIPAddress
	KindURL
	KindUUID
	KindForeignKey
	KindOneToOne
	KindManyToMany
)

var kindNames = map[FieldKind]string{
	KindInt:        "int",
	KindChar:       "char",
	KindSlug:       "slug",
	KindText:       "text",
	KindBinary:     "binary",
	KindBool:       "bool",
	KindDate:       "date",
	KindDateTime:   "datetime",
	KindTime:       "time",
	KindDuration:   "duration",
	KindDecimal:    "decimal",
	KindFloat:      "float",
	KindFile:       "file",
	KindFilePath:   "filepath",
	KindImage:      "image",
	KindEmail:      "email",
	KindIPAddress:  "ipaddress",
	KindURL:        "url",
	KindUUID:       "uuid",
	KindForeignKey: "foreignkey",
	KindOneToOne:   "onetoone",
	KindManyToMany: "manytomany",
}

func (k FieldKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("fieldkind(%d)", int(k))
}

// IsRelation reports whether the kind holds a reference to a single related
// record.
func (k FieldKind) IsRelation() bool {
	return k == KindForeignKey || k == KindOneToOne
}

// DeleteAction is what happens to a referencing record when the record it
// points at is deleted.
type DeleteAction int

const (
	DoNothing DeleteAction = iota
	SetNull
	SetDefault
	Cascade
	Protect
)

var actionNames = map[DeleteAction]string{
	DoNothing:  "DO_NOTHING",
	SetNull:    "SET_NULL",
	SetDefault: "SET_DEFAULT",
	Cascade:    "CASCADE",
	Protect:    "PROTECT",
}

func (a DeleteAction) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("deleteaction(%d)", int(a))
}

// OnDelete is the full delete policy of a relation. When Anonymise is set the
// referencing record is anonymised before Action is applied to the linkage
// field; Action is then limited to the non-destructive actions.
type OnDelete struct {
	Action    DeleteAction
	Anonymise bool
}

// Anonymise wraps a delete action with the anonymise-on-delete policy.
// Cascade and Protect cannot be wrapped: cascading would destroy the record
// we just anonymised, and protecting would prevent the delete entirely.
func Anonymise(action DeleteAction) (OnDelete, error) {
	if action == Cascade || action == Protect {
		return OnDelete{}, fmt.Errorf("cannot ANONYMISE(%s)", action)
	}
	return OnDelete{Action: action, Anonymise: true}, nil
}

// MustAnonymise is Anonymise for statically-known actions, for use in schema
// literals.
func MustAnonymise(action DeleteAction) OnDelete {
	od, err := Anonymise(action)
	if err != nil {
		panic(err)
	}
	return od
}

// Field describes one declared field of an entity type.
type Field struct {
	Name       string
	Kind       FieldKind
	Null       bool
	Blank      bool
	Unique     bool
	PrimaryKey bool
	Default    any

	// RelatedType names the target entity type for relation kinds
	// (ForeignKey, OneToOne, ManyToMany).
	RelatedType string

	// OnDelete applies to ForeignKey and OneToOne fields.
	OnDelete OnDelete
}
