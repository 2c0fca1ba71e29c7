package anonymiser

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"veil/internal/schema"
)

type AnonymiserSuite struct {
	suite.Suite
	registry *Registry
}

func TestAnonymiserSuite(t *testing.T) {
	suite.Run(t, new(AnonymiserSuite))
}

func (s *AnonymiserSuite) SetupTest() {
	s.registry = NewRegistry()
}

// record builds a one-field record of the given kind plus an int64 pk of 1.
func (s *AnonymiserSuite) record(field schema.Field, value any) *schema.Record {
	if (field.Kind.IsRelation() || field.Kind == schema.KindManyToMany) && field.RelatedType == "" {
		field.RelatedType = "Other"
	}
	t := schema.MustEntityType("Model", []schema.Field{
		{Name: "id", Kind: schema.KindInt, PrimaryKey: true},
		field,
	})
	return schema.NewRecord(t, map[string]any{"id": int64(1), field.Name: value})
}

func (s *AnonymiserSuite) anonymised(field schema.Field, value any) any {
	rec := s.record(field, value)
	s.Require().NoError(s.registry.AnonymiseField(rec, field.Name))
	return rec.Get(field.Name)
}

func (s *AnonymiserSuite) TestNullableFieldsAnonymiseToNull() {
	kinds := []schema.FieldKind{
		schema.KindInt, schema.KindBinary, schema.KindBool, schema.KindDate,
		schema.KindDateTime, schema.KindTime, schema.KindDuration,
		schema.KindDecimal, schema.KindFloat, schema.KindFile,
		schema.KindFilePath, schema.KindImage, schema.KindEmail,
		schema.KindIPAddress, schema.KindUUID,
		schema.KindForeignKey, schema.KindOneToOne,
	}
	for _, kind := range kinds {
		s.Run(kind.String(), func() {
			got := s.anonymised(schema.Field{Name: "field", Kind: kind, Null: true}, "original")
			s.Nil(got)
		})
	}
}

func (s *AnonymiserSuite) TestNotNullableDefaults() {
	s.Run("int to zero", func() {
		s.Equal(int64(0), s.anonymised(schema.Field{Name: "field", Kind: schema.KindInt}, int64(42)))
	})

	s.Run("blank char to empty string", func() {
		s.Equal("", s.anonymised(schema.Field{Name: "field", Kind: schema.KindChar, Blank: true}, "Test"))
	})

	s.Run("non-blank char to pk string", func() {
		s.Equal("1", s.anonymised(schema.Field{Name: "field", Kind: schema.KindChar}, "Test"))
	})

	s.Run("blank unique slug to pk string", func() {
		s.Equal("1", s.anonymised(schema.Field{Name: "field", Kind: schema.KindSlug, Blank: true, Unique: true}, "slug"))
	})

	s.Run("binary to empty bytes", func() {
		s.Equal([]byte{}, s.anonymised(schema.Field{Name: "field", Kind: schema.KindBinary}, []byte("data")))
	})

	s.Run("bool to false", func() {
		s.Equal(false, s.anonymised(schema.Field{Name: "field", Kind: schema.KindBool}, true))
	})

	s.Run("date to today", func() {
		got, ok := s.anonymised(schema.Field{Name: "field", Kind: schema.KindDate}, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)).(time.Time)
		s.Require().True(ok)
		now := time.Now()
		s.Equal(now.Year(), got.Year())
		s.Equal(now.YearDay(), got.YearDay())
		s.Equal(0, got.Hour())
	})

	s.Run("datetime to now", func() {
		got, ok := s.anonymised(schema.Field{Name: "field", Kind: schema.KindDateTime}, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)).(time.Time)
		s.Require().True(ok)
		s.WithinDuration(time.Now(), got, time.Minute)
	})

	s.Run("time to zero time of day", func() {
		s.Equal(time.Duration(0), s.anonymised(schema.Field{Name: "field", Kind: schema.KindTime}, 5*time.Hour))
	})

	s.Run("duration to zero", func() {
		s.Equal(time.Duration(0), s.anonymised(schema.Field{Name: "field", Kind: schema.KindDuration}, time.Second))
	})

	s.Run("decimal and float to zero", func() {
		s.Equal(float64(0), s.anonymised(schema.Field{Name: "field", Kind: schema.KindDecimal}, 1.5))
		s.Equal(float64(0), s.anonymised(schema.Field{Name: "field", Kind: schema.KindFloat}, 1.5))
	})

	s.Run("email to pk address", func() {
		s.Equal("1@anon.example.com", s.anonymised(schema.Field{Name: "field", Kind: schema.KindEmail}, "test@example.com"))
	})

	s.Run("ip to zeroes", func() {
		s.Equal("0.0.0.0", s.anonymised(schema.Field{Name: "field", Kind: schema.KindIPAddress}, "127.0.0.1"))
	})

	s.Run("blank url to empty string", func() {
		s.Equal("", s.anonymised(schema.Field{Name: "field", Kind: schema.KindURL, Blank: true}, "http://example.com"))
	})

	s.Run("non-blank url to pk url", func() {
		s.Equal("http://1.anon.example.com", s.anonymised(schema.Field{Name: "field", Kind: schema.KindURL}, "http://example.com"))
	})

	s.Run("non-unique uuid to zero uuid", func() {
		s.Equal(uuid.Nil, s.anonymised(schema.Field{Name: "field", Kind: schema.KindUUID}, uuid.New()))
	})

	s.Run("unique uuid to fresh uuid", func() {
		original := uuid.New()
		got, ok := s.anonymised(schema.Field{Name: "field", Kind: schema.KindUUID, Unique: true}, original).(uuid.UUID)
		s.Require().True(ok)
		s.NotEqual(original, got)
		s.NotEqual(uuid.Nil, got)
	})
}

func (s *AnonymiserSuite) TestForbiddenKinds() {
	s.Run("file without null fails", func() {
		rec := s.record(schema.Field{Name: "upload", Kind: schema.KindFile}, "path")
		err := s.registry.AnonymiseField(rec, "upload")
		s.Require().Error(err)
		s.Equal("cannot anonymise upload - can only null file fields", err.Error())
	})

	s.Run("relationship without null fails", func() {
		rec := s.record(schema.Field{Name: "target", Kind: schema.KindForeignKey, RelatedType: "Other"}, int64(2))
		err := s.registry.AnonymiseField(rec, "target")
		s.Require().Error(err)
		s.Equal("cannot anonymise target - can only null relationship field; put into fk_fields instead", err.Error())
	})

	s.Run("many to many always fails", func() {
		rec := s.record(schema.Field{Name: "tags", Kind: schema.KindManyToMany, Null: true, RelatedType: "Tag"}, []any{int64(1)})
		err := s.registry.AnonymiseField(rec, "tags")
		s.Require().Error(err)
		s.Equal("cannot anonymise tags - cannot anonymise ManyToManyField; put into set_fields instead", err.Error())
	})

	s.Run("primary key always fails", func() {
		rec := s.record(schema.Field{Name: "field", Kind: schema.KindChar}, "x")
		err := s.registry.AnonymiseField(rec, "id")
		s.Require().Error(err)
		s.Equal("cannot anonymise primary key", err.Error())
	})

	s.Run("unregistered kind fails", func() {
		custom := schema.FieldKind(1000)
		rec := s.record(schema.Field{Name: "field", Kind: custom}, "x")
		err := s.registry.AnonymiseField(rec, "field")
		s.Require().Error(err)
		s.Equal("unknown field type for anonymiser", err.Error())
	})
}

func (s *AnonymiserSuite) TestLastRegistrationWins() {
	custom := schema.FieldKind(1000)
	s.registry.Register(func(_ *schema.Record, _ schema.Field, _ any) (any, error) {
		return "first", nil
	}, custom)
	s.registry.Register(func(_ *schema.Record, _ schema.Field, _ any) (any, error) {
		return "second", nil
	}, custom)

	s.Equal("second", s.anonymised(schema.Field{Name: "field", Kind: custom}, "x"))
}
