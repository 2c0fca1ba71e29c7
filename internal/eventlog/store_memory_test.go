package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"veil/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) TestAppendAndQuery() {
	s.Require().NoError(s.store.Append(s.ctx, New(EventAnonymise, "Person", "1", "admin")))
	s.Require().NoError(s.store.Append(s.ctx, New(EventDelete, "Person", "2", "")))
	s.Require().NoError(s.store.Append(s.ctx, New(EventAnonymise, "Invoice", "1", "")))

	s.Run("all preserves append order", func() {
		all, err := s.store.All(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 3)
		s.Equal(EventAnonymise, all[0].Event)
		s.Equal("Invoice", all[2].EntityType)
	})

	s.Run("for target filters on type and pk", func() {
		entries, err := s.store.ForTarget(s.ctx, "Person", "1")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("admin", entries[0].ActingUser)
	})

	s.Run("for target with no entries is empty", func() {
		entries, err := s.store.ForTarget(s.ctx, "Person", "99")
		s.Require().NoError(err)
		s.Empty(entries)
	})
}

func (s *InMemoryStoreSuite) TestAttachError() {
	s.Run("missing target is an error", func() {
		err := s.store.AttachError(s.ctx, "Person", "1", "boom")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("attaches to the most recent entry for the target", func() {
		s.Require().NoError(s.store.Append(s.ctx, New(EventAnonymise, "Person", "1", "")))
		s.Require().NoError(s.store.Append(s.ctx, New(EventAnonymise, "Person", "1", "")))
		s.Require().NoError(s.store.AttachError(s.ctx, "Person", "1", "save failed"))

		entries, err := s.store.ForTarget(s.ctx, "Person", "1")
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("", entries[0].ErrorMessage)
		s.Equal("save failed", entries[1].ErrorMessage)
	})
}
