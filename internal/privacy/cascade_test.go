package privacy

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"veil/internal/eventlog"
	"veil/internal/schema"
	"veil/pkg/platform/sentinel"
)

type CascadeSuite struct {
	suite.Suite
	ctx    context.Context
	h      *harness
	target *schema.EntityType
	dep    *schema.EntityType
}

func TestCascadeSuite(t *testing.T) {
	suite.Run(t, new(CascadeSuite))
}

func (s *CascadeSuite) SetupTest() {
	s.ctx = context.Background()
	s.h = newHarness()
	s.target, s.dep = s.h.registerPair()
}

func (s *CascadeSuite) saveLinkedPair() (*schema.Record, *schema.Record) {
	target := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Target"})
	s.Require().NoError(s.h.store.Save(s.ctx, target))
	dep := schema.NewRecord(s.dep, map[string]any{"id": int64(1), "chars": "Test", "target": int64(1)})
	s.Require().NoError(s.h.store.Save(s.ctx, dep))
	return target, dep
}

func (s *CascadeSuite) TestDeleteAnonymisesDependents() {
	target, _ := s.saveLinkedPair()

	s.Require().NoError(s.h.store.Delete(s.ctx, target))

	_, err := s.h.store.Get(s.ctx, "PrivateTargetModel", int64(1))
	s.ErrorIs(err, sentinel.ErrNotFound)

	dep, err := s.h.store.Get(s.ctx, "OneToOneFieldModel", int64(1))
	s.Require().NoError(err)
	s.Equal("", dep.Get("chars"))
	s.Nil(dep.Get("target"))

	done, err := s.h.engine.IsAnonymised(s.ctx, "OneToOneFieldModel", int64(1))
	s.Require().NoError(err)
	s.True(done)

	depLog, err := s.h.log.ForTarget(s.ctx, "OneToOneFieldModel", "1")
	s.Require().NoError(err)
	s.Equal([]eventlog.Event{eventlog.EventAnonymise}, entriesOf(depLog))

	targetLog, err := s.h.log.ForTarget(s.ctx, "PrivateTargetModel", "1")
	s.Require().NoError(err)
	s.Equal([]eventlog.Event{eventlog.EventDelete}, entriesOf(targetLog))

	s.Equal(float64(1), testutil.ToFloat64(s.h.metrics.CascadeAnonymisations))
}

func (s *CascadeSuite) TestAnonymiseDoesNotCascade() {
	target, _ := s.saveLinkedPair()

	// Anonymising the target is not deleting it: the dependent keeps its
	// data and its link.
	s.Require().NoError(s.h.engine.Anonymise(s.ctx, target, Options{}))

	dep, err := s.h.store.Get(s.ctx, "OneToOneFieldModel", int64(1))
	s.Require().NoError(err)
	s.Equal("Test", dep.Get("chars"))
	s.Equal(int64(1), dep.Get("target"))
}

func (s *CascadeSuite) TestDeleteAnonymisesEveryDependent() {
	target := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Target"})
	s.Require().NoError(s.h.store.Save(s.ctx, target))
	for i := int64(1); i <= 3; i++ {
		dep := schema.NewRecord(s.dep, map[string]any{"id": i, "chars": "Test", "target": int64(1)})
		s.Require().NoError(s.h.store.Save(s.ctx, dep))
	}

	s.Require().NoError(s.h.store.Delete(s.ctx, target))

	for i := int64(1); i <= 3; i++ {
		dep, err := s.h.store.Get(s.ctx, "OneToOneFieldModel", i)
		s.Require().NoError(err)
		s.Equal("", dep.Get("chars"))
	}
}

func (s *CascadeSuite) TestAlreadyAnonymisedDependentNoops() {
	target, dep := s.saveLinkedPair()
	s.Require().NoError(s.h.engine.Anonymise(s.ctx, dep, Options{}))

	s.Require().NoError(s.h.store.Delete(s.ctx, target))

	depLog, err := s.h.log.ForTarget(s.ctx, "OneToOneFieldModel", "1")
	s.Require().NoError(err)
	s.Equal([]eventlog.Event{eventlog.EventAnonymise, eventlog.EventAlreadyAnonymised}, entriesOf(depLog))
}

func (s *CascadeSuite) TestUnwatchedTypeDeletesQuietly() {
	other := schema.MustEntityType("Unrelated", []schema.Field{
		{Name: "id", Kind: schema.KindInt, PrimaryKey: true},
	})
	s.h.store.RegisterType(other)
	rec := schema.NewRecord(other, map[string]any{"id": int64(1)})
	s.Require().NoError(s.h.store.Save(s.ctx, rec))

	s.Require().NoError(s.h.store.Delete(s.ctx, rec))

	entries, err := s.h.log.All(s.ctx)
	s.Require().NoError(err)
	s.Empty(entries)
}
