package privacy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"veil/internal/schema"
	"veil/pkg/platform/sentinel"
)

type ReplaySuite struct {
	suite.Suite
	ctx      context.Context
	h        *harness
	replayer *Replayer
	target   *schema.EntityType
}

func TestReplaySuite(t *testing.T) {
	suite.Run(t, new(ReplaySuite))
}

func (s *ReplaySuite) SetupTest() {
	s.ctx = context.Background()
	s.h = newHarness()
	var dep *schema.EntityType
	s.target, dep = s.h.registerPair()
	var err error
	s.replayer, err = NewReplayer(s.h.log, s.h.store, s.h.engine, []*schema.EntityType{s.target, dep})
	s.Require().NoError(err)
}

func (s *ReplaySuite) TestRerunReanonymisesRestoredRecords() {
	rec := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, rec))
	s.Require().NoError(s.h.engine.Anonymise(s.ctx, rec, Options{Actor: "gdpr-admin"}))

	// A backup restore brings the pre-anonymisation data back.
	restored := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, restored))

	s.Require().NoError(s.replayer.Rerun(s.ctx))

	loaded, err := s.h.store.Get(s.ctx, "PrivateTargetModel", int64(1))
	s.Require().NoError(err)
	s.Equal("", loaded.Get("chars"))
}

func (s *ReplaySuite) TestRerunRedeletesRestoredRecords() {
	rec := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, rec))
	s.Require().NoError(s.h.store.Delete(s.ctx, rec))

	restored := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, restored))

	s.Require().NoError(s.replayer.Rerun(s.ctx))

	_, err := s.h.store.Get(s.ctx, "PrivateTargetModel", int64(1))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ReplaySuite) TestRerunIsIdempotent() {
	rec := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, rec))
	s.Require().NoError(s.h.engine.Anonymise(s.ctx, rec, Options{}))

	s.Require().NoError(s.replayer.Rerun(s.ctx))
	s.Require().NoError(s.replayer.Rerun(s.ctx))

	loaded, err := s.h.store.Get(s.ctx, "PrivateTargetModel", int64(1))
	s.Require().NoError(err)
	s.Equal("", loaded.Get("chars"))
}

func (s *ReplaySuite) TestRerunSkipsVanishedTypesAndRecords() {
	rec := schema.NewRecord(s.target, map[string]any{"id": int64(1), "chars": "Test"})
	s.Require().NoError(s.h.store.Save(s.ctx, rec))
	s.Require().NoError(s.h.engine.Anonymise(s.ctx, rec, Options{}))

	// The record is gone and a logged type is no longer known: both are
	// skipped rather than failing the replay.
	s.Require().NoError(s.h.store.Delete(s.ctx, rec))
	replayer, err := NewReplayer(s.h.log, s.h.store, s.h.engine, nil)
	s.Require().NoError(err)

	s.NoError(replayer.Rerun(s.ctx))
	s.NoError(s.replayer.Rerun(s.ctx))
}
