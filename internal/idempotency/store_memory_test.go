package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type MemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	store *MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore()
	s.store.now = func() time.Time { return s.now }
}

func (s *MemoryStoreSuite) TestLifecycle() {
	resp, err := s.store.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Nil(resp)

	_, err = s.store.Begin(s.ctx, "k", time.Minute)
	s.ErrorIs(err, ErrInFlight)

	s.Require().NoError(s.store.Complete(s.ctx, "k", Response{Status: 201, Body: []byte("ok")}, time.Hour))
	resp, err = s.store.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(resp)
	s.Equal(201, resp.Status)

	s.now = s.now.Add(2 * time.Hour)
	resp, err = s.store.Begin(s.ctx, "k", time.Minute)
	s.Require().NoError(err)
	s.Nil(resp, "expired response is reclaimed")
}

func (s *MemoryStoreSuite) TestAbortReleasesPendingOnly() {
	_, err := s.store.Begin(s.ctx, "pending", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Abort(s.ctx, "pending"))
	resp, err := s.store.Begin(s.ctx, "pending", time.Minute)
	s.Require().NoError(err)
	s.Nil(resp)

	s.Require().NoError(s.store.Complete(s.ctx, "done", Response{Status: 200}, time.Hour))
	s.Require().NoError(s.store.Abort(s.ctx, "done"))
	resp, err = s.store.Begin(s.ctx, "done", time.Minute)
	s.Require().NoError(err)
	s.NotNil(resp)
}

func (s *MemoryStoreSuite) TestPendingClaimExpires() {
	_, err := s.store.Begin(s.ctx, "stuck", time.Minute)
	s.Require().NoError(err)
	s.now = s.now.Add(2 * time.Minute)
	resp, err := s.store.Begin(s.ctx, "stuck", time.Minute)
	s.Require().NoError(err)
	s.Nil(resp)
}
