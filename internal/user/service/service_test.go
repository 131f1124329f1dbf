package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"freewalk/internal/user/models"
	"freewalk/internal/user/store"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/email"
	"freewalk/pkg/platform/sentinel"
)

type UserServiceSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	service *Service
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceSuite))
}

func (s *UserServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.service = New(s.store, email.NewBlocklist("burner.example"),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *UserServiceSuite) TestSyncByEmail() {
	s.Run("creates a user with zero points on first login", func() {
		u, err := s.service.SyncByEmail(s.ctx, "New.User@Example.com")
		s.Require().NoError(err)
		s.Equal("new.user@example.com", u.Email)
		s.Zero(u.TotalPoints)
		s.False(u.ID.IsNil())
	})

	s.Run("returns the same user on later logins", func() {
		first, err := s.service.SyncByEmail(s.ctx, "repeat@example.com")
		s.Require().NoError(err)
		second, err := s.service.SyncByEmail(s.ctx, " REPEAT@example.com")
		s.Require().NoError(err)
		s.Equal(first.ID, second.ID)
	})

	s.Run("refuses disposable domains", func() {
		_, err := s.service.SyncByEmail(s.ctx, "someone@mailinator.com")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.SyncByEmail(s.ctx, "someone@burner.example")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("refuses tokens without a usable email", func() {
		_, err := s.service.SyncByEmail(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *UserServiceSuite) TestGet() {
	u, err := s.service.SyncByEmail(s.ctx, "get@example.com")
	s.Require().NoError(err)

	found, err := s.service.Get(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Email, found.Email)

	_, err = s.service.Get(s.ctx, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

type unavailableStore struct{}

func (unavailableStore) FindByID(context.Context, id.UserID) (*models.User, error) {
	return nil, sentinel.ErrUnavailable
}

func (unavailableStore) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, errors.Join(errors.New("dial tcp"), sentinel.ErrUnavailable)
}

func (unavailableStore) FindOrCreate(context.Context, models.User) (*models.User, bool, error) {
	return nil, false, sentinel.ErrUnavailable
}

func (s *UserServiceSuite) TestStoreUnavailable() {
	svc := New(unavailableStore{}, nil, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := svc.SyncByEmail(s.ctx, "jane@example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = svc.Get(s.ctx, id.UserID(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
