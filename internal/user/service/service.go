package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"freewalk/internal/platform/metrics"
	"freewalk/internal/user/models"
	id "freewalk/pkg/domain"
	dErrors "freewalk/pkg/domain-errors"
	"freewalk/pkg/email"
	"freewalk/pkg/platform/sentinel"
	"freewalk/pkg/requestcontext"
)

// Store is the persistence surface of the user service.
type Store interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindOrCreate(ctx context.Context, u models.User) (*models.User, bool, error)
}

// Service syncs identity provider accounts into local users.
type Service struct {
	store     Store
	blocklist *email.Blocklist
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, blocklist *email.Blocklist, opts ...Option) *Service {
	s := &Service{
		store:     store,
		blocklist: blocklist,
		logger:    slog.Default(),
	}
	if s.blocklist == nil {
		s.blocklist = email.NewBlocklist()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncByEmail returns the local user for a verified email, creating it with
// zero points on first sight. Disposable addresses are refused.
func (s *Service) SyncByEmail(ctx context.Context, address string) (*models.User, error) {
	normalized := email.Normalize(address)
	if !email.Valid(normalized) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "identity token carries no usable email")
	}
	if s.blocklist.Blocked(normalized) {
		s.logger.WarnContext(ctx, "rejected disposable email",
			"domain", email.Domain(normalized),
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "disposable or temporary email addresses are not allowed")
	}

	u, err := s.store.FindByEmail(ctx, normalized)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, s.translate(ctx, err, "failed to load user")
	}

	u, created, err := s.store.FindOrCreate(ctx, models.User{
		ID:        id.UserID(uuid.New()),
		Email:     normalized,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, s.translate(ctx, err, "failed to create user")
	}
	if created {
		if s.metrics != nil {
			s.metrics.IncrementUsersCreated()
		}
		s.logger.InfoContext(ctx, "user created",
			"user_id", u.ID,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, s.translate(ctx, err, "failed to load user")
	}
	return u, nil
}

func (s *Service) translate(ctx context.Context, err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "user store unavailable, retry later")
	}
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
