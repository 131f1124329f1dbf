package store

import (
	"context"
	"fmt"
	"sync"

	"freewalk/internal/user/models"
	id "freewalk/pkg/domain"
	"freewalk/pkg/platform/sentinel"
)

// InMemory keeps users in process. It also serves as the balance book of the
// in-memory report store.
type InMemory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.User
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[id.UserID]*models.User),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.users[userID]
	return &clone, nil
}

// FindOrCreate inserts u unless a user with the same email exists, in which
// case the existing user is returned with created=false.
func (s *InMemory) FindOrCreate(_ context.Context, u models.User) (*models.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byEmail[u.Email]; ok {
		clone := *s.users[existing]
		return &clone, false, nil
	}
	if _, ok := s.users[u.ID]; ok {
		return nil, false, fmt.Errorf("user %s: %w", u.ID, sentinel.ErrAlreadyUsed)
	}
	stored := u
	s.users[u.ID] = &stored
	s.byEmail[u.Email] = u.ID
	clone := stored
	return &clone, true, nil
}

// Balance returns the committed point total.
func (s *InMemory) Balance(_ context.Context, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	return u.TotalPoints, nil
}

// Credit adds delta to the balance and returns the new total. Negative deltas
// are rejected.
func (s *InMemory) Credit(_ context.Context, userID id.UserID, delta int64) (int64, error) {
	if delta < 0 {
		return 0, fmt.Errorf("credit %d points: %w", delta, sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("user %s: %w", userID, sentinel.ErrNotFound)
	}
	u.TotalPoints += delta
	return u.TotalPoints, nil
}
