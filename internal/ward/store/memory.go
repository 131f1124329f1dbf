package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"freewalk/internal/ward/models"
	id "freewalk/pkg/domain"
)

// InMemory keeps wards in process; ids are assigned in insertion order.
type InMemory struct {
	mu     sync.RWMutex
	byName map[string]id.WardID
	wards  map[id.WardID]models.Ward
	nextID id.WardID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byName: make(map[string]id.WardID),
		wards:  make(map[id.WardID]models.Ward),
	}
}

func (s *InMemory) ListWards(_ context.Context) ([]models.Ward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ward, 0, len(s.wards))
	for _, w := range s.wards {
		out = append(out, w)
	}
	slices.SortFunc(out, func(a, b models.Ward) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *InMemory) Upsert(_ context.Context, w models.Ward) (id.WardID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byName[w.Name]; ok {
		w.ID = existing
		s.wards[existing] = w
		return existing, nil
	}
	s.nextID++
	w.ID = s.nextID
	s.byName[w.Name] = w.ID
	s.wards[w.ID] = w
	return w.ID, nil
}
