package agents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Agent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byUser: make(map[string]map[string]*Agent)}
}

func (s *InMemoryStore) Create(_ context.Context, agent Agent) (Agent, error) {
	if err := agent.Validate(); err != nil {
		return Agent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := agent
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	owned := s.byUser[a.UserID]
	if owned == nil {
		owned = make(map[string]*Agent)
		s.byUser[a.UserID] = owned
	}
	if a.IsDefault {
		for _, other := range owned {
			other.IsDefault = false
		}
	}
	owned[a.ID] = &a
	return a, nil
}

func (s *InMemoryStore) GetByID(_ context.Context, userID, id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byUser[userID][id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return *a, nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owned := s.byUser[userID]
	out := make([]Agent, 0, len(owned))
	for _, a := range owned {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) GetDefault(ctx context.Context, userID string) (Agent, error) {
	all, err := s.ListByUser(ctx, userID)
	if err != nil {
		return Agent{}, err
	}
	for _, a := range all {
		if a.IsDefault {
			return a, nil
		}
	}
	if len(all) > 0 {
		return all[0], nil
	}
	return Agent{}, ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, agent Agent) (Agent, error) {
	if err := agent.Validate(); err != nil {
		return Agent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.byUser[agent.UserID]
	existing, ok := owned[agent.ID]
	if !ok {
		return Agent{}, ErrNotFound
	}
	a := agent
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	if a.IsDefault {
		for _, other := range owned {
			other.IsDefault = false
		}
	}
	owned[a.ID] = &a
	return a, nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owned := s.byUser[userID]
	if _, ok := owned[id]; !ok {
		return ErrNotFound
	}
	delete(owned, id)
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
