package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a mutex-guarded map store for local/dev use and tests.
type InMemoryStore struct {
	mu     sync.Mutex
	byUser map[string]map[string]*Memory // userID -> key -> memory
	byID   map[string]*Memory
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byUser: make(map[string]map[string]*Memory),
		byID:   make(map[string]*Memory),
	}
}

func (s *InMemoryStore) Upsert(_ context.Context, userID, key string, fields Fields) (Memory, bool, error) {
	if err := validateKey(key); err != nil {
		return Memory{}, false, err
	}
	if err := fields.Validate(); err != nil {
		return Memory{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	keys, ok := s.byUser[userID]
	if !ok {
		keys = make(map[string]*Memory)
		s.byUser[userID] = keys
	}

	if existing, ok := keys[key]; ok {
		existing.Type = fields.Type
		existing.Value = fields.Value
		existing.Confidence = fields.Confidence
		existing.Importance = fields.Importance
		existing.SourceMessageID = fields.SourceMessageID
		existing.AccessCount++
		existing.LastAccessed = now
		return *existing, false, nil
	}

	m := &Memory{
		ID:              uuid.NewString(),
		UserID:          userID,
		Type:            fields.Type,
		Key:             key,
		Value:           fields.Value,
		Confidence:      fields.Confidence,
		Importance:      fields.Importance,
		FirstMentioned:  now,
		LastAccessed:    now,
		AccessCount:     0,
		SourceMessageID: fields.SourceMessageID,
	}
	keys[key] = m
	s.byID[m.ID] = m
	return *m, true, nil
}

func (s *InMemoryStore) Query(_ context.Context, q Query) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wanted map[Type]bool
	if len(q.Types) > 0 {
		wanted = make(map[Type]bool, len(q.Types))
		for _, t := range q.Types {
			wanted[t] = true
		}
	}

	out := make([]Memory, 0, len(s.byUser[q.UserID]))
	for _, m := range s.byUser[q.UserID] {
		if wanted != nil && !wanted[m.Type] {
			continue
		}
		out = append(out, *m)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		if !out[i].LastAccessed.Equal(out[j].LastAccessed) {
			return out[i].LastAccessed.After(out[j].LastAccessed)
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *InMemoryStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return ErrMemoryNotFound
	}
	m.AccessCount++
	m.LastAccessed = at
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok || m.UserID != userID {
		return ErrMemoryNotFound
	}
	delete(s.byID, id)
	delete(s.byUser[userID], m.Key)
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string, types ...Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.byUser[userID]
	if len(keys) == 0 {
		return 0, nil
	}

	var wanted map[Type]bool
	if len(types) > 0 {
		wanted = make(map[Type]bool, len(types))
		for _, t := range types {
			wanted[t] = true
		}
	}

	removed := 0
	for key, m := range keys {
		if wanted != nil && !wanted[m.Type] {
			continue
		}
		delete(keys, key)
		delete(s.byID, m.ID)
		removed++
	}
	if len(keys) == 0 {
		delete(s.byUser, userID)
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }
