package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	byUser   map[string]*Conversation
	messages map[string][]Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byUser:   make(map[string]*Conversation),
		messages: make(map[string][]Message),
	}
}

func (s *InMemoryStore) GetOrCreateConversation(_ context.Context, userID, agentID string) (Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.byUser[userID]; ok {
		return *conv, false, nil
	}
	now := time.Now().UTC()
	conv := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Title:     DefaultConversationTitle,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byUser[userID] = &conv
	return conv, true, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.byUser[userID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return *conv, nil
}

func (s *InMemoryStore) AppendMessage(_ context.Context, msg Message) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *Conversation
	for _, c := range s.byUser {
		if c.ID == msg.ConversationID {
			conv = c
			break
		}
	}
	if conv == nil {
		return Message{}, ErrConversationNotFound
	}

	m := msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()
	s.messages[conv.ID] = append(s.messages[conv.ID], m)
	conv.UpdatedAt = m.CreatedAt
	return m, nil
}

func (s *InMemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.byUser[userID]
	if !ok {
		return nil
	}
	delete(s.messages, conv.ID)
	delete(s.byUser, userID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
