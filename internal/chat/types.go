// Package chat holds the single continuing conversation each user has with
// their assistant, its message log, and the service that runs one chat turn
// through the memory pipeline.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const DefaultConversationTitle = "Chat with Meggy"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrUserNotFound         = errors.New("user not found")
)

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant || role == RoleSystem
}

// Conversation is the one continuous timeline between a user and their
// assistant. Each user has exactly one; it is created on first contact and
// bound to their default agent.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	Title     string    `json:"title"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m Message) Validate() error {
	if !ValidRole(m.Role) {
		return errors.New("invalid message role")
	}
	if strings.TrimSpace(m.Content) == "" {
		return errors.New("message content must not be empty")
	}
	return nil
}

// Store persists conversations and messages.
type Store interface {
	// GetOrCreateConversation returns the user's conversation, creating it
	// bound to agentID when absent. Reports whether it was created.
	GetOrCreateConversation(ctx context.Context, userID, agentID string) (Conversation, bool, error)
	GetConversation(ctx context.Context, userID string) (Conversation, error)
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	// RecentMessages returns up to limit of the newest messages in
	// chronological order. limit <= 0 means no cap.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// DeleteByUser removes the user's conversation and its messages. SQL
	// backends also cascade this from the users table; the in-memory
	// backend relies on it.
	DeleteByUser(ctx context.Context, userID string) error
	Close() error
}
