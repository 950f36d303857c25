package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Providers an agent may route completions through.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
	MinTemperature       = 0.0
	MaxTemperature       = 2.0
	MaxMaxTokens         = 32000
)

var (
	ErrNotFound     = errors.New("agent not found")
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidAgent = errors.New("invalid agent")
)

// Agent is a per-user LLM persona. Every user owns at least one default
// agent, created lazily the first time their conversation is opened.
type Agent struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Provider     string    `json:"llm_provider"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	MaxTokens    int       `json:"max_tokens"`
	SystemPrompt string    `json:"system_prompt"`
	IsDefault    bool      `json:"is_default"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a Agent) Validate() error {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidAgent)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAgent, MaxNameLength)
	}
	if len(a.Description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidAgent, MaxDescriptionLength)
	}
	if a.Provider != ProviderOllama && a.Provider != ProviderOpenAI {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidAgent, a.Provider)
	}
	if a.Model == "" {
		return fmt.Errorf("%w: model must not be empty", ErrInvalidAgent)
	}
	if a.Temperature < MinTemperature || a.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [%.1f, %.1f]", ErrInvalidAgent, a.Temperature, MinTemperature, MaxTemperature)
	}
	if a.MaxTokens <= 0 || a.MaxTokens > MaxMaxTokens {
		return fmt.Errorf("%w: max_tokens %d outside (0, %d]", ErrInvalidAgent, a.MaxTokens, MaxMaxTokens)
	}
	return nil
}

const defaultSystemPrompt = `You are Meggy, a friendly and proactive AI companion who learns about your user over time. ` +
	`You have access to long-term memories about the user (their name, preferences, goals, relationships, etc.) ` +
	`which will be provided at the start of each conversation. Use these memories to personalize your responses.

You provide clear, concise responses while maintaining a warm, conversational tone.

BUILT-IN FEATURES:
• Notes System: Users can say "show notes" to access their notes, create new notes, add entries, and manage their collection.
• Memory: You automatically remember important facts about the user (name, preferences, goals, etc.) and can reference them naturally.

When users share personal information, acknowledge it naturally - you'll remember it for future conversations. ` +
	`Be proactive and caring, like a good friend who pays attention and remembers what matters.`

// DefaultAgent returns the Meggy persona created for users with no agents yet.
func DefaultAgent(userID string) Agent {
	return Agent{
		UserID:       userID,
		Name:         "Meggy",
		Description:  "Your proactive AI companion",
		Provider:     ProviderOllama,
		Model:        "llama3.2:latest",
		Temperature:  0.7,
		MaxTokens:    2000,
		SystemPrompt: defaultSystemPrompt,
		IsDefault:    true,
		IsActive:     true,
	}
}

// Store persists agents. Implementations must scope every read and write to
// the owning user.
type Store interface {
	Create(ctx context.Context, agent Agent) (Agent, error)
	GetByID(ctx context.Context, userID, id string) (Agent, error)
	ListByUser(ctx context.Context, userID string) ([]Agent, error)
	// GetDefault returns the user's default agent, or the oldest agent when
	// none is flagged default, or ErrNotFound when the user has no agents.
	GetDefault(ctx context.Context, userID string) (Agent, error)
	Update(ctx context.Context, agent Agent) (Agent, error)
	Delete(ctx context.Context, userID, id string) error
	// DeleteByUser removes every agent the user owns. SQL backends also
	// cascade this from the users table; the in-memory backend relies on it.
	DeleteByUser(ctx context.Context, userID string) error
	Close() error
}

// EnsureDefault returns the user's default agent, creating the Meggy persona
// when the user has none.
func EnsureDefault(ctx context.Context, store Store, userID string) (Agent, error) {
	agent, err := store.GetDefault(ctx, userID)
	if err == nil {
		return agent, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Agent{}, err
	}
	return store.Create(ctx, DefaultAgent(userID))
}
