// Package responder generates assistant replies for chat turns. The chat
// service hands it a fully assembled prompt; it knows nothing about
// conversations or storage.
package responder

import "context"

// Turn is one prior exchange line included in the prompt window.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything a responder needs for one reply.
type Request struct {
	SystemPrompt  string
	MemoryContext string
	History       []Turn
	UserText      string
	Model         string
	Temperature   float64
	MaxTokens     int
}

type Responder interface {
	Reply(ctx context.Context, req Request) (string, error)
}

const placeholderReply = "This is a placeholder response. LLM integration coming soon."

// Placeholder answers every turn with a canned reply. Used when no LLM
// backend is configured and as the degraded path when one fails.
type Placeholder struct{}

func NewPlaceholder() Placeholder { return Placeholder{} }

func (Placeholder) Reply(_ context.Context, _ Request) (string, error) {
	return placeholderReply, nil
}
