package responder

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig covers OpenAI itself and any OpenAI-compatible endpoint
// (ollama, vLLM) via BaseURL.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Model overrides the per-agent model when set.
	Model string
}

type OpenAIResponder struct {
	client *openai.Client
	model  string
}

func NewOpenAIResponder(cfg OpenAIConfig) *OpenAIResponder {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIResponder{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}
}

func (r *OpenAIResponder) Reply(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if r.model != "" {
		model = r.model
	}

	system := req.SystemPrompt
	if req.MemoryContext != "" {
		system = strings.TrimRight(system, "\n") + "\n\n" + req.MemoryContext
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, turn := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserText,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
