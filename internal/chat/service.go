package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meggy-ai/meggy/internal/agents"
	"github.com/meggy-ai/meggy/internal/memory"
	"github.com/meggy-ai/meggy/internal/observability"
	"github.com/meggy-ai/meggy/internal/responder"
)

const (
	DefaultHistoryLimit = 20
	DefaultMemoryLimit  = memory.DefaultRelevantLimit
)

// Exchange is the result of one chat turn.
type Exchange struct {
	Conversation     Conversation        `json:"conversation"`
	UserMessage      Message             `json:"user_message"`
	AssistantMessage Message             `json:"assistant_message"`
	Extractions      []memory.Extraction `json:"extractions,omitempty"`
}

// Service runs chat turns: it persists the user message, feeds the memory
// pipeline, builds the prompt and persists the reply. A degraded memory
// subsystem or responder never fails the turn; the conversation continues
// with whatever is available.
type Service struct {
	store        Store
	users        memory.UserDirectory
	agents       agents.Store
	extractor    *memory.Extractor
	retriever    *memory.Retriever
	responder    responder.Responder
	fallback     responder.Placeholder
	logger       *slog.Logger
	metrics      *observability.Metrics
	historyLimit int
	memoryLimit  int
}

type ServiceOptions struct {
	// HistoryLimit bounds how many prior messages enter the prompt window.
	HistoryLimit int
	// MemoryLimit bounds how many memories are retrieved for context.
	MemoryLimit int
}

func NewService(store Store, users memory.UserDirectory, agentStore agents.Store,
	extractor *memory.Extractor, retriever *memory.Retriever, rsp responder.Responder,
	logger *slog.Logger, metrics *observability.Metrics, opts ServiceOptions) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	if rsp == nil {
		rsp = responder.NewPlaceholder()
	}
	return &Service{
		store:        store,
		users:        users,
		agents:       agentStore,
		extractor:    extractor,
		retriever:    retriever,
		responder:    rsp,
		logger:       logger,
		metrics:      metrics,
		historyLimit: opts.HistoryLimit,
		memoryLimit:  opts.MemoryLimit,
	}
}

// Conversation returns the user's conversation, creating it with their
// default agent on first contact.
func (s *Service) Conversation(ctx context.Context, userID string) (Conversation, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return Conversation{}, err
	}
	agent, err := agents.EnsureDefault(ctx, s.agents, userID)
	if err != nil {
		if errors.Is(err, agents.ErrUserNotFound) {
			return Conversation{}, ErrUserNotFound
		}
		return Conversation{}, fmt.Errorf("ensure default agent: %w", err)
	}
	conv, _, err := s.store.GetOrCreateConversation(ctx, userID, agent.ID)
	return conv, err
}

// Messages returns up to limit of the newest messages in the user's
// conversation, oldest first.
func (s *Service) Messages(ctx context.Context, userID string, limit int) ([]Message, error) {
	conv, err := s.Conversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.RecentMessages(ctx, conv.ID, limit)
}

// Send runs one chat turn end to end.
func (s *Service) Send(ctx context.Context, userID, text string) (Exchange, error) {
	start := time.Now()

	if err := s.checkUser(ctx, userID); err != nil {
		return Exchange{}, err
	}
	agent, err := agents.EnsureDefault(ctx, s.agents, userID)
	if err != nil {
		if errors.Is(err, agents.ErrUserNotFound) {
			return Exchange{}, ErrUserNotFound
		}
		return Exchange{}, fmt.Errorf("ensure default agent: %w", err)
	}
	conv, _, err := s.store.GetOrCreateConversation(ctx, userID, agent.ID)
	if err != nil {
		return Exchange{}, err
	}

	userMsg, err := s.store.AppendMessage(ctx, Message{
		ConversationID: conv.ID,
		Role:           RoleUser,
		Content:        text,
	})
	if err != nil {
		s.countTurn("error")
		return Exchange{}, fmt.Errorf("persist user message: %w", err)
	}

	extractions := s.extractMemories(ctx, userID, text, userMsg.ID)
	contextBlock := s.memoryContext(ctx, userID)
	history := s.promptHistory(ctx, conv.ID, userMsg.ID)

	outcome := "ok"
	reply, err := s.responder.Reply(ctx, responder.Request{
		SystemPrompt:  agent.SystemPrompt,
		MemoryContext: contextBlock,
		History:       history,
		UserText:      text,
		Model:         agent.Model,
		Temperature:   agent.Temperature,
		MaxTokens:     agent.MaxTokens,
	})
	if err != nil {
		s.logger.Warn("responder failed, falling back to placeholder",
			"user_id", userID, "model", agent.Model, "error", err)
		reply, _ = s.fallback.Reply(ctx, responder.Request{})
		outcome = "degraded"
	}

	assistantMsg, err := s.store.AppendMessage(ctx, Message{
		ConversationID: conv.ID,
		Role:           RoleAssistant,
		Content:        reply,
		Model:          agent.Model,
	})
	if err != nil {
		s.countTurn("error")
		return Exchange{}, fmt.Errorf("persist assistant message: %w", err)
	}

	s.countTurn(outcome)
	if s.metrics != nil {
		s.metrics.ObserveChatTurn(time.Since(start))
	}
	return Exchange{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Extractions:      extractions,
	}, nil
}

func (s *Service) extractMemories(ctx context.Context, userID, text, messageID string) []memory.Extraction {
	if s.extractor == nil {
		return nil
	}
	extractions, err := s.extractor.Extract(ctx, userID, text, messageID)
	if err != nil {
		s.logger.Warn("memory extraction degraded, continuing without it",
			"user_id", userID, "error", err)
		return nil
	}
	return extractions
}

func (s *Service) memoryContext(ctx context.Context, userID string) string {
	if s.retriever == nil {
		return ""
	}
	memories, err := s.retriever.GetRelevant(ctx, userID, nil, s.memoryLimit)
	if err != nil {
		s.logger.Warn("memory retrieval degraded, continuing without context",
			"user_id", userID, "error", err)
		return ""
	}
	return memory.FormatContext(memories)
}

// promptHistory returns the prior messages for the prompt window, excluding
// the just-appended user message (the responder receives it separately).
func (s *Service) promptHistory(ctx context.Context, conversationID, currentMessageID string) []responder.Turn {
	msgs, err := s.store.RecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		s.logger.Warn("history fetch degraded, replying without it",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	turns := make([]responder.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == currentMessageID || m.Role == RoleSystem {
			continue
		}
		turns = append(turns, responder.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// checkUser keeps in-memory backends honest: SQL backends would reject an
// unknown user via foreign keys, the map stores would not.
func (s *Service) checkUser(ctx context.Context, userID string) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) countTurn(outcome string) {
	if s.metrics != nil {
		s.metrics.ChatTurns.WithLabelValues(outcome).Inc()
	}
}
