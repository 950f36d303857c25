package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/meggy-ai/meggy/internal/accounts"
	"github.com/meggy-ai/meggy/internal/agents"
	"github.com/meggy-ai/meggy/internal/auth"
	"github.com/meggy-ai/meggy/internal/chat"
	"github.com/meggy-ai/meggy/internal/config"
	"github.com/meggy-ai/meggy/internal/memory"
	"github.com/meggy-ai/meggy/internal/observability"
)

type Server struct {
	cfg       config.Config
	users     accounts.Store
	tokens    *auth.TokenManager
	agents    agents.Store
	chats     *chat.Service
	chatStore chat.Store
	memories  memory.Store
	storeMode string
	metrics   *observability.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, users accounts.Store, tokens *auth.TokenManager,
	agentStore agents.Store, chatService *chat.Service, chatStore chat.Store,
	memoryStore memory.Store, storeMode string, metrics *observability.Metrics,
	logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		agents:    agentStore,
		chats:     chatService,
		chatStore: chatStore,
		memories:  memoryStore,
		storeMode: storeMode,
		metrics:   metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other websites cannot drive a user's chat
				// if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/register", s.handleRegister)
	r.Post("/v1/auth/login", s.handleLogin)
	r.Post("/v1/auth/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.tokens, s.metrics))

		r.Get("/v1/users/me", s.handleMe)
		r.Delete("/v1/users/me", s.handleDeleteMe)

		r.Get("/v1/agents", s.handleListAgents)
		r.Post("/v1/agents", s.handleCreateAgent)
		r.Get("/v1/agents/default", s.handleDefaultAgent)
		r.Get("/v1/agents/{id}", s.handleGetAgent)
		r.Put("/v1/agents/{id}", s.handleUpdateAgent)
		r.Delete("/v1/agents/{id}", s.handleDeleteAgent)

		r.Get("/v1/conversation", s.handleGetConversation)
		r.Get("/v1/conversation/messages", s.handleListMessages)
		r.Post("/v1/conversation/messages", s.handleSendMessage)
		r.Get("/v1/chat/ws", s.handleChatWS)

		r.Get("/v1/memories", s.handleListMemories)
		r.Delete("/v1/memories", s.handleClearMemories)
		r.Delete("/v1/memories/{id}", s.handleDeleteMemory)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode,
	})
}

// countRequests records every request against its matched route pattern so
// cardinality stays bounded regardless of path parameters.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDomainError maps the shared error taxonomy onto HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	var ve *memory.ValidationError
	switch {
	case errors.Is(err, memory.ErrUserNotFound),
		errors.Is(err, accounts.ErrNotFound),
		errors.Is(err, agents.ErrUserNotFound),
		errors.Is(err, chat.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, memory.ErrMemoryNotFound):
		respondError(w, http.StatusNotFound, "memory_not_found", "memory not found")
	case errors.Is(err, agents.ErrNotFound):
		respondError(w, http.StatusNotFound, "agent_not_found", "agent not found")
	case errors.Is(err, chat.ErrConversationNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, "validation_failed", ve.Error())
	case errors.Is(err, agents.ErrInvalidAgent):
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, memory.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unavailable", "storage backend unavailable")
	default:
		s.logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
