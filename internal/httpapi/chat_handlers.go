package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/meggy-ai/meggy/internal/auth"
)

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.chats.Conversation(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}
	msgs, err := s.chats.Messages(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content must not be empty")
		return
	}

	exchange, err := s.chats.Send(r.Context(), auth.UserID(r.Context()), req.Content)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exchange)
}

// queryLimit parses an optional ?limit= parameter. Writes the error response
// itself and reports ok=false on bad input.
func queryLimit(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}
