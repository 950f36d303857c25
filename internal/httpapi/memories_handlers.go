package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meggy-ai/meggy/internal/auth"
	"github.com/meggy-ai/meggy/internal/memory"
)

// handleListMemories is the thin admin surface over the memory store:
// everything the extractor has saved for the caller, in ranking order.
func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, 0)
	if !ok {
		return
	}
	types, ok := queryTypes(w, r)
	if !ok {
		return
	}

	memories, err := s.memories.Query(r.Context(), memory.Query{
		UserID: auth.UserID(r.Context()),
		Types:  types,
		Limit:  limit,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	types, ok := queryTypes(w, r)
	if !ok {
		return
	}
	deleted, err := s.memories.DeleteByUser(r.Context(), auth.UserID(r.Context()), types...)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	err := s.memories.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryTypes parses an optional comma-separated ?type= filter. Writes the
// error response itself and reports ok=false on an unknown type.
func queryTypes(w http.ResponseWriter, r *http.Request) ([]memory.Type, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	if raw == "" {
		return nil, true
	}
	var types []memory.Type
	for _, part := range strings.Split(raw, ",") {
		t := memory.Type(strings.TrimSpace(part))
		if !t.Valid() {
			respondError(w, http.StatusBadRequest, "invalid_type", "unknown memory type "+string(t))
			return nil, false
		}
		types = append(types, t)
	}
	return types, true
}
