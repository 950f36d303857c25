package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meggy-ai/meggy/internal/agents"
	"github.com/meggy-ai/meggy/internal/auth"
)

type agentRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Provider     string   `json:"llm_provider"`
	Model        string   `json:"model"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int     `json:"max_tokens"`
	SystemPrompt string   `json:"system_prompt"`
	IsDefault    bool     `json:"is_default"`
	IsActive     *bool    `json:"is_active"`
}

// apply overlays the request onto base, leaving omitted optional fields at
// their base values.
func (req agentRequest) apply(base agents.Agent) agents.Agent {
	a := base
	if strings.TrimSpace(req.Name) != "" {
		a.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.Provider != "" {
		a.Provider = req.Provider
	}
	if req.Model != "" {
		a.Model = req.Model
	}
	if req.Temperature != nil {
		a.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		a.MaxTokens = *req.MaxTokens
	}
	if req.SystemPrompt != "" {
		a.SystemPrompt = req.SystemPrompt
	}
	a.IsDefault = req.IsDefault || base.IsDefault
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	return a
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.agents.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": list})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := auth.UserID(r.Context())

	// Requests start from the default persona so partial bodies still
	// produce a usable agent.
	base := agents.DefaultAgent(userID)
	base.IsDefault = false
	agent := req.apply(base)

	created, err := s.agents.Create(r.Context(), agent)
	if err != nil {
		if errors.Is(err, agents.ErrInvalidAgent) {
			respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDefaultAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := agents.EnsureDefault(r.Context(), s.agents, auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetByID(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := auth.UserID(r.Context())

	existing, err := s.agents.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	updated, err := s.agents.Update(r.Context(), req.apply(existing))
	if err != nil {
		if errors.Is(err, agents.ErrInvalidAgent) {
			respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	err := s.agents.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
