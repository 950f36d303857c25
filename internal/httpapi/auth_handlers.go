package httpapi

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/meggy-ai/meggy/internal/accounts"
	"github.com/meggy-ai/meggy/internal/auth"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User   accounts.User  `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_email", "a valid email address is required")
		return
	}
	hash, err := accounts.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_password", err.Error())
		return
	}

	user, err := s.users.Create(r.Context(), accounts.User{
		Email:        req.Email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	tokens, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, authResponse{User: user, Tokens: tokens})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	user, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			s.countAuthFailure("bad_credentials")
			respondError(w, http.StatusUnauthorized, "bad_credentials", accounts.ErrBadCredentials.Error())
			return
		}
		s.respondDomainError(w, err)
		return
	}
	if err := accounts.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.countAuthFailure("bad_credentials")
		respondError(w, http.StatusUnauthorized, "bad_credentials", accounts.ErrBadCredentials.Error())
		return
	}

	tokens, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	userID, err := s.tokens.ParseRefresh(req.RefreshToken)
	if err != nil {
		s.countAuthFailure("invalid_refresh")
		respondError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired refresh token")
		return
	}
	// The account may have been deleted since the token was minted.
	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			s.countAuthFailure("user_gone")
			respondError(w, http.StatusUnauthorized, "invalid_token", "account no longer exists")
			return
		}
		s.respondDomainError(w, err)
		return
	}

	tokens, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{User: user, Tokens: tokens})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// handleDeleteMe removes the account and everything hanging off it. SQL
// backends cascade through foreign keys; the explicit per-store deletes keep
// the in-memory backends consistent too.
func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	if err := s.chatStore.DeleteByUser(ctx, userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	if _, err := s.memories.DeleteByUser(ctx, userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	if err := s.agents.DeleteByUser(ctx, userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) countAuthFailure(reason string) {
	if s.metrics != nil {
		s.metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
}
