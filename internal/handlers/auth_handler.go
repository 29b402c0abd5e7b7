package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prudhvinik1/episync/internal/middleware"
	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/services"
)

// AuthHandler handles worker accounts and sessions.
type AuthHandler struct {
	auth   *services.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *services.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ApprovalRequest struct {
	Status models.ApprovalStatus `json:"status"`
	Role   models.UserRole       `json:"role"`
}

// Register creates a pending worker account.
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// Login issues a token for an approved worker.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondBadRequest(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Logout ends the session behind the request's token.
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll ends every session of the token's user, e.g. after a lost
// device.
// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.LogoutAll(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers lists accounts, optionally filtered by ?status=.
// GET /api/users
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), models.ApprovalStatus(r.URL.Query().Get("status")))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// Approve approves or rejects an account. An empty body approves.
// POST /api/users/{id}/approve
func (h *AuthHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req := ApprovalRequest{Status: models.ApprovalApproved}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondBadRequest(w, err)
			return
		}
	}
	if req.Status == "" {
		req.Status = models.ApprovalApproved
	}

	user, err := h.auth.SetApproval(r.Context(), chi.URLParam(r, "id"), req.Status, req.Role)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
