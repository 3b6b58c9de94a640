// Package http provides the JSON HTTP API of the CRM: authentication,
// profile and preferences, customers, dashboard, report and notifications.
package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/models"
)

// AuthService defines the session and preference operations
// required by the AuthHandler.
type AuthService interface {
	Register(ctx context.Context, name, email, password string, remember bool) (models.Session, error)
	Login(ctx context.Context, email, password string, remember bool) (models.Session, error)
	Logout(ctx context.Context) error
	Session() (models.Session, bool)
	UpdateProfile(ctx context.Context, patch models.IdentityPatch) (models.Session, error)
	NeedsOnboarding() (bool, error)
	CompleteOnboarding(ctx context.Context) error
	Theme(ctx context.Context) string
	SetTheme(ctx context.Context, theme string) error
}

// AuthHandler handles HTTP requests for registration, login and the session.
type AuthHandler struct {
	// AuthService performs the underlying operations.
	AuthService AuthService
	Log         *zap.Logger
}

// RegisterRequest represents the JSON payload for user registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// LoginRequest represents the JSON payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Register handles POST /api/register. A successful registration also logs
// the new identity in and answers 201 with the session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.AuthService.Register(r.Context(), req.Name, req.Email, req.Password, req.Remember)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Login handles POST /api/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := h.AuthService.Login(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout handles POST /api/logout. It succeeds without a session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context()); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := h.AuthService.Session()
	if !ok {
		http.Error(w, "no active session", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// UpdateProfile handles PATCH /api/profile.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.IdentityPatch
	if !decode(w, r, &patch) {
		return
	}
	session, err := h.AuthService.UpdateProfile(r.Context(), patch)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Onboarding handles GET /api/onboarding.
func (h *AuthHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	needed, err := h.AuthService.NeedsOnboarding()
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"needed": needed})
}

// CompleteOnboarding handles POST /api/onboarding/complete.
func (h *AuthHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.CompleteOnboarding(r.Context()); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Theme handles GET /api/theme.
func (h *AuthHandler) Theme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"theme": h.AuthService.Theme(r.Context())})
}

// SetTheme handles PUT /api/theme.
func (h *AuthHandler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.AuthService.SetTheme(r.Context(), req.Theme); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"theme": req.Theme})
}
