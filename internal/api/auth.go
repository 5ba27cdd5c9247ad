package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/session"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

// Signup creates an account and logs the session in as it.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := session.TokenFromContext(r.Context())
	id, err := h.sessions.Signup(r.Context(), token, req.Name, req.Email, req.Password)
	switch {
	case err == nil:
		JSON(w, http.StatusCreated, authResponse{Message: "User created successfully", UserID: id})
	case errors.Is(err, domain.ErrMissingFields):
		Error(w, http.StatusBadRequest, "Missing required fields.")
	case errors.Is(err, domain.ErrDuplicateEmail):
		slog.Warn("Signup rejected", "reason", "duplicate email")
		Error(w, http.StatusInternalServerError, "Signup failed: "+err.Error())
	default:
		slog.Error("Signup failed", "error", err)
		Error(w, http.StatusInternalServerError, "Signup failed")
	}
}

// Login authenticates the session with email and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := session.TokenFromContext(r.Context())
	id, err := h.sessions.Login(r.Context(), token, req.Email, req.Password)
	switch {
	case err == nil:
		slog.Info("User logged in", "user_id", id)
		JSON(w, http.StatusOK, authResponse{Message: "Login successful", UserID: id})
	case errors.Is(err, domain.ErrMissingFields):
		Error(w, http.StatusBadRequest, "Missing required fields.")
	case errors.Is(err, domain.ErrInvalidCredentials):
		Error(w, http.StatusUnauthorized, "Invalid credentials.")
	default:
		slog.Error("Login failed", "error", err)
		Error(w, http.StatusInternalServerError, "Login failed")
	}
}

// Logout destroys the session and clears its cookie. Logging out twice is
// not an error.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromContext(r.Context())
	if err := h.sessions.Logout(token); err != nil {
		slog.Error("Logout failed", "error", err)
		Error(w, http.StatusInternalServerError, "Logout failed")
		return
	}
	h.cookies.Clear(w)
	JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

type meResponse struct {
	Authenticated  bool   `json:"authenticated"`
	UserID         int64  `json:"userId,omitempty"`
	Name           string `json:"name,omitempty"`
	ConversationID int64  `json:"conversationId,omitempty"`
}

// Me describes the current session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.Get(session.TokenFromContext(r.Context()))
	if !ok || !s.IsAuthenticated() {
		JSON(w, http.StatusOK, meResponse{})
		return
	}

	resp := meResponse{Authenticated: true, UserID: s.AccountID, ConversationID: s.ConversationID}
	account, err := h.repo.GetAccount(r.Context(), s.AccountID)
	if err != nil {
		slog.Warn("Failed to load account for session", "error", err, "user_id", s.AccountID)
	} else if account != nil {
		resp.Name = account.Name
	}
	JSON(w, http.StatusOK, resp)
}
