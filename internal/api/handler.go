// Package api provides HTTP handlers for the support chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/support-chat/internal/analysis"
	"github.com/ashureev/support-chat/internal/chat"
	"github.com/ashureev/support-chat/internal/llm"
	"github.com/ashureev/support-chat/internal/session"
	"github.com/ashureev/support-chat/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxRequestBodySize = 1 << 20

// ModelStatusChecker reports which models the local backend has pulled.
type ModelStatusChecker interface {
	Status(ctx context.Context) (*llm.ModelStatus, error)
}

// Handler serves the auth, chat and analysis endpoints.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	cookies  *session.CookieCodec
	chat     *chat.Gateway
	analysis *analysis.Gateway
	ollama   ModelStatusChecker
}

// NewHandler creates a Handler. ollama may be nil when another backend is
// configured.
func NewHandler(
	repo store.Repository,
	sessions *session.Manager,
	cookies *session.CookieCodec,
	chatGateway *chat.Gateway,
	analysisGateway *analysis.Gateway,
	ollama ModelStatusChecker,
) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		cookies:  cookies,
		chat:     chatGateway,
		analysis: analysisGateway,
		ollama:   ollama,
	}
}

// RegisterRoutes registers the auth, chat and analysis routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.Me)
		r.Post("/chat", h.Chat)
		r.Post("/gemini-chat", h.Chat)
		r.Post("/analyze-chat", h.AnalyzeChat)
		r.Get("/ollama-status", h.OllamaStatus)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v and writes the error
// response itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
