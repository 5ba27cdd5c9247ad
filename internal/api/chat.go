package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/support-chat/internal/domain"
	"github.com/ashureev/support-chat/internal/session"
)

type chatRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"systemPrompt"`
}

type analyzeRequest struct {
	Conversation string `json:"conversation"`
}

// Chat runs one chat turn against the session's conversation.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		Error(w, http.StatusBadRequest, "prompt is required")
		return
	}

	b, err := h.sessions.Bind(r.Context(), session.TokenFromContext(r.Context()))
	if err != nil {
		slog.Error("Failed to bind conversation", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to retrieve conversation")
		return
	}

	reply, err := h.chat.SendMessage(r.Context(), b, req.Prompt, req.SystemPrompt)
	switch {
	case err == nil:
		JSON(w, http.StatusOK, reply)
	case errors.Is(err, domain.ErrMissingFields):
		Error(w, http.StatusBadRequest, "prompt is required")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		JSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Model error",
			"message": err.Error(),
		})
	default:
		slog.Error("Chat turn failed", "error", err, "binding", b.Key())
		Error(w, http.StatusInternalServerError, "Failed to save conversation")
	}
}

// AnalyzeChat analyzes the transcript supplied in the request body.
func (h *Handler) AnalyzeChat(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.analysis.Analyze(r.Context(), req.Conversation)
	if err != nil {
		var malformed *domain.MalformedAnalysisError
		var failed *domain.AnalyzerError
		switch {
		case errors.Is(err, domain.ErrEmptyConversation):
			Error(w, http.StatusBadRequest, "No conversation to analyze")
		case errors.As(err, &malformed):
			JSON(w, http.StatusInternalServerError, map[string]string{
				"error": "Failed to parse analysis result",
				"raw":   malformed.Raw,
			})
		case errors.As(err, &failed):
			JSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to analyze conversation",
				"message": failed.Stderr,
			})
		default:
			Error(w, http.StatusInternalServerError, "Failed to analyze conversation")
		}
		return
	}

	// Analysis never binds a conversation; only already-bound sessions are logged.
	if b, ok := h.sessions.BoundBinding(session.TokenFromContext(r.Context())); ok {
		h.chat.RecordAnalysis(b, res.Raw)
	}
	JSON(w, http.StatusOK, res.Fields)
}

// OllamaStatus reports whether the local model server is reachable. It
// always answers 200; reachability is in the body.
func (h *Handler) OllamaStatus(w http.ResponseWriter, r *http.Request) {
	if h.ollama == nil {
		JSON(w, http.StatusOK, map[string]interface{}{
			"status":         "error",
			"ollama_running": false,
			"message":        "ollama backend is not configured",
		})
		return
	}

	status, err := h.ollama.Status(r.Context())
	if err != nil {
		JSON(w, http.StatusOK, map[string]interface{}{
			"status":         "error",
			"ollama_running": false,
			"message":        err.Error(),
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"ollama_running":   true,
		"llama3_available": status.Llama3Available,
		"available_models": status.Models,
	})
}
