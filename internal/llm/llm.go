// Package llm provides clients for the generative-text backends.
package llm

import (
	"context"
	"fmt"

	"github.com/ashureev/support-chat/internal/config"
)

// Request is a single non-streaming completion request.
type Request struct {
	Prompt string
	System string
}

// Generator produces a completion for a prompt.
// Implementations return errors wrapping domain.ErrUpstreamUnavailable when
// the backend is unreachable or answers with an unusable payload.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
