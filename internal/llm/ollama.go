package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/support-chat/internal/domain"
	"golang.org/x/sync/singleflight"
)

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	baseURL string
	model   string
	http    *http.Client
	probes  singleflight.Group
}

// NewOllamaClient returns a client for the Ollama server at baseURL
// (e.g. http://localhost:11434). A zero timeout means no client timeout.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
	Done     bool    `json:"done"`
	Error    string  `json:"error"`
}

// Generate calls /api/generate with streaming disabled.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	var resp generateResponse
	err := c.postJSON(ctx, "/api/generate", generateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", domain.ErrUpstreamUnavailable, resp.Error)
	}
	if resp.Response == nil || strings.TrimSpace(*resp.Response) == "" {
		return "", fmt.Errorf("%w: ollama returned no completion", domain.ErrUpstreamUnavailable)
	}
	return *resp.Response, nil
}

const statusProbeTimeout = 10 * time.Second

// ModelStatus describes the models an Ollama server has pulled.
type ModelStatus struct {
	Models          []string
	Llama3Available bool
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Status lists the installed models via /api/tags. Concurrent callers share
// one upstream probe.
func (c *OllamaClient) Status(ctx context.Context) (*ModelStatus, error) {
	ch := c.probes.DoChan("tags", func() (interface{}, error) {
		return c.fetchStatus(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ModelStatus), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, ctx.Err())
	}
}

func (c *OllamaClient) fetchStatus(ctx context.Context) (*ModelStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, statusProbeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build tags request: %w", err)
	}
	var tags tagsResponse
	if err := c.do(httpReq, &tags); err != nil {
		return nil, err
	}

	status := &ModelStatus{Models: make([]string, 0, len(tags.Models))}
	for _, m := range tags.Models {
		status.Models = append(status.Models, m.Name)
		if m.Name == "llama3" || strings.HasPrefix(m.Name, "llama3:") {
			status.Llama3Available = true
		}
	}
	return status, nil
}

func (c *OllamaClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

func (c *OllamaClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: ollama returned status %d: %s",
			domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode ollama response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}
