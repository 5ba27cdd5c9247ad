package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the gateways and the HTTP layer.
var (
	ErrMissingFields       = errors.New("missing required fields")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")
	ErrEmptyConversation   = errors.New("no conversation to analyze")
	ErrAnalyzerFailed      = errors.New("analyzer failed")
	ErrMalformedAnalysis   = errors.New("malformed analysis")
	ErrStore               = errors.New("store error")
	ErrSessionNotFound     = errors.New("session not found")
)

// AnalyzerError reports a non-zero exit of the external analyzer.
type AnalyzerError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AnalyzerError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("analyzer exited with status %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("analyzer exited with status %d: %v", e.ExitCode, e.Err)
}

// Unwrap lets errors.Is match ErrAnalyzerFailed.
func (e *AnalyzerError) Unwrap() []error {
	return []error{ErrAnalyzerFailed, e.Err}
}

// MalformedAnalysisError carries analyzer output that could not be parsed.
type MalformedAnalysisError struct {
	Raw string
	Err error
}

func (e *MalformedAnalysisError) Error() string {
	return fmt.Sprintf("parse analysis: %v", e.Err)
}

// Unwrap lets errors.Is match ErrMalformedAnalysis.
func (e *MalformedAnalysisError) Unwrap() []error {
	return []error{ErrMalformedAnalysis, e.Err}
}

// StoreFailure wraps a persistence error so that it matches ErrStore.
func StoreFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
