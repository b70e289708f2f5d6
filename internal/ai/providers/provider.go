// Package providers contains AI provider client implementations
package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by NewFromConfig when no provider credentials are set.
var ErrNotConfigured = errors.New("AI provider is not configured")

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`    // "user", "assistant"
	Content string `json:"content"` // Text content
}

// ChatRequest represents a request to the AI provider
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

// ChatResponse represents a response from the AI provider
type ChatResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// TotalTokens is the sum of input and output tokens.
func (r *ChatResponse) TotalTokens() int64 {
	return int64(r.InputTokens) + int64(r.OutputTokens)
}

// Provider defines the interface for AI providers
type Provider interface {
	// Chat sends a chat request and returns the response
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider name
	Name() string

	// Model returns the default model used when a request names none
	Model() string
}

// StatusError is a non-success response from a provider API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is transient (rate limit, overload, server error).
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode == 529 || e.StatusCode >= 500
}
