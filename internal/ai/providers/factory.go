package providers

import (
	"strings"
	"time"
)

// Config selects and configures the AI provider.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // full messages endpoint; empty uses the public API
	Timeout time.Duration
}

// NewFromConfig creates the Anthropic provider. It returns ErrNotConfigured
// when no API key is set so callers can run with AI disabled.
func NewFromConfig(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	return NewAnthropicClientWithBaseURL(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil
}
