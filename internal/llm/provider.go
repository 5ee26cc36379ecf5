// Package llm provides a provider-agnostic completion adapter used by the
// advisory type inferencer. It is optional at every call site: the engine
// runs fully offline when no provider is configured.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "openai/gpt-4o-mini").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0.0-2.0 (0 = deterministic)
	Model       string  // Override model for this request (empty = use provider default)
	System      string  // System prompt (optional)

	// Format is "json" for structured output. When Schema is also set,
	// providers that support it constrain the output to that JSON schema.
	Format     string
	Schema     map[string]any
	SchemaName string
}

// Config holds provider configuration.
type Config struct {
	Provider string // "openai", "openrouter"
	Model    string // e.g., "gpt-4o-mini", "openai/gpt-4o-mini"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
}

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires OPENAI_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAIProvider(key, model, cfg.BaseURL), nil

	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return &openrouterProvider{
			apiKey:  key,
			model:   model,
			baseURL: baseURL,
		}, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want openai or openrouter)", cfg.Provider)
	}
}

// ParseSpec splits a "provider/model" spec into a Config. A bare provider
// name leaves Model empty so the provider default applies.
func ParseSpec(spec string) Config {
	spec = strings.TrimSpace(spec)
	if idx := strings.Index(spec, "/"); idx > 0 {
		return Config{Provider: spec[:idx], Model: spec[idx+1:]}
	}
	return Config{Provider: spec}
}
