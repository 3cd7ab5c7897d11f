// Package llm is the model gateway: it dispatches a single text prompt to the
// provider named by a model descriptor and returns the raw text answer. It
// also hosts the Evaluator that turns that answer into per-resource scores.
package llm

import (
	"context"
	"time"
)

// Provider names accepted in ai_models.provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderDeepSeek  = "deepseek"
	ProviderGrok      = "grok"
	ProviderFake      = "fake"
)

var knownProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderAnthropic: true,
	ProviderGemini:    true,
	ProviderDeepSeek:  true,
	ProviderGrok:      true,
	ProviderFake:      true,
}

// IsKnownProvider reports whether name is a supported provider family.
func IsKnownProvider(name string) bool {
	return knownProviders[name]
}

// Request is a provider-agnostic single-turn generation request.
type Request struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Response is a provider-agnostic generation result. Content is never empty
// on a nil error.
type Response struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Content   string        `json:"content"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	Latency   time.Duration `json:"latency_ms"`
}

// Provider is a single LLM API backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "gemini").
	Name() string
	// Complete sends the prompt and returns the model's text.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client routes generation requests to the provider named by the model
// descriptor. There is no fallback between providers and no retry.
type Client struct {
	providers map[string]Provider
}

func New(providers []Provider) *Client {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Client{providers: m}
}

// Generate sends prompt to model on provider. Unknown providers fail with
// ErrUnsupportedProvider before any network call; known but unconfigured
// ones fail with ErrProviderNotConfigured.
func (c *Client) Generate(ctx context.Context, provider, model, prompt string) (*Response, error) {
	if !IsKnownProvider(provider) {
		return nil, &ProviderError{Provider: provider, Model: model, Err: ErrUnsupportedProvider}
	}
	p, ok := c.providers[provider]
	if !ok {
		return nil, &ProviderError{Provider: provider, Model: model, Err: ErrProviderNotConfigured}
	}
	start := time.Now()
	resp, err := p.Complete(ctx, Request{Model: model, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	return resp, nil
}

// Providers returns the names of all configured providers.
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// HasProvider checks if a named provider is configured.
func (c *Client) HasProvider(name string) bool {
	_, ok := c.providers[name]
	return ok
}
