// CLAUDE:SUMMARY Factory that builds the model gateway Client from config (activates only providers with API keys)
package llm

import (
	"net/http"

	"github.com/hazyhaar/linkquest/internal/config"
)

const (
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	grokBaseURL     = "https://api.x.ai/v1"
)

// NewFromConfig creates the gateway from the application config.
// Only providers with configured API keys are activated.
func NewFromConfig(cfg config.LLMConfig) *Client {
	httpClient := &http.Client{Timeout: cfg.Timeout()}
	var providers []Provider

	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:       ProviderOpenAI,
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     cfg.OpenAIAPIKey,
			HTTPClient: httpClient,
		}))
	}

	if cfg.DeepSeekAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:       ProviderDeepSeek,
			BaseURL:    orDefault(cfg.DeepSeekBaseURL, deepSeekBaseURL),
			APIKey:     cfg.DeepSeekAPIKey,
			HTTPClient: httpClient,
		}))
	}

	if cfg.GrokAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:       ProviderGrok,
			BaseURL:    orDefault(cfg.GrokBaseURL, grokBaseURL),
			APIKey:     cfg.GrokAPIKey,
			HTTPClient: httpClient,
		}))
	}

	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, httpClient))
	}

	if cfg.GeminiAPIKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiBaseURL, httpClient))
	}

	if cfg.EnableFake {
		providers = append(providers, NewFakeProvider(nil))
	}

	return New(providers)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
