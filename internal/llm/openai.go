// CLAUDE:SUMMARY OpenAI-compatible Provider (OpenAI, DeepSeek, Grok) on the official openai-go SDK
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider implements Provider for any OpenAI-compatible chat
// completions API. OpenAI, DeepSeek and Grok differ only in base URL and key.
type OpenAIProvider struct {
	name   string
	client openai.Client
}

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name       string
	BaseURL    string // e.g. "https://api.deepseek.com/v1"; empty uses the SDK default
	APIKey     string
	HTTPClient *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAIProvider{
		name:   cfg.Name,
		client: openai.NewClient(opts...),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, &ProviderError{Provider: p.name, Err: fmt.Errorf("no model specified")}
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
	})
	latency := time.Since(start)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, &ProviderError{Provider: p.name, Model: req.Model, Err: ErrRateLimited}
		}
		return nil, &ProviderError{Provider: p.name, Model: req.Model, Err: err}
	}

	if len(completion.Choices) == 0 {
		return nil, &ProviderError{Provider: p.name, Model: req.Model, Err: fmt.Errorf("no choices in response")}
	}
	content := completion.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, &ProviderError{Provider: p.name, Model: req.Model, Err: ErrEmptyResponse}
	}

	model := completion.Model
	if model == "" {
		model = req.Model
	}
	return &Response{
		Provider:  p.name,
		Model:     model,
		Content:   content,
		TokensIn:  int(completion.Usage.PromptTokens),
		TokensOut: int(completion.Usage.CompletionTokens),
		Latency:   latency,
	}, nil
}
