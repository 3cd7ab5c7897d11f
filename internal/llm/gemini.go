// CLAUDE:SUMMARY LLM Provider for Google Gemini: streamGenerateContent over SSE, chunks joined in arrival order
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiProvider implements the Provider interface for Google's Gemini API
// using the streaming endpoint.
type GeminiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGeminiProvider(apiKey, baseURL string, httpClient *http.Client) *GeminiProvider {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		return nil, &ProviderError{Provider: ProviderGemini, Err: fmt.Errorf("no model specified")}
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: &req.MaxTokens}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	start := time.Now()
	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Err: ErrRateLimited}
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &ProviderError{Provider: ProviderGemini, Model: model,
			Err: fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, truncate(string(respBody), 200))}
	}

	content, usage, err := readGeminiStream(httpResp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, &ProviderError{Provider: ProviderGemini, Model: model, Err: err}
	}

	resp := &Response{
		Provider: ProviderGemini,
		Model:    model,
		Content:  content,
		Latency:  latency,
	}
	if usage != nil {
		resp.TokensIn = usage.PromptTokenCount
		resp.TokensOut = usage.CandidatesTokenCount
	}
	return resp, nil
}

// readGeminiStream consumes an SSE stream of GenerateContentResponse chunks
// and concatenates their text in arrival order. Consecutive data lines form
// one event, which ends at a blank line or at the end of the stream. A stream
// that yields no text is ErrEmptyStream.
func readGeminiStream(r io.Reader) (string, *geminiUsage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		chunks []string
		usage  *geminiUsage
		data   []string
	)
	dispatch := func() error {
		payload := strings.TrimSpace(strings.Join(data, "\n"))
		data = data[:0]
		if payload == "" || payload == "[DONE]" {
			return nil
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return fmt.Errorf("stream error %d: %s", chunk.Error.Code, chunk.Error.Message)
		}
		if chunk.UsageMetadata != nil {
			usage = chunk.UsageMetadata
		}
		if len(chunk.Candidates) == 0 {
			return nil
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text != "" {
				chunks = append(chunks, part.Text)
			}
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return "", nil, err
			}
			continue
		}
		value, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// comments and other fields (event:, id:, retry:)
			continue
		}
		data = append(data, strings.TrimPrefix(value, " "))
	}
	if err := scanner.Err(); err != nil {
		return "", nil, fmt.Errorf("reading stream: %w", err)
	}
	if err := dispatch(); err != nil {
		return "", nil, err
	}
	if len(chunks) == 0 {
		return "", nil, ErrEmptyStream
	}
	return strings.Join(chunks, ""), usage, nil
}

// Gemini API types
type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens *int `json:"maxOutputTokens,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
