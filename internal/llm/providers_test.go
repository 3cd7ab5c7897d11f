package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/linkquest/internal/config"
)

func TestGenerateUnknownProvider(t *testing.T) {
	c := New(nil)
	_, err := c.Generate(context.Background(), "mistral", "m", "hi")
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Provider != "mistral" {
		t.Errorf("error should name the provider: %v", err)
	}

	_, err = c.Generate(context.Background(), ProviderGemini, "gemini-2.0-flash", "hi")
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestOpenAIProvider(t *testing.T) {
	var gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var body struct {
			Model string `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"deepseek-chat",
			"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{Name: ProviderDeepSeek, BaseURL: srv.URL, APIKey: "sk-test"})
	c := New([]Provider{p})
	resp, err := c.Generate(context.Background(), ProviderDeepSeek, "deepseek-chat", "hi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "hello" || resp.Provider != ProviderDeepSeek {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.TokensIn != 3 || resp.TokensOut != 1 {
		t.Errorf("tokens = %d/%d, want 3/1", resp.TokensIn, resp.TokensOut)
	}
	if gotModel != "deepseek-chat" {
		t.Errorf("model sent = %q", gotModel)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestOpenAIProviderValidation(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no choices", 200, `{"id":"c1","object":"chat.completion","model":"m","choices":[]}`, nil},
		{"empty content", 200, `{"id":"c1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`, ErrEmptyResponse},
		{"rate limited", 429, `{"error":{"message":"slow down","type":"rate_limit"}}`, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := NewOpenAIProvider(OpenAIConfig{Name: ProviderOpenAI, BaseURL: srv.URL, APIKey: "k"})
			_, err := p.Complete(context.Background(), Request{Model: "m", Prompt: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAnthropicProvider(t *testing.T) {
	var maxTokens int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			MaxTokens int `json:"max_tokens"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		maxTokens = body.MaxTokens
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku",
			"content":[{"type":"text","text":"{\"1\":"},{"type":"text","text":"{}}"}],
			"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, nil)
	resp, err := p.Complete(context.Background(), Request{Model: "claude-haiku", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"1":{}}` {
		t.Errorf("content = %q", resp.Content)
	}
	if maxTokens != AnthropicMaxTokens {
		t.Errorf("max_tokens = %d, want %d", maxTokens, AnthropicMaxTokens)
	}
}

func TestAnthropicProviderEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku",
			"content":[],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":0}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", srv.URL, nil)
	_, err := p.Complete(context.Background(), Request{Model: "claude-haiku", Prompt: "hi"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func geminiServer(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") || r.URL.Query().Get("alt") != "sse" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-goog-api-key") != "gk" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\r\n\r\n", ev)
		}
	}))
}

func TestGeminiStreamJoinsChunksInOrder(t *testing.T) {
	srv := geminiServer(t,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"1\": "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"score\": 7, "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"\"explanation\": \"ok\"}}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":4}}`,
	)
	defer srv.Close()

	p := NewGeminiProvider("gk", srv.URL, nil)
	resp, err := p.Complete(context.Background(), Request{Model: "gemini-2.0-flash", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := `{"1": {"score": 7, "explanation": "ok"}}`
	if resp.Content != want {
		t.Errorf("content = %q, want %q", resp.Content, want)
	}
	if resp.TokensIn != 9 || resp.TokensOut != 4 {
		t.Errorf("tokens = %d/%d", resp.TokensIn, resp.TokensOut)
	}
}

func TestReadGeminiStreamMultiLineEvent(t *testing.T) {
	stream := "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"a\"}]}}],\n" +
		"data:  \"usageMetadata\":{\"promptTokenCount\":3,\"candidatesTokenCount\":1}}\n" +
		"\n" +
		": keep-alive\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"b\"}]}}]}\n" +
		"\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"c\"}]}}]}"

	content, usage, err := readGeminiStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("readGeminiStream: %v", err)
	}
	if content != "abc" {
		t.Errorf("content = %q, want %q", content, "abc")
	}
	if usage == nil || usage.PromptTokenCount != 3 || usage.CandidatesTokenCount != 1 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestGeminiEmptyStream(t *testing.T) {
	srv := geminiServer(t)
	defer srv.Close()

	p := NewGeminiProvider("gk", srv.URL, nil)
	_, err := p.Complete(context.Background(), Request{Model: "gemini-2.0-flash", Prompt: "hi"})
	if !errors.Is(err, ErrEmptyStream) {
		t.Fatalf("expected ErrEmptyStream, got %v", err)
	}
}

func TestGeminiStreamError(t *testing.T) {
	srv := geminiServer(t,
		`{"candidates":[{"content":{"parts":[{"text":"partial"}]}}]}`,
		`{"error":{"code":500,"message":"backend died"}}`,
	)
	defer srv.Close()

	p := NewGeminiProvider("gk", srv.URL, nil)
	_, err := p.Complete(context.Background(), Request{Model: "gemini-2.0-flash", Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "backend died") {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestNewFromConfig(t *testing.T) {
	c := NewFromConfig(config.LLMConfig{
		OpenAIAPIKey: "a",
		GrokAPIKey:   "b",
		GeminiAPIKey: "c",
		EnableFake:   true,
	})
	for _, name := range []string{ProviderOpenAI, ProviderGrok, ProviderGemini, ProviderFake} {
		if !c.HasProvider(name) {
			t.Errorf("expected provider %s", name)
		}
	}
	for _, name := range []string{ProviderAnthropic, ProviderDeepSeek} {
		if c.HasProvider(name) {
			t.Errorf("provider %s should not be configured without a key", name)
		}
	}
	if len(c.Providers()) != 4 {
		t.Errorf("providers = %v", c.Providers())
	}
}
