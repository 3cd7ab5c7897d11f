// CLAUDE:SUMMARY TOML configuration with defaults, .env loading and environment overrides for secrets
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Auth       AuthConfig       `toml:"auth"`
	LLM        LLMConfig        `toml:"llm"`
	Evaluation EvaluationConfig `toml:"evaluation"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// PlaceholderJWTSecret is the well-known sample secret. Load refuses it.
const PlaceholderJWTSecret = "change-me-in-production"

// AuthConfig describes how session tokens issued by the identity provider
// are verified. Tokens are HS256 JWTs signed with JWTSecret.
type AuthConfig struct {
	JWTSecret  string `toml:"jwt_secret"`
	Issuer     string `toml:"issuer"`
	CookieName string `toml:"cookie_name"`
}

type LLMConfig struct {
	OpenAIAPIKey    string `toml:"openai_api_key"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	GeminiAPIKey    string `toml:"gemini_api_key"`
	DeepSeekAPIKey  string `toml:"deepseek_api_key"`
	GrokAPIKey      string `toml:"grok_api_key"`

	// Base URL overrides, mostly for tests and proxies. Empty means the
	// provider's public endpoint.
	OpenAIBaseURL    string `toml:"openai_base_url"`
	AnthropicBaseURL string `toml:"anthropic_base_url"`
	GeminiBaseURL    string `toml:"gemini_base_url"`
	DeepSeekBaseURL  string `toml:"deepseek_base_url"`
	GrokBaseURL      string `toml:"grok_base_url"`

	TimeoutSec int  `toml:"timeout_sec"`
	EnableFake bool `toml:"enable_fake"`
}

// Timeout returns the HTTP client timeout for provider calls.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

type EvaluationConfig struct {
	ClaimTTLSec int `toml:"claim_ttl_sec"`
}

// ClaimTTL is how long an evaluation claim blocks other evaluations of the
// same match before it is considered abandoned.
func (c EvaluationConfig) ClaimTTL() time.Duration {
	if c.ClaimTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ClaimTTLSec) * time.Second
}

// RateLimitConfig sets per-IP budgets. TrustedProxies lists the reverse
// proxies (IPs or CIDRs) whose X-Forwarded-For header is believed.
type RateLimitConfig struct {
	EvaluatePerMin int      `toml:"evaluate_per_min"`
	MatchesPerMin  int      `toml:"matches_per_min"`
	TrustedProxies []string `toml:"trusted_proxies"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "data/linkquest.db",
		},
		Auth: AuthConfig{
			CookieName: "__session",
		},
		LLM: LLMConfig{
			TimeoutSec: 120,
		},
		Evaluation: EvaluationConfig{
			ClaimTTLSec: 300,
		},
		RateLimit: RateLimitConfig{
			EvaluatePerMin: 10,
			MatchesPerMin:  20,
		},
	}
}

// Load reads the TOML file at path (missing file means defaults), then the
// .env file in the working directory, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	// .env is optional; real environment variables always win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == PlaceholderJWTSecret {
		return nil, fmt.Errorf("auth.jwt_secret is still the placeholder %q: set a real secret or leave it empty", PlaceholderJWTSecret)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &c.LLM.OpenAIAPIKey},
		{"ANTHROPIC_API_KEY", &c.LLM.AnthropicAPIKey},
		{"GEMINI_API_KEY", &c.LLM.GeminiAPIKey},
		{"DEEPSEEK_API_KEY", &c.LLM.DeepSeekAPIKey},
		{"GROK_API_KEY", &c.LLM.GrokAPIKey},
		{"LINKQUEST_JWT_SECRET", &c.Auth.JWTSecret},
		{"LINKQUEST_DB_PATH", &c.Database.Path},
		{"LINKQUEST_ADDR", &c.Server.Addr},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	if v := os.Getenv("LINKQUEST_ENABLE_FAKE_LLM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing LINKQUEST_ENABLE_FAKE_LLM: %w", err)
		}
		c.LLM.EnableFake = b
	}
	return nil
}
