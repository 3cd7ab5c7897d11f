// CLAUDE:SUMMARY E2E test harness: seeds and spawns linkquest on a free port with a temp data dir, mints session tokens, HTTP helpers
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	jwtSecret = "e2e-test-secret-key-linkquest"
	jwtIssuer = "e2e-idp"
)

// TestHarness manages a linkquest subprocess and provides HTTP helpers.
type TestHarness struct {
	BaseURL string
	DataDir string
	DBPath  string

	cmd    *exec.Cmd
	client *http.Client
	port   int
}

// NewHarness writes a config and a seed, runs `linkquest seed`, starts
// `linkquest serve` and waits for health.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	// Manual cleanup: t.TempDir() would delete files when the first test
	// finishes, breaking the shared DBAssert.
	dataDir, err := os.MkdirTemp("", "linkquest-e2e-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	dbPath := filepath.Join(dataDir, "linkquest.db")

	config := fmt.Sprintf(`[server]
addr = "127.0.0.1:%d"

[database]
path = %q

[auth]
jwt_secret = %q
issuer = %q
cookie_name = "__session"

[llm]
enable_fake = true
timeout_sec = 30

[evaluation]
claim_ttl_sec = 300

[ratelimit]
evaluate_per_min = 1000
matches_per_min = 1000
`, port, dbPath, jwtSecret, jwtIssuer)

	configPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	seedPath := filepath.Join(dataDir, "seed.toml")
	if err := os.WriteFile(seedPath, []byte(seedTOML), 0o644); err != nil {
		t.Fatalf("writing seed: %v", err)
	}

	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "linkquest"))
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Fatalf("binary not found at %s; run: CGO_ENABLED=0 go build -o linkquest .", binary)
	}

	// The test process env may carry real API keys; the server must only
	// see the fake judge.
	env := append(os.Environ(),
		"OPENAI_API_KEY=", "ANTHROPIC_API_KEY=", "GEMINI_API_KEY=",
		"DEEPSEEK_API_KEY=", "GROK_API_KEY=", "LINKQUEST_JWT_SECRET=",
		"LINKQUEST_DB_PATH=", "LINKQUEST_ADDR=")

	seedCmd := exec.Command(binary, "seed", "--config", configPath, "--file", seedPath)
	seedCmd.Dir = dataDir
	seedCmd.Env = env
	if out, err := seedCmd.CombinedOutput(); err != nil {
		t.Fatalf("seeding: %v\n%s", err, out)
	}

	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = dataDir
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		t.Fatalf("starting linkquest: %v", err)
	}

	h := &TestHarness{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		DataDir: dataDir,
		DBPath:  dbPath,
		cmd:     cmd,
		port:    port,
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	deadline := time.Now().Add(15 * time.Second)
	backoff := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(h.BaseURL + "/api/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("linkquest ready on port %d", port)
				return h
			}
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff = backoff * 3 / 2
		}
	}

	h.Stop()
	t.Fatalf("linkquest did not become ready within 15s on port %d", port)
	return nil
}

// Stop sends SIGTERM, waits 5s, then SIGKILL. Cleans up the data directory.
func (h *TestHarness) Stop() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}

	if h.DataDir != "" {
		os.RemoveAll(h.DataDir)
	}
}

// Token mints a session token the way the identity provider would.
func (h *TestHarness) Token(t *testing.T, u FixtureUser) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      u.ID,
		"username": u.Username,
		"iss":      jwtIssuer,
		"iat":      now.Unix(),
		"exp":      now.Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

// Do executes an HTTP request and returns the response.
func (h *TestHarness) Do(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return h.client.Do(req)
}

// JSON executes a request and decodes the JSON response into dst.
func (h *TestHarness) JSON(method, path string, body interface{}, token string, dst interface{}) (*http.Response, error) {
	resp, err := h.Do(method, path, body, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading body: %w", err)
	}

	// Reset body so caller can inspect status
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if dst != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			return resp, fmt.Errorf("decoding JSON (status %d, body: %s): %w", resp.StatusCode, truncate(string(data), 500), err)
		}
	}

	return resp, nil
}

// CreateMatch submits urls against promptID and returns the match id.
func (h *TestHarness) CreateMatch(t *testing.T, token string, promptID int64, urls ...string) string {
	t.Helper()
	var result struct {
		MatchID string `json:"matchId"`
	}
	resp, err := h.JSON("POST", "/api/matches", map[string]any{
		"promptId":  promptID,
		"resources": urls,
	}, token, &result)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	RequireStatus(t, resp, http.StatusCreated)
	return result.MatchID
}

// Evaluate runs the judge on a match and returns the HTTP status and total.
func (h *TestHarness) Evaluate(t *testing.T, matchID string) (int, int) {
	t.Helper()
	var result struct {
		Total int `json:"total"`
	}
	resp, err := h.JSON("POST", "/api/evaluate", map[string]string{"matchId": matchID}, "", &result)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return resp.StatusCode, result.Total
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RequireStatus asserts the HTTP status code matches expected.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, truncate(string(body), 500))
	}
}
