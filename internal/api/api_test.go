package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/linkquest/internal/auth"
	"github.com/hazyhaar/linkquest/internal/db"
	"github.com/hazyhaar/linkquest/internal/llm"
)

const testSecret = "test-secret"

type testEnv struct {
	db   *db.DB
	auth *auth.Auth
	mux  *http.ServeMux
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	err = database.ApplySeed(&db.Seed{
		DefaultModel: 1,
		Prompts: []db.Prompt{
			{ID: 1, Title: "Intro", Description: "Learn Go basics", Level: 1},
			{ID: 2, Title: "Channels", Description: "Understand channels", Level: 2},
		},
		Models: []db.AIModel{{ID: 1, Provider: llm.ProviderFake, Name: "judge"}},
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	a := auth.New(testSecret, "", "__session")
	client := llm.New([]llm.Provider{llm.NewFakeProvider(nil)})
	ev := llm.NewEvaluator(database, client, time.Minute, nil)

	mux := http.NewServeMux()
	New(database, a, ev, opts).RegisterRoutes(mux)
	return &testEnv{db: database, auth: a, mux: mux}
}

func (e *testEnv) token(t *testing.T, userID, username string) string {
	t.Helper()
	tok, err := e.auth.GenerateToken(userID, username, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return v
}

func (e *testEnv) createMatch(t *testing.T, token string, urls ...string) string {
	t.Helper()
	w := e.do(t, "POST", "/api/matches", token, map[string]any{"promptId": 1, "resources": urls})
	if w.Code != http.StatusCreated {
		t.Fatalf("create match: %d %s", w.Code, w.Body.String())
	}
	return decode[map[string]string](t, w)["matchId"]
}

func TestCreateMatchValidation(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no resources", map[string]any{"promptId": 1, "resources": []string{}}, 400},
		{"five resources", map[string]any{"promptId": 1, "resources": []string{"http://a", "http://b", "http://c", "http://d", "http://e"}}, 400},
		{"blank resource", map[string]any{"promptId": 1, "resources": []string{"http://a", "  "}}, 400},
		{"relative url", map[string]any{"promptId": 1, "resources": []string{"/docs"}}, 400},
		{"ftp url", map[string]any{"promptId": 1, "resources": []string{"ftp://files.example.com"}}, 400},
		{"duplicate", map[string]any{"promptId": 1, "resources": []string{"http://a", " http://a "}}, 400},
		{"missing prompt id", map[string]any{"resources": []string{"http://a"}}, 400},
		{"unknown prompt", map[string]any{"promptId": 99, "resources": []string{"http://a"}}, 404},
		{"bad json", `{"promptId":`, 400},
		{"ok", map[string]any{"promptId": 1, "resources": []string{" https://go.dev/tour ", "https://gobyexample.com"}}, 201},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/matches", "", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateMatchAnonymity(t *testing.T) {
	env := newTestEnv(t, Options{})

	anonID := env.createMatch(t, "", "http://a")
	m, err := env.db.GetMatch(anonID)
	if err != nil {
		t.Fatal(err)
	}
	if !m.IsAnonymous || m.UserID != nil {
		t.Errorf("anonymous match: %+v", m)
	}

	userID := env.createMatch(t, env.token(t, "u1", "alice"), "http://a")
	m, _ = env.db.GetMatch(userID)
	if m.IsAnonymous || m.UserID == nil || *m.UserID != "u1" {
		t.Errorf("attributed match: %+v", m)
	}
	res, _ := env.db.ListResources(userID)
	if len(res) != 1 || res[0].URL != "http://a" {
		t.Errorf("resources = %+v", res)
	}
}

func TestAssociateMatch(t *testing.T) {
	env := newTestEnv(t, Options{})
	matchID := env.createMatch(t, "", "http://a")
	alice := env.token(t, "u1", "alice")

	body := map[string]string{"associateUserId": "u1", "matchId": matchID}

	if w := env.do(t, "POST", "/api/matches", "", body); w.Code != http.StatusUnauthorized {
		t.Errorf("no session: %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/matches", env.token(t, "u2", "bob"), body); w.Code != http.StatusForbidden {
		t.Errorf("other user: %d", w.Code)
	}
	missing := map[string]string{"associateUserId": "u1", "matchId": "nope"}
	if w := env.do(t, "POST", "/api/matches", alice, missing); w.Code != http.StatusNotFound {
		t.Errorf("missing match: %d", w.Code)
	}

	w := env.do(t, "POST", "/api/matches", alice, body)
	if w.Code != http.StatusOK {
		t.Fatalf("associate: %d %s", w.Code, w.Body.String())
	}
	if ok := decode[map[string]bool](t, w)["ok"]; !ok {
		t.Errorf("body = %s", w.Body.String())
	}
	m, _ := env.db.GetMatch(matchID)
	if m.IsAnonymous || m.UserID == nil || *m.UserID != "u1" || m.PromptID != 1 {
		t.Errorf("match after associate: %+v", m)
	}

	if w := env.do(t, "POST", "/api/matches", alice, body); w.Code != http.StatusConflict {
		t.Errorf("second associate: %d", w.Code)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	matchID := env.createMatch(t, "", "http://a", "http://b")

	if w := env.do(t, "POST", "/api/evaluate", "", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing id: %d", w.Code)
	}
	if w := env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown match: %d", w.Code)
	}

	w := env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": matchID})
	if w.Code != http.StatusOK {
		t.Fatalf("evaluate: %d %s", w.Code, w.Body.String())
	}
	if total := decode[map[string]int](t, w)["total"]; total != 10 {
		t.Errorf("total = %d, want 10", total)
	}

	w = env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": matchID})
	if w.Code != http.StatusConflict {
		t.Errorf("second evaluate: %d", w.Code)
	}
	if msg := decode[map[string]string](t, w)["error"]; msg == "" {
		t.Error("conflict should carry an error message")
	}
}

func TestEvaluateEndpointConcurrent(t *testing.T) {
	env := newTestEnv(t, Options{})
	matchID := env.createMatch(t, "", "http://a")

	var wg sync.WaitGroup
	codes := make(chan int, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": matchID}).Code
		}()
	}
	wg.Wait()
	close(codes)

	got := map[int]int{}
	for c := range codes {
		got[c]++
	}
	if got[http.StatusOK] != 1 || got[http.StatusConflict] != 1 {
		t.Fatalf("status codes = %v, want one 200 and one 409", got)
	}
	if n, _ := env.db.CountEvaluations(matchID); n != 1 {
		t.Errorf("evaluations = %d, want 1", n)
	}
}

func TestNextPrompt(t *testing.T) {
	env := newTestEnv(t, Options{})

	type nextResp struct {
		Prompt  *db.Prompt `json:"prompt"`
		Done    bool       `json:"done"`
		Message string     `json:"message"`
	}

	w := env.do(t, "GET", "/api/prompts/next", "", nil)
	if got := decode[nextResp](t, w); got.Prompt == nil || got.Prompt.ID != 1 {
		t.Fatalf("anonymous prompt = %s", w.Body.String())
	}

	alice := env.token(t, "u1", "alice")
	for _, want := range []int64{1, 2} {
		w := env.do(t, "GET", "/api/prompts/next", alice, nil)
		got := decode[nextResp](t, w)
		if got.Prompt == nil || got.Prompt.ID != want {
			t.Fatalf("want prompt %d, got %s", want, w.Body.String())
		}
		body := map[string]any{"promptId": want, "resources": []string{"http://a"}}
		if w := env.do(t, "POST", "/api/matches", alice, body); w.Code != http.StatusCreated {
			t.Fatalf("create: %d", w.Code)
		}
	}

	w = env.do(t, "GET", "/api/prompts/next", alice, nil)
	got := decode[nextResp](t, w)
	if w.Code != http.StatusOK || !got.Done || got.Message == "" || got.Prompt != nil {
		t.Errorf("exhausted: %d %s", w.Code, w.Body.String())
	}

	// Anonymous players always start from the lowest level.
	w = env.do(t, "GET", "/api/prompts/next", "", nil)
	if got := decode[nextResp](t, w); got.Prompt == nil || got.Prompt.ID != 1 {
		t.Errorf("anonymous after play = %s", w.Body.String())
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.token(t, "u1", "alice")

	aliceMatch := env.createMatch(t, alice, "http://a", "http://b")
	anonMatch := env.createMatch(t, "", "http://c")
	for _, id := range []string{aliceMatch, anonMatch} {
		if w := env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": id}); w.Code != 200 {
			t.Fatalf("evaluate %s: %d", id, w.Code)
		}
	}

	type board struct {
		Leaderboard []db.LeaderboardEntry `json:"leaderboard"`
	}

	got := decode[board](t, env.do(t, "GET", "/api/leaderboard", "", nil))
	if len(got.Leaderboard) != 1 || got.Leaderboard[0].Username != "alice" || got.Leaderboard[0].Score != 10 {
		t.Fatalf("default leaderboard = %+v", got.Leaderboard)
	}

	got = decode[board](t, env.do(t, "GET", "/api/leaderboard?includeMatchId="+anonMatch, "", nil))
	if len(got.Leaderboard) != 2 {
		t.Fatalf("with include = %+v", got.Leaderboard)
	}
	last := got.Leaderboard[1]
	if last.Username != db.AnonymousName || last.Score != 5 || last.MatchID != anonMatch {
		t.Errorf("anonymous entry = %+v", last)
	}

	if w := env.do(t, "GET", "/api/leaderboard?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", w.Code)
	}
}

func TestMatchAndHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.token(t, "u1", "alice")
	matchID := env.createMatch(t, alice, "http://a")
	env.do(t, "POST", "/api/evaluate", "", map[string]string{"matchId": matchID})

	w := env.do(t, "GET", "/api/matches/"+matchID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get match: %d", w.Code)
	}
	result := decode[matchResult](t, w)
	if result.Prompt.ID != 1 || len(result.Evaluations) != 1 || result.Evaluations[0].URL != "http://a" {
		t.Errorf("match result = %s", w.Body.String())
	}
	if w := env.do(t, "GET", "/api/matches/nope", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown match: %d", w.Code)
	}

	if w := env.do(t, "GET", "/api/me/matches", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("history without session: %d", w.Code)
	}
	w = env.do(t, "GET", "/api/me/matches", alice, nil)
	history := decode[map[string][]db.HistoryEntry](t, w)["matches"]
	if len(history) != 1 || history[0].MatchID != matchID || history[0].PromptTitle != "Intro" {
		t.Errorf("history = %s", w.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{MatchesPerMin: 2})
	body := map[string]any{"promptId": 1, "resources": []string{"http://a"}}
	for i := 0; i < 2; i++ {
		if w := env.do(t, "POST", "/api/matches", "", body); w.Code != http.StatusCreated {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	if w := env.do(t, "POST", "/api/matches", "", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: %d, want 429", w.Code)
	}
	// Other routes are not limited.
	if w := env.do(t, "GET", "/api/leaderboard", "", nil); w.Code != http.StatusOK {
		t.Errorf("leaderboard: %d", w.Code)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, Options{MatchesPerMin: 1})
	body := map[string]any{"promptId": 1, "resources": []string{"http://a"}}
	post := func(fwd string) int {
		var buf bytes.Buffer
		json.NewEncoder(&buf).Encode(body)
		req := httptest.NewRequest("POST", "/api/matches", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fwd)
		w := httptest.NewRecorder()
		env.mux.ServeHTTP(w, req)
		return w.Code
	}
	if code := post("203.0.113.1"); code != http.StatusCreated {
		t.Fatalf("first request: %d", code)
	}
	if code := post("203.0.113.2"); code != http.StatusTooManyRequests {
		t.Errorf("rotated X-Forwarded-For: %d, want 429", code)
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"untrusted peer ignores header", "192.0.2.7:4000", "203.0.113.1", "192.0.2.7"},
		{"trusted peer without header", "127.0.0.1:4000", "", "127.0.0.1"},
		{"trusted peer uses header", "127.0.0.1:4000", "203.0.113.1", "203.0.113.1"},
		{"spoofed left-most hop skipped", "10.1.2.3:4000", "198.51.100.9, 203.0.113.1", "203.0.113.1"},
		{"trusted hops skipped", "10.1.2.3:4000", "203.0.113.1, 10.0.0.5", "203.0.113.1"},
		{"only trusted hops", "10.1.2.3:4000", "10.0.0.5", "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := clientIP(r, trusted); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 127.0.0.1 ", "", "::1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("prefixes = %v, want 3", got)
	}
	for _, bad := range []string{"not-an-ip", "10.0.0.0/99"} {
		if _, err := ParseTrustedProxies([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestPages(t *testing.T) {
	env := newTestEnv(t, Options{})
	matchID := env.createMatch(t, "", "http://a")

	w := env.do(t, "GET", "/", "", nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/play" {
		t.Errorf("root: %d %q", w.Code, w.Header().Get("Location"))
	}

	tests := []struct {
		path, want string
		code       int
	}{
		{"/play", "Learn Go basics", 200},
		{"/play/result/" + matchID, fmt.Sprintf(`data-match-id="%s"`, matchID), 200},
		{"/play/result/nope", "Match not found", 404},
		{"/dashboard", "Top players", 200},
		{"/static/app.js", "/api/evaluate", 200},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := env.do(t, "GET", tt.path, "", nil)
			if w.Code != tt.code {
				t.Fatalf("status = %d, want %d", w.Code, tt.code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Options{})
	if w := env.do(t, "GET", "/api/healthz", "", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: %d", w.Code)
	}
}
