package e2e

import (
	"net/http"
	"sync"
	"testing"
	"time"
)

type nextPromptResp struct {
	Prompt *struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Level int    `json:"level"`
	} `json:"prompt"`
	Done    bool   `json:"done"`
	Message string `json:"message"`
}

type leaderboardResp struct {
	Leaderboard []struct {
		Username string `json:"username"`
		Score    int    `json:"score"`
		UserID   string `json:"userId"`
		MatchID  string `json:"matchId"`
	} `json:"leaderboard"`
}

func TestAnonymousPlayThenSignUp(t *testing.T) {
	h, dba := ensureHarness(t)

	var next nextPromptResp
	resp, err := h.JSON("GET", "/api/prompts/next", nil, "", &next)
	if err != nil {
		t.Fatal(err)
	}
	RequireStatus(t, resp, http.StatusOK)
	if next.Prompt == nil || next.Prompt.Level != 1 {
		t.Fatalf("anonymous player should start at level 1, got %+v", next)
	}

	matchID := h.CreateMatch(t, "", next.Prompt.ID, "https://go.dev/tour", "https://gobyexample.com/hello-world")
	dba.AssertAttribution(t, matchID, "", true)

	status, total := h.Evaluate(t, matchID)
	if status != http.StatusOK {
		t.Fatalf("evaluate: status %d", status)
	}
	if got := dba.AssertScoreAI(t, matchID); got != total {
		t.Errorf("score_ai = %d, response total = %d", got, total)
	}
	if n := dba.CountEvaluations(t, matchID); n != 2 {
		t.Errorf("evaluations = %d, want 2", n)
	}

	// The anonymous match is invisible until asked for.
	var board leaderboardResp
	h.JSON("GET", "/api/leaderboard", nil, "", &board)
	for _, e := range board.Leaderboard {
		if e.MatchID == matchID {
			t.Errorf("anonymous match on default leaderboard: %+v", e)
		}
	}
	h.JSON("GET", "/api/leaderboard?includeMatchId="+matchID, nil, "", &board)
	found := false
	for _, e := range board.Leaderboard {
		if e.MatchID == matchID && e.Username == "Anonymous" && e.Score == total {
			found = true
		}
	}
	if !found {
		t.Errorf("includeMatchId did not rank the match: %+v", board.Leaderboard)
	}

	// Sign up, then claim the match.
	token := h.Token(t, Users.Carol)
	resp, err = h.JSON("POST", "/api/matches", map[string]string{
		"associateUserId": Users.Carol.ID,
		"matchId":         matchID,
	}, token, nil)
	if err != nil {
		t.Fatal(err)
	}
	RequireStatus(t, resp, http.StatusOK)
	dba.AssertAttribution(t, matchID, Users.Carol.ID, false)

	h.JSON("GET", "/api/leaderboard", nil, "", &board)
	found = false
	for _, e := range board.Leaderboard {
		if e.UserID == Users.Carol.ID && e.Username == Users.Carol.Username && e.Score == total {
			found = true
		}
	}
	if !found {
		t.Errorf("carol missing from leaderboard: %+v", board.Leaderboard)
	}
}

func TestSignedInProgression(t *testing.T) {
	h, _ := ensureHarness(t)
	token := h.Token(t, Users.Alice)

	for want := int64(1); want <= 3; want++ {
		var next nextPromptResp
		resp, err := h.JSON("GET", "/api/prompts/next", nil, token, &next)
		if err != nil {
			t.Fatal(err)
		}
		RequireStatus(t, resp, http.StatusOK)
		if next.Prompt == nil || next.Prompt.ID != want {
			t.Fatalf("step %d: got %+v", want, next)
		}
		matchID := h.CreateMatch(t, token, next.Prompt.ID, "https://pkg.go.dev/std")
		if status, _ := h.Evaluate(t, matchID); status != http.StatusOK {
			t.Fatalf("evaluate step %d: %d", want, status)
		}
	}

	var next nextPromptResp
	h.JSON("GET", "/api/prompts/next", nil, token, &next)
	if !next.Done || next.Message == "" {
		t.Errorf("expected completed state, got %+v", next)
	}

	var history struct {
		Matches []struct {
			MatchID     string `json:"match_id"`
			PromptLevel int    `json:"prompt_level"`
			ScoreAI     *int   `json:"score_ai"`
		} `json:"matches"`
	}
	resp, err := h.JSON("GET", "/api/me/matches", nil, token, &history)
	if err != nil {
		t.Fatal(err)
	}
	RequireStatus(t, resp, http.StatusOK)
	if len(history.Matches) != 3 {
		t.Fatalf("history = %+v", history.Matches)
	}
	for _, m := range history.Matches {
		if m.ScoreAI == nil {
			t.Errorf("match %s has no score", m.MatchID)
		}
	}
}

func TestEvaluateExactlyOnce(t *testing.T) {
	h, dba := ensureHarness(t)
	matchID := h.CreateMatch(t, "", 2, "https://go.dev/tour/concurrency/2", "https://go.dev/tour/concurrency/3", "https://gobyexample.com/channels")

	const callers = 6
	var wg sync.WaitGroup
	statuses := make(chan int, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := h.Evaluate(t, matchID)
			statuses <- status
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[int]int{}
	for s := range statuses {
		counts[s]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != callers-1 {
		t.Fatalf("statuses = %v, want one 200 and %d 409", counts, callers-1)
	}
	if n := dba.CountEvaluations(t, matchID); n != 3 {
		t.Errorf("evaluations = %d, want 3", n)
	}
	dba.AssertScoreAI(t, matchID)
}

func TestAuditTrail(t *testing.T) {
	h, dba := ensureHarness(t)
	before := dba.CountAudit(t, "GET /api/leaderboard")

	resp, err := h.Do("GET", "/api/leaderboard", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	// Entries are flushed asynchronously.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if dba.CountAudit(t, "GET /api/leaderboard") > before {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Error("leaderboard request was not audited")
}
