// CLAUDE:SUMMARY Evaluation orchestrator: builds the judge prompt, claims the match, calls the gateway once, parses and persists per-resource scores
package llm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/linkquest/internal/db"
)

var (
	ErrMissingMatchID  = errors.New("match id is required")
	ErrMatchNotFound   = errors.New("match not found")
	ErrPromptNotFound  = errors.New("prompt not found")
	ErrNoResources     = errors.New("match has no resources")
	ErrMalformedOutput = errors.New("malformed judge output")
)

const (
	resourceIDsLabel  = "Resource IDs: "
	maxExplanationLen = 200
	minScore          = 1
	maxScore          = 10
)

// verdict is the judge's answer for one resource.
type verdict struct {
	Score       *float64 `json:"score"`
	Explanation string   `json:"explanation"`
}

// EvaluationResult is what a successful evaluation returns.
type EvaluationResult struct {
	MatchID     string          `json:"matchId"`
	Total       int             `json:"total"`
	Model       *db.AIModel     `json:"model"`
	Evaluations []db.Evaluation `json:"evaluations"`
}

// Evaluator scores every resource of a match exactly once.
type Evaluator struct {
	database *db.DB
	client   *Client
	claimTTL time.Duration
	logger   *slog.Logger
}

func NewEvaluator(database *db.DB, client *Client, claimTTL time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &Evaluator{database: database, client: client, claimTTL: claimTTL, logger: logger}
}

// Evaluate runs the judge over matchID. At most one caller wins: the others
// get db.ErrAlreadyEvaluated or db.ErrEvaluationInProgress.
func (e *Evaluator) Evaluate(ctx context.Context, matchID string) (*EvaluationResult, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, ErrMissingMatchID
	}

	n, err := e.database.CountEvaluations(matchID)
	if err != nil {
		return nil, fmt.Errorf("counting evaluations: %w", err)
	}
	if n > 0 {
		return nil, db.ErrAlreadyEvaluated
	}

	model, err := e.database.ActiveModel()
	if err != nil {
		return nil, fmt.Errorf("resolving active model: %w", err)
	}

	match, err := e.database.GetMatch(matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading match: %w", err)
	}
	prompt, err := e.database.GetPrompt(match.PromptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading prompt: %w", err)
	}
	resources, err := e.database.ListResources(matchID)
	if err != nil {
		return nil, fmt.Errorf("loading resources: %w", err)
	}
	if len(resources) == 0 {
		return nil, ErrNoResources
	}

	text := BuildEvaluationPrompt(prompt.Description, resources)

	claimedAt, err := e.database.ClaimEvaluation(matchID, e.claimTTL)
	if err != nil {
		return nil, err
	}
	result, err := e.judge(ctx, match, model, text, resources)
	if err != nil {
		if rerr := e.database.ReleaseClaim(matchID, claimedAt); rerr != nil {
			e.logger.Error("release evaluation claim", "match_id", matchID, "error", rerr)
		}
		return nil, err
	}
	return result, nil
}

func (e *Evaluator) judge(ctx context.Context, match *db.Match, model *db.AIModel, prompt string, resources []db.Resource) (*EvaluationResult, error) {
	resp, err := e.client.Generate(ctx, model.Provider, model.Name, prompt)
	if err != nil {
		return nil, fmt.Errorf("judge call: %w", err)
	}

	evals, err := ParseEvaluations(resp.Content, resources)
	if err != nil {
		e.logger.Warn("judge output rejected", "match_id", match.ID, "model", model.Name,
			"content", truncate(resp.Content, 500), "error", err)
		return nil, err
	}
	for i := range evals {
		evals[i].MatchID = match.ID
		evals[i].ModelID = model.ID
	}

	total, err := e.database.SaveEvaluations(match.ID, evals)
	if err != nil {
		return nil, err
	}

	e.logger.Info("match evaluated", "match_id", match.ID, "provider", model.Provider,
		"model", model.Name, "total", total, "resources", len(evals),
		"latency_ms", resp.Latency.Milliseconds())

	return &EvaluationResult{MatchID: match.ID, Total: total, Model: model, Evaluations: evals}, nil
}

// BuildEvaluationPrompt embeds the problem, the submitted URLs and their ids,
// and asks for a single-line JSON object keyed by resource id.
func BuildEvaluationPrompt(description string, resources []db.Resource) string {
	urls := make([]string, len(resources))
	ids := make([]string, len(resources))
	for i, r := range resources {
		urls[i] = r.URL
		ids[i] = strconv.FormatInt(r.ID, 10)
	}

	var b strings.Builder
	b.WriteString("You are judging learning resources submitted for a problem.\n")
	b.WriteString("Score each resource from 1 to 10 for how well it helps someone solve the problem, ")
	b.WriteString("and explain the score in at most 200 characters.\n\n")
	fmt.Fprintf(&b, "Problem: %s\n", description)
	fmt.Fprintf(&b, "Resources: %s\n", strings.Join(urls, ", "))
	fmt.Fprintf(&b, "%s%s\n\n", resourceIDsLabel, strings.Join(ids, ", "))
	b.WriteString(`Reply with a single-line JSON object and nothing else, for example: `)
	b.WriteString(`{"<resource_id>": {"score": 7, "explanation": "..."}}`)
	return b.String()
}

// ParseEvaluations decodes the judge's JSON into one evaluation per resource,
// in resource order. Every resource id must be present with a numeric score.
func ParseEvaluations(content string, resources []db.Resource) ([]db.Evaluation, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedOutput)
	}

	var verdicts map[string]verdict
	if err := json.Unmarshal([]byte(raw), &verdicts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	evals := make([]db.Evaluation, 0, len(resources))
	for _, r := range resources {
		key := strconv.FormatInt(r.ID, 10)
		v, ok := verdicts[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing resource %s", ErrMalformedOutput, key)
		}
		if v.Score == nil || math.IsNaN(*v.Score) {
			return nil, fmt.Errorf("%w: resource %s has no score", ErrMalformedOutput, key)
		}
		evals = append(evals, db.Evaluation{
			ResourceID:  r.ID,
			Score:       clampScore(*v.Score),
			Explanation: truncateRunes(strings.TrimSpace(v.Explanation), maxExplanationLen),
			URL:         r.URL,
		})
	}
	return evals, nil
}

// extractJSONObject returns the text between the first '{' and the last '}',
// which drops markdown fences and any chatter around the object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func clampScore(f float64) int {
	n := int(math.Round(f))
	if n < minScore {
		return minScore
	}
	if n > maxScore {
		return maxScore
	}
	return n
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
