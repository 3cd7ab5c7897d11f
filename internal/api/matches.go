// CLAUDE:SUMMARY Match lifecycle handlers: create with 1-4 URLs, associate anonymous match, result lookup, player history
package api

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hazyhaar/linkquest/internal/db"
)

const maxResources = 4

// matchesRequest covers both POST /api/matches bodies. associateUserId
// selects the associate variant.
type matchesRequest struct {
	PromptID        int64    `json:"promptId"`
	Resources       []string `json:"resources"`
	AssociateUserID string   `json:"associateUserId"`
	MatchID         string   `json:"matchId"`
}

func (a *API) handleMatches(w http.ResponseWriter, r *http.Request) {
	var req matchesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.AssociateUserID != "" {
		a.associateMatch(w, r, req)
		return
	}
	a.createMatch(w, r, req)
}

func (a *API) createMatch(w http.ResponseWriter, r *http.Request, req matchesRequest) {
	if req.PromptID <= 0 {
		jsonError(w, "promptId is required", http.StatusBadRequest)
		return
	}
	urls, err := normalizeResources(req.Resources)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := a.db.GetPrompt(req.PromptID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "prompt not found", http.StatusNotFound)
			return
		}
		a.internalError(w, r, "load prompt", err)
		return
	}

	claims, err := a.caller(r)
	if err != nil {
		a.internalError(w, r, "record user", err)
		return
	}
	input := db.CreateMatchInput{PromptID: req.PromptID, URLs: urls}
	if claims != nil {
		input.UserID = claims.UserID()
	}

	m, _, err := a.db.CreateMatch(input)
	if err != nil {
		a.internalError(w, r, "create match", err)
		return
	}
	jsonResp(w, http.StatusCreated, map[string]string{"matchId": m.ID})
}

func (a *API) associateMatch(w http.ResponseWriter, r *http.Request, req matchesRequest) {
	if req.MatchID == "" {
		jsonError(w, "matchId is required", http.StatusBadRequest)
		return
	}
	claims, err := a.caller(r)
	if err != nil {
		a.internalError(w, r, "record user", err)
		return
	}
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if claims.UserID() != req.AssociateUserID {
		jsonError(w, "cannot associate a match with another user", http.StatusForbidden)
		return
	}

	err = a.db.AssociateMatch(req.MatchID, req.AssociateUserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		jsonError(w, "match not found", http.StatusNotFound)
		return
	case errors.Is(err, db.ErrMatchNotAnonymous):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		a.internalError(w, r, "associate match", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]bool{"ok": true})
}

// normalizeResources trims each URL and checks there are 1-4 distinct
// absolute http(s) URLs.
func normalizeResources(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, errors.New("at least one resource is required")
	}
	if len(in) > maxResources {
		return nil, fmt.Errorf("at most %d resources are allowed", maxResources)
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, errors.New("resources must not be empty")
		}
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid resource URL: %q", s)
		}
		if seen[s] {
			return nil, fmt.Errorf("duplicate resource URL: %q", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// matchResult is the result page payload.
type matchResult struct {
	Match       *db.Match       `json:"match"`
	Prompt      *db.Prompt      `json:"prompt"`
	Resources   []db.Resource   `json:"resources"`
	Evaluations []db.Evaluation `json:"evaluations"`
}

func (a *API) loadMatchResult(id string) (*matchResult, error) {
	m, err := a.db.GetMatch(id)
	if err != nil {
		return nil, err
	}
	p, err := a.db.GetPrompt(m.PromptID)
	if err != nil {
		return nil, err
	}
	res, err := a.db.ListResources(id)
	if err != nil {
		return nil, err
	}
	evals, err := a.db.ListEvaluations(id)
	if err != nil {
		return nil, err
	}
	if evals == nil {
		evals = []db.Evaluation{}
	}
	return &matchResult{Match: m, Prompt: p, Resources: res, Evaluations: evals}, nil
}

func (a *API) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := a.loadMatchResult(id)
	if errors.Is(err, sql.ErrNoRows) {
		jsonError(w, "match not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, r, "load match", err)
		return
	}
	jsonResp(w, http.StatusOK, result)
}

func (a *API) handleMyMatches(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	history, err := a.db.ListUserMatches(claims.UserID())
	if err != nil {
		a.internalError(w, r, "list matches", err)
		return
	}
	if history == nil {
		history = []db.HistoryEntry{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"matches": history})
}
