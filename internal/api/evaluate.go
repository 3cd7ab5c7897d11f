package api

import (
	"errors"
	"net/http"

	"github.com/hazyhaar/linkquest/internal/db"
	"github.com/hazyhaar/linkquest/internal/llm"
)

func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MatchID string `json:"matchId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := a.evaluator.Evaluate(r.Context(), req.MatchID)
	if err != nil {
		status, msg := evaluateErrorStatus(err)
		if status == http.StatusInternalServerError {
			a.logger.Error("evaluate match", "match_id", req.MatchID, "error", err)
		}
		jsonError(w, msg, status)
		return
	}

	jsonResp(w, http.StatusOK, map[string]int{"total": result.Total})
}

// evaluateErrorStatus maps evaluator failures onto HTTP status and the
// message shown to the player.
func evaluateErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, llm.ErrMissingMatchID):
		return http.StatusBadRequest, "matchId is required"
	case errors.Is(err, db.ErrAlreadyEvaluated):
		return http.StatusConflict, "match already evaluated"
	case errors.Is(err, db.ErrEvaluationInProgress):
		return http.StatusConflict, "match evaluation already in progress"
	case errors.Is(err, llm.ErrMatchNotFound):
		return http.StatusNotFound, "match not found"
	case errors.Is(err, llm.ErrPromptNotFound):
		return http.StatusNotFound, "prompt not found"
	case errors.Is(err, llm.ErrNoResources):
		return http.StatusNotFound, "match has no resources"
	case errors.Is(err, llm.ErrMalformedOutput):
		return http.StatusInternalServerError, "the judge returned an unreadable answer"
	case errors.Is(err, db.ErrNoActiveModel):
		return http.StatusInternalServerError, "no judge model configured"
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusInternalServerError, "the judge is rate limited, try again later"
	default:
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			return http.StatusInternalServerError, "the judge is unavailable"
		}
		return http.StatusInternalServerError, "evaluation failed"
	}
}
