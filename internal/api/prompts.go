package api

import (
	"database/sql"
	"errors"
	"net/http"
)

const doneMessage = "You have completed every challenge. Check the leaderboard!"

func (a *API) handleNextPrompt(w http.ResponseWriter, r *http.Request) {
	claims, err := a.caller(r)
	if err != nil {
		a.internalError(w, r, "record user", err)
		return
	}

	if claims == nil {
		p, err := a.db.LowestLevelPrompt()
		if errors.Is(err, sql.ErrNoRows) {
			jsonError(w, "no prompts available", http.StatusNotFound)
			return
		}
		if err != nil {
			a.internalError(w, r, "load prompt", err)
			return
		}
		jsonResp(w, http.StatusOK, map[string]any{"prompt": p})
		return
	}

	p, err := a.db.NextPromptForUser(claims.UserID())
	if errors.Is(err, sql.ErrNoRows) {
		jsonResp(w, http.StatusOK, map[string]any{"done": true, "message": doneMessage})
		return
	}
	if err != nil {
		a.internalError(w, r, "select prompt", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"prompt": p})
}
