package api

import (
	"net/http"
	"strconv"
)

const defaultLeaderboardLimit = 100

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, 500)
	}

	entries, err := a.db.Leaderboard(r.URL.Query().Get("includeMatchId"), limit)
	if err != nil {
		a.internalError(w, r, "leaderboard", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"leaderboard": entries})
}
