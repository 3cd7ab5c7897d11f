package db

// AnonymousName labels a ranked match that has no attributed user.
const AnonymousName = "Anonymous"

// LeaderboardEntry is one ranked player. Exactly one of UserID and MatchID is
// set: MatchID only for an unattributed match pulled in by includeMatchID.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
	UserID   string `json:"userId,omitempty"`
	MatchID  string `json:"matchId,omitempty"`
}

// Leaderboard sums score_ai per user id over attributed, non-anonymous
// matches, highest first. When includeMatchID is non-empty that match also
// counts; if it is unattributed it ranks on its own.
func (db *DB) Leaderboard(includeMatchID string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT uid, mid, MAX(username), SUM(score) AS total
		FROM (
			SELECT
				CASE WHEN m.user_id IS NOT NULL AND m.is_anonymous = 0 THEN m.user_id END AS uid,
				CASE WHEN m.user_id IS NOT NULL AND m.is_anonymous = 0 THEN NULL ELSE m.id END AS mid,
				COALESCE(u.username, '') AS username,
				COALESCE(m.score_ai, 0) AS score
			FROM matches m
			LEFT JOIN users u ON u.id = m.user_id
			WHERE (m.user_id IS NOT NULL AND m.is_anonymous = 0) OR m.id = ?
		)
		GROUP BY COALESCE(uid, 'match:' || mid)
		ORDER BY total DESC, MAX(username) ASC
		LIMIT ?`, includeMatchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var uid, mid *string
		var e LeaderboardEntry
		if err := rows.Scan(&uid, &mid, &e.Username, &e.Score); err != nil {
			return nil, err
		}
		if uid != nil {
			e.UserID = *uid
		}
		if mid != nil {
			e.MatchID = *mid
		}
		if e.Username == "" {
			e.Username = AnonymousName
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
