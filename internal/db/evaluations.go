// CLAUDE:SUMMARY Evaluation DB operations: atomic per-match claim, one-shot batch insert with score_ai update, result listing
package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Evaluation is the judge's score and explanation for one resource.
type Evaluation struct {
	ID          int64     `json:"id"`
	MatchID     string    `json:"match_id"`
	ResourceID  int64     `json:"resource_id"`
	ModelID     int64     `json:"model_id"`
	Score       int       `json:"score"`
	Explanation string    `json:"explanation"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CountEvaluations returns how many evaluation rows exist for a match.
func (db *DB) CountEvaluations(matchID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM ai_evaluations WHERE match_id = ?`, matchID).Scan(&n)
	return n, err
}

// ClaimEvaluation atomically reserves the right to evaluate a match and
// returns the claim's timestamp, which identifies it for ReleaseClaim. A
// claim older than ttl on a match that still has no evaluations is considered
// abandoned and can be taken over. Returns ErrEvaluationInProgress when
// another live claim holds the match.
func (db *DB) ClaimEvaluation(matchID string, ttl time.Duration) (int64, error) {
	now := time.Now().UnixNano()
	res, err := db.Exec(`
		INSERT INTO evaluation_claims (match_id, claimed_at) VALUES (?, ?)
		ON CONFLICT(match_id) DO UPDATE SET claimed_at = excluded.claimed_at
		WHERE evaluation_claims.claimed_at < ?
		  AND NOT EXISTS (SELECT 1 FROM ai_evaluations WHERE match_id = ?)`,
		matchID, now, now-ttl.Nanoseconds(), matchID)
	if err != nil {
		return 0, fmt.Errorf("claiming evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claiming evaluation: %w", err)
	}
	if n == 0 {
		return 0, ErrEvaluationInProgress
	}
	return now, nil
}

// ReleaseClaim drops the claim taken at claimedAt, so the player can retry
// after a failed judge call. A claim that has since been taken over by
// another caller, or a match that already has evaluations, is left alone.
func (db *DB) ReleaseClaim(matchID string, claimedAt int64) error {
	_, err := db.Exec(`
		DELETE FROM evaluation_claims
		WHERE match_id = ? AND claimed_at = ?
		  AND NOT EXISTS (SELECT 1 FROM ai_evaluations WHERE match_id = ?)`, matchID, claimedAt, matchID)
	return err
}

// SaveEvaluations inserts every evaluation of a match and writes the summed
// score onto matches.score_ai, all in one transaction. Returns the total, or
// ErrAlreadyEvaluated if any evaluation for the match already exists.
func (db *DB) SaveEvaluations(matchID string, evals []Evaluation) (int, error) {
	total := 0
	err := db.withTx(func(tx *sql.Tx) error {
		var existing int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM ai_evaluations WHERE match_id = ?`, matchID).Scan(&existing); err != nil {
			return fmt.Errorf("checking evaluations: %w", err)
		}
		if existing > 0 {
			return ErrAlreadyEvaluated
		}

		now := time.Now().UTC()
		for _, e := range evals {
			_, err := tx.Exec(`
				INSERT INTO ai_evaluations (match_id, resource_id, model_id, score, explanation, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				matchID, e.ResourceID, e.ModelID, e.Score, e.Explanation, now)
			if err != nil {
				if isUniqueViolation(err) {
					return ErrAlreadyEvaluated
				}
				return fmt.Errorf("inserting evaluation: %w", err)
			}
			total += e.Score
		}

		if _, err := tx.Exec(`UPDATE matches SET score_ai = ? WHERE id = ?`, total, matchID); err != nil {
			return fmt.Errorf("updating score: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListEvaluations returns a match's evaluations with their resource URL,
// ordered by evaluation id.
func (db *DB) ListEvaluations(matchID string) ([]Evaluation, error) {
	rows, err := db.Query(`
		SELECT e.id, e.match_id, e.resource_id, e.model_id, e.score, e.explanation, r.url, e.created_at
		FROM ai_evaluations e JOIN submitted_resources r ON r.id = e.resource_id
		WHERE e.match_id = ?
		ORDER BY e.id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Evaluation
	for rows.Next() {
		var e Evaluation
		if err := rows.Scan(&e.ID, &e.MatchID, &e.ResourceID, &e.ModelID, &e.Score, &e.Explanation, &e.URL, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
