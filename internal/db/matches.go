// CLAUDE:SUMMARY Match lifecycle DB operations: create match with resources, attribute anonymous matches, history and result lookups
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/pkg/idgen"
)

// Match is one play session: a prompt plus the resources submitted against it.
type Match struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id,omitempty"`
	PromptID       int64     `json:"prompt_id"`
	IsAnonymous    bool      `json:"is_anonymous"`
	StartedAt      time.Time `json:"started_at"`
	ScoreAI        *int      `json:"score_ai,omitempty"`
	ScoreCommunity *int      `json:"score_community,omitempty"`
}

// Resource is a URL submitted within a match.
type Resource struct {
	ID      int64  `json:"id"`
	MatchID string `json:"match_id"`
	URL     string `json:"url"`
}

// HistoryEntry is a match as shown on a player's dashboard.
type HistoryEntry struct {
	MatchID     string    `json:"match_id"`
	StartedAt   time.Time `json:"started_at"`
	ScoreAI     *int      `json:"score_ai"`
	PromptID    int64     `json:"prompt_id"`
	PromptTitle string    `json:"prompt_title"`
	PromptLevel int       `json:"prompt_level"`
}

type CreateMatchInput struct {
	UserID   string // empty for an anonymous player
	PromptID int64
	URLs     []string
}

// NewID generates a 12-character base-36 match ID.
func NewID() string {
	return idgen.New()
}

// CreateMatch inserts the match row and one resource row per URL in a single
// transaction, so a failed resource insert leaves no orphaned match.
func (db *DB) CreateMatch(input CreateMatchInput) (*Match, []Resource, error) {
	m := &Match{
		ID:          NewID(),
		PromptID:    input.PromptID,
		IsAnonymous: input.UserID == "",
		StartedAt:   time.Now().UTC(),
	}
	var userID *string
	if input.UserID != "" {
		userID = &input.UserID
		m.UserID = userID
	}

	resources := make([]Resource, 0, len(input.URLs))
	err := db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO matches (id, user_id, prompt_id, is_anonymous, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, userID, m.PromptID, m.IsAnonymous, m.StartedAt); err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
		for _, u := range input.URLs {
			res, err := tx.Exec(`INSERT INTO submitted_resources (match_id, url) VALUES (?, ?)`, m.ID, u)
			if err != nil {
				return fmt.Errorf("inserting resource: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading resource id: %w", err)
			}
			resources = append(resources, Resource{ID: id, MatchID: m.ID, URL: u})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return m, resources, nil
}

func (db *DB) GetMatch(id string) (*Match, error) {
	m := &Match{}
	var userID sql.NullString
	var scoreAI, scoreCommunity sql.NullInt64
	err := db.QueryRow(`
		SELECT id, user_id, prompt_id, is_anonymous, started_at, score_ai, score_community
		FROM matches WHERE id = ?`, id).Scan(
		&m.ID, &userID, &m.PromptID, &m.IsAnonymous, &m.StartedAt, &scoreAI, &scoreCommunity)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		m.UserID = &userID.String
	}
	if scoreAI.Valid {
		v := int(scoreAI.Int64)
		m.ScoreAI = &v
	}
	if scoreCommunity.Valid {
		v := int(scoreCommunity.Int64)
		m.ScoreCommunity = &v
	}
	return m, nil
}

// ListResources returns a match's resources in submission order.
func (db *DB) ListResources(matchID string) ([]Resource, error) {
	rows, err := db.Query(`
		SELECT id, match_id, url FROM submitted_resources
		WHERE match_id = ? ORDER BY id ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.MatchID, &r.URL); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AssociateMatch attributes an anonymous match to userID. Only user_id and
// is_anonymous change. Returns sql.ErrNoRows for an unknown match and
// ErrMatchNotAnonymous if it already belongs to someone.
func (db *DB) AssociateMatch(matchID, userID string) error {
	return db.withTx(func(tx *sql.Tx) error {
		var anonymous bool
		err := tx.QueryRow(`SELECT is_anonymous FROM matches WHERE id = ?`, matchID).Scan(&anonymous)
		if err != nil {
			return err
		}
		if !anonymous {
			return ErrMatchNotAnonymous
		}
		_, err = tx.Exec(`
			UPDATE matches SET user_id = ?, is_anonymous = 0
			WHERE id = ? AND is_anonymous = 1`, userID, matchID)
		if err != nil {
			return fmt.Errorf("associating match: %w", err)
		}
		return nil
	})
}

// ListUserMatches returns a user's match history, newest first.
func (db *DB) ListUserMatches(userID string) ([]HistoryEntry, error) {
	rows, err := db.Query(`
		SELECT m.id, m.started_at, m.score_ai, p.id, p.title, p.level
		FROM matches m JOIN prompts p ON p.id = m.prompt_id
		WHERE m.user_id = ?
		ORDER BY m.started_at DESC, m.id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var score sql.NullInt64
		if err := rows.Scan(&h.MatchID, &h.StartedAt, &score, &h.PromptID, &h.PromptTitle, &h.PromptLevel); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			h.ScoreAI = &v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
