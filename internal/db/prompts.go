package db

import "database/sql"

// Prompt is a challenge players submit resources against. Lower levels come first.
type Prompt struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       int    `json:"level"`
}

const promptColumns = `id, title, description, level`

func scanPrompt(row interface{ Scan(...any) error }) (*Prompt, error) {
	p := &Prompt{}
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Level); err != nil {
		return nil, err
	}
	return p, nil
}

func (db *DB) GetPrompt(id int64) (*Prompt, error) {
	return scanPrompt(db.QueryRow(`SELECT `+promptColumns+` FROM prompts WHERE id = ?`, id))
}

// LowestLevelPrompt returns the first challenge every anonymous player gets.
// Returns sql.ErrNoRows when no prompts are seeded.
func (db *DB) LowestLevelPrompt() (*Prompt, error) {
	return scanPrompt(db.QueryRow(`
		SELECT ` + promptColumns + ` FROM prompts
		ORDER BY level ASC, id ASC
		LIMIT 1`))
}

// NextPromptForUser returns the lowest-level prompt the user has no match for.
// Returns sql.ErrNoRows once every prompt has been attempted.
func (db *DB) NextPromptForUser(userID string) (*Prompt, error) {
	return scanPrompt(db.QueryRow(`
		SELECT `+promptColumns+` FROM prompts
		WHERE id NOT IN (SELECT prompt_id FROM matches WHERE user_id = ?)
		ORDER BY level ASC, id ASC
		LIMIT 1`, userID))
}

func (db *DB) ListPrompts() ([]Prompt, error) {
	rows, err := db.Query(`SELECT ` + promptColumns + ` FROM prompts ORDER BY level ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prompts []Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

// UpsertPrompt inserts or replaces seed data for a prompt id.
func (db *DB) UpsertPrompt(p Prompt) error {
	return upsertPrompt(db.DB, p)
}

func upsertPrompt(ex execer, p Prompt) error {
	_, err := ex.Exec(`
		INSERT INTO prompts (id, title, description, level) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			level = excluded.level`,
		p.ID, p.Title, p.Description, p.Level)
	return err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}
