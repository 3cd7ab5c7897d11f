package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

// App config keys selecting the judge model. The community winner, when set,
// overrides the default.
const (
	ConfigCommunityWinnerModel = "community_winner_model"
	ConfigDefaultModel         = "default_ai_model"
)

// AIModel describes which provider and model the judge calls.
type AIModel struct {
	ID       int64  `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

func (db *DB) GetModel(id int64) (*AIModel, error) {
	m := &AIModel{}
	err := db.QueryRow(`SELECT id, provider, name FROM ai_models WHERE id = ?`, id).
		Scan(&m.ID, &m.Provider, &m.Name)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (db *DB) UpsertModel(m AIModel) error {
	return upsertModel(db.DB, m)
}

func upsertModel(ex execer, m AIModel) error {
	_, err := ex.Exec(`
		INSERT INTO ai_models (id, provider, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET provider = excluded.provider, name = excluded.name`,
		m.ID, m.Provider, m.Name)
	return err
}

// GetConfig returns the value for key, or "" if unset.
func (db *DB) GetConfig(key string) (string, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM app_config WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (db *DB) SetConfig(key, value string) error {
	return setConfig(db.DB, key, value)
}

func setConfig(ex execer, key, value string) error {
	_, err := ex.Exec(`
		INSERT INTO app_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// ActiveModel resolves the judge model: community_winner_model if set,
// otherwise default_ai_model. Returns ErrNoActiveModel when neither is set.
func (db *DB) ActiveModel() (*AIModel, error) {
	var raw string
	for _, key := range []string{ConfigCommunityWinnerModel, ConfigDefaultModel} {
		v, err := db.GetConfig(key)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		if v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return nil, ErrNoActiveModel
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid model id %q: %w", raw, err)
	}
	m, err := db.GetModel(id)
	if err != nil {
		return nil, fmt.Errorf("loading model %d: %w", id, err)
	}
	return m, nil
}
