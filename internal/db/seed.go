package db

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Seed is the static data the game needs: prompts, judge models and the
// default model selection. It is loaded from a TOML file:
//
//	default_model = 1
//
//	[[prompts]]
//	id = 1
//	title = "Goroutines"
//	description = "..."
//	level = 1
//
//	[[models]]
//	id = 1
//	provider = "openai"
//	name = "gpt-4o-mini"
type Seed struct {
	DefaultModel         int64     `toml:"default_model"`
	CommunityWinnerModel int64     `toml:"community_winner_model"`
	Prompts              []Prompt  `toml:"prompts"`
	Models               []AIModel `toml:"models"`
}

// LoadSeed parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	var s Seed
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return &s, nil
}

// ApplySeed upserts every prompt and model and sets the model config keys
// that are non-zero in the seed.
func (db *DB) ApplySeed(s *Seed) error {
	return db.withTx(func(tx *sql.Tx) error {
		for _, p := range s.Prompts {
			if err := upsertPrompt(tx, p); err != nil {
				return fmt.Errorf("seeding prompt %d: %w", p.ID, err)
			}
		}
		for _, m := range s.Models {
			if err := upsertModel(tx, m); err != nil {
				return fmt.Errorf("seeding model %d: %w", m.ID, err)
			}
		}
		if s.DefaultModel != 0 {
			if err := setConfig(tx, ConfigDefaultModel, strconv.FormatInt(s.DefaultModel, 10)); err != nil {
				return fmt.Errorf("seeding %s: %w", ConfigDefaultModel, err)
			}
		}
		if s.CommunityWinnerModel != 0 {
			if err := setConfig(tx, ConfigCommunityWinnerModel, strconv.FormatInt(s.CommunityWinnerModel, 10)); err != nil {
				return fmt.Errorf("seeding %s: %w", ConfigCommunityWinnerModel, err)
			}
		}
		return nil
	})
}
