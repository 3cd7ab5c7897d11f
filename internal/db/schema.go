package db

const schema = `
CREATE TABLE IF NOT EXISTS prompts (
    id          INTEGER PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL,
    level       INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_prompts_level ON prompts(level, id);

CREATE TABLE IF NOT EXISTS users (
    id           TEXT PRIMARY KEY,
    username     TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL,
    last_seen_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
    id              TEXT PRIMARY KEY,
    user_id         TEXT REFERENCES users(id),
    prompt_id       INTEGER NOT NULL REFERENCES prompts(id),
    is_anonymous    INTEGER NOT NULL DEFAULT 1 CHECK(is_anonymous IN (0, 1)),
    started_at      DATETIME NOT NULL,
    score_ai        INTEGER,
    score_community INTEGER
);

CREATE INDEX IF NOT EXISTS idx_matches_user ON matches(user_id);
CREATE INDEX IF NOT EXISTS idx_matches_prompt ON matches(prompt_id);

CREATE TABLE IF NOT EXISTS submitted_resources (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id TEXT NOT NULL REFERENCES matches(id),
    url      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resources_match ON submitted_resources(match_id);

CREATE TABLE IF NOT EXISTS ai_models (
    id       INTEGER PRIMARY KEY,
    provider TEXT NOT NULL CHECK(provider IN ('openai','anthropic','gemini','deepseek','grok','fake')),
    name     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS app_config (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_evaluations (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    match_id    TEXT NOT NULL REFERENCES matches(id),
    resource_id INTEGER NOT NULL REFERENCES submitted_resources(id),
    model_id    INTEGER NOT NULL REFERENCES ai_models(id),
    score       INTEGER NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL,
    UNIQUE(match_id, resource_id)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_match ON ai_evaluations(match_id);

-- One row per match whose evaluation has been started. claimed_at is unix nanoseconds.
CREATE TABLE IF NOT EXISTS evaluation_claims (
    match_id   TEXT PRIMARY KEY REFERENCES matches(id),
    claimed_at INTEGER NOT NULL
);
`
