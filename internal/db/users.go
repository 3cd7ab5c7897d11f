package db

import (
	"fmt"
	"time"
)

// User mirrors the identity provider's account. Only the username is kept.
type User struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// UpsertUser records a user seen in a verified session, refreshing the
// username when the identity provider supplies one.
func (db *DB) UpsertUser(id, username string) error {
	now := time.Now().UTC()
	_, err := db.Exec(`
		INSERT INTO users (id, username, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			last_seen_at = excluded.last_seen_at`,
		id, username, now, now)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (db *DB) GetUser(id string) (*User, error) {
	u := &User{}
	err := db.QueryRow(`
		SELECT id, username, created_at, last_seen_at
		FROM users WHERE id = ?`, id).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}
