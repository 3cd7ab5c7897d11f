// CLAUDE:SUMMARY Direct SQLite assertion helpers for E2E tests: one persistent connection to the game database
package e2e

import (
	"database/sql"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

// DBAssert provides direct SQLite assertions on the game database.
// It keeps a persistent connection to avoid file descriptor exhaustion.
type DBAssert struct {
	path string

	mu   sync.Mutex
	conn *sql.DB
}

func NewDBAssert(path string) *DBAssert {
	return &DBAssert{path: path}
}

// Close releases the persistent connection.
func (d *DBAssert) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

func (d *DBAssert) db(t *testing.T) *sql.DB {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn
	}
	db, err := sql.Open("sqlite", "file:"+d.path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		t.Fatalf("opening %s: %v", d.path, err)
	}
	db.SetMaxOpenConns(1)
	d.conn = db
	return db
}

// CountEvaluations returns the number of ai_evaluations rows for a match.
func (d *DBAssert) CountEvaluations(t *testing.T, matchID string) int {
	t.Helper()
	var n int
	if err := d.db(t).QueryRow(`SELECT COUNT(*) FROM ai_evaluations WHERE match_id = ?`, matchID).Scan(&n); err != nil {
		t.Fatalf("counting evaluations: %v", err)
	}
	return n
}

// AssertScoreAI verifies matches.score_ai equals the sum of the match's
// evaluation scores and returns it.
func (d *DBAssert) AssertScoreAI(t *testing.T, matchID string) int {
	t.Helper()
	var score sql.NullInt64
	var sum int
	err := d.db(t).QueryRow(`
		SELECT m.score_ai, COALESCE((SELECT SUM(score) FROM ai_evaluations WHERE match_id = m.id), 0)
		FROM matches m WHERE m.id = ?`, matchID).Scan(&score, &sum)
	if err != nil {
		t.Fatalf("reading match %s: %v", matchID, err)
	}
	if !score.Valid {
		t.Fatalf("match %s has no score_ai", matchID)
	}
	if int(score.Int64) != sum {
		t.Fatalf("match %s score_ai = %d, sum of evaluations = %d", matchID, score.Int64, sum)
	}
	return sum
}

// AssertAttribution verifies a match's owner and anonymity flag.
func (d *DBAssert) AssertAttribution(t *testing.T, matchID, userID string, anonymous bool) {
	t.Helper()
	var uid sql.NullString
	var anon bool
	if err := d.db(t).QueryRow(`SELECT user_id, is_anonymous FROM matches WHERE id = ?`, matchID).Scan(&uid, &anon); err != nil {
		t.Fatalf("reading match %s: %v", matchID, err)
	}
	if uid.String != userID || anon != anonymous {
		t.Fatalf("match %s: user_id=%q is_anonymous=%v, want %q/%v", matchID, uid.String, anon, userID, anonymous)
	}
}

// CountAudit returns how many audit_log rows match an action.
func (d *DBAssert) CountAudit(t *testing.T, action string) int {
	t.Helper()
	var n int
	if err := d.db(t).QueryRow(`SELECT COUNT(*) FROM audit_log WHERE action = ?`, action).Scan(&n); err != nil {
		t.Fatalf("counting audit entries: %v", err)
	}
	return n
}
