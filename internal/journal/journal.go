// Package journal keeps a SQLite record of finished chat requests: one row
// per request with its mode, outcome, sizes and timing. Prompts and responses
// are not stored.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"

	"chatd/internal/common/fsutil"
)

// Entry is one finished request.
type Entry struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	Outcome        string    `json:"outcome"`
	PromptLength   int       `json:"prompt_length"`
	ResponseLength int       `json:"response_length"`
	TokenCount     int       `json:"token_count"`
	GenerationTime float64   `json:"generation_time"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Journal is a SQLite-backed request log.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal at path, creating the parent directory.
// The database runs in WAL mode with a 5 second busy timeout.
func Open(path string) (*Journal, error) {
	p, err := fsutil.EnsureParentDir(path)
	if err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	dsn := "file:" + p + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return j, nil
}

// Close cleanly shuts down the database.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id              TEXT PRIMARY KEY,
			mode            TEXT NOT NULL,
			outcome         TEXT NOT NULL,
			prompt_length   INTEGER NOT NULL DEFAULT 0,
			response_length INTEGER NOT NULL DEFAULT 0,
			token_count     INTEGER NOT NULL DEFAULT 0,
			generation_time REAL NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_outcome ON requests(outcome)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record inserts e. A zero CreatedAt is stamped with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO requests (id, mode, outcome, prompt_length, response_length, token_count, generation_time, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Mode, e.Outcome, e.PromptLength, e.ResponseLength, e.TokenCount, e.GenerationTime, e.Error, e.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert request %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, mode, outcome, prompt_length, response_length, token_count, generation_time, error, created_at
		 FROM requests ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Mode, &e.Outcome, &e.PromptLength, &e.ResponseLength, &e.TokenCount, &e.GenerationTime, &e.Error, &ms); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per outcome.
func (j *Journal) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM requests GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		out[outcome] = n
	}
	return out, rows.Err()
}
