// Package archive keeps a local SQLite record of completed calls: the full
// utterance history plus the end-of-call summary. It is the operator-facing
// paper trail; the recruiting records themselves live in Supabase.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sawt-ai/sawt/internal/interview"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	agent TEXT NOT NULL,
	summary TEXT NOT NULL,
	ended_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS utterances (
	call_id INTEGER NOT NULL REFERENCES calls(id),
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (call_id, seq)
);`

// Store is the call archive.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the archive at path. Use ":memory:"
// for an ephemeral archive.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveCall records one completed call with its ordered history.
func (s *Store) SaveCall(ctx context.Context, key, agent string, history []interview.Utterance, summary string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO calls (session_key, agent, summary, ended_at) VALUES (?, ?, ?, ?)",
		key, agent, summary, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("archive: insert call: %w", err)
	}
	callID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("archive: call id: %w", err)
	}

	for i, u := range history {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO utterances (call_id, seq, role, text) VALUES (?, ?, ?, ?)",
			callID, i, string(u.Role), u.Text,
		); err != nil {
			return fmt.Errorf("archive: insert utterance: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("archive: commit: %w", err)
	}
	return nil
}

// Call is one archived call as read back from the store.
type Call struct {
	SessionKey string
	Agent      string
	Summary    string
	History    []interview.Utterance
}

// LoadCall returns the most recent archived call for a session key.
func (s *Store) LoadCall(ctx context.Context, key string) (*Call, error) {
	var (
		id   int64
		call Call
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_key, agent, summary FROM calls WHERE session_key = ? ORDER BY id DESC LIMIT 1",
		key,
	).Scan(&id, &call.SessionKey, &call.Agent, &call.Summary)
	if err != nil {
		return nil, fmt.Errorf("archive: load call: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, text FROM utterances WHERE call_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: load utterances: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var role, text string
		if err := rows.Scan(&role, &text); err != nil {
			return nil, fmt.Errorf("archive: scan utterance: %w", err)
		}
		call.History = append(call.History, interview.Utterance{Role: interview.Role(role), Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterate utterances: %w", err)
	}
	return &call, nil
}
