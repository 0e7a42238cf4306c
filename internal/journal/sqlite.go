package journal

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS journal (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT    NOT NULL DEFAULT '',
	kind       TEXT    NOT NULL,
	state      TEXT    NOT NULL DEFAULT '',
	step       TEXT    NOT NULL DEFAULT '',
	command    TEXT    NOT NULL DEFAULT '',
	transcript TEXT    NOT NULL DEFAULT '',
	detail     TEXT    NOT NULL DEFAULT '',
	at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_session ON journal (session_id, id);
`

// SQLiteStore keeps the journal in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and ensures the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append implements [Store].
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal (session_id, kind, state, step, command, transcript, detail, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Kind, e.State, e.Step, e.Command, e.Transcript, e.Detail, e.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, kind, state, step, command, transcript, detail, at
		FROM journal
		WHERE ? = '' OR session_id = ?
		ORDER BY id DESC
		LIMIT ?`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			at int64
		)
		if err := rows.Scan(&e.SessionID, &e.Kind, &e.State, &e.Step, &e.Command, &e.Transcript, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Close implements [Store].
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
