package journal

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL DEFAULT '',
    kind        TEXT         NOT NULL,
    state       TEXT         NOT NULL DEFAULT '',
    step        TEXT         NOT NULL DEFAULT '',
    command     TEXT         NOT NULL DEFAULT '',
    transcript  TEXT         NOT NULL DEFAULT '',
    detail      TEXT         NOT NULL DEFAULT '',
    at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_session
    ON journal_entries (session_id, id);
`

// DB is the subset of [pgxpool.Pool] the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore keeps the journal in PostgreSQL.
type PostgresStore struct {
	db DB
}

// OpenPostgres connects to dsn and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("journal: ping postgres: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing connection and runs the migration.
func NewPostgresStore(ctx context.Context, db DB) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("journal: migrate postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO journal_entries
		    (session_id, kind, state, step, command, transcript, detail, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, q, e.SessionID, e.Kind, e.State, e.Step, e.Command, e.Transcript, e.Detail, e.At)
	if err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	const q = `
		SELECT session_id, kind, state, step, command, transcript, detail, at
		FROM   journal_entries
		WHERE  $1 = '' OR session_id = $1
		ORDER  BY id DESC
		LIMIT  $2`
	rows, err := s.db.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.SessionID, &e.Kind, &e.State, &e.Step, &e.Command, &e.Transcript, &e.Detail, &e.At)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("journal: scan: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// Close implements [Store].
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
