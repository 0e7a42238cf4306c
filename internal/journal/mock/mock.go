// Package mock provides an in-memory [journal.DB] for testing the
// PostgreSQL journal without a database.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/speakeasy/internal/journal"
)

var _ journal.DB = (*DB)(nil)

// ExecCall records one Exec invocation.
type ExecCall struct {
	SQL  string
	Args []any
}

// QueryCall records one Query invocation.
type QueryCall struct {
	SQL  string
	Args []any
}

// DB records calls and serves QueryRows from Query.
type DB struct {
	mu sync.Mutex

	// ExecErr and QueryErr are returned when non-nil.
	ExecErr  error
	QueryErr error

	// QueryRows are the rows returned by the next Query. Each row holds the
	// scanned values in column order.
	QueryRows [][]any

	ExecCalls  []ExecCall
	QueryCalls []QueryCall
	Closed     bool
}

// Exec implements [journal.DB].
func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ExecCalls = append(d.ExecCalls, ExecCall{SQL: sql, Args: args})
	if d.ExecErr != nil {
		return pgconn.CommandTag{}, d.ExecErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

// Query implements [journal.DB].
func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.QueryCalls = append(d.QueryCalls, QueryCall{SQL: sql, Args: args})
	if d.QueryErr != nil {
		return nil, d.QueryErr
	}
	return &Rows{data: d.QueryRows, pos: -1}, nil
}

// Close implements [journal.DB].
func (d *DB) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
}

// Rows is a minimal [pgx.Rows] over in-memory values.
type Rows struct {
	data [][]any
	pos  int
	err  error
}

var _ pgx.Rows = (*Rows)(nil)

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *Rows) Values() ([]any, error) {
	return r.data[r.pos], nil
}

func (r *Rows) Scan(dest ...any) error {
	row := r.data[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("mock: scan %d columns into %d targets", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			v, ok := row[i].(string)
			if !ok {
				return fmt.Errorf("mock: column %d is %T, not string", i, row[i])
			}
			*p = v
		case *time.Time:
			v, ok := row[i].(time.Time)
			if !ok {
				return fmt.Errorf("mock: column %d is %T, not time.Time", i, row[i])
			}
			*p = v
		default:
			return fmt.Errorf("mock: unsupported scan target %T", d)
		}
	}
	return nil
}
