package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/provgraph/internal/querysql"
)

// ErrNoTransaction is returned by Commit and Rollback outside a transaction.
var ErrNoTransaction = errors.New("no transaction in progress")

// Session pins one pooled connection for a unit of work.
//
// Precondition: every row written inside a transaction must reference rows
// that are already committed or written earlier in the same transaction;
// the session does not track objects itself.
//
// A Session is not safe for concurrent use.
type Session struct {
	conn    *sql.Conn
	dialect querysql.Dialect
	depth   int
}

// NewSession reserves a connection from the pool.
func (s *Store) NewSession(ctx context.Context) (*Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn, dialect: s.dialect}, nil
}

// Dialect identifies the backend for in-clause strategy selection.
func (s *Session) Dialect() querysql.Dialect {
	return s.dialect
}

// Depth is the current transaction nesting level; zero outside a
// transaction.
func (s *Session) Depth() int {
	return s.depth
}

func savepoint(level int) string {
	return fmt.Sprintf("sp_%d", level)
}

// Begin opens a transaction, or a savepoint when one is already open.
func (s *Session) Begin(ctx context.Context) error {
	stmt := "BEGIN"
	if s.depth > 0 {
		stmt = "SAVEPOINT " + savepoint(s.depth)
	}
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("begin (depth %d): %w", s.depth, err)
	}
	s.depth++
	return nil
}

// Commit commits the innermost transaction level.
func (s *Session) Commit(ctx context.Context) error {
	if s.depth == 0 {
		return ErrNoTransaction
	}
	stmt := "COMMIT"
	if s.depth > 1 {
		stmt = "RELEASE SAVEPOINT " + savepoint(s.depth-1)
	}
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("commit (depth %d): %w", s.depth, err)
	}
	s.depth--
	return nil
}

// Rollback discards the innermost transaction level. Outer levels stay
// open.
func (s *Session) Rollback(ctx context.Context) error {
	if s.depth == 0 {
		return ErrNoTransaction
	}
	if s.depth == 1 {
		if _, err := s.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		s.depth = 0
		return nil
	}
	sp := savepoint(s.depth - 1)
	if _, err := s.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("rollback (depth %d): %w", s.depth, err)
	}
	if _, err := s.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("release (depth %d): %w", s.depth, err)
	}
	s.depth--
	return nil
}

// Exec runs a statement on the session connection.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.conn.ExecContext(ctx, query, args...)
}

// Stream executes a query and returns a cursor that pulls rows from the
// connection batchSize rows at a time. A batchSize below one means one row
// per pull.
//
// The cursor must be closed before the session runs another statement.
func (s *Session) Stream(ctx context.Context, query string, args []any, batchSize int) (*Cursor, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, err
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Cursor{rows: rows, columns: cols, batchSize: batchSize}, nil
}

// Close releases the pinned connection, rolling back any open transaction.
func (s *Session) Close() error {
	if s.depth > 0 {
		_, _ = s.conn.ExecContext(context.Background(), "ROLLBACK")
		s.depth = 0
	}
	return s.conn.Close()
}

// Cursor iterates over a streamed result. Rows are fetched from the driver
// in batches and handed out one at a time; a batch is never larger than the
// configured size, so the full result is never buffered.
type Cursor struct {
	rows      *sql.Rows
	columns   []string
	batchSize int
	batch     [][]any
	pos       int
	current   []any
	done      bool
	err       error
}

// Columns returns the result column names.
func (c *Cursor) Columns() []string {
	return c.columns
}

// Next advances to the next row, fetching another batch when the current
// one is exhausted.
func (c *Cursor) Next() bool {
	if c.err != nil {
		return false
	}
	if c.pos >= len(c.batch) {
		if c.done || !c.fill() {
			return false
		}
	}
	c.current = c.batch[c.pos]
	c.pos++
	return true
}

func (c *Cursor) fill() bool {
	c.batch = c.batch[:0]
	c.pos = 0
	for len(c.batch) < c.batchSize {
		if !c.rows.Next() {
			c.done = true
			c.err = c.rows.Err()
			break
		}
		vals := make([]any, len(c.columns))
		ptrs := make([]any, len(c.columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			c.err = err
			return false
		}
		for i, v := range vals {
			// Drivers differ on whether TEXT arrives as string or []byte.
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		c.batch = append(c.batch, vals)
	}
	return len(c.batch) > 0 && c.err == nil
}

// Row returns the current row. The slice is owned by the caller.
func (c *Cursor) Row() []any {
	return c.current
}

// Err returns the first error encountered while iterating.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying result set.
func (c *Cursor) Close() error {
	return c.rows.Close()
}
