package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/roach88/provgraph/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added the (output_id, type) link index used by ancestor walks
const currentSchemaVersion = 1

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// Options configures Open.
type Options struct {
	// Driver is DriverMattn (default) or DriverModernc.
	Driver string

	// MaxOpenConns bounds the connection pool. In-memory databases always
	// use a single connection, since each connection would otherwise see
	// its own empty database.
	MaxOpenConns int

	// Now supplies timestamps for fixture writes that leave them unset.
	Now func() time.Time

	// NewUUID supplies UUIDs for fixture writes that leave them unset.
	NewUUID func() string
}

// DefaultOptions returns the options Open uses.
func DefaultOptions() Options {
	return Options{Driver: DriverMattn, MaxOpenConns: 4}
}

// Store provides durable storage for the provenance graph.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db      *sql.DB
	dialect querysql.Dialect
	now     func() time.Time
	newUUID func() string
}

// Open creates or opens a SQLite database at the given path with the
// default options. Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	return OpenWith(path, DefaultOptions())
}

// OpenWith is Open with explicit options.
func OpenWith(path string, opts Options) (*Store, error) {
	if opts.Driver == "" {
		opts.Driver = DriverMattn
	}
	dsn, err := buildDSN(opts.Driver, path)
	if err != nil {
		return nil, err
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conns := opts.MaxOpenConns
	if conns <= 0 || isMemory(path) {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	// Apply schema migrations
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	dialect, err := detectDialect(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, dialect: dialect, now: opts.Now, newUUID: opts.NewUUID}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newUUID == nil {
		s.newUUID = newUUIDString
	}
	return s, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// pragmas are applied on every connection through the DSN.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "1"},
	{"case_sensitive_like", "1"},
}

// mattnPragmaKeys maps pragma names to go-sqlite3 DSN parameters.
var mattnPragmaKeys = map[string]string{
	"journal_mode":        "_journal_mode",
	"synchronous":         "_synchronous",
	"busy_timeout":        "_busy_timeout",
	"foreign_keys":        "_foreign_keys",
	"case_sensitive_like": "_case_sensitive_like",
}

func buildDSN(driver, path string) (string, error) {
	q := url.Values{}
	switch driver {
	case DriverMattn:
		for _, p := range pragmas {
			q.Set(mattnPragmaKeys[p.name], p.value)
		}
	case DriverModernc:
		for _, p := range pragmas {
			q.Add("_pragma", fmt.Sprintf("%s(%s)", p.name, p.value))
		}
	default:
		return "", fmt.Errorf("unsupported driver %q (want %q or %q)", driver, DriverMattn, DriverModernc)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode(), nil
}

// detectDialect picks the legacy in-clause policy for SQLite builds older
// than 3.32, which cap bound parameters at 999.
func detectDialect(db *sql.DB) (querysql.Dialect, error) {
	var version string
	if err := db.QueryRow("SELECT sqlite_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("query sqlite version: %w", err)
	}
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return "", fmt.Errorf("parse sqlite version %q: %w", version, err)
	}
	if major < 3 || (major == 3 && minor < 32) {
		return querysql.DialectSQLiteLegacy, nil
	}
	return querysql.DialectSQLite, nil
}

// Close closes the database connection.
// Should be called when the store is no longer needed.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect identifies the backend for in-clause strategy selection.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	// Set version after all migrations
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the (output_id, type) link index for databases created
// before ancestor walks were indexed.
func migrateToV1(db *sql.DB) error {
	// CREATE INDEX IF NOT EXISTS is safe - no-op if index exists
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dblink_output
		ON db_dblink(output_id, type)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
