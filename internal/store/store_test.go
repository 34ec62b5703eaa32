package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/querysql"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Open multiple times
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM db_dbnode").Scan(&count); err != nil {
			t.Fatalf("query failed: %v", err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_CaseSensitiveLike(t *testing.T) {
	for _, driver := range []string{DriverMattn, DriverModernc} {
		t.Run(driver, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Driver = driver
			s, err := OpenWith(filepath.Join(t.TempDir(), "test.db"), opts)
			require.NoError(t, err)
			defer s.Close()

			var matched int
			require.NoError(t, s.db.QueryRow("SELECT 'ABC' LIKE 'abc'").Scan(&matched))
			assert.Equal(t, 0, matched)
			require.NoError(t, s.db.QueryRow("SELECT lower('ABC') LIKE lower('abc')").Scan(&matched))
			assert.Equal(t, 1, matched)
		})
	}
}

func TestOpen_InMemoryUsesSingleConnection(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, s.db.Stats().MaxOpenConnections)
	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM db_dblink").Scan(&count))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := OpenWith(filepath.Join(t.TempDir(), "x.db"), Options{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestBuildDSN(t *testing.T) {
	dsn, err := buildDSN(DriverMattn, "/tmp/a.db")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "/tmp/a.db?"))
	assert.Contains(t, dsn, "_case_sensitive_like=1")

	dsn, err = buildDSN(DriverModernc, "file:a.db?cache=shared")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:a.db?cache=shared&"))
	assert.Contains(t, dsn, "_pragma=case_sensitive_like%281%29")
}

func TestDialect(t *testing.T) {
	s := createTestStore(t)
	// Both bundled drivers ship SQLite well past 3.32.
	assert.Equal(t, querysql.DialectSQLite, s.Dialect())
}
