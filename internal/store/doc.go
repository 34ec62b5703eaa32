// Package store provides the SQLite-backed provenance graph store and the
// session abstraction the query builder executes against.
//
// # Database Configuration
//
// Every pooled connection is opened with the same pragmas, passed through
// the driver DSN so they hold on each connection rather than on whichever
// one happened to run a PRAGMA statement:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - case_sensitive_like=ON: LIKE is case-sensitive; case-insensitive
//     matching is expressed as lower(x) LIKE lower(pattern)
//
// Two drivers are supported: github.com/mattn/go-sqlite3 ("sqlite3", the
// default) and the pure-Go modernc.org/sqlite ("sqlite").
//
// # Sessions
//
// A Session pins one pooled connection. It supports nested transactions
// (the outermost Begin opens a transaction, inner ones open savepoints) and
// streaming reads that pull rows in caller-sized batches.
package store
