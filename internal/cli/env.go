package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/config"
	"github.com/roach88/provgraph/internal/querybuilder"
	"github.com/roach88/provgraph/internal/querysql"
	"github.com/roach88/provgraph/internal/store"
)

// loadConfig returns the configuration selected by the global flags: the
// --config file or the defaults, with --db and --verbose applied on top.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "loading config", err)
		}
		cfg = loaded
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// newLogger builds the structured logger diagnostics go to.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// builderOptions turns the config into query builder options.
func builderOptions(cfg *config.Config, logger *slog.Logger) []querybuilder.Option {
	resolver := classify.NewResolver(
		classify.WithBuiltinNamespace(cfg.BuiltinNamespace),
		classify.WithLogger(logger),
	)
	opts := []querybuilder.Option{
		querybuilder.WithLogger(logger),
		querybuilder.WithResolver(resolver),
		querybuilder.WithMaxDepth(cfg.Query.MaxDepth),
		querybuilder.WithBatchSize(cfg.Query.BatchSize),
	}
	// An unchanged policy is left to the session dialect, which knows
	// whether the SQLite build has the legacy parameter cap.
	if policy := cfg.InPolicy(); policy != querysql.DefaultInPolicy(querysql.DialectSQLite) {
		opts = append(opts, querybuilder.WithInPolicy(policy))
	}
	return opts
}

// openSession opens the configured database and a session on it. The
// database must already exist; the CLI never creates an empty graph.
func openSession(ctx context.Context, cfg *config.Config) (*store.Store, *store.Session, error) {
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.Database.Path))
		}
		return nil, nil, WrapExitError(ExitCommandError, "accessing database", err)
	}
	st, err := store.OpenWith(cfg.Database.Path, cfg.StoreOptions())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	session, err := st.NewSession(ctx)
	if err != nil {
		st.Close()
		return nil, nil, WrapExitError(ExitCommandError, "opening session", err)
	}
	return st, session, nil
}

// offlineSession compiles queries without a database. Executing a query
// through it fails.
type offlineSession struct {
	dialect querysql.Dialect
}

func (s offlineSession) Dialect() querysql.Dialect { return s.dialect }

func (s offlineSession) Stream(context.Context, string, []any, int) (*store.Cursor, error) {
	return nil, errors.New("no database: the query can be compiled but not executed")
}
