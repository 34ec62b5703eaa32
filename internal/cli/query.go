package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/convert"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/querybuilder"
)

// Query modes.
const (
	ModeAll   = "all"
	ModeCount = "count"
	ModeFirst = "first"
	ModeOne   = "one"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Mode      string
	Dicts     bool
	BatchSize int
}

// QueryResult is the JSON payload of the query command.
type QueryResult struct {
	File  string `json:"file"`
	Mode  string `json:"mode"`
	Count *int   `json:"count,omitempty"`
	Rows  []any  `json:"rows,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <spec-file>",
		Short: "Run a query spec against a provenance database",
		Long: `Run a query spec (JSON, YAML or CUE) against the provenance database
and print the result rows.

Modes:
  all   - every row (default), streamed in batches
  count - the number of rows
  first - the first row, if any
  one   - exactly one row; fails on zero or several

Examples:
  provq query --db graph.db descendants.cue
  provq query --db graph.db calcs.yaml --mode count
  provq query --db graph.db calcs.yaml --dicts --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", ModeAll, "result mode (all|count|first|one)")
	cmd.Flags().BoolVar(&opts.Dicts, "dicts", false, "key each row by tag and field")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "rows fetched per batch (default from config)")

	return cmd
}

func runQuery(ctx context.Context, opts *QueryOptions, specPath string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	switch opts.Mode {
	case ModeAll, ModeCount, ModeFirst, ModeOne:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --mode %q (want all, count, first or one)", opts.Mode))
	}
	if opts.BatchSize < 0 {
		return NewExitError(ExitCommandError, "--batch-size must be positive")
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.BatchSize > 0 {
		cfg.Query.BatchSize = opts.BatchSize
	}
	logger := newLogger(cfg, formatter.GetErrWriter())

	loadResult, loadErrors := LoadSpecs([]string{specPath}, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputQueryError(formatter, errorCode(loadErrors[0]), errorMessage(loadErrors[0]), nil)
	}
	loaded := loadResult.Specs[0]

	st, session, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	defer session.Close()

	builderOpts := append(builderOptions(cfg, logger), querybuilder.WithHook(convert.Passthrough))
	b, err := querybuilder.FromSpec(session, loaded.Spec, builderOpts...)
	if err != nil {
		return outputQueryError(formatter, errorCode(err), errorMessage(err), errorDetails(err))
	}
	if opts.Verbose {
		if sql, params, err := b.SQL(); err == nil {
			formatter.VerboseLog("SQL: %s", sql)
			formatter.VerboseLog("params: %v", params)
		}
	}

	result := QueryResult{File: loaded.Path, Mode: opts.Mode}
	text := formatter.Format != "json"

	switch opts.Mode {
	case ModeCount:
		n, err := b.Count(ctx)
		if err != nil {
			return outputQueryError(formatter, failureCode(err), errorMessage(err), errorDetails(err))
		}
		result.Count = &n
		if text {
			fmt.Fprintln(formatter.Writer, n)
		}
	case ModeFirst, ModeOne:
		row, err := singleRow(ctx, b, opts)
		if err != nil {
			return outputQueryError(formatter, failureCode(err), errorMessage(err), errorDetails(err))
		}
		if row != nil {
			result.Rows = []any{row}
			if text {
				printRow(formatter, row)
			}
		} else if text {
			fmt.Fprintln(formatter.Writer, "(no rows)")
		}
	default:
		n := 0
		emit := func(row any) {
			n++
			if text {
				printRow(formatter, row)
				return
			}
			result.Rows = append(result.Rows, row)
		}
		if opts.Dicts {
			for d, err := range b.IterDict(ctx, cfg.Query.BatchSize) {
				if err != nil {
					return outputQueryError(formatter, failureCode(err), errorMessage(err), errorDetails(err))
				}
				emit(plainDict(d))
			}
		} else {
			for row, err := range b.IterAll(ctx, cfg.Query.BatchSize) {
				if err != nil {
					return outputQueryError(formatter, failureCode(err), errorMessage(err), errorDetails(err))
				}
				emit(plainRow(row))
			}
		}
		result.Count = &n
		formatter.VerboseLog("%d row(s)", n)
	}

	if text {
		return nil
	}
	return formatter.Success(result)
}

// singleRow runs first or one mode. A first query over no rows yields nil.
func singleRow(ctx context.Context, b *querybuilder.Builder, opts *QueryOptions) (any, error) {
	if opts.Dicts {
		return singleDict(ctx, b, opts.Mode == ModeOne)
	}
	var (
		row []any
		err error
	)
	if opts.Mode == ModeOne {
		row, err = b.One(ctx)
	} else {
		row, err = b.First(ctx)
	}
	if err != nil || row == nil {
		return nil, err
	}
	return plainRow(row), nil
}

// singleDict is singleRow for keyed rows.
func singleDict(ctx context.Context, b *querybuilder.Builder, exactlyOne bool) (any, error) {
	var found []querybuilder.Dict
	for d, err := range b.IterDict(ctx, 2) {
		if err != nil {
			return nil, err
		}
		found = append(found, d)
		if !exactlyOne || len(found) > 1 {
			break
		}
	}
	switch {
	case len(found) == 0 && exactlyOne:
		return nil, qerr.New(qerr.CodeNotFound, "no result was found")
	case len(found) == 0:
		return nil, nil
	case len(found) > 1:
		return nil, qerr.New(qerr.CodeMultipleResults, "multiple results were found")
	}
	return plainDict(found[0]), nil
}

func printRow(formatter *OutputFormatter, row any) {
	switch r := row.(type) {
	case []any:
		formatter.Row(r)
	default:
		data, err := json.Marshal(r)
		if err != nil {
			fmt.Fprintln(formatter.Writer, r)
			return
		}
		fmt.Fprintln(formatter.Writer, string(data))
	}
}

// failureCode is the code reported for an error raised while running a
// query: its query error code, or E006 for session failures.
func failureCode(err error) string {
	if code := errorCode(err); code != ErrCodeGeneric {
		return code
	}
	return ErrCodeQueryFailed
}

// outputQueryError reports a query error. Query errors are failures (exit
// code 1); load and session errors are command errors (exit code 2).
func outputQueryError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	exit := ExitCommandError
	if isQueryCode(code) {
		exit = ExitFailure
	}
	return NewExitError(exit, fmt.Sprintf("%s: %s", code, message))
}

// plainRow turns decoded cells into printable values: entity rows become
// their column maps and timestamps RFC 3339 strings.
func plainRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = plainValue(v)
	}
	return out
}

func plainDict(d querybuilder.Dict) map[string]map[string]any {
	out := make(map[string]map[string]any, len(d))
	for tag, fields := range d {
		m := make(map[string]any, len(fields))
		for k, v := range fields {
			m[k] = plainValue(v)
		}
		out[tag] = m
	}
	return out
}

func plainValue(v any) any {
	switch t := v.(type) {
	case entity.Row:
		m := make(map[string]any, len(t.Fields))
		for k, f := range t.Fields {
			m[k] = plainValue(f)
		}
		return m
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
