package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/querybuilder"
	"github.com/roach88/provgraph/internal/querysql"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Dialect string // SQL dialect to compile for
}

// CompilationResult is the compiled form of one spec.
type CompilationResult struct {
	File   string   `json:"file"`
	SQL    string   `json:"sql"`
	Params []any    `json:"params"`
	Hash   string   `json:"hash"`
	Tags   []string `json:"tags"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <spec-file>",
		Short: "Compile a query spec to SQL",
		Long: `Compile a query spec (JSON, YAML or CUE) to the SQL statement and
parameters it would run, without opening a database.

Example:
  provq compile query.cue
  provq compile query.yaml --dialect sqlite-legacy --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compilation result as JSON to this file")
	cmd.Flags().StringVar(&opts.Dialect, "dialect", string(querysql.DialectSQLite), "SQL dialect (sqlite|sqlite-legacy)")

	return cmd
}

func runCompile(opts *CompileOptions, specPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	dialect := querysql.Dialect(opts.Dialect)
	if dialect != querysql.DialectSQLite && dialect != querysql.DialectSQLiteLegacy {
		return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("unknown dialect %q", opts.Dialect), nil)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, formatter.GetErrWriter())

	loadResult, loadErrors := LoadSpecs([]string{specPath}, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return outputCompileError(formatter, errorCode(loadErrors[0]), errorMessage(loadErrors[0]), nil)
	}
	loaded := loadResult.Specs[0]
	formatter.VerboseLog("Loaded spec %s", loaded.Path)

	result, err := compileSpec(loaded, offlineSession{dialect: dialect}, builderOptions(cfg, logger))
	if err != nil {
		return outputCompileError(formatter, errorCode(err), errorMessage(err), errorDetails(err))
	}

	if opts.Output != "" {
		if err := writeResultToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintln(formatter.Writer, result.SQL)
	fmt.Fprintln(formatter.Writer)
	params, err := json.Marshal(result.Params)
	if err != nil {
		return err
	}
	fmt.Fprintf(formatter.Writer, "params: %s\n", params)
	fmt.Fprintf(formatter.Writer, "hash:   %s\n", result.Hash)
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compilation result to %s\n", opts.Output)
	}
	return nil
}

// compileSpec rebuilds the query described by a spec and compiles it.
func compileSpec(loaded LoadedSpec, session querybuilder.Session, opts []querybuilder.Option) (*CompilationResult, error) {
	b, err := querybuilder.FromSpec(session, loaded.Spec, opts...)
	if err != nil {
		return nil, err
	}
	sql, params, err := b.SQL()
	if err != nil {
		return nil, err
	}
	hash, err := b.Hash()
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = []any{}
	}
	return &CompilationResult{File: loaded.Path, SQL: sql, Params: params, Hash: hash, Tags: b.Tags()}, nil
}

// outputCompileError outputs a compilation error. Invalid queries are
// failures (exit code 1); anything else is a command error (exit code 2).
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	exit := ExitCommandError
	if isQueryCode(code) {
		exit = ExitFailure
	}
	return NewExitError(exit, fmt.Sprintf("%s: %s", code, message))
}

// isQueryCode reports whether code names a query error rather than a
// command error.
func isQueryCode(code string) bool {
	return !strings.HasPrefix(code, "E0")
}

// writeResultToFile writes the compilation result as indented JSON.
func writeResultToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
