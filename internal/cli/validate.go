package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/provgraph/internal/config"
	"github.com/roach88/provgraph/internal/querybuilder"
	"github.com/roach88/provgraph/internal/querysql"
)

// ValidationError is one problem found in a spec file.
type ValidationError struct {
	File    string `json:"file"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Files  int               `json:"files"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate query specs without a database",
		Long: `Validate query spec files without running them.

Each path is a spec file or a directory searched recursively for .json,
.yaml, .yml and .cue files. Every spec is decoded, rebuilt and compiled
to SQL, so unknown tags, bad filters and unsupported relationships are
reported with the same codes a query would fail with.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSpecs(paths, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return outputValidateError(formatter, errorCode(loadErrors[0]), errorMessage(loadErrors[0]), nil)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, formatter.GetErrWriter())

	formatter.VerboseLog("Found %d spec file(s)", loadResult.FileCount)

	validationErrors := validateAll(loadResult, loadErrors, builderOptions(cfg, logger), formatter)
	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, loadResult.FileCount, validationErrors)
	}
	return outputValidateSuccess(formatter, loadResult.FileCount)
}

// validateAll compiles every loaded spec and collects the problems found,
// load failures first.
func validateAll(loaded *LoadResult, loadErrors []error, opts []querybuilder.Option, formatter *OutputFormatter) []ValidationError {
	var allErrors []ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			allErrors = append(allErrors, ValidationError{
				File:    loadErr.File,
				Code:    loadErr.Code,
				Message: loadErr.Message,
				Line:    lineOf(loadErr),
			})
		}
	}

	session := offlineSession{dialect: querysql.DialectSQLite}
	for _, spec := range loaded.Specs {
		formatter.VerboseLog("Validating %s", spec.Path)
		if _, err := compileSpec(spec, session, opts); err != nil {
			ve := ValidationError{File: spec.Path, Code: errorCode(err), Message: errorMessage(err)}
			if details, ok := errorDetails(err).(map[string]string); ok {
				ve.Tag = details["tag"]
				ve.Path = details["path"]
			}
			allErrors = append(allErrors, ve)
		}
	}
	return allErrors
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, files int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Files: files})
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d file(s))\n", files)
	return nil
}

// outputValidateError outputs an error that stopped validation altogether.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs the problems found in individual files.
func outputValidationErrors(formatter *OutputFormatter, files int, errs []ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Files: files, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", err.File, err.Line)
		} else {
			fmt.Fprintln(formatter.Writer, err.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return failure
}

// ValidateSpecs validates the spec files under paths with the default
// configuration. It returns an error only when nothing could be loaded.
func ValidateSpecs(paths ...string) ([]ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(paths, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	silent := &OutputFormatter{Format: "text", Writer: io.Discard, ErrWriter: io.Discard}
	cfg := config.Default()
	opts := builderOptions(cfg, newLogger(cfg, io.Discard))
	return validateAll(loadResult, loadErrors, opts, silent), nil
}
