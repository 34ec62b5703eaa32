package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/specfile"
)

// LoadMode controls how errors are handled during spec loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedSpec is one decoded spec file.
type LoadedSpec struct {
	Path string
	Spec specfile.Spec
}

// LoadResult contains the spec files found under the given paths.
type LoadResult struct {
	Specs     []LoadedSpec
	FileCount int // Number of spec files found
}

// LoadError represents an error that occurred during spec loading.
type LoadError struct {
	Code    string
	Message string
	File    string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	switch {
	case e.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSpecs loads spec files. Each path is a spec file or a directory that
// is searched recursively for .json, .yaml, .yml and .cue files.
func LoadSpecs(paths []string, mode LoadMode) (*LoadResult, []error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}}
		}
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}}
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := specfile.Find(path)
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no spec files found in %v", paths)}}
	}

	result := &LoadResult{FileCount: len(files)}
	var errs []error
	for _, file := range files {
		spec, err := specfile.Load(file)
		if err != nil {
			errs = append(errs, convertLoadError(err, file))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Specs = append(result.Specs, LoadedSpec{Path: file, Spec: spec})
	}
	return result, errs
}

// convertLoadError converts a spec file error to a LoadError with position info.
func convertLoadError(err error, file string) *LoadError {
	var specErr *specfile.Error
	if errors.As(err, &specErr) {
		return &LoadError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("%s: %s", specErr.Field, specErr.Message),
			File:    file,
			Pos:     specErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), File: file}
}

// Error code constants - unified across all CLI commands. Query validation
// failures use the query error codes (INVALID_FILTER, ...) instead.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No spec files found
	ErrCodeLoadFailed  = "E004" // Spec file could not be parsed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeQueryFailed = "E006" // Query execution failed
	ErrCodeWriteFailed = "E007" // File write error
)

// errorCode maps an error to the code reported for it.
func errorCode(err error) string {
	var qe *qerr.Error
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return ErrCodeGeneric
}

// errorDetails returns the tag and path a query error points at, if any.
func errorDetails(err error) any {
	var qe *qerr.Error
	if !errors.As(err, &qe) || (qe.Tag == "" && qe.Path == "") {
		return nil
	}
	details := map[string]string{}
	if qe.Tag != "" {
		details["tag"] = qe.Tag
	}
	if qe.Path != "" {
		details["path"] = qe.Path
	}
	return details
}

// errorMessage is the message reported for err: the bare message for a
// query error, the full text otherwise.
func errorMessage(err error) string {
	var qe *qerr.Error
	if errors.As(err, &qe) {
		return qe.Message
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Message
	}
	return err.Error()
}
