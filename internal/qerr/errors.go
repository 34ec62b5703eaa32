// Package qerr defines the error taxonomy shared by every stage of the query
// compiler, from selector resolution to execution.
package qerr

import (
	"errors"
	"fmt"
)

// Code categorizes query errors.
type Code string

const (
	// CodeInvalidSelector indicates a selector that cannot be resolved to an entity kind.
	CodeInvalidSelector Code = "INVALID_SELECTOR"

	// CodeInvalidTag indicates a duplicate tag, or a reference to an unknown one.
	CodeInvalidTag Code = "INVALID_TAG"

	// CodeInvalidFilter indicates a malformed filter tree.
	CodeInvalidFilter Code = "INVALID_FILTER"

	// CodeInvalidProjection indicates a malformed projection or order-by item.
	CodeInvalidProjection Code = "INVALID_PROJECTION"

	// CodeInvalidPagination indicates a negative or non-integer limit or offset.
	CodeInvalidPagination Code = "INVALID_PAGINATION"

	// CodeUnsupportedRelationship indicates an unknown (kind, keyword) join.
	CodeUnsupportedRelationship Code = "UNSUPPORTED_RELATIONSHIP"

	// CodeNotFound indicates One() found no row.
	CodeNotFound Code = "NOT_FOUND"

	// CodeMultipleResults indicates One() found more than one row.
	CodeMultipleResults Code = "MULTIPLE_RESULTS"

	// CodeIntegrity indicates the same (tag, field) was projected twice.
	CodeIntegrity Code = "INTEGRITY_ERROR"
)

// Error is the single error type returned by the compiler for validation
// and result-cardinality failures. Session failures are never converted to
// Error; they are wrapped with %w and propagated.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Tag is the vertex or edge tag involved, when there is one.
	Tag string

	// Path is the offending field path or operator, when there is one.
	Path string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Tag != "" && e.Path != "":
		return fmt.Sprintf("%s: %s (tag=%s, path=%s)", e.Code, e.Message, e.Tag, e.Path)
	case e.Tag != "":
		return fmt.Sprintf("%s: %s (tag=%s)", e.Code, e.Message, e.Tag)
	case e.Path != "":
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches the sentinel errors below by code. A duplicate projection is
// an integrity error and also an invalid projection.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || t.Message != "" {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == CodeIntegrity && t.Code == CodeInvalidProjection
}

// Sentinels for errors.Is. They carry only a code.
var (
	ErrInvalidSelector         = &Error{Code: CodeInvalidSelector}
	ErrInvalidTag              = &Error{Code: CodeInvalidTag}
	ErrInvalidFilter           = &Error{Code: CodeInvalidFilter}
	ErrInvalidProjection       = &Error{Code: CodeInvalidProjection}
	ErrInvalidPagination       = &Error{Code: CodeInvalidPagination}
	ErrUnsupportedRelationship = &Error{Code: CodeUnsupportedRelationship}
	ErrNotFound                = &Error{Code: CodeNotFound}
	ErrMultipleResults         = &Error{Code: CodeMultipleResults}
	ErrIntegrity               = &Error{Code: CodeIntegrity}
)

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithTag returns a copy of e carrying tag. An existing tag is kept.
func (e *Error) WithTag(tag string) *Error {
	c := *e
	if c.Tag == "" {
		c.Tag = tag
	}
	return &c
}

// WithPath returns a copy of e carrying path. An existing path is kept.
func (e *Error) WithPath(path string) *Error {
	c := *e
	if c.Path == "" {
		c.Path = path
	}
	return &c
}

// CodeOf returns the code of the first Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a synchronous validation failure, as
// opposed to a result-cardinality or session error.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidSelector, CodeInvalidTag, CodeInvalidFilter, CodeInvalidProjection,
		CodeInvalidPagination, CodeUnsupportedRelationship, CodeIntegrity:
		return true
	}
	return false
}
