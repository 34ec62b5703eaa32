package querybuilder

import "github.com/roach88/provgraph/internal/qerr"

// Error is the error type returned for validation and result-cardinality
// failures. Session errors are returned as the session produced them.
type Error = qerr.Error

// Sentinels for errors.Is.
var (
	ErrInvalidSelector         = qerr.ErrInvalidSelector
	ErrInvalidTag              = qerr.ErrInvalidTag
	ErrInvalidFilter           = qerr.ErrInvalidFilter
	ErrInvalidProjection       = qerr.ErrInvalidProjection
	ErrInvalidPagination       = qerr.ErrInvalidPagination
	ErrUnsupportedRelationship = qerr.ErrUnsupportedRelationship
	ErrNotFound                = qerr.ErrNotFound
	ErrMultipleResults         = qerr.ErrMultipleResults
	ErrIntegrity               = qerr.ErrIntegrity
)

func invalidTag(tag, format string, args ...any) *Error {
	return qerr.New(qerr.CodeInvalidTag, format, args...).WithTag(tag)
}

func unsupported(tag, format string, args ...any) *Error {
	return qerr.New(qerr.CodeUnsupportedRelationship, format, args...).WithTag(tag)
}
