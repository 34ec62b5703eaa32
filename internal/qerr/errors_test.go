package qerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeInvalidFilter, "unknown operator %q", "~~")
	assert.Equal(t, `INVALID_FILTER: unknown operator "~~"`, err.Error())

	tagged := err.WithTag("calc").WithPath("attributes.x")
	assert.Equal(t, `INVALID_FILTER: unknown operator "~~" (tag=calc, path=attributes.x)`, tagged.Error())

	// Existing context is not overwritten by outer layers.
	assert.Equal(t, "calc", tagged.WithTag("outer").Tag)
}

func TestErrorsIsByCode(t *testing.T) {
	err := fmt.Errorf("append: %w", New(CodeInvalidTag, "duplicate tag %q", "a"))

	assert.True(t, errors.Is(err, ErrInvalidTag))
	assert.False(t, errors.Is(err, ErrInvalidFilter))
	assert.Equal(t, CodeInvalidTag, CodeOf(err))
	assert.True(t, IsValidation(err))
}

func TestIntegrityMatchesInvalidProjection(t *testing.T) {
	err := New(CodeIntegrity, "field projected twice")

	assert.True(t, errors.Is(err, ErrIntegrity))
	assert.True(t, errors.Is(err, ErrInvalidProjection))
	assert.False(t, errors.Is(New(CodeInvalidProjection, "x"), ErrIntegrity))
}

func TestCardinalityErrorsAreNotValidation(t *testing.T) {
	assert.True(t, IsValidation(New(CodeInvalidPagination, "limit must be non-negative")))
	assert.False(t, IsValidation(New(CodeNotFound, "no result")))
	assert.False(t, IsValidation(errors.New("disk I/O error")))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}
