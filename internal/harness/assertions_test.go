package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestEvaluateExpectCount(t *testing.T) {
	qr := QueryResult{Count: 2, Rows: [][]any{{int64(1)}, {int64(2)}}}

	assert.Empty(t, EvaluateExpect(qr, Expect{Count: intPtr(2)}))
	errs := EvaluateExpect(qr, Expect{Count: intPtr(3)})
	assert.Equal(t, []string{"expected count 3, got 2"}, errs)
}

func TestEvaluateExpectCountDisagreesWithRows(t *testing.T) {
	qr := QueryResult{Count: 2, Rows: [][]any{{int64(1)}}}
	errs := EvaluateExpect(qr, Expect{Count: intPtr(2)})
	assert.Equal(t, []string{"count 2 disagrees with 1 fetched rows"}, errs)
}

func TestEvaluateExpectRowsNumericEquality(t *testing.T) {
	qr := QueryResult{Count: 2, Rows: [][]any{{"a", int64(1)}, {"b", 2.5}}}

	// YAML decodes 1.0 as a float; the store hands back int64.
	assert.Empty(t, EvaluateExpect(qr, Expect{Rows: []any{[]any{"a", 1.0}, []any{"b", 2.5}}}))
}

func TestEvaluateExpectRowsOrder(t *testing.T) {
	qr := QueryResult{Count: 2, Rows: [][]any{{"b"}, {"a"}}}
	want := []any{[]any{"a"}, []any{"b"}}

	errs := EvaluateExpect(qr, Expect{Rows: want})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "rows mismatch")

	assert.Empty(t, EvaluateExpect(qr, Expect{Rows: want, Unordered: true}))
}

func TestEvaluateExpectRowsMaps(t *testing.T) {
	qr := QueryResult{Count: 1, Rows: [][]any{{map[string]any{"x": int64(1), "y": nil}}}}
	assert.Empty(t, EvaluateExpect(qr, Expect{Rows: []any{[]any{map[string]any{"y": nil, "x": 1}}}}))
}

func TestEvaluateExpectError(t *testing.T) {
	failed := QueryResult{Err: errors.New("boom"), ErrCode: "INVALID_FILTER"}

	assert.Empty(t, EvaluateExpect(failed, Expect{Error: "INVALID_FILTER"}))

	errs := EvaluateExpect(failed, Expect{Error: "INVALID_TAG"})
	assert.Len(t, errs, 1)
	assert.Contains(t, errs[0], "expected error INVALID_TAG, got INVALID_FILTER")

	errs = EvaluateExpect(failed, Expect{Count: intPtr(0)})
	assert.Equal(t, []string{"unexpected error: boom"}, errs)

	errs = EvaluateExpect(QueryResult{}, Expect{Error: "NOT_FOUND"})
	assert.Equal(t, []string{"expected error NOT_FOUND, query succeeded"}, errs)
}

func TestEvaluateExpectSQLContains(t *testing.T) {
	qr := QueryResult{SQL: "SELECT n_0.label FROM db_dbnode AS n_0"}

	assert.Empty(t, EvaluateExpect(qr, Expect{SQLContains: []string{"db_dbnode", "label"}}))
	errs := EvaluateExpect(qr, Expect{SQLContains: []string{"json_each"}})
	assert.Equal(t, []string{`compiled SQL does not contain "json_each"`}, errs)
}
