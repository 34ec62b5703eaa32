package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/ir"
)

// EvaluateExpect checks a query result against its expectations and
// returns one message per failed check.
//
// Rows are compared through canonical JSON, so 1 and 1.0 are equal and
// map key order does not matter.
func EvaluateExpect(qr QueryResult, expect Expect) []string {
	var errs []string

	if expect.Error != "" {
		if qr.Err == nil {
			return []string{fmt.Sprintf("expected error %s, query succeeded", expect.Error)}
		}
		if qr.ErrCode != expect.Error {
			return []string{fmt.Sprintf("expected error %s, got %s: %v", expect.Error, qr.ErrCode, qr.Err)}
		}
		return nil
	}
	if qr.Err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", qr.Err)}
	}

	if expect.Count != nil && *expect.Count != qr.Count {
		errs = append(errs, fmt.Sprintf("expected count %d, got %d", *expect.Count, qr.Count))
	}
	if expect.Count != nil && qr.Count != len(qr.Rows) {
		errs = append(errs, fmt.Sprintf("count %d disagrees with %d fetched rows", qr.Count, len(qr.Rows)))
	}

	if expect.Rows != nil {
		if msg := compareRows(expect.Rows, qr.Rows, expect.Unordered); msg != "" {
			errs = append(errs, msg)
		}
	}

	for _, fragment := range expect.SQLContains {
		if !strings.Contains(qr.SQL, fragment) {
			errs = append(errs, fmt.Sprintf("compiled SQL does not contain %q", fragment))
		}
	}
	return errs
}

func compareRows(expected []any, actual [][]any, unordered bool) string {
	want, err := encodeAll(expected)
	if err != nil {
		return fmt.Sprintf("encoding expected rows: %v", err)
	}
	gotRows := make([]any, len(actual))
	for i, row := range actual {
		gotRows[i] = row
	}
	got, err := encodeAll(gotRows)
	if err != nil {
		return fmt.Sprintf("encoding actual rows: %v", err)
	}

	if unordered {
		slices.Sort(want)
		slices.Sort(got)
	}
	if slices.Equal(want, got) {
		return ""
	}
	return fmt.Sprintf("rows mismatch:\n  expected: [%s]\n  actual:   [%s]",
		strings.Join(want, ", "), strings.Join(got, ", "))
}

func encodeAll(rows []any) ([]string, error) {
	out := make([]string, len(rows))
	for i, row := range rows {
		b, err := ir.MarshalCanonical(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = string(b)
	}
	return out, nil
}
