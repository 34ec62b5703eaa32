package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryAllText(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "ints.json", intsSpec)

	out, _, err := execute("--db", db, "query", spec)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)
}

func TestQueryAllSmallBatches(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "ints.json", intsSpec)

	out, _, err := execute("--db", db, "query", spec, "--batch-size", "1")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)
}

func TestQueryAllJSON(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "descendants.yaml", descendantsSpec)

	out, _, err := execute("--db", db, "--format", "json", "query", spec)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Data.Count)
	assert.Equal(t, 1, *resp.Data.Count)
	assert.Equal(t, []any{[]any{"a", "calc"}}, resp.Data.Rows)
}

func TestQueryModes(t *testing.T) {
	db := newGraphDB(t)
	dir := t.TempDir()
	ints := writeSpec(t, dir, "ints.json", intsSpec)
	single := writeSpec(t, dir, "descendants.yaml", descendantsSpec)
	none := writeSpec(t, dir, "none.yaml", `
path: [{entity_type: data.core.int.Int., tag: n}]
filters: {n: {label: zzz}}
project: {n: [label]}
`)

	tests := []struct {
		name     string
		args     []string
		want     string
		wantCode int
	}{
		{"count", []string{ints, "--mode", "count"}, "3\n", ExitSuccess},
		{"first", []string{ints, "--mode", "first"}, "a\n", ExitSuccess},
		{"first of none", []string{none, "--mode", "first"}, "(no rows)\n", ExitSuccess},
		{"one", []string{single, "--mode", "one"}, "a\tcalc\n", ExitSuccess},
		{"one of many", []string{ints, "--mode", "one"}, "Error [MULTIPLE_RESULTS]", ExitFailure},
		{"one of none", []string{none, "--mode", "one"}, "Error [NOT_FOUND]", ExitFailure},
		{"one dict", []string{single, "--mode", "one", "--dicts"}, `{"a":{"label":"a"},"c":{"label":"calc"}}`, ExitSuccess},
		{"one dict of many", []string{ints, "--mode", "one", "--dicts"}, "Error [MULTIPLE_RESULTS]", ExitFailure},
		{"first dict of none", []string{none, "--mode", "first", "--dicts"}, "(no rows)\n", ExitSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(append([]string{"--db", db, "query"}, tt.args...)...)
			if tt.wantCode == ExitSuccess {
				require.NoError(t, err)
				if strings.HasPrefix(tt.want, "{") {
					assert.JSONEq(t, tt.want, out)
				} else {
					assert.Equal(t, tt.want, out)
				}
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, GetExitCode(err))
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestQueryDicts(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "ints.json", intsSpec)

	out, _, err := execute("--db", db, "--format", "json", "query", spec, "--dicts")
	require.NoError(t, err)

	var resp struct {
		Data QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Rows, 3)
	assert.Equal(t, map[string]any{"n": map[string]any{"label": "a"}}, resp.Data.Rows[0])
}

func TestQueryWholeEntities(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "whole.yaml", `
path: [{entity_type: data.core.int.Int., tag: n}]
filters: {n: {label: b}}
`)

	out, _, err := execute("--db", db, "--format", "json", "query", spec, "--mode", "one")
	require.NoError(t, err)

	var resp struct {
		Data QueryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Rows, 1)
	row := resp.Data.Rows[0].([]any)
	require.Len(t, row, 1)
	node := row[0].(map[string]any)
	assert.Equal(t, "b", node["label"])
	assert.Equal(t, "data.core.int.Int.", node["node_type"])
}

func TestQueryErrors(t *testing.T) {
	db := newGraphDB(t)
	dir := t.TempDir()
	spec := writeSpec(t, dir, "ints.json", intsSpec)

	t.Run("missing database", func(t *testing.T) {
		_, _, err := execute("--db", filepath.Join(dir, "none.db"), "query", spec)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "database not found")
	})

	t.Run("invalid mode", func(t *testing.T) {
		_, _, err := execute("--db", db, "query", spec, "--mode", "some")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("invalid query", func(t *testing.T) {
		bad := writeSpec(t, dir, "unknown_tag.json", unknownTagSpec)
		out, _, err := execute("--db", db, "query", bad)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "Error [INVALID_TAG]")
	})
}

func TestQueryVerboseLogsSQL(t *testing.T) {
	db := newGraphDB(t)
	spec := writeSpec(t, t.TempDir(), "ints.json", intsSpec)

	out, errOut, err := execute("--db", db, "-v", "query", spec, "--mode", "count")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
	assert.Contains(t, errOut, "SQL: SELECT")
}

func TestFailureCode(t *testing.T) {
	assert.Equal(t, ErrCodeQueryFailed, failureCode(assert.AnError))
	assert.Equal(t, ErrCodeLoadFailed, failureCode(&LoadError{Code: ErrCodeLoadFailed}))
}
