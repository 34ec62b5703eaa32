package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileText(t *testing.T) {
	spec := writeSpec(t, t.TempDir(), "descendants.yaml", descendantsSpec)

	out, _, err := execute("compile", spec)
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT")
	assert.Contains(t, out, "params: ")
	assert.Contains(t, out, "hash:   ")
}

func TestCompileJSON(t *testing.T) {
	spec := writeSpec(t, t.TempDir(), "descendants.yaml", descendantsSpec)

	out, _, err := execute("--format", "json", "compile", spec)
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, spec, resp.Data.File)
	assert.Contains(t, resp.Data.SQL, "SELECT")
	assert.Contains(t, resp.Data.Params, "a")
	assert.Len(t, resp.Data.Hash, 64)
	assert.Equal(t, []string{"a", "c", "a--c"}, resp.Data.Tags)
}

func TestCompileIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	jsonSpec := writeSpec(t, dir, "ints.json", intsSpec)
	yamlSpec := writeSpec(t, dir, "ints.yaml", `
path: [{entity_type: data.core.int.Int., tag: n}]
project: {n: [label]}
order_by: [{n: id}]
`)

	var results []CompilationResult
	for _, spec := range []string{jsonSpec, yamlSpec, jsonSpec} {
		out, _, err := execute("--format", "json", "compile", spec)
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		results = append(results, resp.Data)
	}
	assert.Equal(t, results[0].SQL, results[1].SQL)
	assert.Equal(t, results[0].Hash, results[1].Hash)
	assert.Equal(t, results[0], results[2])
}

func TestCompileOutputToFile(t *testing.T) {
	dir := t.TempDir()
	spec := writeSpec(t, dir, "ints.json", intsSpec)
	outputFile := filepath.Join(dir, "compiled.json")

	out, _, err := execute("compile", spec, "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote compilation result to")

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	var result CompilationResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Contains(t, result.SQL, "SELECT")
	assert.Equal(t, []string{"n"}, result.Tags)
}

func TestCompileLegacyDialect(t *testing.T) {
	spec := writeSpec(t, t.TempDir(), "ints.json", intsSpec)

	out, _, err := execute("compile", spec, "--dialect", "sqlite-legacy")
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT")
}

func TestCompileErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("unknown dialect", func(t *testing.T) {
		spec := writeSpec(t, dir, "ints.json", intsSpec)
		out, _, err := execute("compile", spec, "--dialect", "postgres")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "unknown dialect")
	})

	t.Run("missing file", func(t *testing.T) {
		out, _, err := execute("compile", filepath.Join(dir, "nope.json"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E005]")
	})

	t.Run("unparseable spec", func(t *testing.T) {
		spec := writeSpec(t, dir, "broken.json", `{"path": [`)
		out, _, err := execute("compile", spec)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E004]")
	})

	t.Run("invalid query", func(t *testing.T) {
		spec := writeSpec(t, dir, "unknown_tag.json", unknownTagSpec)
		out, _, err := execute("--format", "json", "compile", spec)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, "INVALID_TAG", resp.Error.Code)
		assert.Equal(t, map[string]any{"tag": "missing"}, resp.Error.Details)
	})
}

func TestIsQueryCode(t *testing.T) {
	assert.True(t, isQueryCode("INVALID_FILTER"))
	assert.True(t, isQueryCode("INTEGRITY_ERROR"))
	assert.False(t, isQueryCode(ErrCodeLoadFailed))
	assert.False(t, isQueryCode(ErrCodeQueryFailed))
}
