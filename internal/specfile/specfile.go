// Package specfile reads and writes query specs: the JSON-compatible wire
// form produced by querybuilder.Builder.Spec and accepted by
// querybuilder.FromSpec.
//
// Specs may be written as JSON, YAML or CUE. CUE files are unified with the
// embedded #QuerySpec schema, so structural mistakes are reported with a file
// position before the spec reaches the query builder.
package specfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSrc string

// Supported formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCUE  = "cue"
)

// Spec is a decoded query spec.
type Spec = map[string]any

// Error is a spec file error, with a source position when one is known.
type Error struct {
	File    string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// FormatOf returns the format implied by a file extension, or "" when the
// extension is not a spec extension.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".cue":
		return FormatCUE
	}
	return ""
}

// Load reads one spec file.
func Load(path string) (Spec, error) {
	format := FormatOf(path)
	if format == "" {
		return nil, &Error{File: path, Field: "file", Message: "unsupported extension (want .json, .yaml, .yml or .cue)"}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec: %w", err)
	}
	spec, err := parse(data, format, path)
	if err != nil {
		var specErr *Error
		if errors.As(err, &specErr) && specErr.File == "" {
			specErr.File = path
		}
		return nil, err
	}
	return spec, nil
}

// Parse decodes a spec document in the given format.
func Parse(data []byte, format string) (Spec, error) {
	return parse(data, format, "")
}

func parse(data []byte, format, filename string) (Spec, error) {
	var (
		raw any
		err error
	)
	switch format {
	case FormatJSON:
		raw, err = decodeJSON(data)
	case FormatYAML:
		raw, err = decodeYAML(data)
	case FormatCUE:
		raw, err = decodeCUE(data, filename)
	default:
		return nil, &Error{Field: "format", Message: fmt.Sprintf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, err
	}
	spec, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Field: "spec", Message: fmt.Sprintf("top level must be an object, got %T", raw)}
	}
	if path, ok := spec["path"].([]any); !ok || len(path) == 0 {
		return nil, &Error{Field: "path", Message: "path must be a non-empty list"}
	}
	return spec, nil
}

func decodeJSON(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, &Error{Field: "json", Message: err.Error()}
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &Error{Field: "json", Message: "trailing data after spec"}
	}
	return raw, nil
}

func decodeYAML(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Field: "yaml", Message: err.Error()}
	}
	return normalizeYAML(raw, "")
}

// normalizeYAML turns the map[any]any nodes yaml.v3 produces for
// non-string keys into map[string]any, rejecting keys that are not strings.
func normalizeYAML(v any, at string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			n, err := normalizeYAML(child, at+"."+k)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key, ok := k.(string)
			if !ok {
				return nil, &Error{Field: strings.TrimPrefix(at, "."), Message: fmt.Sprintf("key %v is not a string", k)}
			}
			n, err := normalizeYAML(child, at+"."+key)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			n, err := normalizeYAML(child, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return v, nil
}

func decodeCUE(data []byte, filename string) (any, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling spec schema: %w", err)
	}

	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}
	value := ctx.CompileBytes(data, opts...)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.LookupPath(cue.ParsePath("#QuerySpec")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	out, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return decodeJSON(out)
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}
	first := errs[0]
	specErr := &Error{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		specErr.Pos = positions[0]
	}
	return specErr
}

// Find walks dir and returns every spec file in it, sorted.
func Find(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && FormatOf(path) != "" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Marshal renders a spec as indented JSON or as YAML.
func Marshal(spec Spec, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(spec, "", "  ")
	case FormatYAML:
		// Round trip through JSON so named map types and json.Number values
		// reach the YAML encoder as plain values.
		data, err := json.Marshal(spec)
		if err != nil {
			return nil, err
		}
		generic, err := decodeJSON(data)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(plain(generic)); err != nil {
			return nil, err
		}
		if err := encoder.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, &Error{Field: "format", Message: fmt.Sprintf("cannot write format %q", format)}
}

// plain replaces json.Number values so YAML writes them as numbers.
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = plain(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = plain(child)
		}
		return out
	}
	return v
}
