package project

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/provgraph/internal/entity"
)

type decoder func(any) (any, error)

func single(d decoder) func([]any) (any, error) {
	return func(cells []any) (any, error) {
		if len(cells) != 1 {
			return nil, fmt.Errorf("expected one cell, got %d", len(cells))
		}
		return d(cells[0])
	}
}

func decoderFor(t entity.ColumnType) decoder {
	switch t {
	case entity.TypeInt:
		return decodeInt
	case entity.TypeJSON:
		return decodeJSON
	case entity.TypeDatetime:
		return decodeTime
	case entity.TypeBool:
		return decodeBool
	}
	return decodeText
}

func decodeInt(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return val, nil
	case float64:
		if val == math.Trunc(val) {
			return int64(val), nil
		}
		return nil, fmt.Errorf("non-integral value %v", val)
	case string:
		return strconv.ParseInt(val, 10, 64)
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, fmt.Errorf("cannot decode %T as int", v)
}

func decodeFloat(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(val, 64)
	}
	return nil, fmt.Errorf("cannot decode %T as float", v)
}

func decodeBool(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case float64:
		return val != 0, nil
	case string:
		return strconv.ParseBool(val)
	}
	return nil, fmt.Errorf("cannot decode %T as bool", v)
}

func decodeText(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	}
	return fmt.Sprint(v), nil
}

func decodeTime(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return val.UTC(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			return nil, fmt.Errorf("decode datetime %q: %w", val, err)
		}
		return t.UTC(), nil
	}
	return nil, fmt.Errorf("cannot decode %T as datetime", v)
}

// decodeJSON parses JSON text. Integral numbers decode as int64, others as
// float64. Non-text cells (a scalar extracted by SQLite) pass through.
func decodeJSON(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return normalizeNumbers(out), nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, e := range val {
			val[k] = normalizeNumbers(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = normalizeNumbers(e)
		}
		return val
	}
	return v
}

// rowDecoder decodes the cells of a "*" projection into an entity.Row. A
// row whose cells are all NULL (an unmatched outer join) decodes to nil.
func rowDecoder(target Target) func([]any) (any, error) {
	return func(cells []any) (any, error) {
		if len(cells) != len(target.Table.Columns) {
			return nil, fmt.Errorf("expected %d cells, got %d", len(target.Table.Columns), len(cells))
		}
		allNull := true
		fields := make(map[string]any, len(cells))
		for i, col := range target.Table.Columns {
			if cells[i] != nil {
				allNull = false
			}
			v, err := decoderFor(col.Type)(cells[i])
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", col.Field, err)
			}
			fields[col.Field] = v
		}
		if allNull {
			return nil, nil
		}
		return entity.Row{Kind: target.Kind, Edge: target.Edge, Table: target.Table.Name, Fields: fields}, nil
	}
}
