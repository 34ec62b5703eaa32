package filter

import (
	"encoding/json"
	"math"
	"reflect"
	"time"
)

// asMap accepts Tree, map[string]any and other string-keyed maps.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Tree:
		return map[string]any(m), true
	case map[string]any:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asList accepts any slice or array.
func asList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// valueKind is the JSON-level type of a filter operand.
type valueKind int

const (
	kindInvalid valueKind = iota
	kindNull
	kindBool
	kindNumber
	kindString
	kindTime
	kindList
	kindMap
)

func kindOf(v any) valueKind {
	switch val := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case string:
		return kindString
	case json.Number:
		return kindNumber
	case time.Time:
		return kindTime
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return kindInvalid
		}
		return kindNumber
	case float32:
		return kindNumber
	}
	if _, ok := asMap(v); ok {
		return kindMap
	}
	if _, ok := asList(v); ok {
		return kindList
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return kindNumber
	}
	return kindInvalid
}

// asInt converts integral operands; floats must have no fractional part.
func asInt(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case json.Number:
		i, err := val.Int64()
		return i, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

// scalar normalises numbers to int64 or float64 so bound parameters have
// a driver-supported type.
func scalar(v any) any {
	if kindOf(v) != kindNumber {
		return v
	}
	if i, ok := asInt(v); ok {
		if _, isFloat := v.(float64); !isFloat {
			return i
		}
	}
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	}
	return v
}
