// Package project compiles per-tag projection items into output
// expressions and the decoders that turn result cells back into values.
package project

import (
	"maps"
	"slices"

	"github.com/roach88/provgraph/internal/qerr"
)

// Item is one projection request.
type Item struct {
	// Field is a column name, a path into a JSON column, "*" for the whole
	// entity or "**" for every column.
	Field string
	// Cast is one of the Cast names below (long or short form), or empty.
	Cast string
	// Func is count, min or max, or empty.
	Func string
}

// Cast names. Short forms are accepted on input; Canonical returns the
// long form.
const (
	CastFloat    = "float"
	CastInt      = "int"
	CastBool     = "bool"
	CastText     = "text"
	CastJSON     = "json"
	CastDatetime = "datetime"
)

var castNames = map[string]string{
	"float": CastFloat, "f": CastFloat,
	"int": CastInt, "i": CastInt,
	"bool": CastBool, "b": CastBool,
	"text": CastText, "t": CastText,
	"json": CastJSON, "j": CastJSON,
	"datetime": CastDatetime, "d": CastDatetime,
}

var funcs = map[string]bool{"count": true, "min": true, "max": true}

// CanonicalCast maps a cast name to its long form.
func CanonicalCast(name string) (string, bool) {
	if name == "" {
		return "", true
	}
	c, ok := castNames[name]
	return c, ok
}

// Normalize validates an item and canonicalises its cast.
func (it Item) Normalize() (Item, error) {
	if it.Field == "" {
		return it, invalid(it.Field, "empty projection field")
	}
	cast, ok := CanonicalCast(it.Cast)
	if !ok {
		return it, invalid(it.Field, "unknown cast %q; valid casts: float|f, int|i, bool|b, text|t, json|j, datetime|d", it.Cast)
	}
	it.Cast = cast
	if it.Func != "" && !funcs[it.Func] {
		return it, invalid(it.Field, "unknown func %q; valid funcs: count, max, min", it.Func)
	}
	if it.Field == "*" && it.Func != "" {
		return it, invalid(it.Field, "* cannot be combined with func")
	}
	if (it.Field == "*" || it.Field == "**") && it.Cast != "" {
		return it, invalid(it.Field, "%s cannot be cast", it.Field)
	}
	if it.Field == "**" && it.Func != "" {
		return it, invalid(it.Field, "** cannot be combined with func")
	}
	return it, nil
}

// Key is the field name an item is reported under.
func (it Item) Key() string {
	return it.Field
}

// Wire returns the JSON-compatible form {field: {cast?, func?}}.
func (it Item) Wire() map[string]any {
	opts := map[string]any{}
	if it.Cast != "" {
		opts["cast"] = it.Cast
	}
	if it.Func != "" {
		opts["func"] = it.Func
	}
	return map[string]any{it.Field: opts}
}

func invalid(field, format string, args ...any) error {
	return qerr.New(qerr.CodeInvalidProjection, format, args...).WithPath(field)
}

// ParseItems accepts the forms a projection can be given in: a field name,
// a list of field names and {field: {cast, func}} maps, or a single such map.
func ParseItems(v any) ([]Item, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []Item{{Field: val}}, nil
	case Item:
		return []Item{val}, nil
	case []Item:
		return val, nil
	case []string:
		items := make([]Item, len(val))
		for i, f := range val {
			items[i] = Item{Field: f}
		}
		return items, nil
	case []any:
		var items []Item
		for _, el := range val {
			sub, err := ParseItems(el)
			if err != nil {
				return nil, err
			}
			items = append(items, sub...)
		}
		return items, nil
	case map[string]any:
		var items []Item
		for _, field := range slices.Sorted(maps.Keys(val)) {
			it := Item{Field: field}
			switch opts := val[field].(type) {
			case nil:
			case map[string]any:
				for k, o := range opts {
					s, ok := o.(string)
					if !ok {
						return nil, invalid(field, "projection option %q must be a string, got %T", k, o)
					}
					switch k {
					case "cast":
						it.Cast = s
					case "func":
						it.Func = s
					default:
						return nil, invalid(field, "unknown projection option %q", k)
					}
				}
			default:
				return nil, invalid(field, "projection options must be a map, got %T", opts)
			}
			items = append(items, it)
		}
		return items, nil
	}
	return nil, qerr.New(qerr.CodeInvalidProjection, "unsupported projection of type %T", v)
}
