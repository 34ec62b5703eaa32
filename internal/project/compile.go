package project

import (
	"strings"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/queryir"
)

// Target is the aliased entity or edge a tag's items are compiled against.
type Target struct {
	Alias string
	Table entity.Table
	Kind  entity.Kind     // zero for edges
	Edge  entity.EdgeKind // EdgeNone for vertices
}

// Projection is one logical result value. It spans one or more SQL output
// columns (several for "*") and decodes them back into a single value.
type Projection struct {
	Tag     string
	Field   string
	Columns []queryir.Expr
	Decode  func(cells []any) (any, error)
	// Entity is set for "*": the decoded value is an entity.Row.
	Entity bool
}

// Compile resolves items for one tag. "**" expands to one projection per
// column of the target table, under the external field names.
func Compile(tag string, target Target, items []Item) ([]Projection, error) {
	var out []Projection
	for _, raw := range items {
		it, err := raw.Normalize()
		if err != nil {
			return nil, withTag(err, tag)
		}
		switch it.Field {
		case "*":
			out = append(out, star(tag, target))
		case "**":
			for _, col := range target.Table.Columns {
				p, err := field(tag, target, Item{Field: col.Field})
				if err != nil {
					return nil, withTag(err, tag)
				}
				out = append(out, p)
			}
		default:
			p, err := field(tag, target, it)
			if err != nil {
				return nil, withTag(err, tag)
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func withTag(err error, tag string) error {
	if qe, ok := err.(*qerr.Error); ok {
		return qe.WithTag(tag)
	}
	return err
}

// CheckDuplicates reports the first field projected twice for a tag.
func CheckDuplicates(tag string, ps []Projection) error {
	seen := map[string]bool{}
	for _, p := range ps {
		if seen[p.Field] {
			return qerr.New(qerr.CodeIntegrity, "field %q projected twice", p.Field).WithTag(tag).WithPath(p.Field)
		}
		seen[p.Field] = true
	}
	return nil
}

func star(tag string, target Target) Projection {
	cols := make([]queryir.Expr, len(target.Table.Columns))
	for i, c := range target.Table.Columns {
		cols[i] = queryir.Col(target.Alias, c.Name)
	}
	return Projection{
		Tag:     tag,
		Field:   "*",
		Columns: cols,
		Decode:  rowDecoder(target),
		Entity:  true,
	}
}

// resolve splits a field path and finds its column.
func resolve(target Target, path string) (entity.Column, []string, error) {
	parts := strings.Split(path, ".")
	col, ok := target.Table.Field(parts[0])
	if !ok {
		return entity.Column{}, nil, invalid(path, "unknown field %q; valid fields: %s",
			parts[0], strings.Join(target.Table.FieldNames(), ", "))
	}
	keys := parts[1:]
	if len(keys) > 0 && col.Type != entity.TypeJSON {
		return entity.Column{}, nil, invalid(path, "field %q is not a JSON column and cannot be addressed into", parts[0])
	}
	for _, k := range keys {
		if k == "" {
			return entity.Column{}, nil, invalid(path, "empty key in field path")
		}
	}
	return col, keys, nil
}

func field(tag string, target Target, it Item) (Projection, error) {
	col, keys, err := resolve(target, it.Field)
	if err != nil {
		return Projection{}, err
	}
	cast := it.Cast
	if len(keys) > 0 && cast == "" {
		cast = CastJSON
	}
	expr, dec := castExpr(target.Alias, col, keys, cast)
	if it.Func != "" {
		expr = &queryir.Func{Name: it.Func, Args: []queryir.Expr{expr}}
		if it.Func == "count" {
			dec = decodeInt
		}
	}
	return Projection{
		Tag:     tag,
		Field:   it.Field,
		Columns: []queryir.Expr{expr},
		Decode:  single(dec),
	}, nil
}

// castExpr builds the expression for a column or JSON path under cast. An
// empty cast on a plain column uses the column's storage type.
func castExpr(alias string, col entity.Column, keys []string, cast string) (queryir.Expr, decoder) {
	column := queryir.Col(alias, col.Name)
	var base queryir.Expr = column
	if len(keys) > 0 {
		base = &queryir.JSONExtract{Column: column, Path: keys}
	}

	switch cast {
	case CastFloat:
		return &queryir.Cast{Expr: base, Type: queryir.SQLReal}, decodeFloat
	case CastInt:
		return &queryir.Cast{Expr: base, Type: queryir.SQLInteger}, decodeInt
	case CastText:
		return &queryir.Cast{Expr: base, Type: queryir.SQLText}, decodeText
	case CastBool:
		return base, decodeBool
	case CastDatetime:
		return base, decodeTime
	case CastJSON:
		if len(keys) > 0 {
			return &queryir.JSONValue{Column: column, Path: keys}, decodeJSON
		}
		return column, decodeJSON
	}
	return column, decoderFor(col.Type)
}

// OrderExpr returns the expression to order a tag's rows by field. Nested
// JSON paths need a cast, since their SQL type is otherwise ambiguous.
func OrderExpr(target Target, fieldPath, cast string) (queryir.Expr, error) {
	if fieldPath == "*" || fieldPath == "**" {
		return nil, invalid(fieldPath, "cannot order by %s", fieldPath)
	}
	canonical, ok := CanonicalCast(cast)
	if !ok {
		return nil, invalid(fieldPath, "unknown cast %q", cast)
	}
	col, keys, err := resolve(target, fieldPath)
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 && canonical == "" {
		return nil, invalid(fieldPath, "ordering by a nested JSON path requires a cast")
	}
	expr, _ := castExpr(target.Alias, col, keys, canonical)
	return expr, nil
}
