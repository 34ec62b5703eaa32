// Package filter compiles nested filter trees into queryir predicates.
//
// A tree maps either a combinator (and, or, ~and, ~or) to a list of
// sub-trees, or a field path to an operator map. A bare value is shorthand
// for {"==": value}. Operators may be prefixed with ~ or ! to negate them,
// and an operator map may itself nest and/or lists of operator maps for the
// same field.
//
// Plain columns support ==, >, <, >=, <=, like, ilike, in and is_null.
// Paths into JSON columns (attributes.a.b) additionally support contains,
// has_key, of_length, longer, shorter and of_type, and every comparison is
// guarded by the JSON type of the addressed value so that a value of another
// type never matches.
package filter

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/queryir"
)

// Tree is a filter tree.
type Tree map[string]any

// Target is the aliased table a tree is compiled against.
type Target struct {
	Alias string
	Table entity.Table
}

// Compile turns tree into a predicate over target. An empty tree yields a
// nil predicate.
func Compile(target Target, tree Tree) (queryir.Predicate, error) {
	c := &compiler{target: target}
	return c.tree(map[string]any(tree))
}

type compiler struct {
	target Target
}

func invalid(path, format string, args ...any) error {
	return qerr.New(qerr.CodeInvalidFilter, format, args...).WithPath(path)
}

// combinator reports whether key is and/or, possibly negated.
func combinator(key string) (op string, negate, ok bool) {
	negate, op = splitNegation(key)
	if op == "and" || op == "or" {
		return op, negate, true
	}
	return "", false, false
}

func splitNegation(key string) (bool, string) {
	if strings.HasPrefix(key, "~") || strings.HasPrefix(key, "!") {
		return true, key[1:]
	}
	return false, key
}

func (c *compiler) tree(m map[string]any) (queryir.Predicate, error) {
	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(m)) {
		val := m[key]
		if op, negate, ok := combinator(key); ok {
			p, err := c.combine(key, op, val, func(sub any) (queryir.Predicate, error) {
				subTree, ok := asMap(sub)
				if !ok {
					return nil, invalid(key, "%s expects a list of filter trees, got %T", key, sub)
				}
				return c.tree(subTree)
			})
			if err != nil {
				return nil, err
			}
			preds = append(preds, negated(p, negate))
			continue
		}

		ops, ok := asMap(val)
		if !ok {
			ops = map[string]any{"==": val}
		}
		p, err := c.field(key, ops)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return queryir.AndOf(preds...), nil
}

// combine compiles the list under an and/or key with each.
func (c *compiler) combine(path, op string, val any, each func(any) (queryir.Predicate, error)) (queryir.Predicate, error) {
	items, ok := asList(val)
	if !ok {
		return nil, invalid(path, "%s expects a list, got %T", path, val)
	}
	preds := make([]queryir.Predicate, 0, len(items))
	for _, item := range items {
		p, err := each(item)
		if err != nil {
			return nil, err
		}
		if p == nil {
			p = &queryir.Const{Value: true}
		}
		preds = append(preds, p)
	}
	if op == "or" {
		if len(preds) == 1 {
			return preds[0], nil
		}
		return &queryir.Or{Predicates: preds}, nil
	}
	if len(preds) == 0 {
		return &queryir.Const{Value: true}, nil
	}
	return queryir.AndOf(preds...), nil
}

func negated(p queryir.Predicate, negate bool) queryir.Predicate {
	if !negate {
		return p
	}
	return &queryir.Not{Predicate: p}
}

// field compiles an operator map for one field path.
func (c *compiler) field(path string, ops map[string]any) (queryir.Predicate, error) {
	parts := strings.Split(path, ".")
	col, ok := c.target.Table.Field(parts[0])
	if !ok {
		return nil, invalid(path, "unknown field %q; valid fields: %s",
			parts[0], strings.Join(c.target.Table.FieldNames(), ", "))
	}
	keys := parts[1:]
	if len(keys) > 0 && col.Type != entity.TypeJSON {
		return nil, invalid(path, "field %q is not a JSON column and cannot be addressed into", parts[0])
	}
	for _, k := range keys {
		if k == "" {
			return nil, invalid(path, "empty key in field path")
		}
	}
	column := queryir.Col(c.target.Alias, col.Name)
	return c.ops(path, ops, func(op string, v any) (queryir.Predicate, error) {
		if col.Type == entity.TypeJSON {
			return jsonOp(path, column, keys, op, v)
		}
		return columnOp(path, column, op, v)
	})
}

func (c *compiler) ops(path string, ops map[string]any, apply func(string, any) (queryir.Predicate, error)) (queryir.Predicate, error) {
	if len(ops) == 0 {
		return nil, invalid(path, "empty operator map")
	}
	var preds []queryir.Predicate
	for _, key := range slices.Sorted(maps.Keys(ops)) {
		val := ops[key]
		if op, negate, ok := combinator(key); ok {
			p, err := c.combine(path, op, val, func(sub any) (queryir.Predicate, error) {
				subOps, ok := asMap(sub)
				if !ok {
					return nil, invalid(path, "%s expects a list of operator maps, got %T", key, sub)
				}
				return c.ops(path, subOps, apply)
			})
			if err != nil {
				return nil, err
			}
			preds = append(preds, negated(p, negate))
			continue
		}
		negate, op := splitNegation(key)
		if op == "" {
			return nil, invalid(path, "empty operator")
		}
		p, err := apply(op, val)
		if err != nil {
			return nil, err
		}
		preds = append(preds, negated(p, negate))
	}
	return queryir.AndOf(preds...), nil
}

// Mentions reports whether tree filters on field or on a path inside it.
func Mentions(tree Tree, field string) bool {
	return mentions(map[string]any(tree), field)
}

func mentions(m map[string]any, field string) bool {
	for key, val := range m {
		if _, _, ok := combinator(key); ok {
			items, _ := asList(val)
			for _, item := range items {
				if sub, ok := asMap(item); ok && mentions(sub, field) {
					return true
				}
			}
			continue
		}
		if key == field || strings.HasPrefix(key, field+".") {
			return true
		}
	}
	return false
}
