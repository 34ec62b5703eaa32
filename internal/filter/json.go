package filter

import (
	"maps"
	"slices"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/queryir"
)

// JSON type names as reported by json_type.
var (
	typesNumber = []string{"integer", "real"}
	typesString = []string{"text"}
	typesObject = []string{"object"}
	typesArray  = []string{"array"}
	typesNull   = []string{"null"}
)

// ofTypeNames maps of_type operands to json_type names.
var ofTypeNames = map[string][]string{
	"object":  typesObject,
	"array":   typesArray,
	"string":  typesString,
	"number":  typesNumber,
	"boolean": {"true", "false"},
	"null":    typesNull,
}

type jsonPath struct {
	col  *queryir.Column
	keys []string
}

func (p jsonPath) typ() queryir.Expr     { return &queryir.JSONType{Column: p.col, Path: p.keys} }
func (p jsonPath) extract() queryir.Expr { return &queryir.JSONExtract{Column: p.col, Path: p.keys} }
func (p jsonPath) value() queryir.Expr   { return &queryir.JSONValue{Column: p.col, Path: p.keys} }
func (p jsonPath) length() queryir.Expr  { return &queryir.JSONLength{Column: p.col, Path: p.keys} }

func (p jsonPath) is(types ...string) queryir.Predicate {
	return &queryir.InTypes{Expr: p.typ(), Names: types}
}

func (p jsonPath) child(key string) jsonPath {
	keys := append(slices.Clone(p.keys), key)
	return jsonPath{col: p.col, keys: keys}
}

// jsonOp compiles one operator against a path inside a JSON column. Each
// comparison is guarded by the JSON type of the operand, so a stored value
// of another type compares false rather than being coerced.
func jsonOp(path string, col *queryir.Column, keys []string, op string, v any) (queryir.Predicate, error) {
	p := jsonPath{col: col, keys: keys}

	switch op {
	case "==":
		return p.equals(path, v)

	case ">", "<", ">=", "<=":
		var guard []string
		switch kindOf(v) {
		case kindNumber:
			guard = typesNumber
		case kindString, kindTime:
			guard = typesString
		default:
			return nil, invalid(path, "operator %s expects a number, string or time, got %T", op, v)
		}
		return queryir.AndOf(
			p.is(guard...),
			&queryir.Compare{Left: p.extract(), Op: compareOps[op], Right: &queryir.Param{Value: scalar(v)}},
		), nil

	case "like", "ilike":
		s, ok := v.(string)
		if !ok {
			return nil, invalid(path, "operator %s expects a string, got %T", op, v)
		}
		var match queryir.Predicate = &queryir.Like{Expr: p.extract(), Pattern: &queryir.Param{Value: s}}
		if op == "ilike" {
			match = ilike(p.extract(), s)
		}
		return queryir.AndOf(p.is(typesString...), match), nil

	case "in":
		return p.in(path, v)

	case "contains":
		switch kindOf(v) {
		case kindList, kindMap:
			return p.contains(path, v)
		}
		return nil, invalid(path, "operator contains expects a list or object, got %T", v)

	case "has_key":
		key, ok := v.(string)
		if !ok || key == "" {
			return nil, invalid(path, "operator has_key expects a non-empty string, got %T", v)
		}
		return queryir.AndOf(
			p.is(typesObject...),
			&queryir.IsNull{Expr: p.child(key).typ(), Negate: true},
		), nil

	case "of_length", "longer", "shorter":
		n, ok := asInt(v)
		if !ok || kindOf(v) != kindNumber {
			return nil, invalid(path, "operator %s expects an integer, got %v", op, v)
		}
		cmp := map[string]queryir.CompareOp{"of_length": queryir.OpEq, "longer": queryir.OpGt, "shorter": queryir.OpLt}[op]
		return queryir.AndOf(
			p.is(typesArray...),
			&queryir.Compare{Left: p.length(), Op: cmp, Right: &queryir.Param{Value: n}},
		), nil

	case "of_type":
		name, _ := v.(string)
		types, ok := ofTypeNames[name]
		if !ok {
			return nil, invalid(path, "operator of_type expects one of object, array, string, number, boolean, null; got %v", v)
		}
		return p.is(types...), nil

	case "is_null":
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(path, "operator is_null expects a boolean, got %T", v)
		}
		isNull := &queryir.Or{Predicates: []queryir.Predicate{
			&queryir.IsNull{Expr: p.typ()},
			p.is(typesNull...),
		}}
		return negated(isNull, !b), nil
	}
	return nil, invalid(path, "operator %q is not supported on JSON path", op)
}

// equals compares the value at p with v under v's JSON type.
func (p jsonPath) equals(path string, v any) (queryir.Predicate, error) {
	switch kindOf(v) {
	case kindNull:
		return p.is(typesNull...), nil
	case kindBool:
		if v.(bool) {
			return p.is("true"), nil
		}
		return p.is("false"), nil
	case kindNumber:
		return queryir.AndOf(p.is(typesNumber...), queryir.Eq(p.extract(), &queryir.Param{Value: scalar(v)})), nil
	case kindString, kindTime:
		return queryir.AndOf(p.is(typesString...), queryir.Eq(p.extract(), &queryir.Param{Value: v})), nil
	case kindList, kindMap:
		encoded, err := ir.MarshalCanonical(v)
		if err != nil {
			return nil, invalid(path, "cannot encode operand: %v", err)
		}
		guard := typesArray
		if kindOf(v) == kindMap {
			guard = typesObject
		}
		return queryir.AndOf(p.is(guard...), queryir.Eq(p.value(), &queryir.Param{Value: string(encoded)})), nil
	}
	return nil, invalid(path, "unsupported operand type %T", v)
}

// in matches any of the listed values, each under its own JSON type.
func (p jsonPath) in(path string, v any) (queryir.Predicate, error) {
	items, ok := asList(v)
	if !ok {
		return nil, invalid(path, "operator in expects a list, got %T", v)
	}
	var numbers, texts []any
	var rest []queryir.Predicate
	for _, item := range items {
		switch kindOf(item) {
		case kindNumber:
			numbers = append(numbers, scalar(item))
		case kindString, kindTime:
			texts = append(texts, item)
		case kindNull, kindBool:
			pred, err := p.equals(path, item)
			if err != nil {
				return nil, err
			}
			rest = append(rest, pred)
		default:
			return nil, invalid(path, "operator in expects scalar elements, got %T", item)
		}
	}

	var alts []queryir.Predicate
	if len(numbers) > 0 {
		alts = append(alts, queryir.AndOf(p.is(typesNumber...), &queryir.In{Expr: p.extract(), Values: numbers}))
	}
	if len(texts) > 0 {
		alts = append(alts, queryir.AndOf(p.is(typesString...), &queryir.In{Expr: p.extract(), Values: texts}))
	}
	alts = append(alts, rest...)
	switch len(alts) {
	case 0:
		return &queryir.Const{Value: false}, nil
	case 1:
		return alts[0], nil
	}
	return &queryir.Or{Predicates: alts}, nil
}

// contains tests sub-structure containment. For a list operand, every
// element must occur in the array at p. For an object operand, every key
// must be present at p with a value that contains (objects and lists) or
// equals (scalars) the operand's value.
func (p jsonPath) contains(path string, v any) (queryir.Predicate, error) {
	if m, ok := asMap(v); ok {
		preds := []queryir.Predicate{p.is(typesObject...)}
		for _, key := range slices.Sorted(maps.Keys(m)) {
			child := p.child(key)
			var (
				pred queryir.Predicate
				err  error
			)
			switch kindOf(m[key]) {
			case kindMap, kindList:
				pred, err = child.contains(path+"."+key, m[key])
			default:
				pred, err = child.equals(path+"."+key, m[key])
			}
			if err != nil {
				return nil, err
			}
			preds = append(preds, pred)
		}
		return queryir.AndOf(preds...), nil
	}

	items, _ := asList(v)
	preds := []queryir.Predicate{p.is(typesArray...)}
	for _, item := range items {
		elem := &queryir.JSONEachContains{Column: p.col, Path: p.keys}
		switch kindOf(item) {
		case kindNumber:
			elem.Types, elem.Value = typesNumber, scalar(item)
		case kindString, kindTime:
			elem.Types, elem.Value = typesString, item
		case kindBool:
			if item.(bool) {
				elem.Types = []string{"true"}
			} else {
				elem.Types = []string{"false"}
			}
			elem.Value = item
		case kindNull:
			elem.Types = typesNull
		case kindMap, kindList:
			encoded, err := ir.MarshalCanonical(item)
			if err != nil {
				return nil, invalid(path, "cannot encode operand: %v", err)
			}
			elem.Types, elem.Value = typesObject, string(encoded)
			if kindOf(item) == kindList {
				elem.Types = typesArray
			}
		default:
			return nil, invalid(path, "unsupported element type %T in contains", item)
		}
		preds = append(preds, elem)
	}
	return queryir.AndOf(preds...), nil
}
