package filter

import "github.com/roach88/provgraph/internal/queryir"

// columnOp compiles one operator against a plain column.
func columnOp(path string, col *queryir.Column, op string, v any) (queryir.Predicate, error) {
	switch op {
	case "==":
		if v == nil {
			return &queryir.IsNull{Expr: col}, nil
		}
		if !comparable(v) {
			return nil, invalid(path, "operator == expects a scalar, got %T", v)
		}
		return queryir.Eq(col, &queryir.Param{Value: scalar(v)}), nil

	case ">", "<", ">=", "<=":
		if !comparable(v) || kindOf(v) == kindBool {
			return nil, invalid(path, "operator %s expects a number, string or time, got %T", op, v)
		}
		return &queryir.Compare{Left: col, Op: compareOps[op], Right: &queryir.Param{Value: scalar(v)}}, nil

	case "like":
		s, ok := v.(string)
		if !ok {
			return nil, invalid(path, "operator like expects a string, got %T", v)
		}
		return &queryir.Like{Expr: col, Pattern: &queryir.Param{Value: s}}, nil

	case "ilike":
		s, ok := v.(string)
		if !ok {
			return nil, invalid(path, "operator ilike expects a string, got %T", v)
		}
		return ilike(col, s), nil

	case "in":
		items, ok := asList(v)
		if !ok {
			return nil, invalid(path, "operator in expects a list, got %T", v)
		}
		if len(items) == 0 {
			return &queryir.Const{Value: false}, nil
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			if !comparable(item) {
				return nil, invalid(path, "operator in expects scalar elements, got %T", item)
			}
			values = append(values, scalar(item))
		}
		return &queryir.In{Expr: col, Values: values}, nil

	case "is_null":
		b, ok := v.(bool)
		if !ok {
			return nil, invalid(path, "operator is_null expects a boolean, got %T", v)
		}
		return &queryir.IsNull{Expr: col, Negate: !b}, nil
	}
	return nil, invalid(path, "operator %q is not supported on column %q", op, col.Name)
}

var compareOps = map[string]queryir.CompareOp{
	"==": queryir.OpEq,
	">":  queryir.OpGt,
	"<":  queryir.OpLt,
	">=": queryir.OpGte,
	"<=": queryir.OpLte,
}

func comparable(v any) bool {
	switch kindOf(v) {
	case kindBool, kindNumber, kindString, kindTime:
		return true
	}
	return false
}

func ilike(e queryir.Expr, pattern string) queryir.Predicate {
	return &queryir.Like{
		Expr:    &queryir.Func{Name: "lower", Args: []queryir.Expr{e}},
		Pattern: &queryir.Func{Name: "lower", Args: []queryir.Expr{&queryir.Param{Value: pattern}}},
	}
}
