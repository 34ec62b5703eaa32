package queryir

import "fmt"

// ValidationResult contains the structural problems found in a query.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural defect found, in traversal order.
	Problems []string
}

// Err returns nil for a valid result, otherwise an error naming the first
// problem and how many others there are.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	if len(r.Problems) == 1 {
		return fmt.Errorf("invalid query: %s", r.Problems[0])
	}
	return fmt.Errorf("invalid query: %s (and %d more)", r.Problems[0], len(r.Problems)-1)
}

// AllowedFuncs is the set of function names backends must support.
var AllowedFuncs = map[string]bool{
	"count": true,
	"min":   true,
	"max":   true,
	"lower": true,
}

// Validate checks that a query is well formed:
//  1. every alias an expression references is in scope where it is used
//  2. aliases are unique within a statement
//  3. every CTERef names a CTE of the enclosing WITH clause
//  4. the column list is not empty
//  5. limit and offset are non-negative
//  6. only allow-listed functions are used
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{}
	v.validateQuery(q, nil)
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// scope is the set of aliases visible at a point of a statement.
type scope map[string]bool

func (s scope) with(alias string) scope {
	next := make(scope, len(s)+1)
	for k := range s {
		next[k] = true
	}
	next[alias] = true
	return next
}

func (v *validator) validateQuery(q Query, outer scope) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case *Select:
		v.validateSelect(query, outer)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel *Select, outer scope) {
	ctes := map[string]bool{}
	for _, c := range sel.With {
		if ctes[c.CTEName()] {
			v.addProblem("duplicate CTE name %q", c.CTEName())
		}
		ctes[c.CTEName()] = true
		v.validateCTE(c)
	}

	if len(sel.Columns) == 0 {
		v.addProblem("select has no output columns")
	}
	if sel.Limit != nil && *sel.Limit < 0 {
		v.addProblem("negative limit %d", *sel.Limit)
	}
	if sel.Offset != nil && *sel.Offset < 0 {
		v.addProblem("negative offset %d", *sel.Offset)
	}

	if sel.From == nil {
		v.addProblem("select has no FROM source")
		return
	}

	visible := outer.with(sel.From.SourceAlias())
	v.validateSource(sel.From, ctes, outer)
	for i, j := range sel.Joins {
		if j.Source == nil {
			v.addProblem("join %d has no source", i)
			continue
		}
		alias := j.Source.SourceAlias()
		if visible[alias] {
			v.addProblem("alias %q introduced twice", alias)
		}
		v.validateSource(j.Source, ctes, visible)
		visible = visible.with(alias)
		if j.On == nil {
			v.addProblem("join %d (%s) has no ON condition", i, alias)
			continue
		}
		v.validatePredicate(j.On, visible)
	}

	for _, c := range sel.Columns {
		v.validateExpr(c.Expr, visible)
	}
	if sel.Where != nil {
		v.validatePredicate(sel.Where, visible)
	}
	for _, o := range sel.OrderBy {
		v.validateExpr(o.Expr, visible)
	}
}

func (v *validator) validateSource(src Source, ctes map[string]bool, visible scope) {
	switch s := src.(type) {
	case *Table:
		if s.Name == "" {
			v.addProblem("table source %q has no name", s.Alias)
		}
	case *CTERef:
		if !ctes[s.Name] {
			v.addProblem("reference to undefined CTE %q", s.Name)
		}
	case *Subquery:
		v.validateQuery(s.Query, visible)
	default:
		v.addProblem("unknown source type: %T", src)
	}
	if src.SourceAlias() == "" {
		v.addProblem("source without alias: %T", src)
	}
}

func (v *validator) validateCTE(c CTE) {
	switch cte := c.(type) {
	case *Closure:
		if len(cte.LinkTypes) == 0 {
			v.addProblem("closure %q has no link types", cte.Name)
		}
		if cte.Seed != nil {
			if cte.SeedAlias == "" {
				v.addProblem("closure %q has a seed but no seed alias", cte.Name)
			}
			v.validatePredicate(cte.Seed, scope{cte.SeedAlias: true})
		}
		if cte.MaxDepth < 0 {
			v.addProblem("closure %q has negative max depth", cte.Name)
		}
	default:
		v.addProblem("unknown CTE type: %T", c)
	}
}

func (v *validator) validateColumn(c *Column, visible scope) {
	if c == nil {
		v.addProblem("nil column")
		return
	}
	if !visible[c.Alias] {
		v.addProblem("column %s.%s references alias not in scope", c.Alias, c.Name)
	}
}

func (v *validator) validateExpr(e Expr, visible scope) {
	switch expr := e.(type) {
	case nil:
		v.addProblem("nil expression")
	case *Column:
		v.validateColumn(expr, visible)
	case *JSONExtract:
		v.validateColumn(expr.Column, visible)
	case *JSONValue:
		v.validateColumn(expr.Column, visible)
	case *JSONType:
		v.validateColumn(expr.Column, visible)
	case *JSONLength:
		v.validateColumn(expr.Column, visible)
	case *Cast:
		v.validateExpr(expr.Expr, visible)
	case *Func:
		if !AllowedFuncs[expr.Name] {
			v.addProblem("function %q is not allowed", expr.Name)
		}
		for _, a := range expr.Args {
			v.validateExpr(a, visible)
		}
	case *Param:
	default:
		v.addProblem("unknown expression type: %T", e)
	}
}

func (v *validator) validatePredicate(p Predicate, visible scope) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case *Compare:
		v.validateExpr(pred.Left, visible)
		v.validateExpr(pred.Right, visible)
	case *Like:
		v.validateExpr(pred.Expr, visible)
		v.validateExpr(pred.Pattern, visible)
	case *In:
		v.validateExpr(pred.Expr, visible)
	case *InTypes:
		v.validateExpr(pred.Expr, visible)
	case *IsNull:
		v.validateExpr(pred.Expr, visible)
	case *JSONEachContains:
		v.validateColumn(pred.Column, visible)
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, visible)
		}
	case *Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, visible)
		}
	case *Not:
		v.validatePredicate(pred.Predicate, visible)
	case *Const:
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
