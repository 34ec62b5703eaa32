// Package querysql renders queryir statements to parameterized SQLite SQL.
package querysql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/queryir"
)

// Dialect identifies the SQL backend a session talks to. It is used only to
// pick the in-clause strategy; the renderer always emits SQLite syntax.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	// DialectSQLiteLegacy is SQLite built with the historical 999 bound
	// parameter limit.
	DialectSQLiteLegacy Dialect = "sqlite-legacy"
)

// InPolicy decides how In predicates are rendered.
//
// Lists of up to ParamThreshold values bind one parameter per value. Longer
// lists are passed as a single JSON array parameter and tested with a
// set-membership subquery over json_each. Lists longer than ChunkSize are
// split into chunks of at most ChunkSize values, one subquery each,
// combined with OR.
type InPolicy struct {
	ParamThreshold int
	ChunkSize      int
}

// DefaultInPolicy returns the in-clause policy for a dialect.
func DefaultInPolicy(d Dialect) InPolicy {
	if d == DialectSQLiteLegacy {
		return InPolicy{ParamThreshold: 100, ChunkSize: 10000}
	}
	return InPolicy{ParamThreshold: 500, ChunkSize: 100000}
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: All literal values are parameterized (never interpolated). The
// only inline literals are identifiers produced by the compiler itself and
// the constant name sets of InTypes, both checked against strict patterns.
type SQLCompiler struct {
	In InPolicy
}

// NewSQLCompiler creates a new SQLCompiler for a dialect.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{In: DefaultInPolicy(d)}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, res.Err()
	}

	w := &writer{policy: c.In}
	switch query := q.(type) {
	case *queryir.Select:
		w.selectStmt(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	if w.err != nil {
		return "", nil, w.err
	}
	return w.sb.String(), w.params, nil
}

// CountQuery wraps q so that it returns the number of rows q produces.
func CountQuery(q *queryir.Select) *queryir.Select {
	return &queryir.Select{
		Columns: []queryir.Output{{Expr: &queryir.Func{Name: "count"}}},
		From:    &queryir.Subquery{Query: q, Alias: "counted"},
	}
}

var (
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

// writer accumulates SQL text and parameters in text order. The first error
// sticks; later writes are ignored.
type writer struct {
	sb     strings.Builder
	params []any
	policy InPolicy
	err    error
}

func (w *writer) fail(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf(format, args...)
	}
}

func (w *writer) write(parts ...string) {
	for _, p := range parts {
		w.sb.WriteString(p)
	}
}

func (w *writer) ident(name string) {
	if !identPattern.MatchString(name) {
		w.fail("invalid identifier %q", name)
		return
	}
	w.sb.WriteString(name)
}

func (w *writer) param(v any) {
	w.sb.WriteByte('?')
	w.params = append(w.params, bindValue(v))
}

// bindValue converts Go values into driver-friendly parameter values.
func bindValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return ir.FormatTime(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}

func (w *writer) selectStmt(sel *queryir.Select) {
	if len(sel.With) > 0 {
		w.write("WITH RECURSIVE ")
		for i, cte := range sel.With {
			if i > 0 {
				w.write(", ")
			}
			w.cte(cte)
		}
		w.write(" ")
	}

	w.write("SELECT ")
	if sel.Distinct {
		w.write("DISTINCT ")
	}
	for i, col := range sel.Columns {
		if i > 0 {
			w.write(", ")
		}
		w.expr(col.Expr)
		if col.Label != "" {
			w.write(" AS ")
			w.ident(col.Label)
		}
	}

	w.write(" FROM ")
	w.source(sel.From)
	for _, j := range sel.Joins {
		if j.Type == queryir.LeftOuterJoin {
			w.write(" LEFT OUTER JOIN ")
		} else {
			w.write(" JOIN ")
		}
		w.source(j.Source)
		w.write(" ON ")
		w.predicate(j.On)
	}

	if sel.Where != nil {
		w.write(" WHERE ")
		w.predicate(sel.Where)
	}

	if len(sel.OrderBy) > 0 {
		w.write(" ORDER BY ")
		for i, o := range sel.OrderBy {
			if i > 0 {
				w.write(", ")
			}
			w.expr(o.Expr)
			if o.Desc {
				w.write(" DESC")
			} else {
				w.write(" ASC")
			}
		}
	}

	switch {
	case sel.Limit != nil:
		w.write(" LIMIT ")
		w.param(*sel.Limit)
		if sel.Offset != nil {
			w.write(" OFFSET ")
			w.param(*sel.Offset)
		}
	case sel.Offset != nil:
		// SQLite requires a LIMIT clause before OFFSET; -1 means no limit.
		w.write(" LIMIT -1 OFFSET ")
		w.param(*sel.Offset)
	}
}

func (w *writer) source(src queryir.Source) {
	switch s := src.(type) {
	case *queryir.Table:
		w.ident(s.Name)
		w.write(" AS ")
		w.ident(s.Alias)
	case *queryir.CTERef:
		w.ident(s.Name)
		w.write(" AS ")
		w.ident(s.Alias)
	case *queryir.Subquery:
		w.write("(")
		w.selectStmt(s.Query)
		w.write(") AS ")
		w.ident(s.Alias)
	default:
		w.fail("unsupported source type: %T", src)
	}
}

func (w *writer) column(c *queryir.Column) {
	w.ident(c.Alias)
	w.write(".")
	w.ident(c.Name)
}

// jsonPath renders a key path in SQLite JSON path syntax. All-digit keys
// address array elements.
func jsonPath(keys []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("$")
	for _, k := range keys {
		if k != "" && strings.Trim(k, "0123456789") == "" {
			sb.WriteString("[" + k + "]")
			continue
		}
		if strings.ContainsAny(k, `"\`) {
			return "", fmt.Errorf("unsupported character in JSON key %q", k)
		}
		sb.WriteString(`."` + k + `"`)
	}
	return sb.String(), nil
}

func (w *writer) jsonCall(fn string, c *queryir.Column, keys []string) {
	path, err := jsonPath(keys)
	if err != nil {
		w.fail("%v", err)
		return
	}
	w.write(fn, "(")
	w.column(c)
	w.write(", ")
	w.param(path)
	w.write(")")
}

func (w *writer) expr(e queryir.Expr) {
	switch expr := e.(type) {
	case *queryir.Column:
		w.column(expr)
	case *queryir.JSONExtract:
		w.jsonCall("json_extract", expr.Column, expr.Path)
	case *queryir.JSONType:
		w.jsonCall("json_type", expr.Column, expr.Path)
	case *queryir.JSONLength:
		w.jsonCall("json_array_length", expr.Column, expr.Path)
	case *queryir.JSONValue:
		path, err := jsonPath(expr.Path)
		if err != nil {
			w.fail("%v", err)
			return
		}
		w.write("(")
		w.column(expr.Column)
		w.write(" -> ")
		w.param(path)
		w.write(")")
	case *queryir.Cast:
		w.write("CAST(")
		w.expr(expr.Expr)
		w.write(" AS ", string(expr.Type), ")")
	case *queryir.Func:
		w.write(expr.Name, "(")
		if len(expr.Args) == 0 && expr.Name == "count" {
			w.write("*")
		}
		for i, a := range expr.Args {
			if i > 0 {
				w.write(", ")
			}
			w.expr(a)
		}
		w.write(")")
	case *queryir.Param:
		w.param(expr.Value)
	default:
		w.fail("unsupported expression type: %T", e)
	}
}

func (w *writer) predicate(p queryir.Predicate) {
	switch pred := p.(type) {
	case *queryir.Compare:
		w.expr(pred.Left)
		w.write(" ", string(pred.Op), " ")
		w.expr(pred.Right)
	case *queryir.Like:
		w.expr(pred.Expr)
		w.write(" LIKE ")
		w.expr(pred.Pattern)
		w.write(` ESCAPE '\'`)
	case *queryir.In:
		w.in(pred)
	case *queryir.InTypes:
		w.inTypes(pred.Expr, pred.Names)
	case *queryir.IsNull:
		w.expr(pred.Expr)
		if pred.Negate {
			w.write(" IS NOT NULL")
		} else {
			w.write(" IS NULL")
		}
	case *queryir.JSONEachContains:
		path, err := jsonPath(pred.Path)
		if err != nil {
			w.fail("%v", err)
			return
		}
		w.write("EXISTS (SELECT 1 FROM json_each(")
		w.column(pred.Column)
		w.write(", ")
		w.param(path)
		w.write(") AS je WHERE ")
		w.inTypes(&queryir.Column{Alias: "je", Name: "type"}, pred.Types)
		// A JSON null element has no comparable value; the type test suffices.
		if pred.Value != nil {
			w.write(" AND je.value = ")
			w.param(pred.Value)
		}
		w.write(")")
	case *queryir.And:
		w.junction(pred.Predicates, " AND ", "1 = 1")
	case *queryir.Or:
		w.junction(pred.Predicates, " OR ", "1 = 0")
	case *queryir.Not:
		w.write("NOT (")
		w.predicate(pred.Predicate)
		w.write(")")
	case *queryir.Const:
		if pred.Value {
			w.write("1 = 1")
		} else {
			w.write("1 = 0")
		}
	default:
		w.fail("unsupported predicate type: %T", p)
	}
}

func (w *writer) junction(preds []queryir.Predicate, sep, empty string) {
	if len(preds) == 0 {
		w.write(empty)
		return
	}
	if len(preds) == 1 {
		w.predicate(preds[0])
		return
	}
	w.write("(")
	for i, sub := range preds {
		if i > 0 {
			w.write(sep)
		}
		w.predicate(sub)
	}
	w.write(")")
}

func (w *writer) inTypes(e queryir.Expr, names []string) {
	w.expr(e)
	w.write(" IN (")
	for i, n := range names {
		if !typeNamePattern.MatchString(n) {
			w.fail("invalid constant %q", n)
			return
		}
		if i > 0 {
			w.write(", ")
		}
		w.write("'", n, "'")
	}
	w.write(")")
}

// in renders membership following the policy. An empty list is false
// rather than NULL, so its negation holds for every row.
func (w *writer) in(pred *queryir.In) {
	n := len(pred.Values)
	if n == 0 {
		w.write("1 = 0")
		return
	}

	if w.policy.ParamThreshold <= 0 || n <= w.policy.ParamThreshold {
		w.expr(pred.Expr)
		w.write(" IN (")
		for i, v := range pred.Values {
			if i > 0 {
				w.write(", ")
			}
			w.param(v)
		}
		w.write(")")
		return
	}

	chunk := w.policy.ChunkSize
	if chunk <= 0 || chunk > n {
		chunk = n
	}
	chunks := (n + chunk - 1) / chunk
	if chunks > 1 {
		w.write("(")
	}
	for i := 0; i < chunks; i++ {
		if i > 0 {
			w.write(" OR ")
		}
		end := min((i+1)*chunk, n)
		vals := make([]any, 0, end-i*chunk)
		for _, v := range pred.Values[i*chunk : end] {
			vals = append(vals, bindValue(v))
		}
		encoded, err := json.Marshal(vals)
		if err != nil {
			w.fail("encode in-list: %v", err)
			return
		}
		w.expr(pred.Expr)
		w.write(" IN (SELECT value FROM json_each(")
		w.param(string(encoded))
		w.write("))")
	}
	if chunks > 1 {
		w.write(")")
	}
}

// cte renders a recursive closure over the link table.
//
// Descendant direction:
//
//	base:      (input_id, output_id, 0) for eligible links whose input is seeded
//	recursive: (c.ancestor_id, l.output_id, c.depth + 1) for l.input_id = c.descendant_id
//
// Ancestor direction mirrors it, extending on l.output_id = c.ancestor_id.
// UNION ALL keeps every walk, so a pair reachable along several paths
// yields one row per path.
func (w *writer) cte(c queryir.CTE) {
	cl, ok := c.(*queryir.Closure)
	if !ok {
		w.fail("unsupported CTE type: %T", c)
		return
	}

	name := cl.Name
	base := name + "_l"
	rec := name + "_c"
	step := name + "_s"

	w.ident(name)
	w.write("(ancestor_id, descendant_id, depth")
	if cl.ExpandPath {
		w.write(", path")
	}
	w.write(") AS (SELECT ", base, ".input_id, ", base, ".output_id, 0")
	if cl.ExpandPath {
		w.write(", '[' || ", base, ".input_id || ',' || ", base, ".output_id || ']'")
	}
	w.write(" FROM ")
	w.ident(cl.LinkTable)
	w.write(" AS ", base)

	seedCol := "input_id"
	if cl.Direction == queryir.TowardAncestors {
		seedCol = "output_id"
	}
	if cl.Seed != nil {
		w.write(" JOIN ")
		w.ident(cl.NodeTable)
		w.write(" AS ")
		w.ident(cl.SeedAlias)
		w.write(" ON ")
		w.ident(cl.SeedAlias)
		w.write(".id = ", base, ".", seedCol)
	}
	w.write(" WHERE ")
	w.inTypes(queryir.Col(base, "type"), cl.LinkTypes)
	if cl.Seed != nil {
		w.write(" AND ")
		w.predicate(cl.Seed)
	}

	w.write(" UNION ALL SELECT ")
	if cl.Direction == queryir.TowardAncestors {
		w.write(step, ".input_id, ", rec, ".descendant_id, ", rec, ".depth + 1")
		if cl.ExpandPath {
			w.write(", '[' || ", step, ".input_id || ',' || substr(", rec, ".path, 2)")
		}
		w.write(" FROM ", name, " AS ", rec, " JOIN ")
		w.ident(cl.LinkTable)
		w.write(" AS ", step, " ON ", step, ".output_id = ", rec, ".ancestor_id")
	} else {
		w.write(rec, ".ancestor_id, ", step, ".output_id, ", rec, ".depth + 1")
		if cl.ExpandPath {
			w.write(", substr(", rec, ".path, 1, length(", rec, ".path) - 1) || ',' || ", step, ".output_id || ']'")
		}
		w.write(" FROM ", name, " AS ", rec, " JOIN ")
		w.ident(cl.LinkTable)
		w.write(" AS ", step, " ON ", step, ".input_id = ", rec, ".descendant_id")
	}
	w.write(" WHERE ")
	w.inTypes(queryir.Col(step, "type"), cl.LinkTypes)
	if cl.MaxDepth > 0 {
		w.write(" AND ", rec, ".depth < ", strconv.Itoa(cl.MaxDepth))
	}
	w.write(")")
}
