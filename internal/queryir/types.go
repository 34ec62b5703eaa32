package queryir

// Query represents a complete statement.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Source is something a statement can select from or join to.
type Source interface {
	sourceNode()
	// SourceAlias is the alias the source introduces.
	SourceAlias() string
}

// Expr is a scalar expression.
type Expr interface {
	exprNode()
}

// Predicate is a boolean condition.
type Predicate interface {
	predicateNode()
}

// CTE is a common table expression attached to a statement's WITH clause.
type CTE interface {
	cteNode()
	CTEName() string
}

// JoinType selects inner or left outer join semantics.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftOuterJoin
)

// Select is a SELECT statement.
//
// Semantics:
//
//	WITH <ctes> SELECT [DISTINCT] <columns> FROM <from> <joins>
//	WHERE <where> ORDER BY <order> LIMIT <limit> OFFSET <offset>
//
// Limit and Offset are nil when absent. An OFFSET without LIMIT is rendered
// with the backend's "no limit" spelling.
type Select struct {
	With     []CTE
	Distinct bool
	Columns  []Output
	From     Source
	Joins    []Join
	Where    Predicate
	OrderBy  []Order
	Limit    *int
	Offset   *int
}

func (*Select) queryNode() {}

// Output is one selected expression with an optional label.
type Output struct {
	Expr  Expr
	Label string
}

// Order is one ORDER BY term.
type Order struct {
	Expr Expr
	Desc bool
}

// Join attaches a source to the statement.
//
//	[LEFT OUTER] JOIN <source> ON <on>
type Join struct {
	Type   JoinType
	Source Source
	On     Predicate
}

// Table is a base table under an alias.
type Table struct {
	Name  string
	Alias string
}

func (*Table) sourceNode()           {}
func (t *Table) SourceAlias() string { return t.Alias }

// CTERef references a CTE from the WITH clause under an alias.
type CTERef struct {
	Name  string
	Alias string
}

func (*CTERef) sourceNode()           {}
func (c *CTERef) SourceAlias() string { return c.Alias }

// Subquery is a nested SELECT used as a source.
type Subquery struct {
	Query *Select
	Alias string
}

func (*Subquery) sourceNode()           {}
func (s *Subquery) SourceAlias() string { return s.Alias }

// Column is alias.name.
type Column struct {
	Alias string
	Name  string
}

func (*Column) exprNode() {}

// JSONExtract extracts the SQL value at a key path inside a JSON column.
// Objects and arrays come back as JSON text, booleans as 0/1.
type JSONExtract struct {
	Column *Column
	Path   []string
}

func (*JSONExtract) exprNode() {}

// JSONValue extracts the JSON text representation at a key path, keeping
// the JSON type of scalars intact.
type JSONValue struct {
	Column *Column
	Path   []string
}

func (*JSONValue) exprNode() {}

// JSONType yields the JSON type name at a key path: null, true, false,
// integer, real, text, array, object; SQL NULL when the path is absent.
type JSONType struct {
	Column *Column
	Path   []string
}

func (*JSONType) exprNode() {}

// JSONLength yields the length of the array at a key path.
type JSONLength struct {
	Column *Column
	Path   []string
}

func (*JSONLength) exprNode() {}

// SQLType is a target type for Cast.
type SQLType string

const (
	SQLReal    SQLType = "REAL"
	SQLInteger SQLType = "INTEGER"
	SQLText    SQLType = "TEXT"
)

// Cast converts an expression to a SQL type.
type Cast struct {
	Expr Expr
	Type SQLType
}

func (*Cast) exprNode() {}

// Func applies a scalar or aggregate function. Name must be one of the
// functions the backend allow-lists (count, min, max, lower).
// A Func with no arguments and Name "count" renders count(*).
type Func struct {
	Name string
	Args []Expr
}

func (*Func) exprNode() {}

// Param is a bound literal value.
type Param struct {
	Value any
}

func (*Param) exprNode() {}

// Compare is <left> <op> <right>.
type Compare struct {
	Left  Expr
	Op    CompareOp
	Right Expr
}

func (*Compare) predicateNode() {}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNe  CompareOp = "<>"
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// Like is <expr> LIKE <pattern>. Case sensitivity is decided by the store's
// configuration; case-insensitive matching is expressed with Func lower.
type Like struct {
	Expr    Expr
	Pattern Expr
}

func (*Like) predicateNode() {}

// In is membership of an expression in a literal value list. The backend
// picks the rendering strategy from the list size.
type In struct {
	Expr   Expr
	Values []any
}

func (*In) predicateNode() {}

// InTypes is membership of an expression in a constant set of strings that
// are part of the statement shape (JSON type names, link types). Unlike In,
// these are rendered inline as quoted literals so they never count against
// the parameter budget.
type InTypes struct {
	Expr  Expr
	Names []string
}

func (*InTypes) predicateNode() {}

// IsNull is <expr> IS [NOT] NULL.
type IsNull struct {
	Expr   Expr
	Negate bool
}

func (*IsNull) predicateNode() {}

// JSONEachContains is true when the array at Path contains an element
// equal to Value whose JSON type is one of Types. A nil Value matches on
// type alone.
//
//	EXISTS (SELECT 1 FROM json_each(<col>, <path>) WHERE type IN (...) AND value = ?)
type JSONEachContains struct {
	Column *Column
	Path   []string
	Types  []string
	Value  any
}

func (*JSONEachContains) predicateNode() {}

// And is a conjunction. Empty And is true.
type And struct {
	Predicates []Predicate
}

func (*And) predicateNode() {}

// Or is a disjunction. Empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (*Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (*Not) predicateNode() {}

// Const is a constant truth value.
type Const struct {
	Value bool
}

func (*Const) predicateNode() {}

// ClosureDirection selects which way a Closure walks the link relation.
type ClosureDirection int

const (
	// TowardDescendants seeds from links whose input is in the seed set and
	// extends by following outputs.
	TowardDescendants ClosureDirection = iota
	// TowardAncestors seeds from links whose output is in the seed set and
	// extends by following inputs.
	TowardAncestors
)

// Closure is a recursive CTE computing the transitive closure of the link
// relation restricted to LinkTypes. Its rows expose ancestor_id,
// descendant_id, depth and, when ExpandPath is set, path (a JSON array of
// the node ids visited from ancestor to descendant).
//
// Seed restricts the base step to links touching a node that satisfies it.
// Seed is expressed over SeedAlias, an alias of the node table that only
// exists inside the CTE body. A nil Seed leaves the base step unrestricted.
//
// MaxDepth bounds recursion; zero means unbounded.
type Closure struct {
	Name       string
	Direction  ClosureDirection
	LinkTable  string
	NodeTable  string
	LinkTypes  []string
	SeedAlias  string
	Seed       Predicate
	ExpandPath bool
	MaxDepth   int
}

func (*Closure) cteNode()          {}
func (c *Closure) CTEName() string { return c.Name }

// Col is shorthand for &Column{Alias: alias, Name: name}.
func Col(alias, name string) *Column {
	return &Column{Alias: alias, Name: name}
}

// Eq is shorthand for an equality comparison.
func Eq(left, right Expr) *Compare {
	return &Compare{Left: left, Op: OpEq, Right: right}
}

// AndOf builds a conjunction, flattening nested Ands and dropping nils.
// A single remaining predicate is returned unwrapped.
func AndOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case *And:
			out = append(out, v.Predicates...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return &And{Predicates: out}
}
