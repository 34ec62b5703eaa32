// Package queryir provides the relational intermediate representation (IR)
// the graph query compiler lowers a path specification into.
//
// QueryIR is the abstraction boundary between the graph-level builder
// (vertices, relationship keywords, filter trees) and the SQL backend that
// renders text. Builders never concatenate SQL; they assemble IR nodes and
// hand them to querysql.
//
//	[path spec] → [joins, filter, project] → [Query IR] → [querysql] → SQL + params
//
// SEALED INTERFACES:
//
// Query, Source, Expr, Predicate and CTE are sealed interfaces using the
// marker method pattern. Only types in this package implement them, which
// lets backends use exhaustive type switches:
//
//	switch p := pred.(type) {
//	case *Compare:
//	case *And:
//	...
//	default:
//	    // Impossible - the set of predicates is closed
//	}
//
// ALIASES:
//
// Every table or CTE appearing in a statement is addressed through an alias.
// Column and JSON expressions name the alias, never the table, so the same
// table may appear any number of times in one path. Validate checks that
// every alias an expression references is introduced by the FROM clause or a
// join, in order.
//
// VALUES:
//
// Literal values only ever appear inside Param (or inside In.Values and
// JSON containment operands). Backends must bind them as parameters, never
// interpolate them.
package queryir
