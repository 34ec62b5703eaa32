// Package joins maps (entity kind, relationship keyword) pairs to the joins
// that connect a new query vertex to one already on the path.
package joins

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/queryir"
)

// Vertex is an aliased vertex taking part in a join.
type Vertex struct {
	Alias string
	Kind  entity.Kind
}

// Request describes one join to emit.
type Request struct {
	// Joined is the vertex already on the path; New is the vertex being
	// appended.
	Joined Vertex
	New    Vertex

	// EdgeAlias names the edge row for keywords that yield one.
	EdgeAlias string

	// Outer makes every emitted join a left outer join.
	Outer bool

	// ExpandPath requests the closure path column.
	ExpandPath bool

	// MaxDepth bounds closure recursion; zero means unbounded.
	MaxDepth int

	// Seed compiles the joined vertex's filters over a node alias that is
	// local to the closure body. A nil Seed or a nil result leaves the
	// closure unseeded.
	Seed func(alias string) (queryir.Predicate, error)
}

// Emission is the result of a join.
//
// The join that introduces the new vertex is always the last of Joins, so
// callers can extend its ON condition.
type Emission struct {
	CTEs  []queryir.CTE
	Joins []queryir.Join

	// Edge is the kind of edge row exposed under Request.EdgeAlias, and
	// EdgeTable its columns. EdgeNone when the join yields no edge.
	Edge      entity.EdgeKind
	EdgeTable entity.Table
}

// JoinFn emits the joins for a request.
type JoinFn func(Request) (Emission, error)

// Strategy is one entry of the relationship table.
type Strategy struct {
	Keyword string
	// Target is the kind the joined vertex must have.
	Target entity.Kind
	Edge   entity.EdgeKind
	Emit   JoinFn
}

// table maps new-vertex kind and keyword to a strategy.
var table = map[entity.Kind]map[string]Strategy{
	entity.KindNode: {
		"with_incoming":    {Target: entity.KindNode, Edge: entity.EdgeLink, Emit: linkJoin("input_id", "output_id")},
		"with_outgoing":    {Target: entity.KindNode, Edge: entity.EdgeLink, Emit: linkJoin("output_id", "input_id")},
		"with_ancestors":   {Target: entity.KindNode, Edge: entity.EdgeClosure, Emit: closureJoin(queryir.TowardDescendants)},
		"with_descendants": {Target: entity.KindNode, Edge: entity.EdgeClosure, Emit: closureJoin(queryir.TowardAncestors)},
		"with_group":       {Target: entity.KindGroup, Edge: entity.EdgeMembership, Emit: membershipJoin("dbgroup_id", "dbnode_id")},
		"with_computer":    {Target: entity.KindComputer, Emit: direct("dbcomputer_id", "id")},
		"with_user":        {Target: entity.KindUser, Emit: direct("user_id", "id")},
		"with_comment":     {Target: entity.KindComment, Emit: direct("id", "dbnode_id")},
		"with_log":         {Target: entity.KindLog, Emit: direct("id", "dbnode_id")},
	},
	entity.KindGroup: {
		"with_node": {Target: entity.KindNode, Edge: entity.EdgeMembership, Emit: membershipJoin("dbnode_id", "dbgroup_id")},
		"with_user": {Target: entity.KindUser, Emit: direct("user_id", "id")},
	},
	entity.KindComputer: {
		"with_node":     {Target: entity.KindNode, Emit: direct("id", "dbcomputer_id")},
		"with_authinfo": {Target: entity.KindAuthInfo, Emit: direct("id", "dbcomputer_id")},
	},
	entity.KindUser: {
		"with_node":     {Target: entity.KindNode, Emit: direct("id", "user_id")},
		"with_group":    {Target: entity.KindGroup, Emit: direct("id", "user_id")},
		"with_comment":  {Target: entity.KindComment, Emit: direct("id", "user_id")},
		"with_authinfo": {Target: entity.KindAuthInfo, Emit: direct("id", "aiidauser_id")},
	},
	entity.KindAuthInfo: {
		"with_user":     {Target: entity.KindUser, Emit: direct("aiidauser_id", "id")},
		"with_computer": {Target: entity.KindComputer, Emit: direct("dbcomputer_id", "id")},
	},
	entity.KindComment: {
		"with_node": {Target: entity.KindNode, Emit: direct("dbnode_id", "id")},
		"with_user": {Target: entity.KindUser, Emit: direct("user_id", "id")},
	},
	entity.KindLog: {
		"with_node": {Target: entity.KindNode, Emit: direct("dbnode_id", "id")},
	},
	entity.KindLink: {},
}

// deprecated maps old keyword spellings to their replacement, per kind.
var deprecated = map[entity.Kind]map[string]string{
	entity.KindNode: {
		"output_of":     "with_incoming",
		"input_of":      "with_outgoing",
		"descendant_of": "with_ancestors",
		"ancestor_of":   "with_descendants",
		"member_of":     "with_group",
	},
	entity.KindGroup: {
		"group_of": "with_node",
	},
	entity.KindComputer: {
		"computer_of": "with_node",
	},
}

func init() {
	for _, byKeyword := range table {
		for kw, s := range byKeyword {
			s.Keyword = kw
			byKeyword[kw] = s
		}
	}
}

// Replacement returns the current spelling of a deprecated keyword.
func Replacement(kind entity.Kind, keyword string) (string, bool) {
	r, ok := deprecated[kind][keyword]
	return r, ok
}

// Keywords lists the current keywords valid for kind, sorted.
func Keywords(kind entity.Kind) []string {
	return slices.Sorted(maps.Keys(table[kind]))
}

// IsKeyword reports whether keyword is a relationship keyword for any kind,
// in current or deprecated spelling.
func IsKeyword(keyword string) bool {
	for k := range table {
		if _, ok := table[k][keyword]; ok {
			return true
		}
		if _, ok := deprecated[k][keyword]; ok {
			return true
		}
	}
	return false
}

// Lookup returns the strategy for kind and keyword. Deprecated spellings
// resolve to their replacement.
func Lookup(kind entity.Kind, keyword string) (Strategy, error) {
	if r, ok := Replacement(kind, keyword); ok {
		keyword = r
	}
	if s, ok := table[kind][keyword]; ok {
		return s, nil
	}
	valid := Keywords(kind)
	if len(valid) == 0 {
		return Strategy{}, qerr.New(qerr.CodeUnsupportedRelationship,
			"%s vertices cannot be joined to the path; they may only start it", kind)
	}
	return Strategy{}, qerr.New(qerr.CodeUnsupportedRelationship,
		"%s does not support %q; valid keywords: %s", kind, keyword, strings.Join(valid, ", "))
}

// Default picks the keyword used when none is given: a node following a
// node joins as its direct output; otherwise the unique keyword whose target
// is the previous vertex's kind.
func Default(kind, prev entity.Kind) (string, error) {
	if kind == entity.KindNode && prev == entity.KindNode {
		return "with_incoming", nil
	}
	var found []string
	for _, kw := range Keywords(kind) {
		if table[kind][kw].Target == prev {
			found = append(found, kw)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	return "", qerr.New(qerr.CodeUnsupportedRelationship,
		"no default relationship joins %s to %s; give one of: %s", kind, prev, strings.Join(Keywords(kind), ", "))
}

// Join validates the request against the strategy and emits it.
func (s Strategy) Join(req Request) (Emission, error) {
	if req.Joined.Kind != s.Target {
		return Emission{}, qerr.New(qerr.CodeUnsupportedRelationship,
			"%s expects a %s vertex, got %s", s.Keyword, s.Target, req.Joined.Kind)
	}
	if s.Edge != entity.EdgeNone && req.EdgeAlias == "" {
		return Emission{}, fmt.Errorf("join %s: edge alias required", s.Keyword)
	}
	return s.Emit(req)
}

func joinType(outer bool) queryir.JoinType {
	if outer {
		return queryir.LeftOuterJoin
	}
	return queryir.InnerJoin
}

func tableName(k entity.Kind) string {
	return entity.MustTable(k).Name
}

// direct joins on new.<newCol> = joined.<joinedCol>.
func direct(newCol, joinedCol string) JoinFn {
	return func(req Request) (Emission, error) {
		return Emission{Joins: []queryir.Join{{
			Type:   joinType(req.Outer),
			Source: &queryir.Table{Name: tableName(req.New.Kind), Alias: req.New.Alias},
			On:     queryir.Eq(queryir.Col(req.New.Alias, newCol), queryir.Col(req.Joined.Alias, joinedCol)),
		}}}, nil
	}
}

// linkJoin joins through the link table: edge.<joinedEnd> = joined.id and
// new.id = edge.<newEnd>.
func linkJoin(joinedEnd, newEnd string) JoinFn {
	return func(req Request) (Emission, error) {
		jt := joinType(req.Outer)
		return Emission{
			Joins: []queryir.Join{
				{
					Type:   jt,
					Source: &queryir.Table{Name: entity.TableLink, Alias: req.EdgeAlias},
					On:     queryir.Eq(queryir.Col(req.EdgeAlias, joinedEnd), queryir.Col(req.Joined.Alias, "id")),
				},
				{
					Type:   jt,
					Source: &queryir.Table{Name: entity.TableNode, Alias: req.New.Alias},
					On:     queryir.Eq(queryir.Col(req.New.Alias, "id"), queryir.Col(req.EdgeAlias, newEnd)),
				},
			},
			Edge:      entity.EdgeLink,
			EdgeTable: entity.MustTable(entity.KindLink),
		}, nil
	}
}

// membershipJoin joins through the group membership table.
func membershipJoin(joinedCol, newCol string) JoinFn {
	return func(req Request) (Emission, error) {
		jt := joinType(req.Outer)
		edgeTable, _ := entity.EdgeTable(entity.EdgeMembership)
		return Emission{
			Joins: []queryir.Join{
				{
					Type:   jt,
					Source: &queryir.Table{Name: entity.TableGroupNodes, Alias: req.EdgeAlias},
					On:     queryir.Eq(queryir.Col(req.EdgeAlias, joinedCol), queryir.Col(req.Joined.Alias, "id")),
				},
				{
					Type:   jt,
					Source: &queryir.Table{Name: tableName(req.New.Kind), Alias: req.New.Alias},
					On:     queryir.Eq(queryir.Col(req.New.Alias, "id"), queryir.Col(req.EdgeAlias, newCol)),
				},
			},
			Edge:      entity.EdgeMembership,
			EdgeTable: edgeTable,
		}, nil
	}
}
