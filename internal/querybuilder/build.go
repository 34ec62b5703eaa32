package querybuilder

import (
	"fmt"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/joins"
	"github.com/roach88/provgraph/internal/project"
	"github.com/roach88/provgraph/internal/queryir"
)

// plan is a built query together with the projections that decode its
// rows. An injected query has no projections.
type plan struct {
	query       *queryir.Select
	raw         queryir.Query
	projections []project.Projection
}

func vertexAlias(i int, k entity.Kind) string { return fmt.Sprintf("%s_%d", k, i+1) }
func edgeAlias(i int) string                  { return fmt.Sprintf("edge_%d", i+1) }

// build assembles the statement for st.
//
// Aliases depend only on path position and kind, so two builders with the
// same content render the same SQL.
func (b *Builder) build(st *state) (*plan, error) {
	if len(st.path) == 0 {
		return nil, invalidTag("", "the path is empty")
	}

	sel := &queryir.Select{Distinct: st.distinct}
	targets := make(map[string]project.Target, len(st.tags))
	var where []queryir.Predicate

	for i, v := range st.path {
		alias := vertexAlias(i, v.Kind)
		table := entity.MustTable(v.Kind)
		targets[v.Tag] = project.Target{Alias: alias, Table: table, Kind: v.Kind}

		typePred, err := compileTree(alias, table, v.TypeFilter)
		if err != nil {
			return nil, tagged(err, v.Tag)
		}
		userPred, err := compileTree(alias, table, st.filters[v.Tag])
		if err != nil {
			return nil, tagged(err, v.Tag)
		}

		if i == 0 {
			sel.From = &queryir.Table{Name: table.Name, Alias: alias}
			where = append(where, typePred, userPred)
			continue
		}

		ji := st.tags[v.JoiningValue].index
		joined := st.path[ji]
		req := joins.Request{
			Joined:     joins.Vertex{Alias: vertexAlias(ji, joined.Kind), Kind: joined.Kind},
			New:        joins.Vertex{Alias: alias, Kind: v.Kind},
			Outer:      v.Outer,
			ExpandPath: st.mentionsPath(v.EdgeTag),
			MaxDepth:   b.maxDepth,
			Seed: func(seedAlias string) (queryir.Predicate, error) {
				return seed(st, joined, seedAlias)
			},
		}
		if v.EdgeTag != "" {
			req.EdgeAlias = edgeAlias(i)
		}

		strategy, err := joins.Lookup(v.Kind, v.Keyword)
		if err != nil {
			return nil, tagged(err, v.Tag)
		}
		em, err := strategy.Join(req)
		if err != nil {
			return nil, tagged(err, v.Tag)
		}
		sel.With = append(sel.With, em.CTEs...)

		var edgePred queryir.Predicate
		if em.Edge != entity.EdgeNone {
			targets[v.EdgeTag] = project.Target{Alias: req.EdgeAlias, Table: em.EdgeTable, Edge: em.Edge}
			if edgePred, err = compileTree(req.EdgeAlias, em.EdgeTable, st.filters[v.EdgeTag]); err != nil {
				return nil, tagged(err, v.EdgeTag)
			}
		}

		if v.Outer {
			// The type restriction belongs to the join itself; in WHERE it
			// would drop the rows the outer join keeps.
			last := &em.Joins[len(em.Joins)-1]
			last.On = queryir.AndOf(last.On, typePred)
			where = append(where, userPred, edgePred)
		} else {
			where = append(where, typePred, userPred, edgePred)
		}
		sel.Joins = append(sel.Joins, em.Joins...)
	}
	sel.Where = queryir.AndOf(where...)

	projections, err := b.projections(st, targets)
	if err != nil {
		return nil, err
	}
	for _, p := range projections {
		for _, c := range p.Columns {
			label := fmt.Sprintf("col_%d", len(sel.Columns)+1)
			sel.Columns = append(sel.Columns, queryir.Output{Expr: c, Label: label})
		}
	}

	for _, o := range st.order {
		target, ok := targets[o.Tag]
		if !ok {
			return nil, invalidTag(o.Tag, "order by references unknown tag %q", o.Tag)
		}
		expr, err := project.OrderExpr(target, o.Field, o.Cast)
		if err != nil {
			return nil, tagged(err, o.Tag)
		}
		sel.OrderBy = append(sel.OrderBy, queryir.Order{Expr: expr, Desc: o.Desc})
	}

	if st.limit != nil {
		n := *st.limit
		sel.Limit = &n
	}
	if st.offset != nil {
		n := *st.offset
		sel.Offset = &n
	}
	return &plan{query: sel, raw: sel, projections: projections}, nil
}

// projections compiles every tag's items in path order, vertex before its
// edge. With no items anywhere the last vertex is projected whole.
func (b *Builder) projections(st *state, targets map[string]project.Target) ([]project.Projection, error) {
	var out []project.Projection
	for _, v := range st.path {
		for _, tag := range []string{v.Tag, v.EdgeTag} {
			items := st.projections[tag]
			if tag == "" || len(items) == 0 {
				continue
			}
			ps, err := project.Compile(tag, targets[tag], items)
			if err != nil {
				return nil, err
			}
			if err := project.CheckDuplicates(tag, ps); err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
	}
	if len(out) == 0 {
		last := st.last()
		ps, err := project.Compile(last.Tag, targets[last.Tag], []project.Item{{Field: "*"}})
		if err != nil {
			return nil, err
		}
		out = ps
	}
	return out, nil
}

// seed restricts a closure's base step to the joined vertex's rows.
func seed(st *state, joined vertex, alias string) (queryir.Predicate, error) {
	table := entity.MustTable(joined.Kind)
	typePred, err := compileTree(alias, table, joined.TypeFilter)
	if err != nil {
		return nil, err
	}
	userPred, err := compileTree(alias, table, st.filters[joined.Tag])
	if err != nil {
		return nil, err
	}
	return queryir.AndOf(typePred, userPred), nil
}

func compileTree(alias string, table entity.Table, tree filter.Tree) (queryir.Predicate, error) {
	if len(tree) == 0 {
		return nil, nil
	}
	return filter.Compile(filter.Target{Alias: alias, Table: table}, tree)
}
