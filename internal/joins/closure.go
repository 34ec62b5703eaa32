package joins

import (
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/queryir"
)

// closureJoin joins through a recursive closure over provenance links.
//
// with_ancestors: the new vertex is a descendant of the joined one, so the
// closure walks toward descendants, seeded from links whose input satisfies
// the joined vertex's filters.
//
// with_descendants: the new vertex is an ancestor of the joined one, so the
// closure walks toward ancestors, seeded from links whose output satisfies
// the joined vertex's filters.
//
// The closure is recomputed by every query; nothing is materialized.
func closureJoin(dir queryir.ClosureDirection) JoinFn {
	return func(req Request) (Emission, error) {
		name := req.EdgeAlias + "_cte"
		seedAlias := req.EdgeAlias + "_seed"

		var seed queryir.Predicate
		if req.Seed != nil {
			var err error
			if seed, err = req.Seed(seedAlias); err != nil {
				return Emission{}, err
			}
		}

		linkTypes := make([]string, 0, 2)
		for _, lt := range entity.AncestryLinkTypes() {
			linkTypes = append(linkTypes, string(lt))
		}

		cte := &queryir.Closure{
			Name:       name,
			Direction:  dir,
			LinkTable:  entity.TableLink,
			NodeTable:  entity.TableNode,
			LinkTypes:  linkTypes,
			SeedAlias:  seedAlias,
			Seed:       seed,
			ExpandPath: req.ExpandPath,
			MaxDepth:   req.MaxDepth,
		}

		joinedEnd, newEnd := entity.ClosureAncestor, entity.ClosureDescendant
		if dir == queryir.TowardAncestors {
			joinedEnd, newEnd = entity.ClosureDescendant, entity.ClosureAncestor
		}

		edgeTable, _ := entity.EdgeTable(entity.EdgeClosure)
		edgeTable.Name = name
		if !req.ExpandPath {
			edgeTable.Columns = edgeTable.Columns[:3]
		}

		jt := joinType(req.Outer)
		return Emission{
			CTEs: []queryir.CTE{cte},
			Joins: []queryir.Join{
				{
					Type:   jt,
					Source: &queryir.CTERef{Name: name, Alias: req.EdgeAlias},
					On:     queryir.Eq(queryir.Col(req.EdgeAlias, joinedEnd), queryir.Col(req.Joined.Alias, "id")),
				},
				{
					Type:   jt,
					Source: &queryir.Table{Name: entity.TableNode, Alias: req.New.Alias},
					On:     queryir.Eq(queryir.Col(req.New.Alias, "id"), queryir.Col(req.EdgeAlias, newEnd)),
				},
			},
			Edge:      entity.EdgeClosure,
			EdgeTable: edgeTable,
		}, nil
	}
}
