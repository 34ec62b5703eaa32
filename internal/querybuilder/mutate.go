package querybuilder

import (
	"slices"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/project"
	"github.com/roach88/provgraph/internal/qerr"
)

// validationAlias is the alias trees and items are compiled against when
// they are only being checked.
const validationAlias = "t"

func (s *state) addFilter(tag string, tree filter.Tree) error {
	table, _, _, err := s.target(tag)
	if err != nil {
		return err
	}
	if _, err := filter.Compile(filter.Target{Alias: validationAlias, Table: table}, tree); err != nil {
		return tagged(err, tag)
	}
	if old := s.filters[tag]; len(old) > 0 {
		tree = filter.Tree{"and": []any{old, tree}}
	}
	s.filters[tag] = tree
	return nil
}

func (s *state) addProjection(tag string, raw []any) error {
	table, kind, edge, err := s.target(tag)
	if err != nil {
		return err
	}
	items, err := project.ParseItems(raw)
	if err != nil {
		return tagged(err, tag)
	}
	all := slices.Clone(s.projections[tag])
	for _, it := range items {
		n, err := it.Normalize()
		if err != nil {
			return tagged(err, tag)
		}
		all = append(all, n)
	}
	target := project.Target{Alias: validationAlias, Table: table, Kind: kind, Edge: edge}
	ps, err := project.Compile(tag, target, all)
	if err != nil {
		return err
	}
	if err := project.CheckDuplicates(tag, ps); err != nil {
		return err
	}
	s.projections[tag] = all
	return nil
}

// AddFilter adds tree to the filters of tag. Filters already present are
// kept and combined with tree by "and".
func (b *Builder) AddFilter(tag string, tree filter.Tree) error {
	st := b.state.clone()
	if err := st.addFilter(tag, tree); err != nil {
		return err
	}
	b.state = st
	return nil
}

// AddProjection appends items to the projection of tag.
func (b *Builder) AddProjection(tag string, items ...any) error {
	st := b.state.clone()
	if err := st.addProjection(tag, items); err != nil {
		return err
	}
	b.state = st
	return nil
}

// OrderBy appends ordering terms. Ordering by a nested JSON path needs a
// cast.
func (b *Builder) OrderBy(orders ...Order) error {
	st := b.state.clone()
	for _, o := range orders {
		table, kind, edge, err := st.target(o.Tag)
		if err != nil {
			return err
		}
		target := project.Target{Alias: validationAlias, Table: table, Kind: kind, Edge: edge}
		if _, err := project.OrderExpr(target, o.Field, o.Cast); err != nil {
			return tagged(err, o.Tag)
		}
		o.Cast, _ = project.CanonicalCast(o.Cast)
		st.order = append(st.order, o)
	}
	b.state = st
	return nil
}

// Limit caps the number of rows.
func (b *Builder) Limit(n int) error {
	if n < 0 {
		return qerr.New(qerr.CodeInvalidPagination, "limit must be non-negative, got %d", n).WithPath("limit")
	}
	b.state = b.state.clone()
	b.state.limit = &n
	return nil
}

// Offset skips the first n rows.
func (b *Builder) Offset(n int) error {
	if n < 0 {
		return qerr.New(qerr.CodeInvalidPagination, "offset must be non-negative, got %d", n).WithPath("offset")
	}
	b.state = b.state.clone()
	b.state.offset = &n
	return nil
}

// Distinct removes duplicate result rows.
func (b *Builder) Distinct(on bool) {
	b.state = b.state.clone()
	b.state.distinct = on
}

// chain appends a generic node joined to the last vertex.
func (b *Builder) chain(keyword string, opts []AppendOption) error {
	last := b.state.last()
	if last == nil {
		return invalidTag("", "cannot chain %s on an empty path", keyword)
	}
	opts = append([]AppendOption{Relationship(keyword, last.Tag)}, opts...)
	return b.Append(entity.KindNode, opts...)
}

// Inputs appends the nodes that are direct inputs of the last vertex.
func (b *Builder) Inputs(opts ...AppendOption) error { return b.chain("with_outgoing", opts) }

// Outputs appends the nodes that are direct outputs of the last vertex.
func (b *Builder) Outputs(opts ...AppendOption) error { return b.chain("with_incoming", opts) }

// Children appends every descendant of the last vertex.
func (b *Builder) Children(opts ...AppendOption) error { return b.chain("with_ancestors", opts) }

// Parents appends every ancestor of the last vertex.
func (b *Builder) Parents(opts ...AppendOption) error { return b.chain("with_descendants", opts) }
