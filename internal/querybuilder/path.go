package querybuilder

import (
	"maps"
	"slices"
	"strings"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/project"
)

// vertex is one appended path element. It is never modified after append;
// filters and projections live in the state maps keyed by tag.
type vertex struct {
	Tag         string
	Kind        entity.Kind
	Classifiers []classify.Classifier
	Subclassing bool
	TypeFilter  filter.Tree

	// Keyword and JoiningValue are empty for the first vertex. Keyword is
	// always the current spelling.
	Keyword      string
	JoiningValue string
	Outer        bool

	// EdgeTag is empty when the relationship yields no edge row.
	EdgeTag string
	Edge    entity.EdgeKind
}

// tagRef locates a tag on the path.
type tagRef struct {
	index int
	edge  bool
}

// Order is one ORDER BY term. Cast is required when Field is a nested JSON
// path.
type Order struct {
	Tag   string
	Field string
	Desc  bool
	Cast  string
}

// state is everything a builder accumulates. Mutations are applied to a
// clone and swapped in on success.
type state struct {
	path        []vertex
	tags        map[string]tagRef
	filters     map[string]filter.Tree
	projections map[string][]project.Item
	order       []Order
	limit       *int
	offset      *int
	distinct    bool
}

func newState() *state {
	return &state{
		tags:        map[string]tagRef{},
		filters:     map[string]filter.Tree{},
		projections: map[string][]project.Item{},
	}
}

// clone copies the containers; trees and items are treated as immutable
// and shared.
func (s *state) clone() *state {
	c := *s
	c.path = slices.Clone(s.path)
	c.tags = maps.Clone(s.tags)
	c.filters = maps.Clone(s.filters)
	c.projections = maps.Clone(s.projections)
	c.order = slices.Clone(s.order)
	return &c
}

func (s *state) last() *vertex {
	if len(s.path) == 0 {
		return nil
	}
	return &s.path[len(s.path)-1]
}

// vertexByTag returns the vertex registered under tag, if tag names one.
func (s *state) vertexByTag(tag string) (*vertex, bool) {
	ref, ok := s.tags[tag]
	if !ok || ref.edge {
		return nil, false
	}
	return &s.path[ref.index], true
}

// target describes the table a tag's filters and projections address. For
// closure edges the full column set, path included, is used.
func (s *state) target(tag string) (entity.Table, entity.Kind, entity.EdgeKind, error) {
	ref, ok := s.tags[tag]
	if !ok {
		return entity.Table{}, 0, entity.EdgeNone, invalidTag(tag, "unknown tag %q; known tags: %v", tag, s.tagList())
	}
	v := s.path[ref.index]
	if !ref.edge {
		return entity.MustTable(v.Kind), v.Kind, entity.EdgeNone, nil
	}
	t, _ := entity.EdgeTable(v.Edge)
	return t, 0, v.Edge, nil
}

func (s *state) tagList() []string {
	return slices.Sorted(maps.Keys(s.tags))
}

// mentionsPath reports whether a filter, projection or ordering on the edge
// tag reads the closure path column. Projecting "*" or "**" reads every
// column, path included.
func (s *state) mentionsPath(edgeTag string) bool {
	if edgeTag == "" {
		return false
	}
	if filter.Mentions(s.filters[edgeTag], entity.ClosurePath) {
		return true
	}
	for _, it := range s.projections[edgeTag] {
		if it.Field == "*" || it.Field == "**" || isPathField(it.Field) {
			return true
		}
	}
	for _, o := range s.order {
		if o.Tag == edgeTag && isPathField(o.Field) {
			return true
		}
	}
	return false
}

func isPathField(f string) bool {
	return f == entity.ClosurePath || strings.HasPrefix(f, entity.ClosurePath+".")
}
