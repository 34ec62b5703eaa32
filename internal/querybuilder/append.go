package querybuilder

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/joins"
	"github.com/roach88/provgraph/internal/qerr"
)

// maxAutoTag bounds the numeric suffix search for generated tags.
const maxAutoTag = 100

// directionKeyword is the pseudo-keyword of the Direction shorthand.
const directionKeyword = "direction"

// edgeTagDelimiter joins the two vertex tags of a default edge tag.
const edgeTagDelimiter = "--"

type relation struct {
	keyword string
	value   any
}

type appendConfig struct {
	tag         string
	filters     filter.Tree
	project     []any
	subclassing bool
	outer       bool
	edgeTag     string
	edgeFilters filter.Tree
	edgeProject []any
	relations   []relation
}

// AppendOption configures one Append call.
type AppendOption func(*appendConfig)

// Tag sets the vertex tag. Without it a tag is generated from the selector.
func Tag(tag string) AppendOption {
	return func(c *appendConfig) { c.tag = tag }
}

// Filters sets the vertex filters.
func Filters(tree filter.Tree) AppendOption {
	return func(c *appendConfig) { c.filters = tree }
}

// Project sets the vertex projection. Items are field names, project.Item
// values or {field: {cast, func}} maps.
func Project(items ...any) AppendOption {
	return func(c *appendConfig) { c.project = append(c.project, items...) }
}

// Subclassing selects prefix (true, the default) or exact type matching.
func Subclassing(on bool) AppendOption {
	return func(c *appendConfig) { c.subclassing = on }
}

// OuterJoin keeps rows of the joined vertex that have no match.
func OuterJoin() AppendOption {
	return func(c *appendConfig) { c.outer = true }
}

// EdgeTag names the edge row.
func EdgeTag(tag string) AppendOption {
	return func(c *appendConfig) { c.edgeTag = tag }
}

// EdgeFilters sets the edge filters.
func EdgeFilters(tree filter.Tree) AppendOption {
	return func(c *appendConfig) { c.edgeFilters = tree }
}

// EdgeProject sets the edge projection.
func EdgeProject(items ...any) AppendOption {
	return func(c *appendConfig) { c.edgeProject = append(c.edgeProject, items...) }
}

// Relationship joins the new vertex to value, a vertex tag or path index,
// through keyword. Deprecated spellings are accepted.
func Relationship(keyword string, value any) AppendOption {
	return func(c *appendConfig) { c.relations = append(c.relations, relation{keyword, value}) }
}

// Direction joins the new vertex to the vertex n positions back along the
// path: as its output for n > 0, as its input for n < 0.
func Direction(n int) AppendOption {
	return Relationship(directionKeyword, n)
}

// WithIncoming joins the new node as an output of the node tagged tag.
func WithIncoming(tag string) AppendOption { return Relationship("with_incoming", tag) }

// WithOutgoing joins the new node as an input of the node tagged tag.
func WithOutgoing(tag string) AppendOption { return Relationship("with_outgoing", tag) }

// WithAncestors joins the new node as a descendant of the node tagged tag.
func WithAncestors(tag string) AppendOption { return Relationship("with_ancestors", tag) }

// WithDescendants joins the new node as an ancestor of the node tagged tag.
func WithDescendants(tag string) AppendOption { return Relationship("with_descendants", tag) }

func WithGroup(tag string) AppendOption    { return Relationship("with_group", tag) }
func WithNode(tag string) AppendOption     { return Relationship("with_node", tag) }
func WithUser(tag string) AppendOption     { return Relationship("with_user", tag) }
func WithComputer(tag string) AppendOption { return Relationship("with_computer", tag) }
func WithComment(tag string) AppendOption  { return Relationship("with_comment", tag) }
func WithLog(tag string) AppendOption      { return Relationship("with_log", tag) }
func WithAuthInfo(tag string) AppendOption { return Relationship("with_authinfo", tag) }

// Append adds a vertex to the path.
//
// Append is all-or-nothing: when it returns an error the builder is left
// exactly as it was.
func (b *Builder) Append(selector any, opts ...AppendOption) error {
	cfg := appendConfig{subclassing: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	kind, classifiers, err := b.resolver.Resolve(selector)
	if err != nil {
		return err
	}

	st := b.state.clone()
	tag, err := st.newTag(cfg.tag, classifiers)
	if err != nil {
		return err
	}

	v := vertex{
		Tag:         tag,
		Kind:        kind,
		Classifiers: classifiers,
		Subclassing: cfg.subclassing,
		TypeFilter:  b.resolver.TypeFilter(classifiers, cfg.subclassing),
		Outer:       cfg.outer,
	}
	if len(st.path) == 0 {
		if len(cfg.relations) > 0 {
			return unsupported(tag, "the first vertex cannot be joined, got %q", cfg.relations[0].keyword)
		}
	} else if err := b.join(st, &v, cfg.relations); err != nil {
		return err
	}

	if v.Edge != entity.EdgeNone {
		v.EdgeTag = cfg.edgeTag
		if v.EdgeTag == "" {
			v.EdgeTag = v.JoiningValue + edgeTagDelimiter + tag
		}
		if _, taken := st.tags[v.EdgeTag]; taken || v.EdgeTag == tag {
			return invalidTag(v.EdgeTag, "edge tag %q is already in use", v.EdgeTag)
		}
	} else if cfg.edgeTag != "" || len(cfg.edgeFilters) > 0 || len(cfg.edgeProject) > 0 {
		return invalidTag(tag, "relationship %q yields no edge to tag, filter or project", v.Keyword)
	}

	index := len(st.path)
	st.path = append(st.path, v)
	st.tags[tag] = tagRef{index: index}
	if v.EdgeTag != "" {
		st.tags[v.EdgeTag] = tagRef{index: index, edge: true}
	}

	if len(cfg.filters) > 0 {
		if err := st.addFilter(tag, cfg.filters); err != nil {
			return err
		}
	}
	if len(cfg.project) > 0 {
		if err := st.addProjection(tag, cfg.project); err != nil {
			return err
		}
	}
	if len(cfg.edgeFilters) > 0 {
		if err := st.addFilter(v.EdgeTag, cfg.edgeFilters); err != nil {
			return err
		}
	}
	if len(cfg.edgeProject) > 0 {
		if err := st.addProjection(v.EdgeTag, cfg.edgeProject); err != nil {
			return err
		}
	}

	b.state = st
	return nil
}

// newTag validates an explicit tag or generates one from the classifier
// leaves: <leaf>_<n>, with distinct leaves of a collection joined by "-".
func (s *state) newTag(explicit string, classifiers []classify.Classifier) (string, error) {
	if explicit != "" {
		if _, taken := s.tags[explicit]; taken {
			return "", invalidTag(explicit, "tag %q is already in use", explicit)
		}
		return explicit, nil
	}
	var leaves []string
	for _, c := range classifiers {
		if l := c.Leaf(); !slices.Contains(leaves, l) {
			leaves = append(leaves, l)
		}
	}
	base := strings.Join(leaves, "-")
	for i := 1; i < maxAutoTag; i++ {
		tag := base + "_" + strconv.Itoa(i)
		if _, taken := s.tags[tag]; !taken {
			return tag, nil
		}
	}
	return "", invalidTag(base, "no free tag for %q after %d attempts", base, maxAutoTag-1)
}

// join resolves the relationship of v to a vertex already on the path.
func (b *Builder) join(st *state, v *vertex, rels []relation) error {
	var (
		keyword string
		joined  *vertex
	)
	switch len(rels) {
	case 0:
		prev := st.last()
		kw, err := joins.Default(v.Kind, prev.Kind)
		if err != nil {
			return tagged(err, v.Tag)
		}
		keyword, joined = kw, prev
	case 1:
		r := rels[0]
		if r.keyword == directionKeyword {
			n, ok := asInt(r.value)
			if !ok {
				return unsupported(v.Tag, "direction must be an integer, got %T", r.value)
			}
			steps := n
			if steps < 0 {
				steps = -steps
			}
			if n == 0 || steps > len(st.path) {
				return unsupported(v.Tag, "direction %d does not address a vertex on a path of %d", n, len(st.path))
			}
			joined = &st.path[len(st.path)-steps]
			keyword = "with_incoming"
			if n < 0 {
				keyword = "with_outgoing"
			}
			break
		}
		keyword = r.keyword
		if repl, ok := joins.Replacement(v.Kind, keyword); ok {
			b.logger.Warn("deprecated relationship keyword",
				"keyword", keyword,
				"replacement", repl,
				"tag", v.Tag,
			)
			keyword = repl
		}
		var err error
		if joined, err = st.joinTarget(v.Tag, r.value); err != nil {
			return err
		}
	default:
		kws := make([]string, len(rels))
		for i, r := range rels {
			kws[i] = r.keyword
		}
		return unsupported(v.Tag, "only one relationship keyword may be given, got %s", strings.Join(kws, ", "))
	}

	s, err := joins.Lookup(v.Kind, keyword)
	if err != nil {
		return tagged(err, v.Tag)
	}
	if joined.Kind != s.Target {
		return unsupported(v.Tag, "%s expects a %s vertex, but %q is a %s", keyword, s.Target, joined.Tag, joined.Kind)
	}
	v.Keyword = keyword
	v.JoiningValue = joined.Tag
	v.Edge = s.Edge
	return nil
}

// joinTarget resolves a joining value: a vertex tag or a path index.
func (s *state) joinTarget(tag string, value any) (*vertex, error) {
	if name, ok := value.(string); ok {
		if v, ok := s.vertexByTag(name); ok {
			return v, nil
		}
		if _, ok := s.tags[name]; ok {
			return nil, invalidTag(tag, "joining value %q is an edge tag; join to a vertex", name)
		}
		return nil, invalidTag(tag, "joining value %q is not a known tag; known tags: %v", name, s.tagList())
	}
	if i, ok := asInt(value); ok {
		if i < 0 || i >= len(s.path) {
			return nil, invalidTag(tag, "joining index %d is outside the path of %d", i, len(s.path))
		}
		return &s.path[i], nil
	}
	return nil, invalidTag(tag, "joining value must be a tag or an index, got %T", value)
}

func tagged(err error, tag string) error {
	if qe, ok := err.(*qerr.Error); ok {
		return qe.WithTag(tag)
	}
	return err
}

// asInt accepts the integer forms a decoded spec can carry.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}
