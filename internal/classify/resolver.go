package classify

import (
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/qerr"
)

// Descriptor describes a registered process type provider.
type Descriptor struct {
	ProcessType string
	Provider    string
}

// ProcessTypeCatalog resolves process type strings to their provider.
type ProcessTypeCatalog interface {
	Resolve(processType string) (Descriptor, bool)
}

// MapCatalog is a ProcessTypeCatalog backed by a map keyed by process type.
type MapCatalog map[string]Descriptor

// Resolve implements ProcessTypeCatalog.
func (m MapCatalog) Resolve(processType string) (Descriptor, bool) {
	d, ok := m[processType]
	return d, ok
}

// DefaultBuiltinNamespace is the reserved top-level namespace of built-in
// process types.
const DefaultBuiltinNamespace = "core"

// Resolver maps selectors to classifiers.
//
// Selectors are tried against an ordered list of rules; the first rule
// whose predicate accepts the selector resolves it. Collections are
// resolved element by element and must share one kind.
type Resolver struct {
	catalog ProcessTypeCatalog
	builtin string
	logger  *slog.Logger
	rules   []rule
}

type rule struct {
	name    string
	match   func(any) bool
	resolve func(*Resolver, any) (Classifier, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCatalog sets the process type catalog used to detect stale process
// types.
func WithCatalog(c ProcessTypeCatalog) Option {
	return func(r *Resolver) { r.catalog = c }
}

// WithBuiltinNamespace sets the namespace of built-in process types.
func WithBuiltinNamespace(ns string) Option {
	return func(r *Resolver) { r.builtin = ns }
}

// WithLogger sets the logger receiving stale process type warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver. Without a catalog, every non-built-in
// process type is reported as stale.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		catalog: MapCatalog{},
		builtin: DefaultBuiltinNamespace,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		rules:   defaultRules,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRules = []rule{
	{
		name:  "kind",
		match: func(s any) bool { _, ok := s.(entity.Kind); return ok },
		resolve: func(_ *Resolver, s any) (Classifier, error) {
			k := s.(entity.Kind)
			if !k.Valid() {
				return Classifier{}, invalidSelector("unknown entity kind %d", int(k))
			}
			return Classifier{Kind: k}, nil
		},
	},
	{
		name:  "class",
		match: func(s any) bool { _, ok := s.(Class); return ok },
		resolve: func(r *Resolver, s any) (Classifier, error) {
			return r.resolveClass(s.(Class))
		},
	},
	{
		name:  "classifier",
		match: func(s any) bool { _, ok := s.(Classifier); return ok },
		resolve: func(r *Resolver, s any) (Classifier, error) {
			return r.resolveClass(Class(s.(Classifier)))
		},
	},
	{
		name:  "type string",
		match: func(s any) bool { _, ok := s.(string); return ok },
		resolve: func(r *Resolver, s any) (Classifier, error) {
			c, err := ParseSelector(s.(string))
			if err != nil {
				return Classifier{}, err
			}
			return r.resolveClass(c)
		},
	},
}

func invalidSelector(format string, args ...any) *qerr.Error {
	return qerr.New(qerr.CodeInvalidSelector, format, args...)
}

// Resolve maps a selector to its kind and classifiers. A single selector
// yields one classifier; a collection yields one per element.
func (r *Resolver) Resolve(selector any) (entity.Kind, []Classifier, error) {
	var items []any
	switch s := selector.(type) {
	case []any:
		items = s
	case []string:
		for _, v := range s {
			items = append(items, v)
		}
	case []Class:
		for _, v := range s {
			items = append(items, v)
		}
	case []entity.Kind:
		for _, v := range s {
			items = append(items, v)
		}
	default:
		c, err := r.resolveOne(selector)
		if err != nil {
			return 0, nil, err
		}
		return c.Kind, []Classifier{c}, nil
	}

	if len(items) == 0 {
		return 0, nil, invalidSelector("empty selector collection")
	}
	out := make([]Classifier, 0, len(items))
	for _, item := range items {
		c, err := r.resolveOne(item)
		if err != nil {
			return 0, nil, err
		}
		if len(out) > 0 && out[0].Kind != c.Kind {
			return 0, nil, invalidSelector("selector mixes entity kinds %s and %s", out[0].Kind, c.Kind)
		}
		out = append(out, c)
	}
	return out[0].Kind, out, nil
}

func (r *Resolver) resolveOne(s any) (Classifier, error) {
	for _, rl := range r.rules {
		if rl.match(s) {
			return rl.resolve(r, s)
		}
	}
	return Classifier{}, invalidSelector("selector of type %T is neither a class nor a type string", s)
}

func (r *Resolver) resolveClass(c Class) (Classifier, error) {
	if !c.Kind.Valid() {
		return Classifier{}, invalidSelector("unknown entity kind %d", int(c.Kind))
	}
	switch c.Kind {
	case entity.KindNode:
		if c.TypeString != "" {
			if err := checkNodeType(c.TypeString); err != nil {
				return Classifier{}, err
			}
		}
	case entity.KindGroup:
	default:
		if c.TypeString != "" {
			return Classifier{}, invalidSelector("%s selectors take no type string, got %q", c.Kind, c.TypeString)
		}
	}
	if c.ProcessType != "" && c.Kind != entity.KindNode {
		return Classifier{}, invalidSelector("only node selectors take a process type")
	}
	return Classifier(c), nil
}

func checkNodeType(s string) error {
	if s == "" || s == "." || !strings.HasSuffix(s, ".") || strings.HasPrefix(s, ".") || strings.Contains(s, "..") {
		return invalidSelector("malformed node type string %q", s)
	}
	return nil
}

// ParseSelector parses a wire-format entity type string:
//
//	"node", "group", "computer", ...          a whole kind
//	"group.<type_string>"                     groups of one type
//	"<node type>." or "<node type>.|<process>" a node type
func ParseSelector(s string) (Class, error) {
	if k, ok := entity.ParseKind(s); ok {
		return Class{Kind: k}, nil
	}
	if rest, ok := strings.CutPrefix(s, "group."); ok {
		if rest == "" {
			return Class{}, invalidSelector("group selector %q has no type string", s)
		}
		return GroupClass(rest), nil
	}
	nodeType, processType, _ := strings.Cut(s, "|")
	if err := checkNodeType(nodeType); err != nil {
		return Class{}, err
	}
	return ProcessClass(nodeType, processType), nil
}

// TypeFilter returns the filter restricting a vertex to the given
// classifiers, or nil when they match every row of their kind.
func (r *Resolver) TypeFilter(classifiers []Classifier, subclassing bool) filter.Tree {
	var alts []any
	for _, c := range classifiers {
		t := r.typeFilter(c, subclassing)
		if t == nil {
			// One alternative matches everything, so the union does too.
			return nil
		}
		alts = append(alts, t)
	}
	switch len(alts) {
	case 0:
		return nil
	case 1:
		return alts[0].(filter.Tree)
	}
	return filter.Tree{"or": alts}
}

func (r *Resolver) typeFilter(c Classifier, subclassing bool) filter.Tree {
	switch c.Kind {
	case entity.KindNode:
		t := filter.Tree{}
		if c.TypeString != "" && c.TypeString != nodeRoot {
			if subclassing {
				t["node_type"] = filter.Tree{"like": nodeTypePrefix(c.TypeString)}
			} else {
				t["node_type"] = filter.Tree{"==": c.TypeString}
			}
		}
		if pt := r.processTypeFilter(c.ProcessType, subclassing); pt != nil {
			t["process_type"] = pt
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case entity.KindGroup:
		if c.TypeString == "" {
			return nil
		}
		return filter.Tree{"type_string": filter.Tree{"==": c.TypeString}}
	}
	return nil
}

// nodeTypePrefix turns "a.b.C." into the LIKE pattern "a.b.%": everything
// up to and including the dot before the leaf.
func nodeTypePrefix(typeString string) string {
	trimmed := strings.TrimSuffix(typeString, ".")
	i := strings.LastIndex(trimmed, ".")
	return EscapeLike(trimmed[:i+1]) + "%"
}

func (r *Resolver) processTypeFilter(pt string, subclassing bool) any {
	if pt == "" {
		return nil
	}
	if r.isBuiltin(pt) {
		return nil
	}
	if _, ok := r.catalog.Resolve(pt); !ok {
		r.logger.Warn("process type has no registered provider; matching by string only",
			"process_type", pt,
		)
	}
	if !subclassing {
		return filter.Tree{"==": pt}
	}
	return filter.Tree{"or": []any{
		filter.Tree{"==": pt},
		filter.Tree{"like": EscapeLike(pt) + ".%"},
	}}
}

func (r *Resolver) isBuiltin(pt string) bool {
	if r.builtin == "" {
		return false
	}
	group, name, found := strings.Cut(pt, ":")
	if !found {
		name = group
	}
	return strings.HasPrefix(group, r.builtin+".") || strings.HasPrefix(name, r.builtin+".")
}

// EscapeLike escapes LIKE wildcards so s matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
