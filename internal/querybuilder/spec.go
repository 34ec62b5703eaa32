package querybuilder

import (
	"maps"
	"slices"
	"time"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/filter"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/qerr"
)

// Spec returns the JSON-compatible wire form of the builder:
//
//	{"path": [...], "filters": {tag: tree}, "project": {tag: [items]},
//	 "order_by": [{tag: [{field: {order, cast?}}]}],
//	 "limit": n|null, "offset": n|null, "distinct": bool}
//
// Every tag appears in filters and project, with an empty value when it
// has none. Type filters are not part of filters; they are derived again
// from entity_type and subclassing.
func (b *Builder) Spec() map[string]any {
	st := b.state

	path := make([]any, 0, len(st.path))
	for _, v := range st.path {
		path = append(path, map[string]any{
			"entity_type":     entityType(v.Classifiers),
			"tag":             v.Tag,
			"joining_keyword": nullable(v.Keyword),
			"joining_value":   nullable(v.JoiningValue),
			"outerjoin":       v.Outer,
			"edge_tag":        nullable(v.EdgeTag),
			"subclassing":     v.Subclassing,
		})
	}

	filters := map[string]any{}
	project := map[string]any{}
	for tag := range st.tags {
		tree := map[string]any{}
		if t := st.filters[tag]; len(t) > 0 {
			tree = wireValue(map[string]any(t)).(map[string]any)
		}
		filters[tag] = tree
		items := []any{}
		for _, it := range st.projections[tag] {
			items = append(items, it.Wire())
		}
		project[tag] = items
	}

	order := []any{}
	for _, o := range st.order {
		opts := map[string]any{"order": "asc"}
		if o.Desc {
			opts["order"] = "desc"
		}
		if o.Cast != "" {
			opts["cast"] = o.Cast
		}
		order = append(order, map[string]any{o.Tag: []any{map[string]any{o.Field: opts}}})
	}

	var limit, offset any
	if st.limit != nil {
		limit = *st.limit
	}
	if st.offset != nil {
		offset = *st.offset
	}

	return map[string]any{
		"path":     path,
		"filters":  filters,
		"project":  project,
		"order_by": order,
		"limit":    limit,
		"offset":   offset,
		"distinct": st.distinct,
	}
}

// wireValue copies a filter value, writing datetimes in ir.TimeLayout so
// that a decoded spec compares against stored timestamps the same way.
func wireValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return ir.FormatTime(val)
	case filter.Tree:
		return wireValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = wireValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = wireValue(item)
		}
		return out
	case []time.Time:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ir.FormatTime(item)
		}
		return out
	case []filter.Tree:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = wireValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = wireValue(item)
		}
		return out
	}
	return v
}

func entityType(cs []classify.Classifier) any {
	if len(cs) == 1 {
		return cs[0].Selector()
	}
	out := make([]any, len(cs))
	for i, c := range cs {
		out[i] = c.Selector()
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func invalidSpec(format string, args ...any) *Error {
	return qerr.New(qerr.CodeInvalidSelector, format, args...)
}

// FromSpec rebuilds a builder from the output of Spec, or from the same
// structure decoded from JSON or YAML.
func FromSpec(session Session, spec map[string]any, opts ...Option) (*Builder, error) {
	b := New(session, opts...)

	path, ok := spec["path"].([]any)
	if !ok {
		return nil, invalidSpec("spec path must be a list, got %T", spec["path"])
	}
	for i, raw := range path {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidSpec("path entry %d must be an object, got %T", i, raw)
		}
		var aopts []AppendOption
		if tag, ok := m["tag"].(string); ok && tag != "" {
			aopts = append(aopts, Tag(tag))
		}
		if kw, ok := m["joining_keyword"].(string); ok && kw != "" {
			aopts = append(aopts, Relationship(kw, m["joining_value"]))
		}
		if outer, _ := m["outerjoin"].(bool); outer {
			aopts = append(aopts, OuterJoin())
		}
		if et, ok := m["edge_tag"].(string); ok && et != "" {
			aopts = append(aopts, EdgeTag(et))
		}
		if sub, ok := m["subclassing"].(bool); ok {
			aopts = append(aopts, Subclassing(sub))
		}
		if err := b.Append(m["entity_type"], aopts...); err != nil {
			return nil, err
		}
	}

	if raw, ok := spec["filters"]; ok && raw != nil {
		filters, ok := raw.(map[string]any)
		if !ok {
			return nil, qerr.New(qerr.CodeInvalidFilter, "spec filters must be an object, got %T", raw)
		}
		for _, tag := range slices.Sorted(maps.Keys(filters)) {
			tree, err := asTree(filters[tag])
			if err != nil {
				return nil, tagged(err, tag)
			}
			if len(tree) == 0 {
				continue
			}
			if err := b.AddFilter(tag, tree); err != nil {
				return nil, err
			}
		}
	}

	if raw, ok := spec["project"]; ok && raw != nil {
		project, ok := raw.(map[string]any)
		if !ok {
			return nil, qerr.New(qerr.CodeInvalidProjection, "spec project must be an object, got %T", raw)
		}
		for _, tag := range slices.Sorted(maps.Keys(project)) {
			items, ok := project[tag].([]any)
			if !ok {
				return nil, qerr.New(qerr.CodeInvalidProjection, "projection must be a list, got %T", project[tag]).WithTag(tag)
			}
			if len(items) == 0 {
				continue
			}
			if err := b.AddProjection(tag, items...); err != nil {
				return nil, err
			}
		}
	}

	if raw, ok := spec["order_by"]; ok && raw != nil {
		orders, err := parseOrderBy(raw)
		if err != nil {
			return nil, err
		}
		if err := b.OrderBy(orders...); err != nil {
			return nil, err
		}
	}

	for _, key := range []string{"limit", "offset"} {
		raw := spec[key]
		if raw == nil {
			continue
		}
		n, ok := asInt(raw)
		if !ok {
			return nil, qerr.New(qerr.CodeInvalidPagination, "%s must be an integer, got %T", key, raw).WithPath(key)
		}
		set := b.Limit
		if key == "offset" {
			set = b.Offset
		}
		if err := set(n); err != nil {
			return nil, err
		}
	}

	if d, _ := spec["distinct"].(bool); d {
		b.Distinct(true)
	}
	return b, nil
}

func asTree(v any) (filter.Tree, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case filter.Tree:
		return t, nil
	case map[string]any:
		return filter.Tree(t), nil
	}
	return nil, qerr.New(qerr.CodeInvalidFilter, "filter must be an object, got %T", v)
}

// parseOrderBy reads [{tag: [{field: {order, cast}}]}]. A bare field name
// orders ascending.
func parseOrderBy(raw any) ([]Order, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, qerr.New(qerr.CodeInvalidProjection, "order_by must be a list, got %T", raw)
	}
	var out []Order
	for _, entry := range list {
		byTag, ok := entry.(map[string]any)
		if !ok {
			return nil, qerr.New(qerr.CodeInvalidProjection, "order_by entry must be an object, got %T", entry)
		}
		for _, tag := range slices.Sorted(maps.Keys(byTag)) {
			fields, ok := byTag[tag].([]any)
			if !ok {
				fields = []any{byTag[tag]}
			}
			for _, f := range fields {
				switch fv := f.(type) {
				case string:
					out = append(out, Order{Tag: tag, Field: fv})
				case map[string]any:
					for _, field := range slices.Sorted(maps.Keys(fv)) {
						o := Order{Tag: tag, Field: field}
						opts, _ := fv[field].(map[string]any)
						switch opts["order"] {
						case nil, "asc":
						case "desc":
							o.Desc = true
						default:
							return nil, qerr.New(qerr.CodeInvalidProjection, "order must be asc or desc, got %v", opts["order"]).WithTag(tag).WithPath(field)
						}
						o.Cast, _ = opts["cast"].(string)
						out = append(out, o)
					}
				default:
					return nil, qerr.New(qerr.CodeInvalidProjection, "order_by field must be a name or an object, got %T", f).WithTag(tag)
				}
			}
		}
	}
	return out, nil
}
