// Package classify resolves user-facing entity selectors to an entity kind
// and the type filter that restricts a query vertex to matching rows.
package classify

import (
	"strings"

	"github.com/roach88/provgraph/internal/entity"
)

// Class is a concrete type reference: an entity kind plus, for nodes and
// groups, the type string stored in the row.
type Class struct {
	Kind entity.Kind

	// TypeString is the node type ("data.core.int.Int.") or group type
	// string ("core"). Empty means every row of the kind.
	TypeString string

	// ProcessType optionally restricts process nodes, e.g.
	// "plugins.calculations:arithmetic.add".
	ProcessType string
}

// NodeClass references a node type string.
func NodeClass(typeString string) Class {
	return Class{Kind: entity.KindNode, TypeString: typeString}
}

// DataClass references a data node by its dotted name without the "data."
// prefix and trailing dot, e.g. DataClass("core.int.Int").
func DataClass(name string) Class {
	return NodeClass("data." + strings.TrimSuffix(name, ".") + ".")
}

// ProcessClass references a process node type narrowed by process type.
func ProcessClass(nodeType, processType string) Class {
	return Class{Kind: entity.KindNode, TypeString: nodeType, ProcessType: processType}
}

// GroupClass references a group type string.
func GroupClass(typeString string) Class {
	return Class{Kind: entity.KindGroup, TypeString: typeString}
}

// Selector returns the wire-format entity type string for c.
func (c Class) Selector() string {
	switch c.Kind {
	case entity.KindNode:
		s := c.TypeString
		if s == "" && c.ProcessType == "" {
			return "node"
		}
		if s == "" {
			s = nodeRoot
		}
		if c.ProcessType != "" {
			s += "|" + c.ProcessType
		}
		return s
	case entity.KindGroup:
		if c.TypeString == "" {
			return "group"
		}
		return "group." + c.TypeString
	}
	return c.Kind.String()
}

// nodeRoot is the type string of the generic node; it matches every node.
const nodeRoot = "node.Node."

// Classifier is the resolved form of one selector.
type Classifier struct {
	Kind        entity.Kind
	TypeString  string
	ProcessType string
}

// Leaf is the base name for generated tags: the last component of the type
// string, or the kind title when there is no type string.
func (c Classifier) Leaf() string {
	if c.Kind != entity.KindNode || c.TypeString == "" || c.TypeString == nodeRoot {
		if c.Kind == entity.KindNode && c.ProcessType != "" {
			return processLeaf(c.ProcessType)
		}
		return c.Kind.Title()
	}
	parts := strings.Split(strings.TrimSuffix(c.TypeString, "."), ".")
	return parts[len(parts)-1]
}

func processLeaf(pt string) string {
	if i := strings.LastIndexAny(pt, ".:"); i >= 0 && i < len(pt)-1 {
		return pt[i+1:]
	}
	return pt
}

// Selector returns the wire-format entity type string for c.
func (c Classifier) Selector() string {
	return Class(c).Selector()
}
