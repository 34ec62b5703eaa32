package entity

// EdgeKind identifies the row type joining two consecutive vertices.
type EdgeKind int

const (
	EdgeNone EdgeKind = iota
	EdgeLink
	EdgeMembership
	EdgeClosure
)

func (e EdgeKind) String() string {
	switch e {
	case EdgeLink:
		return "link"
	case EdgeMembership:
		return "membership"
	case EdgeClosure:
		return "closure"
	default:
		return "none"
	}
}

// Closure edge columns. The closure is not a stored table; its columns are
// produced by the recursive CTE the joins package emits.
const (
	ClosureAncestor   = "ancestor_id"
	ClosureDescendant = "descendant_id"
	ClosureDepth      = "depth"
	ClosurePath       = "path"
)

var (
	membershipTable = Table{Name: TableGroupNodes, Columns: []Column{
		{"id", "id", TypeInt},
		{"dbnode_id", "dbnode_id", TypeInt},
		{"dbgroup_id", "dbgroup_id", TypeInt},
	}}
	closureTable = Table{Name: "", Columns: []Column{
		{ClosureAncestor, ClosureAncestor, TypeInt},
		{ClosureDescendant, ClosureDescendant, TypeInt},
		{ClosureDepth, ClosureDepth, TypeInt},
		{ClosurePath, ClosurePath, TypeJSON},
	}}
)

// EdgeTable returns the table describing the columns of an edge row. The
// closure table has no name; callers substitute the CTE name.
func EdgeTable(e EdgeKind) (Table, bool) {
	switch e {
	case EdgeLink:
		return tables[KindLink], true
	case EdgeMembership:
		return membershipTable, true
	case EdgeClosure:
		return closureTable, true
	default:
		return Table{}, false
	}
}

// LinkType enumerates the provenance link types.
type LinkType string

const (
	LinkCreate    LinkType = "create"
	LinkReturn    LinkType = "return"
	LinkInputCalc LinkType = "input_calc"
	LinkInputWork LinkType = "input_work"
	LinkCallCalc  LinkType = "call_calc"
	LinkCallWork  LinkType = "call_work"
)

// AncestryLinkTypes are the link types that establish data provenance.
// Call and return links express workflow delegation and are excluded.
func AncestryLinkTypes() []LinkType {
	return []LinkType{LinkCreate, LinkInputCalc}
}
