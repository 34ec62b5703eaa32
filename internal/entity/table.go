package entity

import "slices"

// ColumnType is the storage type of a column, used to pick decoders and to
// decide whether a field path may address into the column.
type ColumnType int

const (
	TypeInt ColumnType = iota + 1
	TypeText
	TypeJSON
	TypeDatetime
	TypeBool
)

// Column maps an externally visible field name to its SQL column.
type Column struct {
	Field string // external name, used in filters and projections
	Name  string // SQL column name
	Type  ColumnType
}

// Table describes the relational table backing an entity or edge.
type Table struct {
	Name    string
	Columns []Column
}

// Field looks up a column by its external name.
func (t Table) Field(field string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// FieldNames returns external names in declaration order.
func (t Table) FieldNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Field
	}
	return names
}

// HasField reports whether field is a column of t.
func (t Table) HasField(field string) bool {
	return slices.Contains(t.FieldNames(), field)
}

const (
	TableNode       = "db_dbnode"
	TableLink       = "db_dblink"
	TableGroup      = "db_dbgroup"
	TableGroupNodes = "db_dbgroup_dbnodes"
	TableUser       = "db_dbuser"
	TableComputer   = "db_dbcomputer"
	TableAuthInfo   = "db_dbauthinfo"
	TableComment    = "db_dbcomment"
	TableLog        = "db_dblog"
)

var tables = map[Kind]Table{
	KindNode: {Name: TableNode, Columns: []Column{
		{"id", "id", TypeInt},
		{"uuid", "uuid", TypeText},
		{"node_type", "node_type", TypeText},
		{"process_type", "process_type", TypeText},
		{"label", "label", TypeText},
		{"description", "description", TypeText},
		{"ctime", "ctime", TypeDatetime},
		{"mtime", "mtime", TypeDatetime},
		{"attributes", "attributes", TypeJSON},
		{"extras", "extras", TypeJSON},
		{"repository_metadata", "repository_metadata", TypeJSON},
		{"user_id", "user_id", TypeInt},
		{"dbcomputer_id", "dbcomputer_id", TypeInt},
	}},
	KindLink: {Name: TableLink, Columns: []Column{
		{"id", "id", TypeInt},
		{"input_id", "input_id", TypeInt},
		{"output_id", "output_id", TypeInt},
		{"label", "label", TypeText},
		{"type", "type", TypeText},
	}},
	KindGroup: {Name: TableGroup, Columns: []Column{
		{"id", "id", TypeInt},
		{"uuid", "uuid", TypeText},
		{"label", "label", TypeText},
		{"type_string", "type_string", TypeText},
		{"time", "time", TypeDatetime},
		{"description", "description", TypeText},
		{"extras", "extras", TypeJSON},
		{"user_id", "user_id", TypeInt},
	}},
	KindUser: {Name: TableUser, Columns: []Column{
		{"id", "id", TypeInt},
		{"email", "email", TypeText},
		{"first_name", "first_name", TypeText},
		{"last_name", "last_name", TypeText},
		{"institution", "institution", TypeText},
	}},
	KindComputer: {Name: TableComputer, Columns: []Column{
		{"id", "id", TypeInt},
		{"uuid", "uuid", TypeText},
		{"label", "label", TypeText},
		{"hostname", "hostname", TypeText},
		{"description", "description", TypeText},
		{"scheduler_type", "scheduler_type", TypeText},
		{"transport_type", "transport_type", TypeText},
		{"metadata", "_metadata", TypeJSON},
	}},
	KindAuthInfo: {Name: TableAuthInfo, Columns: []Column{
		{"id", "id", TypeInt},
		{"aiidauser_id", "aiidauser_id", TypeInt},
		{"dbcomputer_id", "dbcomputer_id", TypeInt},
		{"metadata", "_metadata", TypeJSON},
		{"auth_params", "auth_params", TypeJSON},
		{"enabled", "enabled", TypeBool},
	}},
	KindComment: {Name: TableComment, Columns: []Column{
		{"id", "id", TypeInt},
		{"uuid", "uuid", TypeText},
		{"dbnode_id", "dbnode_id", TypeInt},
		{"ctime", "ctime", TypeDatetime},
		{"mtime", "mtime", TypeDatetime},
		{"user_id", "user_id", TypeInt},
		{"content", "content", TypeText},
	}},
	KindLog: {Name: TableLog, Columns: []Column{
		{"id", "id", TypeInt},
		{"uuid", "uuid", TypeText},
		{"time", "time", TypeDatetime},
		{"loggername", "loggername", TypeText},
		{"levelname", "levelname", TypeText},
		{"dbnode_id", "dbnode_id", TypeInt},
		{"message", "message", TypeText},
		{"metadata", "_metadata", TypeJSON},
	}},
}

// TableFor returns the table backing kind.
func TableFor(k Kind) (Table, bool) {
	t, ok := tables[k]
	return t, ok
}

// MustTable is TableFor for kinds known to be valid.
func MustTable(k Kind) Table {
	t, ok := tables[k]
	if !ok {
		panic("entity: no table for " + k.String())
	}
	return t
}
