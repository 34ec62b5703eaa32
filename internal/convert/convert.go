// Package convert promotes raw decoded rows to domain structs.
package convert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/provgraph/internal/entity"
)

// Hook converts one decoded cell. Values it has no mapping for are returned
// unchanged.
type Hook interface {
	ToDomain(v any) (any, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(any) (any, error)

// ToDomain implements Hook.
func (f HookFunc) ToDomain(v any) (any, error) { return f(v) }

// Passthrough returns every value unchanged.
var Passthrough Hook = HookFunc(func(v any) (any, error) { return v, nil })

// Constructor builds a domain value from a raw row.
type Constructor func(entity.Row) (any, error)

// Registry maps table names to constructors.
type Registry struct {
	byTable map[string]Constructor
}

// NewRegistry returns a registry with constructors for every entity table.
func NewRegistry() *Registry {
	return &Registry{byTable: map[string]Constructor{
		entity.TableNode:     func(r entity.Row) (any, error) { return toNode(r) },
		entity.TableLink:     func(r entity.Row) (any, error) { return toLink(r) },
		entity.TableGroup:    func(r entity.Row) (any, error) { return toGroup(r) },
		entity.TableUser:     func(r entity.Row) (any, error) { return toUser(r) },
		entity.TableComputer: func(r entity.Row) (any, error) { return toComputer(r) },
		entity.TableAuthInfo: func(r entity.Row) (any, error) { return toAuthInfo(r) },
		entity.TableComment:  func(r entity.Row) (any, error) { return toComment(r) },
		entity.TableLog:      func(r entity.Row) (any, error) { return toLog(r) },
	}}
}

// Register adds or replaces the constructor for a table.
func (r *Registry) Register(table string, c Constructor) {
	r.byTable[table] = c
}

// ToDomain implements Hook. Rows of registered tables become domain
// structs; UUID values become canonical strings; anything else, including
// rows of unregistered tables such as closure edges, is returned unchanged.
func (r *Registry) ToDomain(v any) (any, error) {
	switch val := v.(type) {
	case entity.Row:
		c, ok := r.byTable[val.Table]
		if !ok {
			return val, nil
		}
		out, err := c(val)
		if err != nil {
			return nil, fmt.Errorf("convert %s row: %w", val.Table, err)
		}
		return out, nil
	case uuid.UUID:
		return val.String(), nil
	case [16]byte:
		return uuid.UUID(val).String(), nil
	}
	return v, nil
}

// fields reads typed values out of a row, remembering the first error.
type fields struct {
	m   map[string]any
	err error
}

func (f *fields) fail(name string, v any, want string) {
	if f.err == nil {
		f.err = fmt.Errorf("field %s: got %T, want %s", name, v, want)
	}
}

func (f *fields) int(name string) int64 {
	switch v := f.m[name].(type) {
	case nil:
		return 0
	case int64:
		return v
	default:
		f.fail(name, v, "int64")
		return 0
	}
}

func (f *fields) optInt(name string) *int64 {
	if f.m[name] == nil {
		return nil
	}
	v := f.int(name)
	return &v
}

func (f *fields) str(name string) string {
	switch v := f.m[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		f.fail(name, v, "string")
		return ""
	}
}

func (f *fields) uuid(name string) string {
	s := f.str(name)
	if s == "" {
		return ""
	}
	u, err := uuid.Parse(s)
	if err != nil {
		if f.err == nil {
			f.err = fmt.Errorf("field %s: %w", name, err)
		}
		return s
	}
	return u.String()
}

func (f *fields) time(name string) time.Time {
	switch v := f.m[name].(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return v
	default:
		f.fail(name, v, "time.Time")
		return time.Time{}
	}
}

func (f *fields) obj(name string) map[string]any {
	switch v := f.m[name].(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	default:
		f.fail(name, v, "object")
		return nil
	}
}

func (f *fields) bool(name string) bool {
	switch v := f.m[name].(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		f.fail(name, v, "bool")
		return false
	}
}

func toNode(r entity.Row) (entity.Node, error) {
	f := &fields{m: r.Fields}
	n := entity.Node{
		ID:                 f.int("id"),
		UUID:               f.uuid("uuid"),
		NodeType:           f.str("node_type"),
		ProcessType:        f.str("process_type"),
		Label:              f.str("label"),
		Description:        f.str("description"),
		CTime:              f.time("ctime"),
		MTime:              f.time("mtime"),
		Attributes:         f.obj("attributes"),
		Extras:             f.obj("extras"),
		RepositoryMetadata: f.obj("repository_metadata"),
		UserID:             f.int("user_id"),
		ComputerID:         f.optInt("dbcomputer_id"),
	}
	return n, f.err
}

func toLink(r entity.Row) (entity.Link, error) {
	f := &fields{m: r.Fields}
	l := entity.Link{
		ID:       f.int("id"),
		InputID:  f.int("input_id"),
		OutputID: f.int("output_id"),
		Label:    f.str("label"),
		Type:     entity.LinkType(f.str("type")),
	}
	return l, f.err
}

func toGroup(r entity.Row) (entity.Group, error) {
	f := &fields{m: r.Fields}
	g := entity.Group{
		ID:          f.int("id"),
		UUID:        f.uuid("uuid"),
		Label:       f.str("label"),
		TypeString:  f.str("type_string"),
		Time:        f.time("time"),
		Description: f.str("description"),
		Extras:      f.obj("extras"),
		UserID:      f.int("user_id"),
	}
	return g, f.err
}

func toUser(r entity.Row) (entity.User, error) {
	f := &fields{m: r.Fields}
	u := entity.User{
		ID:          f.int("id"),
		Email:       f.str("email"),
		FirstName:   f.str("first_name"),
		LastName:    f.str("last_name"),
		Institution: f.str("institution"),
	}
	return u, f.err
}

func toComputer(r entity.Row) (entity.Computer, error) {
	f := &fields{m: r.Fields}
	c := entity.Computer{
		ID:            f.int("id"),
		UUID:          f.uuid("uuid"),
		Label:         f.str("label"),
		Hostname:      f.str("hostname"),
		Description:   f.str("description"),
		SchedulerType: f.str("scheduler_type"),
		TransportType: f.str("transport_type"),
		Metadata:      f.obj("metadata"),
	}
	return c, f.err
}

func toAuthInfo(r entity.Row) (entity.AuthInfo, error) {
	f := &fields{m: r.Fields}
	a := entity.AuthInfo{
		ID:         f.int("id"),
		UserID:     f.int("aiidauser_id"),
		ComputerID: f.int("dbcomputer_id"),
		Metadata:   f.obj("metadata"),
		AuthParams: f.obj("auth_params"),
		Enabled:    f.bool("enabled"),
	}
	return a, f.err
}

func toComment(r entity.Row) (entity.Comment, error) {
	f := &fields{m: r.Fields}
	c := entity.Comment{
		ID:      f.int("id"),
		UUID:    f.uuid("uuid"),
		NodeID:  f.int("dbnode_id"),
		CTime:   f.time("ctime"),
		MTime:   f.time("mtime"),
		UserID:  f.int("user_id"),
		Content: f.str("content"),
	}
	return c, f.err
}

func toLog(r entity.Row) (entity.Log, error) {
	f := &fields{m: r.Fields}
	l := entity.Log{
		ID:         f.int("id"),
		UUID:       f.uuid("uuid"),
		Time:       f.time("time"),
		LoggerName: f.str("loggername"),
		LevelName:  f.str("levelname"),
		NodeID:     f.int("dbnode_id"),
		Message:    f.str("message"),
		Metadata:   f.obj("metadata"),
	}
	return l, f.err
}
