package harness

import (
	"context"
	"fmt"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/store"
)

const defaultUserRef = "default"

// refs maps fixture refs to the IDs the store assigned.
type refs struct {
	users     map[string]int64
	computers map[string]int64
	nodes     map[string]int64
	groups    map[string]int64
	firstUser string
}

func lookup(m map[string]int64, kind, ref string) (int64, error) {
	id, ok := m[ref]
	if !ok {
		return 0, fmt.Errorf("unknown %s ref %q", kind, ref)
	}
	return id, nil
}

func (r *refs) user(ref string) (int64, error) {
	if ref == "" {
		ref = r.firstUser
	}
	return lookup(r.users, "user", ref)
}

// loadFixture writes the fixture graph to st in dependency order.
func loadFixture(ctx context.Context, st *store.Store, f *Fixture) (*refs, error) {
	r := &refs{
		users:     make(map[string]int64),
		computers: make(map[string]int64),
		nodes:     make(map[string]int64),
		groups:    make(map[string]int64),
	}

	users := f.Users
	if len(users) == 0 {
		users = []UserFixture{{Ref: defaultUserRef, Email: "fixture@provgraph.test"}}
	}
	r.firstUser = users[0].Ref
	for _, u := range users {
		created, err := st.InsertUser(ctx, entity.User{
			Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Institution: u.Institution,
		})
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Ref, err)
		}
		r.users[u.Ref] = created.ID
	}

	for _, c := range f.Computers {
		created, err := st.InsertComputer(ctx, entity.Computer{
			Label: c.Label, Hostname: c.Hostname, Description: c.Description,
			SchedulerType: c.SchedulerType, TransportType: c.TransportType, Metadata: c.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("computer %q: %w", c.Ref, err)
		}
		r.computers[c.Ref] = created.ID
	}

	for _, a := range f.AuthInfos {
		userID, err := r.user(a.User)
		if err != nil {
			return nil, fmt.Errorf("authinfo: %w", err)
		}
		computerID, err := lookup(r.computers, "computer", a.Computer)
		if err != nil {
			return nil, fmt.Errorf("authinfo: %w", err)
		}
		if _, err := st.InsertAuthInfo(ctx, entity.AuthInfo{
			UserID: userID, ComputerID: computerID, Enabled: a.Enabled,
			Metadata: a.Metadata, AuthParams: a.AuthParams,
		}); err != nil {
			return nil, fmt.Errorf("authinfo: %w", err)
		}
	}

	for _, n := range f.Nodes {
		userID, err := r.user(n.User)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Ref, err)
		}
		node := entity.Node{
			NodeType: n.NodeType, ProcessType: n.ProcessType, Label: n.Label,
			Description: n.Description, Attributes: n.Attributes, Extras: n.Extras,
			UserID: userID,
		}
		if n.Computer != "" {
			id, err := lookup(r.computers, "computer", n.Computer)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", n.Ref, err)
			}
			node.ComputerID = &id
		}
		created, err := st.InsertNode(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Ref, err)
		}
		r.nodes[n.Ref] = created.ID
	}

	for i, l := range f.Links {
		in, err := lookup(r.nodes, "node", l.Input)
		if err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
		out, err := lookup(r.nodes, "node", l.Output)
		if err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
		if _, err := st.InsertLink(ctx, entity.Link{
			InputID: in, OutputID: out, Label: l.Label, Type: entity.LinkType(l.Type),
		}); err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
	}

	for _, g := range f.Groups {
		userID, err := r.user(g.User)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Ref, err)
		}
		created, err := st.InsertGroup(ctx, entity.Group{
			Label: g.Label, TypeString: g.TypeString, Description: g.Description,
			Extras: g.Extras, UserID: userID,
		})
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Ref, err)
		}
		r.groups[g.Ref] = created.ID

		members := make([]int64, 0, len(g.Nodes))
		for _, ref := range g.Nodes {
			id, err := lookup(r.nodes, "node", ref)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", g.Ref, err)
			}
			members = append(members, id)
		}
		if err := st.AddNodesToGroup(ctx, created.ID, members...); err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Ref, err)
		}
	}

	for i, c := range f.Comments {
		nodeID, err := lookup(r.nodes, "node", c.Node)
		if err != nil {
			return nil, fmt.Errorf("comments[%d]: %w", i, err)
		}
		userID, err := r.user(c.User)
		if err != nil {
			return nil, fmt.Errorf("comments[%d]: %w", i, err)
		}
		if _, err := st.InsertComment(ctx, entity.Comment{NodeID: nodeID, UserID: userID, Content: c.Content}); err != nil {
			return nil, fmt.Errorf("comments[%d]: %w", i, err)
		}
	}

	for i, l := range f.Logs {
		nodeID, err := lookup(r.nodes, "node", l.Node)
		if err != nil {
			return nil, fmt.Errorf("logs[%d]: %w", i, err)
		}
		if _, err := st.InsertLog(ctx, entity.Log{
			NodeID: nodeID, LoggerName: l.LoggerName, LevelName: l.LevelName,
			Message: l.Message, Metadata: l.Metadata,
		}); err != nil {
			return nil, fmt.Errorf("logs[%d]: %w", i, err)
		}
	}
	return r, nil
}
