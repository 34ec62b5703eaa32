package querybuilder

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/convert"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/store"
)

// fixture is a temp-dir store with one user and an open session.
type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *store.Store
	session *store.Session
	user    entity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sess, err := s.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	u, err := s.InsertUser(ctx, entity.User{Email: "fixture@example.com"})
	require.NoError(t, err)
	return &fixture{t: t, ctx: ctx, store: s, session: sess, user: u}
}

func (f *fixture) node(nodeType string, attrs map[string]any) entity.Node {
	f.t.Helper()
	n, err := f.store.InsertNode(f.ctx, entity.Node{NodeType: nodeType, Attributes: attrs, UserID: f.user.ID})
	require.NoError(f.t, err)
	return n
}

func (f *fixture) labelled(nodeType, label string, attrs map[string]any) entity.Node {
	f.t.Helper()
	n, err := f.store.InsertNode(f.ctx, entity.Node{NodeType: nodeType, Label: label, Attributes: attrs, UserID: f.user.ID})
	require.NoError(f.t, err)
	return n
}

func (f *fixture) link(in, out entity.Node, typ entity.LinkType) {
	f.t.Helper()
	_, err := f.store.InsertLink(f.ctx, entity.Link{InputID: in.ID, OutputID: out.ID, Label: "link", Type: typ})
	require.NoError(f.t, err)
}

// derive links data -> calc -> data with input_calc and create links.
func (f *fixture) derive(in, calc, out entity.Node) {
	f.t.Helper()
	f.link(in, calc, entity.LinkInputCalc)
	f.link(calc, out, entity.LinkCreate)
}

// builder returns a builder on the fixture session that leaves rows raw.
func (f *fixture) builder(opts ...Option) *Builder {
	return New(f.session, append([]Option{WithHook(convert.Passthrough)}, opts...)...)
}

// ints creates n Int nodes whose value attribute runs from 0 to n-1 and
// whose labels are n0, n1, ...
func (f *fixture) ints(n int) []entity.Node {
	f.t.Helper()
	nodes := make([]entity.Node, n)
	for i := range nodes {
		nodes[i] = f.labelled(intType, "n"+strconv.Itoa(i), map[string]any{"value": i})
	}
	return nodes
}

const (
	intType  = "data.core.int.Int."
	calcType = "process.calculation.calcjob.CalcJobNode."
)

// column collects the i-th value of every row.
func column(t *testing.T, rows [][]any, i int) []any {
	t.Helper()
	out := make([]any, len(rows))
	for r, row := range rows {
		require.Greater(t, len(row), i)
		out[r] = row[i]
	}
	return out
}

func count(t *testing.T, b *Builder) int {
	t.Helper()
	n, err := b.Count(context.Background())
	require.NoError(t, err)
	return n
}
