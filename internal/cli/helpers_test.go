package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/store"
)

const intsSpec = `{
  "path": [{"entity_type": "data.core.int.Int.", "tag": "n"}],
  "project": {"n": ["label"]},
  "order_by": [{"n": "id"}]
}`

const descendantsSpec = `
path:
  - {entity_type: data.core.int.Int., tag: a}
  - {entity_type: process.calculation.calcjob.CalcJobNode., tag: c, joining_keyword: with_incoming, joining_value: a}
filters:
  a: {label: a}
project:
  a: [label]
  c: [label]
`

const unknownTagSpec = `{
  "path": [{"entity_type": "data.core.int.Int.", "tag": "n"}],
  "project": {"missing": ["label"]}
}`

// writeSpec writes a spec file into dir and returns its path.
func writeSpec(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// newGraphDB creates a database holding three Int nodes a, b and c, and
// a calculation taking a and b as inputs.
func newGraphDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	user, err := st.InsertUser(ctx, entity.User{Email: "cli@provgraph.test"})
	require.NoError(t, err)

	ids := map[string]int64{}
	for _, label := range []string{"a", "b", "c"} {
		n, err := st.InsertNode(ctx, entity.Node{
			NodeType:   "data.core.int.Int.",
			Label:      label,
			Attributes: map[string]any{"value": len(ids) + 1},
			UserID:     user.ID,
		})
		require.NoError(t, err)
		ids[label] = n.ID
	}
	calc, err := st.InsertNode(ctx, entity.Node{
		NodeType: "process.calculation.calcjob.CalcJobNode.",
		Label:    "calc",
		UserID:   user.ID,
	})
	require.NoError(t, err)
	for _, in := range []string{"a", "b"} {
		_, err := st.InsertLink(ctx, entity.Link{
			InputID: ids[in], OutputID: calc.ID, Label: in, Type: entity.LinkInputCalc,
		})
		require.NoError(t, err)
	}
	return path
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(args ...string) (string, string, error) {
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
