package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/entity"
)

func TestInsertNode_FillsDefaults(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	user := createTestUser(t, s)

	node, err := s.InsertNode(ctx, entity.Node{
		NodeType:   "data.core.dict.Dict.",
		Attributes: map[string]any{"b": 1, "a": []any{"x"}},
		UserID:     user.ID,
	})
	require.NoError(t, err)
	assert.NotZero(t, node.ID)
	assert.Len(t, node.UUID, 36)

	var attrs, ctime, mtime string
	require.NoError(t, s.db.QueryRow(
		"SELECT attributes, ctime, mtime FROM db_dbnode WHERE id = ?", node.ID,
	).Scan(&attrs, &ctime, &mtime))
	assert.Equal(t, `{"a":["x"],"b":1}`, attrs)
	assert.Equal(t, ctime, mtime)
}

func TestInsertNode_UsesConfiguredClockAndUUIDs(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixed }
	opts.NewUUID = func() string { return "00000000-0000-4000-8000-000000000001" }

	s, err := OpenWith(t.TempDir()+"/clock.db", opts)
	require.NoError(t, err)
	defer s.Close()

	user := createTestUser(t, s)
	node, err := s.InsertNode(ctx, entity.Node{NodeType: "data.core.int.Int.", UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-4000-8000-000000000001", node.UUID)

	var ctime string
	require.NoError(t, s.db.QueryRow("SELECT ctime FROM db_dbnode WHERE id = ?", node.ID).Scan(&ctime))
	assert.Equal(t, "2024-01-02T03:04:05.000000Z", ctime)
}

func TestInsertNode_RejectsBadUUID(t *testing.T) {
	s := createTestStore(t)
	user := createTestUser(t, s)
	_, err := s.InsertNode(context.Background(), entity.Node{UUID: "nope", NodeType: "data.", UserID: user.ID})
	require.Error(t, err)
}

func TestInsertLink_TypeConstraint(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	nodes := createTestNodes(t, s, createTestUser(t, s), 2)

	_, err := s.InsertLink(ctx, entity.Link{InputID: nodes[0].ID, OutputID: nodes[1].ID, Type: entity.LinkCreate})
	require.NoError(t, err)

	_, err = s.InsertLink(ctx, entity.Link{InputID: nodes[0].ID, OutputID: nodes[1].ID, Type: "bogus"})
	require.Error(t, err)
}

func TestInsertLink_ForeignKeys(t *testing.T) {
	s := createTestStore(t)
	_, err := s.InsertLink(context.Background(), entity.Link{InputID: 98, OutputID: 99, Type: entity.LinkCreate})
	require.Error(t, err)
}

func TestAddNodesToGroup_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	user := createTestUser(t, s)
	nodes := createTestNodes(t, s, user, 3)

	g, err := s.InsertGroup(ctx, entity.Group{Label: "g", UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, "core", g.TypeString)

	require.NoError(t, s.AddNodesToGroup(ctx, g.ID, nodes[0].ID, nodes[1].ID))
	require.NoError(t, s.AddNodesToGroup(ctx, g.ID, nodes[1].ID, nodes[2].ID))

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM db_dbgroup_dbnodes WHERE dbgroup_id = ?", g.ID).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestInsertAuxiliaryEntities(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	user := createTestUser(t, s)
	node := createTestNodes(t, s, user, 1)[0]

	comp, err := s.InsertComputer(ctx, entity.Computer{Label: "localhost", Hostname: "localhost", Metadata: map[string]any{"workdir": "/tmp"}})
	require.NoError(t, err)
	_, err = s.InsertAuthInfo(ctx, entity.AuthInfo{UserID: user.ID, ComputerID: comp.ID, Enabled: true})
	require.NoError(t, err)
	_, err = s.InsertComment(ctx, entity.Comment{NodeID: node.ID, UserID: user.ID, Content: "hello"})
	require.NoError(t, err)
	_, err = s.InsertLog(ctx, entity.Log{NodeID: node.ID, LevelName: "REPORT", Message: "started"})
	require.NoError(t, err)

	var meta string
	require.NoError(t, s.db.QueryRow("SELECT _metadata FROM db_dbcomputer WHERE id = ?", comp.ID).Scan(&meta))
	assert.Equal(t, `{"workdir":"/tmp"}`, meta)
}
