package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/entity"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestUser inserts a user that owns fixture nodes.
func createTestUser(t *testing.T, s *Store) entity.User {
	t.Helper()
	u, err := s.InsertUser(context.Background(), entity.User{Email: "test@example.com"})
	require.NoError(t, err)
	return u
}

// createTestNodes inserts n Int nodes owned by user.
func createTestNodes(t *testing.T, s *Store, user entity.User, n int) []entity.Node {
	t.Helper()
	nodes := make([]entity.Node, n)
	for i := range nodes {
		node, err := s.InsertNode(context.Background(), entity.Node{
			NodeType:   "data.core.int.Int.",
			Attributes: map[string]any{"value": i},
			UserID:     user.ID,
		})
		require.NoError(t, err)
		nodes[i] = node
	}
	return nodes
}
