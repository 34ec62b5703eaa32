package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countUsers(t *testing.T, sess *Session) int {
	t.Helper()
	cur, err := sess.Stream(context.Background(), "SELECT COUNT(*) FROM db_dbuser", nil, 1)
	require.NoError(t, err)
	defer cur.Close()
	require.True(t, cur.Next())
	return int(cur.Row()[0].(int64))
}

func TestSession_NestedTransactions(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	sess, err := s.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Begin(ctx))
	_, err = sess.Exec(ctx, "INSERT INTO db_dbuser (email) VALUES ('outer@x')")
	require.NoError(t, err)

	require.NoError(t, sess.Begin(ctx))
	assert.Equal(t, 2, sess.Depth())
	_, err = sess.Exec(ctx, "INSERT INTO db_dbuser (email) VALUES ('inner@x')")
	require.NoError(t, err)
	assert.Equal(t, 2, countUsers(t, sess))

	// Inner rollback keeps the outer insert.
	require.NoError(t, sess.Rollback(ctx))
	assert.Equal(t, 1, sess.Depth())
	assert.Equal(t, 1, countUsers(t, sess))

	require.NoError(t, sess.Begin(ctx))
	_, err = sess.Exec(ctx, "INSERT INTO db_dbuser (email) VALUES ('kept@x')")
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Commit(ctx))
	assert.Equal(t, 0, sess.Depth())

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM db_dbuser").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestSession_OuterRollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	sess, err := s.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Begin(ctx))
	require.NoError(t, sess.Begin(ctx))
	_, err = sess.Exec(ctx, "INSERT INTO db_dbuser (email) VALUES ('a@x')")
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx))
	require.NoError(t, sess.Rollback(ctx))

	assert.Equal(t, 0, countUsers(t, sess))
}

func TestSession_CommitWithoutBegin(t *testing.T) {
	ctx := context.Background()
	sess, err := createTestStore(t).NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	assert.ErrorIs(t, sess.Commit(ctx), ErrNoTransaction)
	assert.ErrorIs(t, sess.Rollback(ctx), ErrNoTransaction)
}

func TestSession_StreamBatches(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	user := createTestUser(t, s)
	createTestNodes(t, s, user, 7)

	sess, err := s.NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	cur, err := sess.Stream(ctx, "SELECT id, node_type FROM db_dbnode ORDER BY id", nil, 3)
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, []string{"id", "node_type"}, cur.Columns())

	var ids []int64
	for cur.Next() {
		// The buffered batch never exceeds the requested size.
		assert.LessOrEqual(t, len(cur.batch), 3)
		row := cur.Row()
		ids = append(ids, row[0].(int64))
		assert.IsType(t, "", row[1])
	}
	require.NoError(t, cur.Err())
	assert.Len(t, ids, 7)
	assert.IsIncreasing(t, ids)
}

func TestSession_StreamQueryError(t *testing.T) {
	ctx := context.Background()
	sess, err := createTestStore(t).NewSession(ctx)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Stream(ctx, "SELECT * FROM no_such_table", nil, 10)
	require.Error(t, err)
}
