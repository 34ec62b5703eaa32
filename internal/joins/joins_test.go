package joins

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/queryir"
	"github.com/roach88/provgraph/internal/querysql"
)

// renderJoin emits a join from a node aliased "a" and renders the result.
func renderJoin(t *testing.T, s Strategy, req Request) string {
	t.Helper()
	em, err := s.Join(req)
	require.NoError(t, err)
	q := &queryir.Select{
		With:    em.CTEs,
		Columns: []queryir.Output{{Expr: queryir.Col(req.New.Alias, "id")}},
		From:    &queryir.Table{Name: entity.MustTable(req.Joined.Kind).Name, Alias: req.Joined.Alias},
		Joins:   em.Joins,
	}
	sql, _, err := querysql.NewSQLCompiler(querysql.DialectSQLite).Compile(q)
	require.NoError(t, err)
	return sql
}

func nodeReq() Request {
	return Request{
		Joined:    Vertex{Alias: "a", Kind: entity.KindNode},
		New:       Vertex{Alias: "b", Kind: entity.KindNode},
		EdgeAlias: "e",
	}
}

func TestLookup_LinkJoins(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_incoming")
	require.NoError(t, err)
	assert.Equal(t, entity.EdgeLink, s.Edge)
	sql := renderJoin(t, s, nodeReq())
	assert.Contains(t, sql, "JOIN db_dblink AS e ON e.input_id = a.id JOIN db_dbnode AS b ON b.id = e.output_id")

	s, err = Lookup(entity.KindNode, "with_outgoing")
	require.NoError(t, err)
	sql = renderJoin(t, s, nodeReq())
	assert.Contains(t, sql, "JOIN db_dblink AS e ON e.output_id = a.id JOIN db_dbnode AS b ON b.id = e.input_id")
}

func TestLookup_DeprecatedSpellings(t *testing.T) {
	for old, current := range map[string]string{
		"output_of":     "with_incoming",
		"input_of":      "with_outgoing",
		"descendant_of": "with_ancestors",
		"ancestor_of":   "with_descendants",
		"member_of":     "with_group",
	} {
		r, ok := Replacement(entity.KindNode, old)
		require.True(t, ok)
		assert.Equal(t, current, r)

		s, err := Lookup(entity.KindNode, old)
		require.NoError(t, err)
		assert.Equal(t, current, s.Keyword)
	}

	s, err := Lookup(entity.KindGroup, "group_of")
	require.NoError(t, err)
	assert.Equal(t, "with_node", s.Keyword)

	s, err = Lookup(entity.KindComputer, "computer_of")
	require.NoError(t, err)
	assert.Equal(t, "with_node", s.Keyword)

	_, ok := Replacement(entity.KindNode, "with_incoming")
	assert.False(t, ok)
}

func TestLookup_Unsupported(t *testing.T) {
	_, err := Lookup(entity.KindComment, "with_group")
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrUnsupportedRelationship))
	assert.Contains(t, err.Error(), "comment")
	assert.Contains(t, err.Error(), "with_node, with_user")

	_, err = Lookup(entity.KindLink, "with_node")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "may only start")
}

func TestKeywordTable(t *testing.T) {
	assert.Equal(t, []string{
		"with_ancestors", "with_comment", "with_computer", "with_descendants",
		"with_group", "with_incoming", "with_log", "with_outgoing", "with_user",
	}, Keywords(entity.KindNode))
	assert.Equal(t, []string{"with_node", "with_user"}, Keywords(entity.KindGroup))
	assert.Equal(t, []string{"with_authinfo", "with_node"}, Keywords(entity.KindComputer))
	assert.Equal(t, []string{"with_authinfo", "with_comment", "with_group", "with_node"}, Keywords(entity.KindUser))
	assert.Equal(t, []string{"with_computer", "with_user"}, Keywords(entity.KindAuthInfo))
	assert.Equal(t, []string{"with_node", "with_user"}, Keywords(entity.KindComment))
	assert.Equal(t, []string{"with_node"}, Keywords(entity.KindLog))
	assert.Empty(t, Keywords(entity.KindLink))

	assert.True(t, IsKeyword("with_node"))
	assert.True(t, IsKeyword("member_of"))
	assert.False(t, IsKeyword("tag"))
}

func TestJoin_TargetKindChecked(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_computer")
	require.NoError(t, err)
	req := nodeReq()
	_, err = s.Join(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, qerr.ErrUnsupportedRelationship))
}

func TestJoin_DirectJoins(t *testing.T) {
	tests := []struct {
		kind    entity.Kind
		keyword string
		joined  entity.Kind
		want    string
	}{
		{entity.KindNode, "with_computer", entity.KindComputer, "JOIN db_dbnode AS b ON b.dbcomputer_id = a.id"},
		{entity.KindNode, "with_user", entity.KindUser, "JOIN db_dbnode AS b ON b.user_id = a.id"},
		{entity.KindNode, "with_comment", entity.KindComment, "JOIN db_dbnode AS b ON b.id = a.dbnode_id"},
		{entity.KindNode, "with_log", entity.KindLog, "JOIN db_dbnode AS b ON b.id = a.dbnode_id"},
		{entity.KindComputer, "with_node", entity.KindNode, "JOIN db_dbcomputer AS b ON b.id = a.dbcomputer_id"},
		{entity.KindUser, "with_authinfo", entity.KindAuthInfo, "JOIN db_dbuser AS b ON b.id = a.aiidauser_id"},
		{entity.KindAuthInfo, "with_computer", entity.KindComputer, "JOIN db_dbauthinfo AS b ON b.dbcomputer_id = a.id"},
		{entity.KindLog, "with_node", entity.KindNode, "JOIN db_dblog AS b ON b.dbnode_id = a.id"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.keyword, func(t *testing.T) {
			s, err := Lookup(tt.kind, tt.keyword)
			require.NoError(t, err)
			assert.Equal(t, entity.EdgeNone, s.Edge)
			sql := renderJoin(t, s, Request{
				Joined: Vertex{Alias: "a", Kind: tt.joined},
				New:    Vertex{Alias: "b", Kind: tt.kind},
			})
			assert.Contains(t, sql, tt.want)
		})
	}
}

func TestJoin_Membership(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_group")
	require.NoError(t, err)
	sql := renderJoin(t, s, Request{
		Joined:    Vertex{Alias: "a", Kind: entity.KindGroup},
		New:       Vertex{Alias: "b", Kind: entity.KindNode},
		EdgeAlias: "e",
	})
	assert.Contains(t, sql, "JOIN db_dbgroup_dbnodes AS e ON e.dbgroup_id = a.id JOIN db_dbnode AS b ON b.id = e.dbnode_id")

	s, err = Lookup(entity.KindGroup, "with_node")
	require.NoError(t, err)
	sql = renderJoin(t, s, Request{
		Joined:    Vertex{Alias: "a", Kind: entity.KindNode},
		New:       Vertex{Alias: "b", Kind: entity.KindGroup},
		EdgeAlias: "e",
	})
	assert.Contains(t, sql, "JOIN db_dbgroup_dbnodes AS e ON e.dbnode_id = a.id JOIN db_dbgroup AS b ON b.id = e.dbgroup_id")
}

func TestJoin_OuterAppliesToEveryJoin(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_incoming")
	require.NoError(t, err)
	req := nodeReq()
	req.Outer = true
	em, err := s.Join(req)
	require.NoError(t, err)
	for _, j := range em.Joins {
		assert.Equal(t, queryir.LeftOuterJoin, j.Type)
	}
}

func TestJoin_ClosureDescendants(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_ancestors")
	require.NoError(t, err)
	req := nodeReq()
	req.MaxDepth = 50
	req.Seed = func(alias string) (queryir.Predicate, error) {
		return queryir.Eq(queryir.Col(alias, "label"), &queryir.Param{Value: "root"}), nil
	}

	em, err := s.Join(req)
	require.NoError(t, err)
	require.Len(t, em.CTEs, 1)
	cl := em.CTEs[0].(*queryir.Closure)
	assert.Equal(t, queryir.TowardDescendants, cl.Direction)
	assert.Equal(t, []string{"create", "input_calc"}, cl.LinkTypes)
	assert.Equal(t, "e_seed", cl.SeedAlias)
	assert.Equal(t, 50, cl.MaxDepth)
	assert.False(t, cl.ExpandPath)
	assert.Equal(t, "e_cte", em.EdgeTable.Name)
	assert.False(t, em.EdgeTable.HasField("path"))

	sql := renderJoin(t, s, req)
	assert.Contains(t, sql, "JOIN e_cte AS e ON e.ancestor_id = a.id JOIN db_dbnode AS b ON b.id = e.descendant_id")
	assert.Contains(t, sql, "e_seed.label = ?")
}

func TestJoin_ClosureAncestorsWithPath(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_descendants")
	require.NoError(t, err)
	req := nodeReq()
	req.ExpandPath = true

	em, err := s.Join(req)
	require.NoError(t, err)
	cl := em.CTEs[0].(*queryir.Closure)
	assert.Equal(t, queryir.TowardAncestors, cl.Direction)
	assert.Nil(t, cl.Seed)
	assert.True(t, em.EdgeTable.HasField("path"))

	sql := renderJoin(t, s, req)
	assert.Contains(t, sql, "JOIN e_cte AS e ON e.descendant_id = a.id JOIN db_dbnode AS b ON b.id = e.ancestor_id")
}

func TestJoin_SeedErrorPropagates(t *testing.T) {
	s, err := Lookup(entity.KindNode, "with_ancestors")
	require.NoError(t, err)
	req := nodeReq()
	req.Seed = func(string) (queryir.Predicate, error) {
		return nil, qerr.New(qerr.CodeInvalidFilter, "bad")
	}
	_, err = s.Join(req)
	assert.True(t, errors.Is(err, qerr.ErrInvalidFilter))
}

func TestDefault(t *testing.T) {
	kw, err := Default(entity.KindNode, entity.KindNode)
	require.NoError(t, err)
	assert.Equal(t, "with_incoming", kw)

	kw, err = Default(entity.KindComputer, entity.KindNode)
	require.NoError(t, err)
	assert.Equal(t, "with_node", kw)

	kw, err = Default(entity.KindNode, entity.KindGroup)
	require.NoError(t, err)
	assert.Equal(t, "with_group", kw)

	_, err = Default(entity.KindLog, entity.KindUser)
	assert.True(t, errors.Is(err, qerr.ErrUnsupportedRelationship))
}
