package querybuilder

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/filter"
)

// viaJSON passes spec through encoding/json, as a spec file would.
func viaJSON(t *testing.T, spec map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(spec)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSpecRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.ints(10)
	g := buildDAG(f)
	ctx := context.Background()

	stamped := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := f.store.InsertNode(ctx, entity.Node{NodeType: intType, CTime: stamped, UserID: f.user.ID})
	require.NoError(t, err)
	wantRows := map[string]int{"datetime filter": 1}

	builders := map[string]func(*Builder){
		"filters and projections": func(b *Builder) {
			require.NoError(t, b.Append(classify.DataClass("core.int.Int"), Tag("n"),
				Filters(filter.Tree{"or": []any{
					filter.Tree{"attributes.value": filter.Tree{"<": 2}},
					filter.Tree{"attributes.value": filter.Tree{">": 7}, "label": filter.Tree{"~like": "x%"}},
				}}),
				Project("id", map[string]any{"attributes.value": map[string]any{"cast": "f"}})))
			require.NoError(t, b.OrderBy(Order{Tag: "n", Field: "id", Desc: true}))
			require.NoError(t, b.Limit(3))
			require.NoError(t, b.Offset(1))
		},
		"closure with edge": func(b *Builder) {
			g.descendants(t, b, EdgeProject("depth", "path"), Project("id"))
			require.NoError(t, b.OrderBy(Order{Tag: "root--sink", Field: "depth"}))
			b.Distinct(true)
		},
		"outer join and subclassing": func(b *Builder) {
			require.NoError(t, b.Append(classify.NodeClass(intType), Tag("n"), Subclassing(false)))
			require.NoError(t, b.Append(entity.KindComputer, WithNode("n"), OuterJoin(), Project("label")))
		},
		"datetime filter": func(b *Builder) {
			require.NoError(t, b.Append(entity.KindNode, Tag("n"), Project("id"),
				Filters(filter.Tree{"or": []any{
					filter.Tree{"ctime": filter.Tree{"==": stamped}},
					filter.Tree{"ctime": filter.Tree{"in": []any{stamped.Add(time.Hour)}}},
				}})))
		},
		"heterogeneous selector": func(b *Builder) {
			require.NoError(t, b.Append([]string{intType, calcType}, Tag("any"), Project("node_type")))
			require.NoError(t, b.Append(entity.KindNode, Tag("out"), WithIncoming("any"),
				EdgeFilters(filter.Tree{"type": filter.Tree{"in": []string{"create", "return"}}}), Project("id")))
		},
	}
	for name, setup := range builders {
		t.Run(name, func(t *testing.T) {
			b := f.builder()
			setup(b)

			spec := b.Spec()
			restored, err := FromSpec(f.session, viaJSON(t, spec), WithHook(b.hook))
			require.NoError(t, err)

			wantSQL, _, err := b.SQL()
			require.NoError(t, err)
			gotSQL, _, err := restored.SQL()
			require.NoError(t, err)
			assert.Equal(t, wantSQL, gotSQL)

			wantHash, err := b.Hash()
			require.NoError(t, err)
			gotHash, err := restored.Hash()
			require.NoError(t, err)
			assert.Equal(t, wantHash, gotHash)

			want, err := b.All(ctx)
			require.NoError(t, err)
			got, err := restored.All(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, want, got)
			if n, ok := wantRows[name]; ok {
				assert.Len(t, got, n)
			}
		})
	}
}

func TestSpecShape(t *testing.T) {
	f := newFixture(t)
	b := f.builder()
	require.NoError(t, b.Append(classify.DataClass("core.int.Int"), Tag("x"), Filters(filter.Tree{"id": 1})))
	require.NoError(t, b.Append(entity.KindNode, Tag("y"), WithAncestors("x")))

	assert.Equal(t, map[string]any{
		"path": []any{
			map[string]any{
				"entity_type": "data.core.int.Int.", "tag": "x",
				"joining_keyword": nil, "joining_value": nil,
				"outerjoin": false, "edge_tag": nil, "subclassing": true,
			},
			map[string]any{
				"entity_type": "node", "tag": "y",
				"joining_keyword": "with_ancestors", "joining_value": "x",
				"outerjoin": false, "edge_tag": "x--y", "subclassing": true,
			},
		},
		"filters": map[string]any{
			"x":    map[string]any{"id": 1},
			"y":    map[string]any{},
			"x--y": map[string]any{},
		},
		"project":  map[string]any{"x": []any{}, "y": []any{}, "x--y": []any{}},
		"order_by": []any{},
		"limit":    nil,
		"offset":   nil,
		"distinct": false,
	}, b.Spec())
}

func TestFromSpecErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		spec map[string]any
		want error
	}{
		{"missing path", map[string]any{}, ErrInvalidSelector},
		{"bad selector", map[string]any{"path": []any{map[string]any{"entity_type": 3}}}, ErrInvalidSelector},
		{"unknown filter tag", map[string]any{
			"path":    []any{map[string]any{"entity_type": "node", "tag": "n"}},
			"filters": map[string]any{"m": map[string]any{"id": 1}},
		}, ErrInvalidTag},
		{"bad order", map[string]any{
			"path":     []any{map[string]any{"entity_type": "node", "tag": "n"}},
			"order_by": []any{map[string]any{"n": []any{map[string]any{"id": map[string]any{"order": "up"}}}}},
		}, ErrInvalidProjection},
		{"bad limit", map[string]any{
			"path":  []any{map[string]any{"entity_type": "node", "tag": "n"}},
			"limit": "ten",
		}, ErrInvalidPagination},
		{"negative offset", map[string]any{
			"path":   []any{map[string]any{"entity_type": "node", "tag": "n"}},
			"offset": -2,
		}, ErrInvalidPagination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSpec(f.session, tt.spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFromSpecOrderByShorthand(t *testing.T) {
	f := newFixture(t)
	f.ints(3)
	b, err := FromSpec(f.session, map[string]any{
		"path":     []any{map[string]any{"entity_type": "data.core.int.Int.", "tag": "n"}},
		"project":  map[string]any{"n": []any{"label"}},
		"order_by": []any{map[string]any{"n": "label"}},
	}, WithHook(f.builder().hook))
	require.NoError(t, err)
	rows, err := b.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"n0"}, {"n1"}, {"n2"}}, rows)
}
