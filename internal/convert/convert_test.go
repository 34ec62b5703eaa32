package convert

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/entity"
)

func TestRegistry_PromotesNodeRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	row := entity.Row{
		Kind:  entity.KindNode,
		Table: entity.TableNode,
		Fields: map[string]any{
			"id":            int64(4),
			"uuid":          "8A0F6E7C-1D2B-4C3D-9E8F-0A1B2C3D4E5F",
			"node_type":     "data.core.int.Int.",
			"process_type":  nil,
			"ctime":         ts,
			"attributes":    map[string]any{"value": int64(1)},
			"user_id":       int64(1),
			"dbcomputer_id": int64(2),
		},
	}

	v, err := NewRegistry().ToDomain(row)
	require.NoError(t, err)
	n, ok := v.(entity.Node)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, int64(4), n.ID)
	assert.Equal(t, "8a0f6e7c-1d2b-4c3d-9e8f-0a1b2c3d4e5f", n.UUID)
	assert.Equal(t, ts, n.CTime)
	assert.Equal(t, map[string]any{"value": int64(1)}, n.Attributes)
	require.NotNil(t, n.ComputerID)
	assert.Equal(t, int64(2), *n.ComputerID)
	assert.Empty(t, n.ProcessType)
}

func TestRegistry_EveryEntityTable(t *testing.T) {
	r := NewRegistry()
	want := map[string]any{
		entity.TableNode:     entity.Node{},
		entity.TableLink:     entity.Link{},
		entity.TableGroup:    entity.Group{},
		entity.TableUser:     entity.User{},
		entity.TableComputer: entity.Computer{},
		entity.TableAuthInfo: entity.AuthInfo{},
		entity.TableComment:  entity.Comment{},
		entity.TableLog:      entity.Log{},
	}
	for table, zero := range want {
		v, err := r.ToDomain(entity.Row{Table: table, Fields: map[string]any{"id": int64(1)}})
		require.NoError(t, err, table)
		assert.IsType(t, zero, v, table)
	}
}

func TestRegistry_PassesThroughUnknownValues(t *testing.T) {
	r := NewRegistry()
	closure := entity.Row{Edge: entity.EdgeClosure, Table: "e_cte", Fields: map[string]any{"depth": int64(0)}}
	for _, v := range []any{int64(3), "x", nil, 1.5, closure} {
		got, err := r.ToDomain(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRegistry_UUIDsBecomeCanonicalStrings(t *testing.T) {
	u := uuid.MustParse("00000000-0000-4000-8000-00000000000a")
	v, err := NewRegistry().ToDomain(u)
	require.NoError(t, err)
	assert.Equal(t, "00000000-0000-4000-8000-00000000000a", v)
}

func TestRegistry_TypeMismatch(t *testing.T) {
	_, err := NewRegistry().ToDomain(entity.Row{Table: entity.TableUser, Fields: map[string]any{"email": int64(3)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("e_cte", func(row entity.Row) (any, error) { return row.Fields["depth"], nil })
	v, err := r.ToDomain(entity.Row{Table: "e_cte", Fields: map[string]any{"depth": int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestPassthrough(t *testing.T) {
	row := entity.Row{Table: entity.TableNode}
	v, err := Passthrough.ToDomain(row)
	require.NoError(t, err)
	assert.Equal(t, row, v)
}
