package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasTable(t *testing.T) {
	for _, k := range Kinds() {
		tbl, ok := TableFor(k)
		require.True(t, ok, "kind %s", k)
		assert.NotEmpty(t, tbl.Name)
		assert.True(t, tbl.HasField("id"), "kind %s must expose id", k)
	}
}

func TestReservedWordRename(t *testing.T) {
	for _, k := range []Kind{KindComputer, KindAuthInfo, KindLog} {
		col, ok := MustTable(k).Field("metadata")
		require.True(t, ok)
		assert.Equal(t, "_metadata", col.Name)
		assert.Equal(t, TypeJSON, col.Type)

		_, ok = MustTable(k).Field("_metadata")
		assert.False(t, ok, "internal name must not be addressable")
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		parsed, ok := ParseKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, parsed)
	}
	_, ok := ParseKind("widget")
	assert.False(t, ok)
}

func TestKindTitle(t *testing.T) {
	assert.Equal(t, "Node", KindNode.Title())
	assert.Equal(t, "AuthInfo", KindAuthInfo.Title())
	assert.Equal(t, "Computer", KindComputer.Title())
}

func TestEdgeTables(t *testing.T) {
	link, ok := EdgeTable(EdgeLink)
	require.True(t, ok)
	assert.Equal(t, TableLink, link.Name)

	closure, ok := EdgeTable(EdgeClosure)
	require.True(t, ok)
	assert.Equal(t, []string{ClosureAncestor, ClosureDescendant, ClosureDepth, ClosurePath}, closure.FieldNames())

	_, ok = EdgeTable(EdgeNone)
	assert.False(t, ok)
}
