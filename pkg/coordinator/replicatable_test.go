package coordinator

import (
	"testing"

	"github.com/cuemby/sdfs/pkg/storage"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplicaTableSetAndGet(t *testing.T) {
	tbl := NewReplicaTable(nil)
	ids := []types.NodeID{"10.0.0.1_56552_1", "10.0.0.2_56552_2"}
	tbl.Set("bar", ids)

	got, ok := tbl.Get("bar")
	require.True(t, ok)
	assert.Equal(t, ids, got)
}

func TestReplicaTableSetDeduplicates(t *testing.T) {
	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"a", "b", "a"})

	got, _ := tbl.Get("bar")
	assert.Equal(t, []types.NodeID{"a", "b"}, got)
}

func TestReplicaTableUnknownFile(t *testing.T) {
	tbl := NewReplicaTable(nil)
	_, ok := tbl.Get("ghost")
	assert.False(t, ok)
}

func TestReplicaTablePersistsThroughSnapshot(t *testing.T) {
	snap, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	defer snap.Close()

	tbl := NewReplicaTable(snap)
	tbl.Set("bar", []types.NodeID{"a", "b"})

	fresh := NewReplicaTable(snap)
	require.NoError(t, fresh.LoadSnapshot())

	got, ok := fresh.Get("bar")
	require.True(t, ok)
	assert.Equal(t, []types.NodeID{"a", "b"}, got)
}

func TestReplicaTableRemoveMembers(t *testing.T) {
	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"a", "b", "c", "d"})

	changed := tbl.RemoveMembers(map[types.NodeID]bool{"b": true})
	result, ok := changed["bar"]
	require.True(t, ok)
	assert.Equal(t, 4, result.Prior)
	assert.ElementsMatch(t, []types.NodeID{"a", "c", "d"}, result.Remaining)

	got, _ := tbl.Get("bar")
	assert.ElementsMatch(t, []types.NodeID{"a", "c", "d"}, got)
}

func TestReplicaTablePrefixFiles(t *testing.T) {
	tbl := NewReplicaTable(nil)
	tbl.Set("tmp_alice", []types.NodeID{"a"})
	tbl.Set("tmp_bob", []types.NodeID{"a"})
	tbl.Set("other", []types.NodeID{"a"})

	files := tbl.PrefixFiles("tmp_")
	assert.ElementsMatch(t, []string{"tmp_alice", "tmp_bob"}, files)
}
