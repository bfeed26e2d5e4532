package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fiveNodeView() *membership.View {
	self := types.NodeID("10.0.0.1_56552_1")
	v := membership.NewView(self)
	for i := 2; i <= 5; i++ {
		v.MergeGossip(types.NodeID(nodeIDFmt(i)), nil)
	}
	return v
}

func nodeIDFmt(i int) string {
	return "10.0.0." + itoa(i) + "_56552_" + itoa(i)
}

func itoa(i int) string {
	return string(rune('0' + i))
}

func TestPutSelectsFourCandidatesAndInstallsActual(t *testing.T) {
	v := fiveNodeView()
	c := New(v, NewReplicaTable(nil), nil)

	var gotCandidates []types.NodeID
	receiveActual := func(candidates []types.NodeID) ([]types.NodeID, error) {
		gotCandidates = candidates
		return candidates[:3], nil // simulate one candidate failing to ack
	}

	installed, err := c.Put(context.Background(), "bar", receiveActual)
	require.NoError(t, err)
	assert.Len(t, gotCandidates, MinReplicas)
	assert.Len(t, installed, 3)

	got, ok := c.replicas.Get("bar")
	require.True(t, ok)
	assert.Equal(t, installed, got)
}

func TestPutFailsWithFewerThanFourLiveNodes(t *testing.T) {
	v := membership.NewView("10.0.0.1_56552_1")
	v.MergeGossip("10.0.0.2_56552_2", nil)
	c := New(v, NewReplicaTable(nil), nil)

	_, err := c.Put(context.Background(), "bar", func(c []types.NodeID) ([]types.NodeID, error) {
		t.Fatal("receiveActual must not be called without quorum")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestGetReturnsNotFoundForUnknownFile(t *testing.T) {
	v := fiveNodeView()
	c := New(v, NewReplicaTable(nil), nil)

	var ackErr error
	_, err := c.Get(context.Background(), "ghost", func(_ []types.NodeID, ackErrIn error) {
		ackErr = ackErrIn
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, ackErr, ErrNotFound)
}

func TestDelRemovesReplicaTableEntry(t *testing.T) {
	v := fiveNodeView()
	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"a", "b"})
	c := New(v, tbl, nil)

	err := c.Del(context.Background(), "bar", func(replicas []types.NodeID) error {
		assert.ElementsMatch(t, []types.NodeID{"a", "b"}, replicas)
		return nil
	})
	require.NoError(t, err)

	_, ok := tbl.Get("bar")
	assert.False(t, ok)
}

func TestActorIsEvictedAfterDeleteDrains(t *testing.T) {
	v := fiveNodeView()
	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"a"})
	c := New(v, tbl, nil)

	require.NoError(t, c.Del(context.Background(), "bar", func([]types.NodeID) error { return nil }))

	require.Eventually(t, func() bool {
		c.actorsMu.Lock()
		defer c.actorsMu.Unlock()
		_, exists := c.actors["bar"]
		return !exists
	}, time.Second, 10*time.Millisecond)
}
