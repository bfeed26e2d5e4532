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

func TestPickSendersRepeatsLastWhenShort(t *testing.T) {
	remaining := []types.NodeID{"a", "b"}
	senders := pickSenders(remaining, 4)
	assert.Equal(t, []types.NodeID{"a", "b", "b", "b"}, senders)
}

func TestReconcileRepairsReplicaSetAfterLoss(t *testing.T) {
	// Node 3 is already gone from the view (as it would be by the time the
	// failure monitor reports it), so the only replacement candidate left
	// is self.
	v := membership.NewView("10.0.0.1_56552_1")
	v.MergeGossip("10.0.0.2_56552_2", nil)
	v.MergeGossip("10.0.0.4_56552_4", nil)
	v.MergeGossip("10.0.0.5_56552_5", nil)

	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"10.0.0.2_56552_2", "10.0.0.3_56552_3", "10.0.0.4_56552_4", "10.0.0.5_56552_5"})
	c := New(v, tbl, nil)

	failures := make(chan types.NodeID, 1)
	failures <- "10.0.0.3_56552_3"
	close(failures)

	replicate := func(ctx context.Context, sender, receiver types.NodeID, file string) error {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Reconcile(ctx, failures, replicate)

	got, ok := tbl.Get("bar")
	require.True(t, ok)
	assert.Len(t, got, ReplicationFactor)
	for _, id := range got {
		assert.NotEqual(t, types.NodeID("10.0.0.3_56552_3"), id)
	}
}

func TestReconcileLeavesUnaffectedFilesAlone(t *testing.T) {
	v := fiveNodeView()
	tbl := NewReplicaTable(nil)
	tbl.Set("bar", []types.NodeID{"10.0.0.2_56552_2"})
	c := New(v, tbl, nil)

	failures := make(chan types.NodeID, 1)
	failures <- "10.0.0.4_56552_4" // not a holder of bar
	close(failures)

	called := false
	replicate := func(ctx context.Context, sender, receiver types.NodeID, file string) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Reconcile(ctx, failures, replicate)

	assert.False(t, called)
	got, _ := tbl.Get("bar")
	assert.Equal(t, []types.NodeID{"10.0.0.2_56552_2"}, got)
}
