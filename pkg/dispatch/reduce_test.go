package dispatch

import (
	"context"
	"testing"

	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduceDispatchHappyPath(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	replicas.Set("wc_out_hello", []types.NodeID{"10.0.0.2_56552_2"})
	replicas.Set("wc_out_world", []types.NodeID{"10.0.0.3_56552_3"})

	idx := NewKeyIndex(nil)
	idx.Add("hello", "wc_out_hello")
	idx.Add("world", "wc_out_world")

	client := newFakeWorkerClient()
	d := NewReduceDispatcher(v, replicas, idx, client)

	result, err := d.Dispatch(context.Background(), types.JobDescriptor{
		Kind:                 types.JobKindReduce,
		Executable:           "wordcount_reduce",
		NumWorkers:           2,
		InputPrefixForReduce: "wc_out_",
		OutputFile:           "final_wc",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.KeysFolded)
	got, ok := replicas.Get("final_wc")
	require.True(t, ok)
	assert.Len(t, got, 1+reduceExtraCopies)
}

func TestReduceDispatchNoKeysMatchPrefix(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	d := NewReduceDispatcher(v, replicas, NewKeyIndex(nil), newFakeWorkerClient())

	_, err := d.Dispatch(context.Background(), types.JobDescriptor{Kind: types.JobKindReduce, InputPrefixForReduce: "missing_", NumWorkers: 2})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestReduceDispatchDeletesIntermediatesWhenRequested(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	replicas.Set("wc_out_hello", []types.NodeID{"10.0.0.2_56552_2"})

	idx := NewKeyIndex(nil)
	idx.Add("hello", "wc_out_hello")

	client := newFakeWorkerClient()
	d := NewReduceDispatcher(v, replicas, idx, client)

	_, err := d.Dispatch(context.Background(), types.JobDescriptor{
		Kind:                 types.JobKindReduce,
		Executable:           "wordcount_reduce",
		NumWorkers:           1,
		InputPrefixForReduce: "wc_out_",
		OutputFile:           "final_wc",
		DeleteAfter:          true,
	})
	require.NoError(t, err)

	assert.Contains(t, client.deleted, "wc_out_hello")
	_, ok := replicas.Get("wc_out_hello")
	assert.False(t, ok)
}
