package dispatch

import (
	"context"
	"fmt"
	"testing"

	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sixNodeView() *membership.View {
	self := types.NodeID("10.0.0.1_56552_1")
	v := membership.NewView(self)
	for i := 2; i <= 6; i++ {
		v.MergeGossip(types.NodeID(fmt.Sprintf("10.0.0.%d_56552_%d", i, i)), nil)
	}
	return v
}

func TestMapDispatchHappyPath(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	replicas.Set("wc_input1", []types.NodeID{"10.0.0.2_56552_2"})

	idx := NewKeyIndex(nil)
	client := newFakeWorkerClient()
	client.fileSizes["wc_input1"] = 10

	d := NewMapDispatcher(v, replicas, idx, client)
	result, err := d.Dispatch(context.Background(), types.JobDescriptor{
		Kind:         types.JobKindMap,
		Executable:   "wordcount",
		NumWorkers:   3,
		OutputPrefix: "wc_out",
		InputPrefix:  "wc_",
	})

	require.NoError(t, err)
	assert.Equal(t, "wc_input1", result.InputFile)
	assert.NotEmpty(t, result.Keys)

	for _, k := range result.Keys {
		files := idx.Files(k)
		assert.NotEmpty(t, files)
		for _, f := range files {
			rs, ok := replicas.Get(f)
			require.True(t, ok)
			assert.Len(t, rs, outputTargets)
		}
	}
}

func TestMapDispatchNoInputMatchesPrefix(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	d := NewMapDispatcher(v, replicas, NewKeyIndex(nil), newFakeWorkerClient())

	_, err := d.Dispatch(context.Background(), types.JobDescriptor{Kind: types.JobKindMap, InputPrefix: "missing_", NumWorkers: 2})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestMapDispatchRetriesFailedPartitionAgainstSurvivors(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	replicas.Set("wc_input1", []types.NodeID{"10.0.0.2_56552_2"})

	client := newFakeWorkerClient()
	client.fileSizes["wc_input1"] = 6

	d := NewMapDispatcher(v, replicas, NewKeyIndex(nil), client)

	// Stage workers first so we know which ones accepted the upload, then
	// make one of them fail its dispatch: if Dispatch's own random pick
	// includes it, its block is retried against the survivors.
	staged := d.stageWorkers(context.Background(), 3, "", "wordcount")
	require.NotEmpty(t, staged)
	client.failDispatch[staged[0]] = true

	result, err := d.Dispatch(context.Background(), types.JobDescriptor{
		Kind:         types.JobKindMap,
		Executable:   "wordcount",
		NumWorkers:   3,
		OutputPrefix: "wc_out",
		InputPrefix:  "wc_",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Keys)
}

func TestMapDispatchFailsWhenNoWorkerAcceptsExecutable(t *testing.T) {
	v := sixNodeView()
	replicas := coordinator.NewReplicaTable(nil)
	replicas.Set("wc_input1", []types.NodeID{"10.0.0.2_56552_2"})

	client := newFakeWorkerClient()
	client.fileSizes["wc_input1"] = 6
	for _, n := range v.Live() {
		client.unreachable[n.ID] = true
	}

	d := NewMapDispatcher(v, replicas, NewKeyIndex(nil), client)
	_, err := d.Dispatch(context.Background(), types.JobDescriptor{
		Kind:         types.JobKindMap,
		Executable:   "wordcount",
		NumWorkers:   3,
		OutputPrefix: "wc_out",
		InputPrefix:  "wc_",
	})
	assert.ErrorIs(t, err, ErrNoWorkers)
}
