package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/sdfs/pkg/types"
)

// fakeWorkerClient is an in-memory WorkerClient for dispatch tests. Workers
// listed in unreachable fail every call; fileSizes seeds FileSize answers.
type fakeWorkerClient struct {
	mu            sync.Mutex
	unreachable   map[types.NodeID]bool
	failDispatch  map[types.NodeID]bool
	fileSizes     map[string]uint32
	mapKeys       func(item MapWorkItem) []string
	replicateErrs map[types.NodeID]bool

	uploads    []types.NodeID
	replicated []string
	deleted    []string
}

func newFakeWorkerClient() *fakeWorkerClient {
	return &fakeWorkerClient{
		unreachable:   make(map[types.NodeID]bool),
		failDispatch:  make(map[types.NodeID]bool),
		fileSizes:     make(map[string]uint32),
		replicateErrs: make(map[types.NodeID]bool),
	}
}

func (f *fakeWorkerClient) UploadExecutable(_ context.Context, worker types.NodeID, _, _ string) error {
	if f.unreachable[worker] {
		return fmt.Errorf("fake: %s unreachable", worker)
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, worker)
	f.mu.Unlock()
	return nil
}

func (f *fakeWorkerClient) FileSize(_ context.Context, _ []types.NodeID, file string) (uint32, error) {
	return f.fileSizes[file], nil
}

func (f *fakeWorkerClient) DispatchMap(_ context.Context, worker types.NodeID, item MapWorkItem) (MapWorkResult, error) {
	if f.unreachable[worker] || f.failDispatch[worker] {
		return MapWorkResult{}, fmt.Errorf("fake: %s unreachable", worker)
	}
	if f.mapKeys != nil {
		return MapWorkResult{Keys: f.mapKeys(item)}, nil
	}
	return MapWorkResult{Keys: []string{fmt.Sprintf("key-%d-%d", item.StartLine, item.EndLine)}}, nil
}

func (f *fakeWorkerClient) DispatchReduce(_ context.Context, worker types.NodeID, _ ReduceWorkItem) error {
	if f.unreachable[worker] {
		return fmt.Errorf("fake: %s unreachable", worker)
	}
	return nil
}

func (f *fakeWorkerClient) ReplicateFile(_ context.Context, _, receiver types.NodeID, file string) error {
	if f.replicateErrs[receiver] {
		return fmt.Errorf("fake: replication to %s failed", receiver)
	}
	f.mu.Lock()
	f.replicated = append(f.replicated, file)
	f.mu.Unlock()
	return nil
}

func (f *fakeWorkerClient) DeleteFile(_ context.Context, _ []types.NodeID, file string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, file)
	f.mu.Unlock()
	return nil
}
