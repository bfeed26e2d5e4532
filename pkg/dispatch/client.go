package dispatch

import (
	"context"

	"github.com/cuemby/sdfs/pkg/types"
)

// MapWorkItem is one partition of a MAP job handed to a single worker.
type MapWorkItem struct {
	Executable    string
	OutputPrefix  string
	File          string
	ReplicaSet    []types.NodeID
	TargetServers []types.NodeID
	StartLine     uint32
	EndLine       uint32
	Args          []string
}

// MapWorkResult is a worker's report for one MapWorkItem.
type MapWorkResult struct {
	Keys []string
}

// ReduceWorkItem is one partition of a REDUCE job (a batch of
// intermediate keys, and where each key's input file can be found).
type ReduceWorkItem struct {
	Executable   string
	InputPrefix  string
	KeyServerMap map[string][]types.NodeID
	TargetServer types.NodeID
	OutputFile   string
}

// WorkerClient is the transport seam dispatch uses to actually talk to
// storage nodes. A real implementation dials the fixed storage-node TCP
// port and encodes pkg/wire Command records; tests supply a fake.
type WorkerClient interface {
	// UploadExecutable fetches the job executable from submitterAddr (the
	// client's own peer address) and pushes it to worker ahead of dispatch.
	UploadExecutable(ctx context.Context, worker types.NodeID, submitterAddr, executable string) error

	// FileSize asks one of holders for file's line count.
	FileSize(ctx context.Context, holders []types.NodeID, file string) (uint32, error)

	// DispatchMap hands one partition to worker and blocks for its result.
	DispatchMap(ctx context.Context, worker types.NodeID, item MapWorkItem) (MapWorkResult, error)

	// DispatchReduce hands one partition to worker and blocks for its result.
	DispatchReduce(ctx context.Context, worker types.NodeID, item ReduceWorkItem) error

	// ReplicateFile instructs sender to push file to receiver (a
	// LeaderPutReq sent to sender), the same mechanism re-replication uses.
	ReplicateFile(ctx context.Context, sender, receiver types.NodeID, file string) error

	// DeleteFile instructs every holder to remove file.
	DeleteFile(ctx context.Context, holders []types.NodeID, file string) error
}
