package client

import (
	"context"
	"fmt"

	"github.com/cuemby/sdfs/pkg/dispatch"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
)

// UploadExecutable asks the job submitter (a peer address running the
// same storage protocol as a node, reachable at submitterAddr) to push
// executable to worker, reusing the LeaderPutReq proxy mechanism
// re-replication uses.
func (c *Client) UploadExecutable(ctx context.Context, worker types.NodeID, submitterAddr, executable string) error {
	reply, err := c.roundTrip(ctx, submitterAddr, &wire.Command{LeaderPutReq: &wire.LeaderPutReq{
		Machine: string(worker),
		File:    executable,
	}})
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// DispatchMap hands one MAP partition to worker and blocks for its keys.
func (c *Client) DispatchMap(ctx context.Context, worker types.NodeID, item dispatch.MapWorkItem) (dispatch.MapWorkResult, error) {
	replicaSet := make([]string, len(item.ReplicaSet))
	for i, id := range item.ReplicaSet {
		replicaSet[i] = string(id)
	}
	targets := make([]string, len(item.TargetServers))
	for i, id := range item.TargetServers {
		targets[i] = string(id)
	}

	reply, err := c.roundTrip(ctx, worker.Addr(), &wire.Command{LeaderMapReq: &wire.LeaderMapReq{
		Executable:    item.Executable,
		OutputPrefix:  item.OutputPrefix,
		File:          item.File,
		ReplicaSet:    replicaSet,
		TargetServers: targets,
		StartLine:     item.StartLine,
		EndLine:       item.EndLine,
		Args:          item.Args,
	}})
	if err != nil {
		return dispatch.MapWorkResult{}, err
	}
	if err := replyErr(reply); err != nil {
		return dispatch.MapWorkResult{}, err
	}
	if reply.ServerMapRes == nil {
		return dispatch.MapWorkResult{}, fmt.Errorf("client: worker %s returned no keys", worker)
	}
	return dispatch.MapWorkResult{Keys: reply.ServerMapRes.Keys}, nil
}

// DispatchReduce hands one REDUCE chunk to worker and blocks for completion.
func (c *Client) DispatchReduce(ctx context.Context, worker types.NodeID, item dispatch.ReduceWorkItem) error {
	keyServerMap := make(map[string]wire.KeyServers, len(item.KeyServerMap))
	for key, servers := range item.KeyServerMap {
		strs := make([]string, len(servers))
		for i, s := range servers {
			strs[i] = string(s)
		}
		keyServerMap[key] = wire.KeyServers{Servers: strs}
	}

	reply, err := c.roundTrip(ctx, worker.Addr(), &wire.Command{LeaderReduceReq: &wire.LeaderReduceReq{
		KeyServerMap: keyServerMap,
		TargetServer: string(item.TargetServer),
		OutputFile:   item.OutputFile,
		Executable:   item.Executable,
		InputPrefix:  item.InputPrefix,
	}})
	if err != nil {
		return err
	}
	return replyErr(reply)
}

// ReplicateFile is a dispatch.WorkerClient.ReplicateFile: it reuses the
// same LeaderPutReq mechanism Replicate does.
func (c *Client) ReplicateFile(ctx context.Context, sender, receiver types.NodeID, file string) error {
	return c.Replicate(ctx, sender, receiver, file)
}

// DeleteFile instructs every holder to remove file, continuing past
// individual failures and returning the first error encountered.
func (c *Client) DeleteFile(ctx context.Context, holders []types.NodeID, file string) error {
	var firstErr error
	for _, h := range holders {
		if err := c.Delete(ctx, h, file); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
