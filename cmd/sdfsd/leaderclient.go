package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/sdfs/pkg/leaderservice"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
)

const leaderDialTimeout = 5 * time.Second

// leaderAddr resolves the current elected leader's request endpoint.
func leaderAddr(elector *membership.Elector) (string, error) {
	leader := elector.Leader()
	if leader == "" {
		return "", fmt.Errorf("no leader elected yet")
	}
	return fmt.Sprintf("%s:%d", leader.IP(), leaderservice.Port), nil
}

func dialLeader(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: leaderDialTimeout}
	return d.DialContext(ctx, "tcp", addr)
}

// putViaLeader runs the client side of the PUT handshake: it sends the
// file name, receives the candidate replica set, writes data directly to
// every candidate, then reports the subset that actually succeeded.
func putViaLeader(ctx context.Context, addr string, file string, data []byte, writeTo func(candidate types.NodeID) error) ([]types.NodeID, error) {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WriteCommand(conn, &wire.Command{PutReq: &wire.PutReq{File: file}}); err != nil {
		return nil, err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, err
	}
	if reply.Fail != nil {
		return nil, fmt.Errorf("leader: %s", reply.Fail.Msg)
	}
	if reply.LsRes == nil {
		return nil, fmt.Errorf("leader: unexpected reply to PUT")
	}

	var actual []types.NodeID
	for _, m := range reply.LsRes.Machines {
		node := types.NodeID(m)
		if err := writeTo(node); err != nil {
			continue
		}
		actual = append(actual, node)
	}

	actualStrs := make([]string, len(actual))
	for i, n := range actual {
		actualStrs[i] = string(n)
	}
	if err := wire.WriteCommand(conn, &wire.Command{LsRes: &wire.LsRes{Machines: actualStrs}}); err != nil {
		return nil, err
	}
	final, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, err
	}
	if final.Fail != nil {
		return actual, fmt.Errorf("leader: %s", final.Fail.Msg)
	}
	return actual, nil
}

// getViaLeader runs the client side of the GET handshake: it receives the
// replica set, lets the caller try fetching from them, then reports
// success/failure back to the leader.
func getViaLeader(ctx context.Context, addr string, file string, tryFetch func(replicas []types.NodeID) ([]byte, error)) ([]byte, error) {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WriteCommand(conn, &wire.Command{GetReq: &wire.GetReq{File: file}}); err != nil {
		return nil, err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, err
	}
	if reply.Fail != nil {
		wire.WriteCommand(conn, &wire.Command{Fail: &wire.Fail{Msg: reply.Fail.Msg}})
		return nil, fmt.Errorf("leader: %s", reply.Fail.Msg)
	}

	replicas := make([]types.NodeID, len(reply.LsRes.Machines))
	for i, m := range reply.LsRes.Machines {
		replicas[i] = types.NodeID(m)
	}

	data, fetchErr := tryFetch(replicas)
	if fetchErr != nil {
		wire.WriteCommand(conn, &wire.Command{Fail: &wire.Fail{Msg: fetchErr.Error()}})
		return nil, fetchErr
	}
	wire.WriteCommand(conn, &wire.Command{Ack: &wire.Ack{Msg: "ok"}})
	return data, nil
}

func deleteViaLeader(ctx context.Context, addr string, file string) error {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := wire.WriteCommand(conn, &wire.Command{Delete: &wire.Delete{File: file}}); err != nil {
		return err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return err
	}
	if reply.Fail != nil {
		return fmt.Errorf("leader: %s", reply.Fail.Msg)
	}
	return nil
}

func lsViaLeader(ctx context.Context, addr string, file string) ([]string, error) {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := wire.WriteCommand(conn, &wire.Command{LsReq: &wire.LsReq{File: file}}); err != nil {
		return nil, err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, err
	}
	if reply.LsRes == nil {
		return nil, fmt.Errorf("leader: unexpected reply to LS")
	}
	return reply.LsRes.Machines, nil
}

func mapleViaLeader(ctx context.Context, addr string, executable string, numWorkers uint32, outputPrefix, inputPrefix string, jobArgs []string) ([]string, error) {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	cmd := &wire.Command{MapReq: &wire.MapReq{
		Executable:   executable,
		NumWorkers:   numWorkers,
		OutputPrefix: outputPrefix,
		InputPrefix:  inputPrefix,
		Args:         jobArgs,
	}}
	if err := wire.WriteCommand(conn, cmd); err != nil {
		return nil, err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return nil, err
	}
	if reply.Fail != nil {
		return nil, fmt.Errorf("leader: %s", reply.Fail.Msg)
	}
	if reply.ServerMapRes == nil {
		return nil, fmt.Errorf("leader: unexpected reply to MAPLE")
	}
	return reply.ServerMapRes.Keys, nil
}

func juiceViaLeader(ctx context.Context, addr string, executable string, numWorkers uint32, inputPrefix, outputFile string, deleteAfter bool) error {
	conn, err := dialLeader(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	cmd := &wire.Command{ReduceReq: &wire.ReduceReq{
		Executable:  executable,
		NumWorkers:  numWorkers,
		InputPrefix: inputPrefix,
		OutputFile:  outputFile,
		DeleteAfter: deleteAfter,
	}}
	if err := wire.WriteCommand(conn, cmd); err != nil {
		return err
	}
	reply, err := wire.ReadCommand(conn)
	if err != nil {
		return err
	}
	if reply.Fail != nil {
		return fmt.Errorf("leader: %s", reply.Fail.Msg)
	}
	return nil
}
