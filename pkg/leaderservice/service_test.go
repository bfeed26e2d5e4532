package leaderservice

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
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
	return "10.0.0." + string(rune('0'+i)) + "_56552_" + string(rune('0'+i))
}

type fakeDeleter struct {
	deleted map[string]bool
	fail    map[string]bool
}

func newFakeDeleter() *fakeDeleter {
	return &fakeDeleter{deleted: make(map[string]bool), fail: make(map[string]bool)}
}

func (f *fakeDeleter) Delete(_ context.Context, holder types.NodeID, file string) error {
	k := string(holder) + "/" + file
	if f.fail[k] {
		return assert.AnError
	}
	f.deleted[k] = true
	return nil
}

func startTestService(t *testing.T) (net.Addr, *coordinator.Coordinator) {
	t.Helper()
	coord := coordinator.New(fiveNodeView(), coordinator.NewReplicaTable(nil), nil)
	svc := New(coord, nil, nil, newFakeDeleter())
	require.NoError(t, svc.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Serve(ctx)
	t.Cleanup(cancel)
	return svc.Addr(), coord
}

func dial(t *testing.T, addr net.Addr) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPutHandshakeRepliesCandidatesThenAwaitsActual(t *testing.T) {
	addr, coord := startTestService(t)
	conn := dial(t, addr)

	require.NoError(t, wire.WriteCommand(conn, &wire.Command{PutReq: &wire.PutReq{File: "bar"}}))

	candidates, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, candidates.LsRes)
	require.Len(t, candidates.LsRes.Machines, coordinator.MinReplicas)

	actual := candidates.LsRes.Machines[:3]
	require.NoError(t, wire.WriteCommand(conn, &wire.Command{LsRes: &wire.LsRes{Machines: actual}}))

	final, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, final.Ack)

	installed, err := coord.Ls(context.Background(), "bar")
	require.NoError(t, err)
	assert.Len(t, installed, 3)
}

func TestGetHandshakeRepliesReplicasThenAwaitsAck(t *testing.T) {
	addr, coord := startTestService(t)

	_, err := coord.Put(context.Background(), "baz", func(candidates []types.NodeID) ([]types.NodeID, error) {
		return candidates, nil
	})
	require.NoError(t, err)

	conn := dial(t, addr)
	require.NoError(t, wire.WriteCommand(conn, &wire.Command{GetReq: &wire.GetReq{File: "baz"}}))

	reply, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, reply.LsRes)
	assert.Len(t, reply.LsRes.Machines, coordinator.MinReplicas)

	require.NoError(t, wire.WriteCommand(conn, &wire.Command{Ack: &wire.Ack{Msg: "ok"}}))
}

func TestGetHandshakeRepliesFailForUnknownFile(t *testing.T) {
	addr, _ := startTestService(t)
	conn := dial(t, addr)

	require.NoError(t, wire.WriteCommand(conn, &wire.Command{GetReq: &wire.GetReq{File: "missing"}}))
	reply, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, reply.Fail)

	require.NoError(t, wire.WriteCommand(conn, &wire.Command{Ack: &wire.Ack{Msg: "ok"}}))
}

func TestDeleteAcksAndRemovesReplicaTableEntry(t *testing.T) {
	addr, coord := startTestService(t)

	_, err := coord.Put(context.Background(), "gone", func(candidates []types.NodeID) ([]types.NodeID, error) {
		return candidates, nil
	})
	require.NoError(t, err)

	conn := dial(t, addr)
	require.NoError(t, wire.WriteCommand(conn, &wire.Command{Delete: &wire.Delete{File: "gone"}}))

	reply, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, reply.Ack)

	_, err = coord.Ls(context.Background(), "gone")
	assert.Error(t, err)
}

func TestLsReqReturnsCurrentReplicas(t *testing.T) {
	addr, coord := startTestService(t)

	_, err := coord.Put(context.Background(), "foo", func(candidates []types.NodeID) ([]types.NodeID, error) {
		return candidates, nil
	})
	require.NoError(t, err)

	conn := dial(t, addr)
	require.NoError(t, wire.WriteCommand(conn, &wire.Command{LsReq: &wire.LsReq{File: "foo"}}))

	reply, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	require.NotNil(t, reply.LsRes)
	assert.Len(t, reply.LsRes.Machines, coordinator.MinReplicas)
}
