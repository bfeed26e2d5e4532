package storagenode

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/sdfs/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestService(t *testing.T) (*Service, net.Addr) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	svc := NewService(store, NewMapRunner(store, newFakePusher(), 1), NewReduceRunner(store, newFakeFetcher(), 1), newFakePusher())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc.listener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go svc.handleConn(t.Context(), conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })

	return svc, ln.Addr()
}

func roundTrip(t *testing.T, addr net.Addr, cmd *wire.Command) *wire.Command {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteCommand(conn, cmd))
	reply, err := wire.ReadCommand(conn)
	require.NoError(t, err)
	return reply
}

func TestServicePutThenGetRoundTrip(t *testing.T) {
	_, addr := startTestService(t)

	put := roundTrip(t, addr, &wire.Command{PutData: &wire.PutData{File: "dataset.txt", Bytes: []byte("hello\n")}})
	require.NotNil(t, put.Ack)

	get := roundTrip(t, addr, &wire.Command{GetReq: &wire.GetReq{File: "dataset.txt"}})
	require.NotNil(t, get.GetData)
	assert.Equal(t, []byte("hello\n"), get.GetData.Bytes)
}

func TestServiceGetMissingFileFails(t *testing.T) {
	_, addr := startTestService(t)

	reply := roundTrip(t, addr, &wire.Command{GetReq: &wire.GetReq{File: "ghost.txt"}})
	require.NotNil(t, reply.Fail)
}

func TestServiceDeleteThenGetFails(t *testing.T) {
	_, addr := startTestService(t)

	roundTrip(t, addr, &wire.Command{PutData: &wire.PutData{File: "x.txt", Bytes: []byte("a\n")}})
	del := roundTrip(t, addr, &wire.Command{Delete: &wire.Delete{File: "x.txt"}})
	require.NotNil(t, del.Ack)

	get := roundTrip(t, addr, &wire.Command{GetReq: &wire.GetReq{File: "x.txt"}})
	require.NotNil(t, get.Fail)
}

func TestServiceFileSizeReportsLineCount(t *testing.T) {
	_, addr := startTestService(t)

	roundTrip(t, addr, &wire.Command{PutData: &wire.PutData{File: "lines.txt", Bytes: []byte("a\nb\nc\n")}})
	reply := roundTrip(t, addr, &wire.Command{FileSizeReq: &wire.FileSizeReq{File: "lines.txt"}})
	require.NotNil(t, reply.FileSizeRes)
	assert.Equal(t, uint32(3), reply.FileSizeRes.Size)
}

func TestServiceServerMapReqStagesUnderMapInputDir(t *testing.T) {
	svc, addr := startTestService(t)

	reply := roundTrip(t, addr, &wire.Command{ServerMapReq: &wire.ServerMapReq{File: "chunk1", Data: []byte("payload")}})
	require.NotNil(t, reply.Ack)

	data, err := svc.store.Read(svc.store.MapInputPath("chunk1"))
	require.NoError(t, err)
	defer data.Close()
}

func TestServiceServerReduceReqAppendsUnderLock(t *testing.T) {
	_, addr := startTestService(t)

	roundTrip(t, addr, &wire.Command{ServerReduceReq: &wire.ServerReduceReq{File: "out.txt", Data: []byte("a\n")}})
	roundTrip(t, addr, &wire.Command{ServerReduceReq: &wire.ServerReduceReq{File: "out.txt", Data: []byte("b\n")}})

	get := roundTrip(t, addr, &wire.Command{GetReq: &wire.GetReq{File: "out.txt"}})
	require.NotNil(t, get.GetData)
	assert.Equal(t, []byte("a\nb\n"), get.GetData.Bytes)
}

func TestServiceUnsupportedCommandFails(t *testing.T) {
	_, addr := startTestService(t)

	reply := roundTrip(t, addr, &wire.Command{})
	require.NotNil(t, reply.Fail)
}

func TestServiceLeaderPutReqProxiesLocalFileToReceiver(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.AppendLocked(store.Path("shared.txt"), []byte("payload\n")))

	pusher := newFakePusher()
	svc := NewService(store, NewMapRunner(store, newFakePusher(), 1), NewReduceRunner(store, newFakeFetcher(), 1), pusher)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	svc.listener = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go svc.handleConn(t.Context(), conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })

	reply := roundTrip(t, ln.Addr(), &wire.Command{LeaderPutReq: &wire.LeaderPutReq{Machine: "10.0.0.9_56552_1", File: "shared.txt"}})
	require.NotNil(t, reply.Ack)
	assert.Equal(t, []byte("payload\n"), pusher.pushed["shared.txt"])
}
