package storagenode

import (
	"bytes"
	"context"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
)

// ServicePort is the fixed TCP port every node serves PUT/GET/DEL and
// map/reduce worker traffic on.
const ServicePort = 56552

// Service is the per-connection storage-node handler: it decodes one
// Command per connection and dispatches on its variant. One goroutine is
// spawned per accepted connection; MAP/REDUCE requests run through
// MapRunner/ReduceRunner, and the connection goroutine waits for the
// result before replying.
type Service struct {
	store    *FileStore
	maps     *MapRunner
	reduces  *ReduceRunner
	pusher   Pusher
	listener net.Listener
	logger   zerolog.Logger
}

// NewService wires a Service over store, accepting on ServicePort. pusher
// proxies re-replication transfers triggered by LeaderPutReq.
func NewService(store *FileStore, maps *MapRunner, reduces *ReduceRunner, pusher Pusher) *Service {
	return &Service{
		store:   store,
		maps:    maps,
		reduces: reduces,
		pusher:  pusher,
		logger:  log.WithComponent("storagenode.service"),
	}
}

// Listen binds the service's TCP port without serving yet, so callers can
// discover the bound address (s.Addr()) before accepting connections.
func (s *Service) Listen(bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the service's bound listen address. Valid only after Listen.
func (s *Service) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections on the address bound by Listen until ctx is
// cancelled.
func (s *Service) Serve(ctx context.Context) error {
	ln := s.listener

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	cmd, err := wire.ReadCommand(conn)
	if err != nil {
		if err != io.EOF {
			s.logger.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("reading command failed")
		}
		return
	}

	reply := s.dispatch(ctx, cmd)
	if reply != nil {
		if err := wire.WriteCommand(conn, reply); err != nil {
			s.logger.Warn().Err(err).Msg("writing reply failed")
		}
	}
}

func (s *Service) dispatch(ctx context.Context, cmd *wire.Command) *wire.Command {
	switch {
	case cmd.PutData != nil:
		return s.handlePutData(cmd.PutData)
	case cmd.GetReq != nil:
		return s.handleGetReq(cmd.GetReq)
	case cmd.Delete != nil:
		return s.handleDelete(cmd.Delete)
	case cmd.FileSizeReq != nil:
		return s.handleFileSizeReq(cmd.FileSizeReq)
	case cmd.LeaderMapReq != nil:
		return s.handleLeaderMapReq(ctx, cmd.LeaderMapReq)
	case cmd.LeaderReduceReq != nil:
		return s.handleLeaderReduceReq(ctx, cmd.LeaderReduceReq)
	case cmd.ServerMapReq != nil:
		return s.handleServerMapReq(cmd.ServerMapReq)
	case cmd.ServerReduceReq != nil:
		return s.handleServerReduceReq(cmd.ServerReduceReq)
	case cmd.LeaderPutReq != nil:
		return s.handleLeaderPutReq(ctx, cmd.LeaderPutReq)
	default:
		return &wire.Command{Fail: &wire.Fail{Msg: "unsupported command"}}
	}
}

func (s *Service) handlePutData(req *wire.PutData) *wire.Command {
	if err := s.store.WriteAtomic(s.store.Path(req.File), bytes.NewReader(req.Bytes)); err != nil {
		s.logger.Error().Err(err).Str("file", req.File).Msg("put failed")
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

func (s *Service) handleGetReq(req *wire.GetReq) *wire.Command {
	f, err := s.store.Read(s.store.Path(req.File))
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: "file not found"}}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{GetData: &wire.GetData{File: req.File, Bytes: data}}
}

func (s *Service) handleDelete(req *wire.Delete) *wire.Command {
	if err := s.store.Delete(s.store.Path(req.File)); err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

func (s *Service) handleFileSizeReq(req *wire.FileSizeReq) *wire.Command {
	n, err := s.store.LineCount(s.store.Path(req.File))
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{FileSizeRes: &wire.FileSizeRes{Size: n}}
}

func (s *Service) handleLeaderMapReq(ctx context.Context, req *wire.LeaderMapReq) *wire.Command {
	targets := make([]types.NodeID, len(req.TargetServers))
	for i, t := range req.TargetServers {
		targets[i] = types.NodeID(t)
	}
	keys, err := s.maps.Run(ctx, req.Executable, req.File, req.StartLine, req.EndLine, req.Args, req.OutputPrefix, targets)
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{ServerMapRes: &wire.ServerMapRes{Keys: keys}}
}

func (s *Service) handleLeaderReduceReq(ctx context.Context, req *wire.LeaderReduceReq) *wire.Command {
	keyServerMap := make(map[string][]types.NodeID, len(req.KeyServerMap))
	for key, ks := range req.KeyServerMap {
		servers := make([]types.NodeID, len(ks.Servers))
		for i, srv := range ks.Servers {
			servers[i] = types.NodeID(srv)
		}
		keyServerMap[key] = servers
	}
	if err := s.reduces.Run(ctx, req.Executable, req.InputPrefix, keyServerMap, req.OutputFile); err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

// handleLeaderPutReq proxies file to req.Machine, the re-replication
// receiver the leader picked; this node is the surviving replica sourcing
// the transfer.
func (s *Service) handleLeaderPutReq(ctx context.Context, req *wire.LeaderPutReq) *wire.Command {
	f, err := s.store.Read(s.store.Path(req.File))
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: "file not found"}}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}

	if err := s.pusher.PushFile(ctx, types.NodeID(req.Machine), req.File, data); err != nil {
		s.logger.Error().Err(err).Str("file", req.File).Str("receiver", req.Machine).Msg("re-replication proxy failed")
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

func (s *Service) handleServerMapReq(req *wire.ServerMapReq) *wire.Command {
	if err := s.store.WriteAtomic(s.store.MapInputPath(req.File), bytes.NewReader(req.Data)); err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

func (s *Service) handleServerReduceReq(req *wire.ServerReduceReq) *wire.Command {
	if err := s.store.AppendLocked(s.store.Path(req.File), req.Data); err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}
