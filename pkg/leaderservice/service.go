package leaderservice

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/dispatch"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
)

// Port is the well-known fixed TCP port the current leader serves
// client-facing requests on.
const Port = 56553

// Deleter is the seam used to contact every replica during a DEL; the
// real implementation is pkg/client.Client.Delete.
type Deleter interface {
	Delete(ctx context.Context, holder types.NodeID, file string) error
}

// Service is the leader's client-facing front door: PUT/GET/LS/DEL and
// MAP/REDUCE job submission. Only the current leader should run it;
// cmd/sdfsd starts and stops it as election results change.
type Service struct {
	coord   *coordinator.Coordinator
	mapper  *dispatch.MapDispatcher
	reducer *dispatch.ReduceDispatcher
	deleter Deleter

	listener net.Listener
	logger   zerolog.Logger
}

// New wires a Service. deleter is used to contact replicas during DEL.
func New(coord *coordinator.Coordinator, mapper *dispatch.MapDispatcher, reducer *dispatch.ReduceDispatcher, deleter Deleter) *Service {
	return &Service{
		coord:   coord,
		mapper:  mapper,
		reducer: reducer,
		deleter: deleter,
		logger:  log.WithComponent("leaderservice"),
	}
}

// Listen binds the service's TCP port.
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

// Serve accepts connections until ctx is cancelled.
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

	reply := s.dispatch(ctx, conn, cmd)
	if reply != nil {
		if err := wire.WriteCommand(conn, reply); err != nil {
			s.logger.Warn().Err(err).Msg("writing reply failed")
		}
	}
}

// dispatch returns the reply to write back, or nil if the handler has
// already written its own reply (PUT and GET run a multi-step exchange
// over the same connection).
func (s *Service) dispatch(ctx context.Context, conn net.Conn, cmd *wire.Command) *wire.Command {
	switch {
	case cmd.PutReq != nil:
		s.handlePutReq(ctx, conn, cmd.PutReq)
		return nil
	case cmd.GetReq != nil:
		s.handleGetReq(ctx, conn, cmd.GetReq)
		return nil
	case cmd.Delete != nil:
		return s.handleDelete(ctx, cmd.Delete)
	case cmd.LsReq != nil:
		return s.handleLsReq(ctx, cmd.LsReq)
	case cmd.MapReq != nil:
		return s.handleMapReq(ctx, conn, cmd.MapReq)
	case cmd.ReduceReq != nil:
		return s.handleReduceReq(ctx, conn, cmd.ReduceReq)
	default:
		return &wire.Command{Fail: &wire.Fail{Msg: "unsupported command"}}
	}
}

// handlePutReq runs the PUT handshake: reply the candidate set, then
// read back the subset of candidates the client actually wrote to.
func (s *Service) handlePutReq(ctx context.Context, conn net.Conn, req *wire.PutReq) {
	installed, err := s.coord.Put(ctx, req.File, func(candidates []types.NodeID) ([]types.NodeID, error) {
		if err := wire.WriteCommand(conn, &wire.Command{LsRes: &wire.LsRes{Machines: stringsOf(candidates)}}); err != nil {
			return nil, err
		}
		reply, err := wire.ReadCommand(conn)
		if err != nil {
			return nil, err
		}
		if reply.LsRes == nil {
			return nil, fmt.Errorf("leaderservice: expected actual-replica report, got a different reply")
		}
		return nodeIDsOf(reply.LsRes.Machines), nil
	})
	if err != nil {
		writeOrLog(s.logger, conn, &wire.Command{Fail: &wire.Fail{Msg: err.Error()}})
		return
	}
	writeOrLog(s.logger, conn, &wire.Command{Ack: &wire.Ack{Msg: fmt.Sprintf("installed %d replicas", len(installed))}})
}

// handleGetReq runs the GET handshake: reply the replica set (or a
// failure), then block for the client's final acknowledgement.
func (s *Service) handleGetReq(ctx context.Context, conn net.Conn, req *wire.GetReq) {
	_, _ = s.coord.Get(ctx, req.File, func(replicas []types.NodeID, err error) {
		if err != nil {
			writeOrLog(s.logger, conn, &wire.Command{Fail: &wire.Fail{Msg: err.Error()}})
		} else {
			writeOrLog(s.logger, conn, &wire.Command{LsRes: &wire.LsRes{Machines: stringsOf(replicas)}})
		}
		if _, err := wire.ReadCommand(conn); err != nil && err != io.EOF {
			s.logger.Warn().Err(err).Msg("client acknowledgement not received")
		}
	})
}

func (s *Service) handleDelete(ctx context.Context, req *wire.Delete) *wire.Command {
	err := s.coord.Del(ctx, req.File, func(replicas []types.NodeID) error {
		var firstErr error
		for _, r := range replicas {
			if err := s.deleter.Delete(ctx, r, req.File); err != nil {
				s.logger.Warn().Err(err).Str("replica", string(r)).Str("file", req.File).Msg("delete failed on replica")
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		return firstErr
	})
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

func (s *Service) handleLsReq(ctx context.Context, req *wire.LsReq) *wire.Command {
	replicas, err := s.coord.Ls(ctx, req.File)
	if err != nil {
		return &wire.Command{LsRes: &wire.LsRes{}}
	}
	return &wire.Command{LsRes: &wire.LsRes{Machines: stringsOf(replicas)}}
}

// handleMapReq runs a MAP job synchronously, blocking the client's
// connection until dispatch finishes; req.SubmitterAddr is not on the
// wire, so the submitter address is taken from the live connection.
func (s *Service) handleMapReq(ctx context.Context, conn net.Conn, req *wire.MapReq) *wire.Command {
	result, err := s.mapper.Dispatch(ctx, types.JobDescriptor{
		Kind:          types.JobKindMap,
		Executable:    req.Executable,
		NumWorkers:    int(req.NumWorkers),
		Args:          req.Args,
		OutputPrefix:  req.OutputPrefix,
		InputPrefix:   req.InputPrefix,
		SubmitterAddr: submitterAddr(conn),
	})
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{ServerMapRes: &wire.ServerMapRes{Keys: result.Keys}}
}

func (s *Service) handleReduceReq(ctx context.Context, conn net.Conn, req *wire.ReduceReq) *wire.Command {
	_, err := s.reducer.Dispatch(ctx, types.JobDescriptor{
		Kind:                 types.JobKindReduce,
		Executable:           req.Executable,
		NumWorkers:           int(req.NumWorkers),
		InputPrefixForReduce: req.InputPrefix,
		OutputFile:           req.OutputFile,
		DeleteAfter:          req.DeleteAfter,
		SubmitterAddr:        submitterAddr(conn),
	})
	if err != nil {
		return &wire.Command{Fail: &wire.Fail{Msg: err.Error()}}
	}
	return &wire.Command{Ack: &wire.Ack{Msg: "ok"}}
}

// submitterAddr uses the connection's observed remote IP paired with the
// fixed storage-node port, since the submitting CLI runs a storage-node
// style listener there for executable uploads (see cmd/sdfsd).
func submitterAddr(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return fmt.Sprintf("%s:%d", host, 56552)
}

func stringsOf(ids []types.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nodeIDsOf(ss []string) []types.NodeID {
	out := make([]types.NodeID, len(ss))
	for i, s := range ss {
		out[i] = types.NodeID(s)
	}
	return out
}

func writeOrLog(logger zerolog.Logger, conn net.Conn, cmd *wire.Command) {
	if err := wire.WriteCommand(conn, cmd); err != nil {
		logger.Warn().Err(err).Msg("writing reply failed")
	}
}
