package membership

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cuemby/sdfs/pkg/events"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
	"github.com/rs/zerolog"
)

// ElectionPort is the well-known fixed UDP port carrying Election/Ok/
// Coordinator traffic.
const ElectionPort = 12308

const (
	probeTimeout = 10 * time.Second
	electionWait = 25 * time.Second
)

// Elector runs the bully algorithm over its own UDP socket. An
// election-in-progress flag prevents concurrent runs; LeaderWakeup is
// signalled once per completed election so a dependent leader loop can
// block on it rather than poll.
type Elector struct {
	view   *View
	conn   *net.UDPConn
	events *events.Broker
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	leader  types.NodeID

	okCh    chan types.NodeID
	coordCh chan types.NodeID

	LeaderWakeup chan struct{}
}

// NewElector binds the election socket on the well-known ElectionPort.
func NewElector(view *View, broker *events.Broker) (*Elector, error) {
	return newElectorOnAddr(view, broker, &net.UDPAddr{Port: ElectionPort})
}

// newElectorOnAddr binds an Elector to an arbitrary address, letting
// tests run several in-process electors on loopback without colliding on
// ElectionPort.
func newElectorOnAddr(view *View, broker *events.Broker, addr *net.UDPAddr) (*Elector, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Elector{
		view:         view,
		conn:         conn,
		events:       broker,
		logger:       log.WithComponent("election"),
		okCh:         make(chan types.NodeID, 32),
		coordCh:      make(chan types.NodeID, 32),
		LeaderWakeup: make(chan struct{}, 1),
	}, nil
}

// Close releases the election socket.
func (e *Elector) Close() error { return e.conn.Close() }

// Leader returns the currently known leader, or "" if none has been
// established yet.
func (e *Elector) Leader() types.NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leader
}

// IsLeader reports whether the local node is the current leader.
func (e *Elector) IsLeader() bool {
	return e.Leader() == e.view.Self()
}

// Run starts the receive loop; callers should invoke it from its own
// goroutine.
func (e *Elector) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fd, addr, err := wire.RecvFailureDetection(e.conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn().Err(err).Msg("election receive failed")
			continue
		}

		switch {
		case fd.Election != nil:
			e.handleElection(ctx, types.NodeID(fd.Election.SenderId), addr)
		case fd.Ok != nil:
			e.dispatch(e.okCh, types.NodeID(fd.Ok.SenderId))
		case fd.Coordinator != nil:
			e.dispatch(e.coordCh, types.NodeID(fd.Coordinator.LeaderId))
		}
	}
}

func (e *Elector) dispatch(ch chan types.NodeID, id types.NodeID) {
	select {
	case ch <- id:
	default:
	}
}

// handleElection replies Ok to a challenger with a larger identifier
// (the receiver always outranks the sender of an Election probe, by
// construction of the bully algorithm) and starts its own election.
func (e *Elector) handleElection(ctx context.Context, sender types.NodeID, addr *net.UDPAddr) {
	ok := &wire.FailureDetection{Ok: &wire.Ok{SenderId: string(e.view.Self())}}
	if err := wire.SendFailureDetection(e.conn, addr, ok); err != nil {
		e.logger.Warn().Err(err).Msg("failed to answer election probe")
	}
	e.Trigger(ctx)
}

// Trigger starts an election unless one is already running.
func (e *Elector) Trigger(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	go e.runElection(ctx)
}

func (e *Elector) runElection(ctx context.Context) {
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	self := e.view.Self()
	metrics.ElectionsTotal.Inc()
	if e.events != nil {
		e.events.Publish(&events.Event{Type: events.EventElectionStarted, Message: string(self)})
	}

	var smaller, higher []types.Node
	for _, n := range e.view.LiveOthers() {
		if n.ID.Less(self) {
			smaller = append(smaller, n)
		} else {
			higher = append(higher, n)
		}
	}

	e.drain(e.okCh)
	e.drain(e.coordCh)
	for _, n := range smaller {
		addr, err := net.ResolveUDPAddr("udp", n.ID.Addr())
		if err != nil {
			continue
		}
		msg := &wire.FailureDetection{Election: &wire.Election{SenderId: string(self)}}
		if err := wire.SendFailureDetection(e.conn, addr, msg); err != nil {
			e.logger.Warn().Err(err).Str("peer", string(n.ID)).Msg("election probe send failed")
		}
	}

	gotOk := len(smaller) > 0 && e.waitAny(ctx, e.okCh, probeTimeout)

	if !gotOk {
		e.becomeLeader(higher)
		return
	}

	winner, ok := e.collectCoordinator(ctx, electionWait)
	if !ok {
		e.logger.Warn().Msg("election wait expired with no coordinator claim; retrying")
		e.Trigger(ctx)
		return
	}
	e.setLeader(winner)
}

// becomeLeader declares self the winner and announces it to every
// higher-identifier member.
func (e *Elector) becomeLeader(higher []types.Node) {
	self := e.view.Self()
	e.setLeader(self)
	msg := &wire.FailureDetection{Coordinator: &wire.Coordinator{LeaderId: string(self)}}
	for _, n := range higher {
		addr, err := net.ResolveUDPAddr("udp", n.ID.Addr())
		if err != nil {
			continue
		}
		if err := wire.SendFailureDetection(e.conn, addr, msg); err != nil {
			e.logger.Warn().Err(err).Str("peer", string(n.ID)).Msg("coordinator announcement failed")
		}
	}
}

func (e *Elector) setLeader(id types.NodeID) {
	e.mu.Lock()
	e.leader = id
	e.mu.Unlock()

	if id == e.view.Self() {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
	e.logger.Info().Str("leader", string(id)).Msg("leader established")
	if e.events != nil {
		e.events.Publish(&events.Event{Type: events.EventElectionWon, Message: string(id)})
	}

	select {
	case e.LeaderWakeup <- struct{}{}:
	default:
	}
}

// waitAny blocks until ch yields a value or timeout elapses, returning
// whether a value arrived.
func (e *Elector) waitAny(ctx context.Context, ch chan types.NodeID, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// collectCoordinator waits up to timeout for one or more Coordinator
// claims, adopting the smallest-identifier claimant once the window
// closes.
func (e *Elector) collectCoordinator(ctx context.Context, timeout time.Duration) (types.NodeID, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var winner types.NodeID
	seen := false
	for {
		select {
		case id := <-e.coordCh:
			if !seen || id.Less(winner) {
				winner = id
			}
			seen = true
		case <-deadline.C:
			return winner, seen
		case <-ctx.Done():
			return winner, seen
		}
	}
}

func (e *Elector) drain(ch chan types.NodeID) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
