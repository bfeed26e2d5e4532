package membership

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
	"github.com/rs/zerolog"
)

// GossipPort is the well-known fixed UDP port for membership exchange.
const GossipPort = 12307

// Gossiper runs the send and receive halves of the membership protocol
// over a single UDP socket bound to GossipPort.
type Gossiper struct {
	view       *View
	conn       *net.UDPConn
	introducer string
	peerIdx    int
	logger     zerolog.Logger
}

// NewGossiper binds the gossip socket. introducer is a well-known bootstrap
// "ip:port" contacted whenever the local view has fewer than two live
// peers; it may be empty if this node is its own introducer.
func NewGossiper(view *View, introducer string) (*Gossiper, error) {
	addr := &net.UDPAddr{Port: GossipPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Gossiper{
		view:       view,
		conn:       conn,
		introducer: introducer,
		logger:     log.WithComponent("gossip"),
	}, nil
}

// Close releases the gossip socket.
func (g *Gossiper) Close() error { return g.conn.Close() }

// Run drives both the sender loop and the receiver loop until ctx is
// cancelled. It blocks; callers should invoke it from its own goroutine.
func (g *Gossiper) Run(ctx context.Context) {
	go g.receiveLoop(ctx)
	g.sendLoop(ctx)
}

func (g *Gossiper) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(GossipPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.view.Bump()
			g.round()
		}
	}
}

// round sends one MemberList to up to three peers, stepping a rotating
// index through LiveOthers(), and also to the introducer when the node is
// isolated (fewer than two live peers). LiveOthers() is built by map
// iteration, so its order differs between rounds; no separately shuffled
// peer order is kept.
func (g *Gossiper) round() {
	peers := g.view.LiveOthers()
	digest := g.digest()

	if len(peers) < 2 && g.introducer != "" {
		if addr, err := net.ResolveUDPAddr("udp", g.introducer); err == nil {
			g.send(addr, digest)
		}
	}

	if len(peers) == 0 {
		return
	}

	n := 3
	if n > len(peers) {
		n = len(peers)
	}
	for i := 0; i < n; i++ {
		peer := peers[g.peerIdx%len(peers)]
		g.peerIdx++
		addr, err := net.ResolveUDPAddr("udp", peer.ID.Addr())
		if err != nil {
			g.logger.Warn().Err(err).Str("peer", string(peer.ID)).Msg("unresolvable gossip peer")
			continue
		}
		g.send(addr, digest)
	}
}

func (g *Gossiper) digest() *wire.FailureDetection {
	entries := g.view.NonFailedEntries()
	members := make([]*wire.MemberEntry, 0, len(entries))
	for _, n := range entries {
		members = append(members, &wire.MemberEntry{
			Id:        string(n.ID),
			Heartbeat: n.Heartbeat,
			LastSeen:  n.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return &wire.FailureDetection{
		MemberList: &wire.MemberList{
			SenderId: string(g.view.Self()),
			Members:  members,
		},
	}
}

func (g *Gossiper) send(addr *net.UDPAddr, fd *wire.FailureDetection) {
	if err := wire.SendFailureDetection(g.conn, addr, fd); err != nil {
		g.logger.Warn().Err(err).Str("addr", addr.String()).Msg("gossip send failed")
	}
}

func (g *Gossiper) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fd, _, err := wire.RecvFailureDetection(g.conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn().Err(err).Msg("gossip receive failed")
			continue
		}
		if fd.MemberList == nil {
			continue
		}
		g.mergeDigest(fd.MemberList)
	}
}

func (g *Gossiper) mergeDigest(list *wire.MemberList) {
	entries := make(map[types.NodeID]remoteEntry, len(list.Members))
	for _, m := range list.Members {
		t, err := time.Parse(time.RFC3339, m.LastSeen)
		if err != nil {
			t = time.Now()
		}
		entries[types.NodeID(m.Id)] = remoteEntry{heartbeat: m.Heartbeat, lastSeen: t}
	}
	g.view.MergeGossip(types.NodeID(list.SenderId), entries)
}
