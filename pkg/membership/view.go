package membership

import (
	"math/rand"
	"sync"
	"time"

	"github.com/cuemby/sdfs/pkg/types"
)

// Default protocol timings (see design notes on failure thresholds).
const (
	GossipPeriod = 200 * time.Millisecond
	TFail        = 2200 * time.Millisecond
	TClean       = 5000 * time.Millisecond
)

// View is the local node's picture of the cluster: a concurrent,
// read-many/write-one map of NodeID to Node. The local node is always
// present with its current heartbeat.
type View struct {
	mu      sync.RWMutex
	self    types.NodeID
	nodes   map[types.NodeID]*types.Node
	rng     *rand.Rand
	rngLock sync.Mutex
}

// NewView creates a View seeded with the local node.
func NewView(self types.NodeID) *View {
	v := &View{
		self:  self,
		nodes: make(map[types.NodeID]*types.Node),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	v.nodes[self] = &types.Node{ID: self, Heartbeat: 1, LastSeen: time.Now()}
	return v
}

// Self returns the local node's identifier.
func (v *View) Self() types.NodeID { return v.self }

// Bump increases the local node's own heartbeat, as gossip round emission
// does before sending.
func (v *View) Bump() {
	v.mu.Lock()
	defer v.mu.Unlock()
	self := v.nodes[v.self]
	self.Heartbeat++
	self.LastSeen = time.Now()
}

// Get returns a copy of the node entry for id, or false if absent.
func (v *View) Get(id types.NodeID) (types.Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.nodes[id]
	if !ok {
		return types.Node{}, false
	}
	return *n, true
}

// Snapshot returns a point-in-time copy of every node in the view,
// including suspected ones.
func (v *View) Snapshot() []types.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]types.Node, 0, len(v.nodes))
	for _, n := range v.nodes {
		out = append(out, *n)
	}
	return out
}

// Live returns a snapshot of every non-suspected node, including self.
func (v *View) Live() []types.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]types.Node, 0, len(v.nodes))
	for _, n := range v.nodes {
		if !n.Suspected {
			out = append(out, *n)
		}
	}
	return out
}

// LiveOthers returns a snapshot of every non-suspected node excluding
// self, used by gossip peer selection and bully probing.
func (v *View) LiveOthers() []types.Node {
	live := v.Live()
	out := make([]types.Node, 0, len(live))
	for _, n := range live {
		if n.ID != v.self {
			out = append(out, n)
		}
	}
	return out
}

// RandomLive returns n distinct live nodes chosen uniformly at random,
// or fewer if the view does not contain n live nodes.
func (v *View) RandomLive(n int, exclude map[types.NodeID]bool) []types.Node {
	candidates := v.Live()
	pool := candidates[:0:0]
	for _, c := range candidates {
		if exclude != nil && exclude[c.ID] {
			continue
		}
		pool = append(pool, c)
	}

	v.rngLock.Lock()
	v.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	v.rngLock.Unlock()

	if n > len(pool) {
		n = len(pool)
	}
	return pool[:n]
}

// MergeGossip applies the merge rules from a received MemberList digest:
// insert an unknown sender with heartbeat 1, otherwise bump its heartbeat
// and refresh its time; for every other remote entry, overwrite only on a
// strictly higher heartbeat, or insert it if unknown and within the
// cleanup window.
func (v *View) MergeGossip(sender types.NodeID, entries map[types.NodeID]remoteEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	if s, ok := v.nodes[sender]; ok {
		s.Heartbeat++
		s.LastSeen = now
		s.Suspected = false
	} else {
		v.nodes[sender] = &types.Node{ID: sender, Heartbeat: 1, LastSeen: now}
	}

	for id, e := range entries {
		if id == v.self {
			continue
		}
		if local, ok := v.nodes[id]; ok {
			if e.heartbeat > local.Heartbeat {
				local.Heartbeat = e.heartbeat
				local.Suspected = false
				local.LastSeen = now
			}
			continue
		}
		if now.Sub(e.lastSeen) < TClean {
			v.nodes[id] = &types.Node{ID: id, Heartbeat: e.heartbeat, LastSeen: e.lastSeen}
		}
	}
}

// remoteEntry is the decoded form of a single gossiped MemberEntry.
type remoteEntry struct {
	heartbeat uint64
	lastSeen  time.Time
}

// ApplyTimeouts marks nodes stale past TFail as suspected and removes
// those stale past TClean, returning the IDs removed in this pass so the
// caller can publish them on the failure-event channel.
func (v *View) ApplyTimeouts() []types.NodeID {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := time.Now()
	var removed []types.NodeID
	for id, n := range v.nodes {
		if id == v.self {
			continue
		}
		age := now.Sub(n.LastSeen)
		switch {
		case age >= TClean:
			delete(v.nodes, id)
			removed = append(removed, id)
		case age >= TFail:
			n.Suspected = true
		}
	}
	return removed
}

// NonFailedEntries returns the local gossip payload: every non-failed
// local node's {id, heartbeat, last-seen}, for inclusion in an outbound
// MemberList.
func (v *View) NonFailedEntries() []types.Node {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]types.Node, 0, len(v.nodes))
	for _, n := range v.nodes {
		if !n.Suspected {
			out = append(out, *n)
		}
	}
	return out
}
