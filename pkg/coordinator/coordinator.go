package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/events"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/types"
)

// MinReplicas is the quorum a successful PUT must draw candidates from.
const MinReplicas = 4

// ReplicationFactor is the steady-state replica count re-replication
// drives every file back toward.
const ReplicationFactor = 4

// ErrInsufficientCapacity is returned when fewer than MinReplicas live
// nodes are available to satisfy a PUT.
var ErrInsufficientCapacity = errors.New("coordinator: fewer than minimum live nodes available")

// ErrNotFound is returned by GET/DEL when the file has no known replicas.
var ErrNotFound = errors.New("coordinator: file not found")

// Coordinator is the leader's per-file replication controller: it owns
// the ReplicaTable and the FileActor registry, and drives re-replication
// off the membership failure-event channel.
type Coordinator struct {
	view     *membership.View
	replicas *ReplicaTable
	events   *events.Broker
	logger   zerolog.Logger

	actorsMu sync.Mutex
	actors   map[string]*FileActor
}

// New creates a Coordinator. replicas should already have been seeded via
// ReplicaTable.LoadSnapshot if warm-start is desired.
func New(view *membership.View, replicas *ReplicaTable, broker *events.Broker) *Coordinator {
	return &Coordinator{
		view:     view,
		replicas: replicas,
		events:   broker,
		logger:   log.WithComponent("coordinator"),
		actors:   make(map[string]*FileActor),
	}
}

func (c *Coordinator) getActor(file string) *FileActor {
	c.actorsMu.Lock()
	defer c.actorsMu.Unlock()
	if a, ok := c.actors[file]; ok {
		return a
	}
	a := newFileActor(file, c.logger, func() { c.evictIfIdle(file) })
	c.actors[file] = a
	metrics.FileActorsTotal.Set(float64(len(c.actors)))
	return a
}

func (c *Coordinator) evictIfIdle(file string) {
	c.actorsMu.Lock()
	defer c.actorsMu.Unlock()
	a, ok := c.actors[file]
	if !ok || a.QueueLen() > 0 {
		return
	}
	if _, exists := c.replicas.Get(file); exists {
		return
	}
	delete(c.actors, file)
	metrics.FileActorsTotal.Set(float64(len(c.actors)))
	go a.Stop()
}

// Get serves a GET: it returns the current replica set (or ErrNotFound)
// and invokes awaitAck synchronously with that result before the request
// is considered complete, per the "waits for a final client
// acknowledgement" contract. Get never mutates the ReplicaTable.
func (c *Coordinator) Get(ctx context.Context, file string, awaitAck func([]types.NodeID, error)) ([]types.NodeID, error) {
	type result struct {
		replicas []types.NodeID
		err      error
	}
	resultCh := make(chan result, 1)

	timer := metrics.NewTimer()
	c.getActor(file).Enqueue(opRead, func() {
		replicas, ok := c.replicas.Get(file)
		var err error
		if !ok || len(replicas) == 0 {
			err = ErrNotFound
		}
		if awaitAck != nil {
			awaitAck(replicas, err)
		}
		resultCh <- result{replicas, err}
	})

	select {
	case r := <-resultCh:
		outcome := "ok"
		if r.err != nil {
			outcome = "not_found"
		}
		metrics.CoordinatorOpsTotal.WithLabelValues("get", outcome).Inc()
		timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "get")
		return r.replicas, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put serves a PUT: it selects MinReplicas distinct live candidates,
// hands them to receiveActual (the session-level round trip that
// actually transfers bytes and reports which candidates succeeded), and
// installs whichever subset receiveActual reports — even if short of
// MinReplicas, per the partial-success design note.
func (c *Coordinator) Put(ctx context.Context, file string, receiveActual func([]types.NodeID) ([]types.NodeID, error)) ([]types.NodeID, error) {
	type result struct {
		installed []types.NodeID
		err       error
	}
	resultCh := make(chan result, 1)

	timer := metrics.NewTimer()
	c.getActor(file).Enqueue(opWrite, func() {
		candidates := nodeIDs(c.view.RandomLive(MinReplicas, nil))
		if len(candidates) < MinReplicas {
			resultCh <- result{nil, ErrInsufficientCapacity}
			return
		}

		actual, err := receiveActual(candidates)
		if err != nil {
			resultCh <- result{nil, err}
			return
		}

		c.replicas.Set(file, actual)
		if c.events != nil {
			c.events.Publish(&events.Event{Type: events.EventFileReplicated, Message: file})
		}
		resultCh <- result{actual, nil}
	})

	select {
	case r := <-resultCh:
		outcome := "ok"
		if r.err != nil {
			outcome = "error"
		}
		metrics.CoordinatorOpsTotal.WithLabelValues("put", outcome).Inc()
		timer.ObserveDurationVec(metrics.CoordinatorOpDuration, "put")
		return r.installed, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ls returns the replica list for file, or ErrNotFound. Unlike Get it
// carries no client-acknowledgement step.
func (c *Coordinator) Ls(ctx context.Context, file string) ([]types.NodeID, error) {
	type result struct {
		replicas []types.NodeID
		err      error
	}
	resultCh := make(chan result, 1)

	c.getActor(file).Enqueue(opRead, func() {
		replicas, ok := c.replicas.Get(file)
		if !ok {
			resultCh <- result{nil, ErrNotFound}
			return
		}
		resultCh <- result{replicas, nil}
	})

	select {
	case r := <-resultCh:
		metrics.CoordinatorOpsTotal.WithLabelValues("ls", outcomeOf(r.err)).Inc()
		return r.replicas, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Del serves a DEL: deleteFn is handed the current replica set and must
// contact every replica; the ReplicaTable and FileActor entries are
// removed only after deleteFn succeeds.
func (c *Coordinator) Del(ctx context.Context, file string, deleteFn func([]types.NodeID) error) error {
	resultCh := make(chan error, 1)

	c.getActor(file).Enqueue(opWrite, func() {
		replicas, ok := c.replicas.Get(file)
		if !ok {
			resultCh <- ErrNotFound
			return
		}
		if err := deleteFn(replicas); err != nil {
			resultCh <- err
			return
		}
		c.replicas.Delete(file)
		if c.events != nil {
			c.events.Publish(&events.Event{Type: events.EventFileDeleted, Message: file})
		}
		resultCh <- nil
	})

	select {
	case err := <-resultCh:
		metrics.CoordinatorOpsTotal.WithLabelValues("del", outcomeOf(err)).Inc()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func nodeIDs(nodes []types.Node) []types.NodeID {
	out := make([]types.NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
