package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/sdfs/pkg/metrics"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

func (k opKind) weight() int64 {
	if k == opWrite {
		return 2
	}
	return 1
}

func (k opKind) opposite() opKind {
	if k == opWrite {
		return opRead
	}
	return opWrite
}

// antiStarvationWindow is the run length of same-kind requests that
// triggers an out-of-order insert for the opposite kind.
const antiStarvationWindow = 4

type queuedOp struct {
	kind opKind
	run  func()
}

// FileActor is the per-file serialization point described in the leader
// file coordinator design: a FIFO queue feeding a 2-permit semaphore,
// where a read holds one permit and a write holds both. Requests are
// dispatched in queue order, each dispatch spawning an independent
// goroutine, except that a new request is inserted immediately before the
// fourth (last) entry of the first run of four consecutive opposite-kind
// requests found anywhere in the queue, to bound starvation.
type FileActor struct {
	file string

	mu    sync.Mutex
	queue []*queuedOp

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	sem *semaphore.Weighted

	onIdle func()
	logger zerolog.Logger
}

func newFileActor(file string, logger zerolog.Logger, onIdle func()) *FileActor {
	a := &FileActor{
		file:   file,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		sem:    semaphore.NewWeighted(2),
		onIdle: onIdle,
		logger: logger,
	}
	go a.dispatchLoop()
	return a
}

// Enqueue inserts an operation, applying the anti-starvation reorder
// before waking the dispatch loop.
func (a *FileActor) Enqueue(kind opKind, run func()) {
	a.mu.Lock()
	a.queue = insertAntiStarvation(a.queue, &queuedOp{kind: kind, run: run})
	depth := len(a.queue)
	a.mu.Unlock()

	metrics.FileQueueDepth.WithLabelValues(a.file).Set(float64(depth))

	select {
	case a.notify <- struct{}{}:
	default:
	}
}

// insertAntiStarvation scans every antiStarvationWindow-sized window of
// the whole queue for the first run of consecutive opposite-kind
// entries, and inserts op immediately before the last entry of that run.
// If no such run exists, op is appended at the tail.
func insertAntiStarvation(queue []*queuedOp, op *queuedOp) []*queuedOp {
	n := len(queue)
	opposite := op.kind.opposite()
	insertIdx := n
	for i := 0; i+antiStarvationWindow <= n; i++ {
		allOpposite := true
		for _, q := range queue[i : i+antiStarvationWindow] {
			if q.kind != opposite {
				allOpposite = false
				break
			}
		}
		if allOpposite {
			insertIdx = i + antiStarvationWindow - 1
			break
		}
	}

	out := make([]*queuedOp, 0, n+1)
	out = append(out, queue[:insertIdx]...)
	out = append(out, op)
	out = append(out, queue[insertIdx:]...)
	return out
}

func (a *FileActor) dispatchLoop() {
	for {
		op, ok := a.pop()
		if !ok {
			select {
			case <-a.notify:
				continue
			case <-a.done:
				return
			}
		}

		if err := a.sem.Acquire(context.Background(), op.kind.weight()); err != nil {
			return
		}

		a.wg.Add(1)
		go func(op *queuedOp) {
			defer a.wg.Done()
			defer a.sem.Release(op.kind.weight())
			op.run()
			a.afterDispatch()
		}(op)
	}
}

func (a *FileActor) pop() (*queuedOp, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil, false
	}
	op := a.queue[0]
	a.queue = a.queue[1:]
	metrics.FileQueueDepth.WithLabelValues(a.file).Set(float64(len(a.queue)))
	return op, true
}

func (a *FileActor) afterDispatch() {
	a.mu.Lock()
	empty := len(a.queue) == 0
	a.mu.Unlock()
	if empty && a.onIdle != nil {
		a.onIdle()
	}
}

// QueueLen reports the current queue depth, used by the registry to
// decide whether an idle actor is safe to evict.
func (a *FileActor) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// Stop halts the dispatch loop; in-flight operations are allowed to
// finish.
func (a *FileActor) Stop() {
	close(a.done)
	a.wg.Wait()
}
