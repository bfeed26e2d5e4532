/*
Package dispatch implements the leader's map/reduce job dispatcher: it
partitions a job's input across a bounded pool of worker nodes, tracks
each partition through a dispatching -> collecting -> (dispatching |
done | failed) state machine, retries failed partitions against the
remaining live workers, and records MAP's emitted keys in a KeyIndex so
a later REDUCE job can find them.

The package never opens a socket itself; WorkerClient is the seam a
caller (pkg/client, backed by real TCP dials) implements to actually
move bytes. This mirrors how Coordinator.Put/Get take injected callback
functions rather than owning the wire.
*/
package dispatch
