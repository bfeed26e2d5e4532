/*
Package coordinator implements the leader's per-file replication
controller: ReplicaTable (which nodes hold which file), FileActor (the
per-file FIFO queue and 2-permit semaphore that serializes concurrent
reads and writes), and the GET/PUT/LS/DEL entry points that sit on top of
both. Reconcile drains the membership package's failure-event channel and
drives each affected file's replica set back to ReplicationFactor.
*/
package coordinator
