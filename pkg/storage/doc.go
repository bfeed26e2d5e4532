/*
Package storage provides a BoltDB-backed, best-effort durable snapshot of
the leader's ReplicaTable and KeyIndex so a freshly elected leader can
recover placement decisions without waiting on re-replication from
scratch.

The store is a cache, not a source of truth: the coordinator owns the
authoritative in-memory state and writes through to SnapshotStore on each
mutation; on startup the coordinator seeds itself by reading back whatever
was last persisted.
*/
package storage
