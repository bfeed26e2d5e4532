/*
Package types defines the core data structures shared by every subsystem:
NodeID (the bit-exact `<ip>_<port>_<joinTime>` identifier grammar), Node,
JobDescriptor, and FileKey.

These types deliberately carry no behavior beyond small accessors — the
owning packages (membership, coordinator, dispatch) hold the concurrent
collections (MemberView, ReplicaTable, KeyIndex) that give the types their
lifecycle.
*/
package types
