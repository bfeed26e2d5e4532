// Package types holds the data model shared across the membership,
// coordinator, and dispatch packages: cluster node identifiers and
// nodes, logical file keys, and map/reduce job descriptors.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NodeID is the grammar `<ip>_<port>_<joinTime>`, compared byte-wise for
// both gossip ordering and bully election priority. Go string comparison
// is already byte-wise, so the type is a plain string alias rather than a
// custom comparable struct.
type NodeID string

// NewNodeID builds a NodeID from its three components, preserving the
// `_`-separated grammar bit-exact.
func NewNodeID(ip string, port int, joinTime time.Time) NodeID {
	return NodeID(fmt.Sprintf("%s_%d_%d", ip, port, joinTime.UnixNano()))
}

// IP returns the IP component of the identifier.
func (n NodeID) IP() string {
	parts := strings.SplitN(string(n), "_", 3)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// Port returns the port component of the identifier, or 0 if malformed.
func (n NodeID) Port() int {
	parts := strings.SplitN(string(n), "_", 3)
	if len(parts) < 2 {
		return 0
	}
	p, _ := strconv.Atoi(parts[1])
	return p
}

// Addr returns "ip:port" suitable for dialing.
func (n NodeID) Addr() string {
	parts := strings.SplitN(string(n), "_", 3)
	if len(parts) < 2 {
		return string(n)
	}
	return parts[0] + ":" + parts[1]
}

// Less reports whether n has election priority over other: lower
// byte-value identifiers win bully elections.
func (n NodeID) Less(other NodeID) bool {
	return string(n) < string(other)
}

// Node is a cluster member as tracked by the local MemberView.
type Node struct {
	ID        NodeID
	Heartbeat uint64
	LastSeen  time.Time
	Suspected bool
}

// JobKind distinguishes MAP from REDUCE job descriptors.
type JobKind string

const (
	JobKindMap    JobKind = "map"
	JobKindReduce JobKind = "reduce"
)

// JobDescriptor describes a MAP or REDUCE job submitted by a client. Only
// the fields relevant to Kind are populated; it exists solely for the
// duration of dispatch (§3 lifecycle).
type JobDescriptor struct {
	Kind JobKind

	Executable string
	NumWorkers int
	Args       []string

	// MAP-only
	OutputPrefix string
	InputPrefix  string

	// REDUCE-only
	InputPrefixForReduce string
	OutputFile           string
	DeleteAfter          bool

	// SubmitterAddr is the client's peer address, used to fetch the
	// executable for upload to workers.
	SubmitterAddr string
}

// FileKey represents the logical name `<prefix>_<key>` with structural
// equality, tying the dispatcher's KeyIndex to the coordinator's
// ReplicaTable.
type FileKey struct {
	Prefix string
	Key    string
}

// String renders the logical file name.
func (k FileKey) String() string {
	return k.Prefix + "_" + k.Key
}
