package coordinator

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/storage"
	"github.com/cuemby/sdfs/pkg/types"
)

// ReplicaTable maps a logical file name to the ordered set of nodes
// believed to hold a replica. It is exclusively owned by the leader.
// Writes are mirrored, best-effort, to a durable snapshot so the next
// elected leader can warm-start.
type ReplicaTable struct {
	mu    sync.RWMutex
	table map[string][]types.NodeID

	snapshot *storage.SnapshotStore
	logger   zerolog.Logger
}

// NewReplicaTable creates an empty table. snapshot may be nil, in which
// case persistence is skipped entirely.
func NewReplicaTable(snapshot *storage.SnapshotStore) *ReplicaTable {
	return &ReplicaTable{
		table:    make(map[string][]types.NodeID),
		snapshot: snapshot,
		logger:   log.WithComponent("replicatable"),
	}
}

// LoadSnapshot seeds the table from the durable snapshot, if any.
func (t *ReplicaTable) LoadSnapshot() error {
	if t.snapshot == nil {
		return nil
	}
	persisted, err := t.snapshot.LoadReplicaTable()
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for file, ids := range persisted {
		nodes := make([]types.NodeID, len(ids))
		for i, id := range ids {
			nodes[i] = types.NodeID(id)
		}
		t.table[file] = nodes
	}
	metrics.ReplicatedFilesTotal.Set(float64(len(t.table)))
	return nil
}

// Get returns a copy of the replica set for file, or false if unknown.
func (t *ReplicaTable) Get(file string) ([]types.NodeID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids, ok := t.table[file]
	if !ok {
		return nil, false
	}
	out := make([]types.NodeID, len(ids))
	copy(out, ids)
	return out, true
}

// Set installs or overwrites the replica set for file. An empty set is
// retained (the entry is not removed — GET will report not-found, per
// the best-effort re-replication semantics).
func (t *ReplicaTable) Set(file string, replicas []types.NodeID) {
	dedup := dedupeNodeIDs(replicas)

	t.mu.Lock()
	t.table[file] = dedup
	size := len(t.table)
	t.mu.Unlock()

	metrics.ReplicatedFilesTotal.Set(float64(size))
	t.persist(file, dedup)
}

// Delete removes the entry for file entirely (used by DEL).
func (t *ReplicaTable) Delete(file string) {
	t.mu.Lock()
	delete(t.table, file)
	size := len(t.table)
	t.mu.Unlock()

	metrics.ReplicatedFilesTotal.Set(float64(size))
	if t.snapshot != nil {
		if err := t.snapshot.DeleteReplicaSet(file); err != nil {
			t.logger.Warn().Err(err).Str("file", file).Msg("failed to persist replica deletion")
		}
	}
}

func (t *ReplicaTable) persist(file string, replicas []types.NodeID) {
	if t.snapshot == nil {
		return
	}
	strs := make([]string, len(replicas))
	for i, id := range replicas {
		strs[i] = string(id)
	}
	if err := t.snapshot.PutReplicaSet(file, strs); err != nil {
		t.logger.Warn().Err(err).Str("file", file).Msg("failed to persist replica set")
	}
}

// PrefixFiles returns every file name beginning with prefix, in the
// momentarily-consistent snapshot order permitted for prefix scans.
func (t *ReplicaTable) PrefixFiles(prefix string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for file := range t.table {
		if len(file) >= len(prefix) && file[:len(prefix)] == prefix {
			out = append(out, file)
		}
	}
	return out
}

// removalResult reports how a ReplicaTable entry shrank after removing
// failed members.
type removalResult struct {
	Prior     int
	Remaining []types.NodeID
}

// RemoveMembers strips every lost ID from every entry, returning the
// before/after state for entries that actually changed. Used by
// re-replication to compute how many replacement replicas are needed.
func (t *ReplicaTable) RemoveMembers(lost map[types.NodeID]bool) map[string]removalResult {
	t.mu.Lock()
	changed := make(map[string]removalResult)
	for file, ids := range t.table {
		prior := len(ids)
		kept := ids[:0:0]
		removedAny := false
		for _, id := range ids {
			if lost[id] {
				removedAny = true
				continue
			}
			kept = append(kept, id)
		}
		if !removedAny {
			continue
		}
		t.table[file] = kept
		changed[file] = removalResult{Prior: prior, Remaining: append([]types.NodeID(nil), kept...)}
	}
	t.mu.Unlock()

	for file, res := range changed {
		t.persist(file, res.Remaining)
	}
	return changed
}

func dedupeNodeIDs(ids []types.NodeID) []types.NodeID {
	seen := make(map[types.NodeID]bool, len(ids))
	out := make([]types.NodeID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
