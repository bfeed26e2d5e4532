package membership

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewViewContainsSelf(t *testing.T) {
	self := types.NodeID("10.0.0.1_12307_1")
	v := NewView(self)

	n, ok := v.Get(self)
	require.True(t, ok)
	assert.Equal(t, uint64(1), n.Heartbeat)
	assert.False(t, n.Suspected)
}

func TestMergeGossipInsertsUnknownSender(t *testing.T) {
	v := NewView("10.0.0.1_12307_1")
	sender := types.NodeID("10.0.0.2_12307_2")

	v.MergeGossip(sender, nil)

	n, ok := v.Get(sender)
	require.True(t, ok)
	assert.Equal(t, uint64(1), n.Heartbeat)
}

func TestMergeGossipIgnoresLowerHeartbeat(t *testing.T) {
	v := NewView("10.0.0.1_12307_1")
	remote := types.NodeID("10.0.0.3_12307_3")
	v.MergeGossip(remote, nil)
	v.MergeGossip(remote, nil) // bumps remote's own heartbeat to 2

	entries := map[types.NodeID]remoteEntry{
		remote: {heartbeat: 1, lastSeen: time.Now()},
	}
	sender := types.NodeID("10.0.0.2_12307_2")
	v.MergeGossip(sender, entries)

	n, _ := v.Get(remote)
	assert.Equal(t, uint64(2), n.Heartbeat, "a strictly lower heartbeat must never be applied")
}

func TestMergeGossipOverwritesOnHigherHeartbeat(t *testing.T) {
	v := NewView("10.0.0.1_12307_1")
	remote := types.NodeID("10.0.0.3_12307_3")
	v.MergeGossip(remote, nil)

	entries := map[types.NodeID]remoteEntry{
		remote: {heartbeat: 99, lastSeen: time.Now()},
	}
	v.MergeGossip("10.0.0.2_12307_2", entries)

	n, _ := v.Get(remote)
	assert.Equal(t, uint64(99), n.Heartbeat)
}

func TestApplyTimeoutsSuspectsThenCleans(t *testing.T) {
	v := NewView("10.0.0.1_12307_1")
	stale := types.NodeID("10.0.0.4_12307_4")
	v.MergeGossip(stale, nil)

	v.mu.Lock()
	v.nodes[stale].LastSeen = time.Now().Add(-(TFail + time.Millisecond))
	v.mu.Unlock()

	removed := v.ApplyTimeouts()
	assert.Empty(t, removed)
	n, _ := v.Get(stale)
	assert.True(t, n.Suspected)

	v.mu.Lock()
	v.nodes[stale].LastSeen = time.Now().Add(-(TClean + time.Millisecond))
	v.mu.Unlock()

	removed = v.ApplyTimeouts()
	assert.Equal(t, []types.NodeID{stale}, removed)
	_, ok := v.Get(stale)
	assert.False(t, ok)
}

func TestRandomLiveExcludesSuspectedAndCapsAtAvailable(t *testing.T) {
	v := NewView("10.0.0.1_12307_1")
	for i := 2; i <= 4; i++ {
		v.MergeGossip(types.NodeID(fmt.Sprintf("10.0.0.%d_12307_%d", i, i)), nil)
	}
	suspected := types.NodeID("10.0.0.4_12307_4")
	v.mu.Lock()
	v.nodes[suspected].Suspected = true
	v.mu.Unlock()

	picked := v.RandomLive(10, nil)
	assert.LessOrEqual(t, len(picked), 4)
	assert.Len(t, picked, 3)
	for _, n := range picked {
		assert.NotEqual(t, suspected, n.ID)
	}
}
