package membership

import (
	"testing"

	"github.com/cuemby/sdfs/pkg/types"
	"github.com/cuemby/sdfs/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestOmitsSuspectedNodes(t *testing.T) {
	self := types.NodeID("10.0.0.1_12307_1")
	v := NewView(self)
	healthy := types.NodeID("10.0.0.2_12307_2")
	v.MergeGossip(healthy, nil)

	suspected := types.NodeID("10.0.0.3_12307_3")
	v.MergeGossip(suspected, nil)
	v.mu.Lock()
	v.nodes[suspected].Suspected = true
	v.mu.Unlock()

	g := &Gossiper{view: v}
	fd := g.digest()

	ids := make(map[string]bool)
	for _, m := range fd.MemberList.Members {
		ids[m.Id] = true
	}
	assert.True(t, ids[string(self)])
	assert.True(t, ids[string(healthy)])
	assert.False(t, ids[string(suspected)], "suspected nodes must not be gossiped")
}

func TestMergeDigestAppliesWireEntries(t *testing.T) {
	self := types.NodeID("10.0.0.1_12307_1")
	v := NewView(self)
	g := &Gossiper{view: v}

	sender := types.NodeID("10.0.0.2_12307_2")
	remote := types.NodeID("10.0.0.3_12307_3")
	list := &wire.MemberList{
		SenderId: string(sender),
		Members: []*wire.MemberEntry{
			{Id: string(remote), Heartbeat: 4, LastSeen: "2026-07-29T12:00:00Z"},
		},
	}

	g.mergeDigest(list)

	n, ok := v.Get(remote)
	require.True(t, ok)
	assert.Equal(t, uint64(4), n.Heartbeat)
}
