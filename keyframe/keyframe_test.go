package keyframe

import (
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/delta"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/timeline"
)

func newTestManager() (*Manager, *cache.Store, *timeline.Timeline) {
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})
	mgr := NewManager(store, tl, nil, log.Logger{})
	return mgr, store, tl
}

func TestSnapDeNovo(t *testing.T) {
	mgr, store, _ := newTestManager()
	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	store.Nodes.Write("phys", "trunk", 0, 0, "bob", true, false)
	store.NodeVal.Write("phys", "trunk", 0, 0, kv.EncodeNodeValKey("alice", "age"), 30, false)
	store.Edges.Write("phys", "trunk", 0, 0, kv.EncodeEdgeKey("alice", "bob", 0), true, false)

	snap := mgr.SnapDeNovo("phys", "trunk", 0, 0)
	assert.True(t, snap.Nodes["alice"])
	assert.True(t, snap.Nodes["bob"])
	assert.True(t, snap.Edges[kv.EncodeEdgeKey("alice", "bob", 0)])
	assert.Equal(t, any(30), snap.NodeVal["alice"]["age"])

	assert.True(t, store.Nodes.HasKeyframe("phys", "trunk", 0, 0), "SnapDeNovo must record itself")
}

func TestSnapIsIdempotentAtExistingKeyframe(t *testing.T) {
	mgr, store, _ := newTestManager()
	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	first := mgr.SnapDeNovo("phys", "trunk", 0, 0)

	again, err := mgr.Snap("phys", "trunk", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, first.Nodes, again.Nodes)
}

func TestSnapReplaysFromNearestKeyframe(t *testing.T) {
	mgr, store, _ := newTestManager()
	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	mgr.SnapDeNovo("phys", "trunk", 0, 0)

	store.Nodes.Write("phys", "trunk", 5, 0, "bob", true, false)

	snap, err := mgr.Snap("phys", "trunk", 5, 0)
	require.NoError(t, err)
	assert.True(t, snap.Nodes["alice"])
	assert.True(t, snap.Nodes["bob"])
	assert.True(t, store.Nodes.HasKeyframe("phys", "trunk", 5, 0))
}

func TestSnapRecursesIntoParentBranch(t *testing.T) {
	mgr, store, tl := newTestManager()
	_, err := tl.NewBranch("alt", "trunk", 3, 0)
	require.NoError(t, err)

	store.Nodes.Write("phys", "trunk", 1, 0, "alice", true, false)
	store.Nodes.Write("phys", "alt", 4, 0, "bob", true, false)

	snap, err := mgr.Snap("phys", "alt", 4, 0)
	require.NoError(t, err)
	assert.True(t, snap.Nodes["alice"], "alt inherits trunk's nodes up to the fork point")
	assert.True(t, snap.Nodes["bob"])
}

func TestFromDeltaRoundTrip(t *testing.T) {
	mgr, store, _ := newTestManager()
	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	store.NodeVal.Write("phys", "trunk", 0, 0, kv.EncodeNodeValKey("alice", "age"), 30, false)
	then := mgr.SnapDeNovo("phys", "trunk", 0, 0)

	store.NodeVal.Write("phys", "trunk", 5, 0, kv.EncodeNodeValKey("alice", "age"), 31, false)
	store.Nodes.Write("phys", "trunk", 8, 0, "carol", true, false)

	d := delta.GetDelta(store, "trunk", 0, 0, 10, 0)
	now, err := mgr.SnapFromDelta("phys", "trunk", 0, 0, 10, 0, d, "")
	require.NoError(t, err)

	direct := mgr.SnapDeNovo("phys", "trunk", 10, 0)

	assert.Equal(t, direct.Nodes, now.Nodes)
	assert.Equal(t, direct.NodeVal, now.NodeVal)
	assert.NotEqual(t, then.NodeVal["alice"]["age"], now.NodeVal["alice"]["age"])
}

func TestHashIsOrderIndependent(t *testing.T) {
	snapA := newSnapshot("phys", "trunk", 0, 0)
	snapA.Nodes["alice"] = true
	snapA.Nodes["bob"] = true
	snapA.GraphVal["name"] = "world"

	snapB := newSnapshot("phys", "trunk", 0, 0)
	snapB.Nodes["bob"] = true
	snapB.Nodes["alice"] = true
	snapB.GraphVal["name"] = "world"

	assert.Equal(t, Hash(snapA), Hash(snapB))

	snapB.Nodes["carol"] = true
	assert.NotEqual(t, Hash(snapA), Hash(snapB))
}
