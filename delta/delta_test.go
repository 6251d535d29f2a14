package delta

import (
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/timeline"
)

func TestGetDeltaForward(t *testing.T) {
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})

	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	store.NodeVal.Write("phys", "trunk", 1, 0, kv.EncodeNodeValKey("alice", "age"), 10, false)
	store.NodeVal.Write("phys", "trunk", 2, 0, kv.EncodeNodeValKey("alice", "age"), 11, false)

	d := GetDelta(store, "trunk", 0, 0, 2, 0)
	g := d.Graphs["phys"]
	require.NotNil(t, g)
	v, ok := g.NodeVal["alice"]["age"]
	require.True(t, ok)
	assert.Equal(t, any(11), v.Val)
	assert.False(t, v.Null)
}

func TestGetDeltaSuppressesDeletedNodeVal(t *testing.T) {
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})

	store.Nodes.Write("phys", "trunk", 0, 0, "alice", true, false)
	store.NodeVal.Write("phys", "trunk", 1, 0, kv.EncodeNodeValKey("alice", "age"), 10, false)
	store.Nodes.Write("phys", "trunk", 2, 0, "alice", false, true)

	d := GetDelta(store, "trunk", 0, 0, 2, 0)
	g := d.Graphs["phys"]
	require.NotNil(t, g)
	assert.False(t, g.Nodes["alice"])
	_, hasAge := g.NodeVal["alice"]
	assert.False(t, hasAge, "alice's attribute changes are suppressed once she's deleted")
}

func TestGetDeltaBackward(t *testing.T) {
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})

	store.NodeVal.Write("phys", "trunk", 0, 0, kv.EncodeNodeValKey("alice", "age"), 10, false)
	store.NodeVal.Write("phys", "trunk", 1, 0, kv.EncodeNodeValKey("alice", "age"), 11, false)

	d := GetDelta(store, "trunk", 1, 0, 0, 0)
	g := d.Graphs["phys"]
	require.NotNil(t, g)
	v, ok := g.NodeVal["alice"]["age"]
	require.True(t, ok)
	assert.Equal(t, any(10), v.Val, "walking backward recovers the prior value")
}

func TestGetDeltaSameTimeIsEmpty(t *testing.T) {
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})
	store.NodeVal.Write("phys", "trunk", 0, 0, kv.EncodeNodeValKey("alice", "age"), 10, false)

	d := GetDelta(store, "trunk", 0, 0, 0, 0)
	assert.True(t, d.Empty())
}

func TestComposeCrossBranch(t *testing.T) {
	tl := timeline.New()
	_, err := tl.NewBranch("alt", "trunk", 5, 0)
	require.NoError(t, err)
	store := cache.NewStore(tl, log.Logger{})

	store.NodeVal.Write("phys", "trunk", 2, 0, kv.EncodeNodeValKey("alice", "age"), 10, false)
	store.NodeVal.Write("phys", "alt", 7, 0, kv.EncodeNodeValKey("alice", "age"), 20, false)

	d := Compose(store, tl, "trunk", 0, 0, "alt", 7, 0)
	g := d.Graphs["phys"]
	require.NotNil(t, g)
	v, ok := g.NodeVal["alice"]["age"]
	require.True(t, ok)
	assert.Equal(t, any(20), v.Val)
}
