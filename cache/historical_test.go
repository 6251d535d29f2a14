package cache

import (
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParent is a minimal ParentOf for tests: "alt" forks from "trunk"
// at the given fork point, trunk has no parent.
type fakeParent struct {
	forkBranch        string
	forkTurn, forkTick int64
}

func (p *fakeParent) ParentBranch(branch string) (string, Turn, Tick, bool) {
	if branch == p.forkBranch {
		return "trunk", Turn(p.forkTurn), Tick(p.forkTick), true
	}
	return "", 0, 0, false
}

func TestRetrieveWithinSingleBranch(t *testing.T) {
	f := NewFamily[any]("node_val", nil, nil, log.Logger{})
	f.Write("phys", "trunk", 0, 1, "x", 10, false)
	f.Write("phys", "trunk", 3, 1, "x", 20, false)

	v, unset, err := f.Retrieve("phys", "trunk", 0, 1, "x")
	require.NoError(t, err)
	assert.False(t, unset)
	assert.Equal(t, any(10), v)

	v, unset, err = f.Retrieve("phys", "trunk", 2, 0, "x")
	require.NoError(t, err)
	assert.False(t, unset)
	assert.Equal(t, any(10), v, "latest write at or before (2,0) is still the turn-0 write")

	v, unset, err = f.Retrieve("phys", "trunk", 3, 5, "x")
	require.NoError(t, err)
	assert.False(t, unset)
	assert.Equal(t, any(20), v)
}

func TestRetrieveBeforeAnyWriteIsUnset(t *testing.T) {
	f := NewFamily[any]("node_val", nil, nil, log.Logger{})
	f.Write("phys", "trunk", 5, 0, "x", 1, false)

	_, unset, err := f.Retrieve("phys", "trunk", 0, 0, "x")
	require.NoError(t, err)
	assert.True(t, unset)
}

func TestRetrieveRecursesToParentBranch(t *testing.T) {
	parent := &fakeParent{forkBranch: "alt", forkTurn: 5, forkTick: 0}
	f := NewFamily[any]("node_val", nil, parent, log.Logger{})

	f.Write("phys", "trunk", 2, 0, "x", "trunk-value", false)
	f.Write("phys", "alt", 6, 0, "y", "alt-value", false)

	v, unset, err := f.Retrieve("phys", "alt", 5, 0, "x")
	require.NoError(t, err)
	assert.False(t, unset)
	assert.Equal(t, any("trunk-value"), v, "alt inherits trunk's history up to its fork point")

	v, unset, err = f.Retrieve("phys", "alt", 6, 0, "y")
	require.NoError(t, err)
	assert.False(t, unset)
	assert.Equal(t, any("alt-value"), v)
}

func TestRetrieveUsesNearestKeyframeThenReplays(t *testing.T) {
	f := NewFamily[any]("node_val", nil, nil, log.Logger{})
	f.StoreKeyframe("phys", "trunk", 10, 0, map[string]any{"x": "kf-value"})
	f.Write("phys", "trunk", 12, 0, "x", "later-value", false)

	v, _, err := f.Retrieve("phys", "trunk", 10, 0, "x")
	require.NoError(t, err)
	assert.Equal(t, any("kf-value"), v)

	v, _, err = f.Retrieve("phys", "trunk", 11, 0, "x")
	require.NoError(t, err)
	assert.Equal(t, any("kf-value"), v, "no write between keyframe and turn 11, keyframe value stands")

	v, _, err = f.Retrieve("phys", "trunk", 12, 0, "x")
	require.NoError(t, err)
	assert.Equal(t, any("later-value"), v)
}

func TestWriteThenUnset(t *testing.T) {
	f := NewFamily[bool]("nodes", nil, nil, log.Logger{})
	f.Write("phys", "trunk", 1, 0, "alice", true, false)
	f.Write("phys", "trunk", 2, 0, "alice", false, true)

	_, unset, err := f.Retrieve("phys", "trunk", 1, 0, "alice")
	require.NoError(t, err)
	assert.False(t, unset)

	_, unset, err = f.Retrieve("phys", "trunk", 2, 0, "alice")
	require.NoError(t, err)
	assert.True(t, unset, "deletion at turn 2 makes the node absent from there on")
}

func TestKeySetAt(t *testing.T) {
	f := NewFamily[bool]("nodes", nil, nil, log.Logger{})
	f.Write("phys", "trunk", 1, 0, "alice", true, false)
	f.Write("phys", "trunk", 2, 0, "bob", true, false)
	f.Write("phys", "trunk", 3, 0, "alice", false, true)

	keys := f.KeySetAt("phys", "trunk", 2, 0)
	_, hasAlice := keys["alice"]
	_, hasBob := keys["bob"]
	assert.True(t, hasAlice)
	assert.True(t, hasBob)

	keys = f.KeySetAt("phys", "trunk", 3, 0)
	_, hasAlice = keys["alice"]
	assert.False(t, hasAlice, "alice was deleted by turn 3")
}

func TestStoreForgetTickClearsEveryFamilyAtTick(t *testing.T) {
	s := NewStore(nil, log.Logger{})
	s.NodeVal.Write("phys", "trunk", 4, 0, "x", "v", false)
	s.Nodes.Write("phys", "trunk", 4, 0, "alice", true, false)

	refs := s.TicksAt("trunk", 4, 0)
	assert.Len(t, refs, 2)

	s.ForgetTick("trunk", 4, 0)

	_, unset, err := s.NodeVal.Retrieve("phys", "trunk", 4, 0, "x")
	require.NoError(t, err)
	assert.True(t, unset)

	_, unset, err = s.Nodes.Retrieve("phys", "trunk", 4, 0, "alice")
	require.NoError(t, err)
	assert.True(t, unset)

	assert.Empty(t, s.TicksAt("trunk", 4, 0))
}

func TestKeyCacheBloomNegativeLookup(t *testing.T) {
	kc := NewKeyCache(16)
	assert.False(t, kc.MightHaveExisted("phys", "never-written"))
	kc.MarkSeen("phys", "alice")
	assert.True(t, kc.MightHaveExisted("phys", "alice"))
}
