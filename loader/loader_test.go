package loader

import (
	"context"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/require"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/backend/memory"
	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/keyframe"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/plan"
	"github.com/coldbrook-sim/allegedb/timeline"
)

type harness struct {
	be    *memory.Backend
	tl    *timeline.Timeline
	store *cache.Store
	kf    *keyframe.Manager
	ld    *Loader
}

func newHarness() *harness {
	be := memory.New()
	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})
	kf := keyframe.NewManager(store, tl, nil, log.Logger{})
	ld := NewLoader(store, tl, kf, be, kv.NewIntern(), log.Logger{})
	return &harness{be: be, tl: tl, store: store, kf: kf, ld: ld}
}

func TestLoadAtStreamsBackendRowsIntoCache(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.be.NewGraph("phys", "DiGraph"))
	require.NoError(t, h.be.SetNode(backend.NodeRow{Graph: "phys", Node: "alice", Branch: "trunk", Turn: 0, Tick: 0, Exists: true}))
	require.NoError(t, h.be.SetNode(backend.NodeRow{Graph: "phys", Node: "bob", Branch: "trunk", Turn: 1, Tick: 0, Exists: true}))
	require.NoError(t, h.be.SetNodeVal(backend.NodeValRow{Graph: "phys", Node: "alice", Key: "age", Branch: "trunk", Turn: 1, Tick: 0, Value: 30}))

	err := h.ld.LoadAt(context.Background(), []string{"phys"}, "trunk", 1, 0)
	require.NoError(t, err)

	_, unset, err := h.store.Nodes.Retrieve("phys", "trunk", 1, 0, "alice")
	require.NoError(t, err)
	require.False(t, unset)

	v, unset, err := h.store.NodeVal.Retrieve("phys", "trunk", 1, 0, kv.EncodeNodeValKey("alice", "age"))
	require.NoError(t, err)
	require.False(t, unset)
	require.Equal(t, 30, v)
}

func TestLoadAtIsIdempotentOnceCovered(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.be.SetNode(backend.NodeRow{Graph: "phys", Node: "alice", Branch: "trunk", Turn: 0, Tick: 0, Exists: true}))

	ctx := context.Background()
	require.NoError(t, h.ld.LoadAt(ctx, []string{"phys"}, "trunk", 0, 0))
	// A second call inside the already-loaded window should short-circuit
	// without error (and without re-streaming, though that's only
	// observable via the singleflight/coverage check, not an assertion
	// here).
	require.NoError(t, h.ld.LoadAt(ctx, []string{"phys"}, "trunk", 0, 0))
}

func TestLoadAtMaterializesFromKeyframeThenAppliesLaterWrites(t *testing.T) {
	h := newHarness()
	intern := kv.NewIntern()
	base := keyframe.NewEmptySnapshot("phys", "trunk", 0, 0)
	base.Nodes["alice"] = true
	base.GraphVal["season"] = "spring"
	blob, checksum, err := keyframe.EncodeBlob(base, intern)
	require.NoError(t, err)
	require.NoError(t, h.be.KeyframesInsertMany([]backend.KeyframeRow{
		{Graph: "phys", Branch: "trunk", Turn: 0, Tick: 0, ValsBlob: blob, Checksum: checksum},
	}))
	require.NoError(t, h.be.SetNode(backend.NodeRow{Graph: "phys", Node: "bob", Branch: "trunk", Turn: 5, Tick: 0, Exists: true}))

	// Use the same intern table the backend's keyframe blob was encoded
	// with, so ids round-trip.
	h.ld = NewLoader(h.store, h.tl, h.kf, h.be, intern, log.Logger{})

	require.NoError(t, h.ld.LoadAt(context.Background(), []string{"phys"}, "trunk", 5, 0))

	v, unset, err := h.store.GraphVal.Retrieve("phys", "trunk", 5, 0, "season")
	require.NoError(t, err)
	require.False(t, unset)
	require.Equal(t, "spring", v)

	_, unset, err = h.store.Nodes.Retrieve("phys", "trunk", 5, 0, "alice")
	require.NoError(t, err)
	require.False(t, unset)
	_, unset, err = h.store.Nodes.Retrieve("phys", "trunk", 5, 0, "bob")
	require.NoError(t, err)
	require.False(t, unset)
}

func TestUnloadRetainsOnlyBracketingWindowAndDropsOtherBranches(t *testing.T) {
	h := newHarness()
	_, err := h.tl.NewBranch("alt", "trunk", 0, 0)
	require.NoError(t, err)

	h.store.Nodes.StoreKeyframe("phys", "trunk", 0, 0, map[string]bool{"alice": true})
	h.store.Nodes.Write("phys", "trunk", 1, 0, "bob", true, false)
	h.store.Nodes.StoreKeyframe("phys", "trunk", 2, 0, map[string]bool{"alice": true, "bob": true})
	h.store.Nodes.Write("phys", "trunk", 3, 0, "carol", true, false)
	h.store.Nodes.Write("phys", "alt", 0, 0, "dora", true, false)
	_, hadDora := h.store.Nodes.KeySetAt("phys", "alt", 0, 0)["dora"]
	require.True(t, hadDora)

	h.ld.Unload("phys", "trunk", 1, 0)

	// the tick at turn 1 lies within [0,2], the retained bracket; turn 3
	// lies outside it and should be gone from the live branch journal.
	_, unset, err := h.store.Nodes.Retrieve("phys", "trunk", 1, 0, "bob")
	require.NoError(t, err)
	require.False(t, unset)
	_, unset, err = h.store.Nodes.Retrieve("phys", "trunk", 3, 0, "carol")
	require.NoError(t, err)
	require.True(t, unset)

	// DropBranch wipes "alt"'s journal entirely; KeySetAt doesn't recurse
	// into a parent branch the way Retrieve does, so an empty result here
	// means the branch's own journal is actually gone, not just silent on
	// this key.
	_, stillHasDora := h.store.Nodes.KeySetAt("phys", "alt", 0, 0)["dora"]
	require.False(t, stillHasDora)
}

func TestUnloadNoopsWithoutAnyKeyframe(t *testing.T) {
	h := newHarness()
	h.store.Nodes.Write("phys", "trunk", 1, 0, "bob", true, false)
	h.ld.Unload("phys", "trunk", 1, 0)
	_, unset, err := h.store.Nodes.Retrieve("phys", "trunk", 1, 0, "bob")
	require.NoError(t, err)
	require.False(t, unset)
}

func TestBootstrapReconstructsTimelineAndPlans(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.NewBranch(backend.BranchRow{Branch: "trunk", TurnStart: 0, TickStart: 0, TurnEnd: 5, TickEnd: 0}))
	require.NoError(t, be.NewGraph("phys", "DiGraph"))
	require.NoError(t, be.PlansInsertMany([]backend.PlanRow{{PlanID: 3, Branch: "trunk", Turn: 2, Tick: 0}}))
	require.NoError(t, be.PlanTicksInsertMany([]backend.PlanTickRow{
		{PlanID: 3, Turn: 4, Tick: 0},
		{PlanID: 3, Turn: 6, Tick: 0},
	}))

	tl := timeline.New()
	store := cache.NewStore(tl, log.Logger{})
	pm := plan.NewManager(store, log.Logger{})

	graphs, err := Bootstrap(be, tl, pm)
	require.NoError(t, err)
	require.Contains(t, graphs, "phys")

	b, ok := tl.Branch("trunk")
	require.True(t, ok)
	require.Equal(t, Turn(5), b.TurnEnd)

	rec, ok := pm.Record(3)
	require.True(t, ok)
	require.Equal(t, "trunk", rec.Branch)

	// a non-planning write at turn 5 should still contradict the restored
	// plan's tick at turn 6 (but not its tick at turn 4), proving the
	// restored tick set is wired into Contradict correctly even without
	// Write content.
	pm.Contradict("trunk", 5, 0)
	_, ok = pm.PlanOf("trunk", 6, 0)
	require.False(t, ok)
	_, ok = pm.PlanOf("trunk", 4, 0)
	require.True(t, ok)
}
