package orm

import (
	"errors"
	"reflect"
	"testing"

	"github.com/anacrolix/log"
	"github.com/stretchr/testify/require"

	"github.com/coldbrook-sim/allegedb/backend/memory"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/keyframe"
)

func newTestORM(t *testing.T) *ORM {
	t.Helper()
	cfg := DefaultConfig()
	cfg.PrefetchRatePerSec = 0 // no background arranger: keep these tests single-threaded
	cfg.KeyframeInterval = 0  // no surprise auto-keyframes mid-scenario
	o, err := Open(cfg, memory.New(), log.Logger{}, nil)
	require.NoError(t, err)
	return o
}

// Scenario 1 (spec.md §8): add nodes at different ticks, read them back
// at each coordinate, moving the cursor both forward and back.
func TestSimpleTimeTravel(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)

	require.NoError(t, g.SetNode("a", true))
	require.NoError(t, o.SetTurn(1))
	require.NoError(t, g.SetNode("b", true))

	require.NoError(t, o.SetTurn(0))
	aExists, err := g.ExistsNode("a")
	require.NoError(t, err)
	require.True(t, aExists)
	bExists, err := g.ExistsNode("b")
	require.NoError(t, err)
	require.False(t, bExists, "b is written at turn 1, must not be visible at turn 0")

	require.NoError(t, o.SetTurn(1))
	aExists, err = g.ExistsNode("a")
	require.NoError(t, err)
	require.True(t, aExists, "a persists forward from turn 0")
	bExists, err = g.ExistsNode("b")
	require.NoError(t, err)
	require.True(t, bExists)
}

// Scenario 2: plan a future write, then contradict it with a plain write
// at or before that coordinate; the planned entry must no longer be
// visible.
func TestPlanThenContradict(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)

	var plannedTurn Turn = 5
	require.NoError(t, o.Plan(true, func(planID uint64) error {
		if err := o.SetTurn(plannedTurn); err != nil {
			return err
		}
		return g.Write("x", 1)
	}))

	// Plan(reset=true) restores the cursor to where it found it.
	branch, turn, _ := o.Time()
	require.Equal(t, "trunk", branch)
	require.Equal(t, Turn(0), turn)

	// An ordinary (non-planning) write at turn 0 contradicts everything
	// tagged at or after it in this branch, including the plan's entry
	// at turn 5.
	require.NoError(t, g.Write("x", 2))

	require.NoError(t, o.SetTurn(plannedTurn))
	v, err := g.Read("x")
	require.NoError(t, err)
	require.Equal(t, 2, v, "planned write at turn 5 should have been contradicted, leaving the turn-0 value visible")
}

// Scenario 3: forking to a new branch must not affect the parent branch,
// and reads at or before the fork point must agree across both.
func TestBranching(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)
	require.NoError(t, g.SetNode("shared", true))

	preForkBranch, preForkTurn, preForkTick := o.Time()

	require.NoError(t, o.SetBranch("alt"))
	require.NoError(t, g.SetNode("alt-only", true))

	altOnly, err := g.ExistsNode("alt-only")
	require.NoError(t, err)
	require.True(t, altOnly)
	shared, err := g.ExistsNode("shared")
	require.NoError(t, err)
	require.True(t, shared, "state written before the fork must carry over")

	require.NoError(t, o.SetBranch(preForkBranch))
	require.NoError(t, o.SetTurn(preForkTurn))
	require.NoError(t, o.SetTick(preForkTick))
	altOnlyOnTrunk, err := g.ExistsNode("alt-only")
	require.NoError(t, err)
	require.False(t, altOnlyOnTrunk, "a write on alt must not leak back into trunk")
}

// Scenario 4: applying get_delta's result onto the keyframe at the
// earlier coordinate must reproduce the keyframe synthesized at the
// later one.
func TestDeltaRoundTrip(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)

	k0, err := o.kf.Snap("G", o.branch, o.turn, o.tick)
	require.NoError(t, err)

	require.NoError(t, g.SetNode("a", true))
	require.NoError(t, o.SetTurn(1))
	require.NoError(t, g.SetNode("b", true))
	require.NoError(t, g.Write("color", "blue"))

	k1Turn, k1Tick := o.turn, o.tick
	k1, err := o.kf.Snap("G", o.branch, k1Turn, k1Tick)
	require.NoError(t, err)

	d := o.GetDelta(o.branch, k0.Turn, k0.Tick, k1Turn, k1Tick)
	applied := keyframe.ApplyDelta(k0, d, "G", o.branch, k1Turn, k1Tick)

	require.True(t, reflect.DeepEqual(applied.Nodes, k1.Nodes))
	require.True(t, reflect.DeepEqual(applied.Edges, k1.Edges))
	require.True(t, reflect.DeepEqual(applied.GraphVal, k1.GraphVal))
	require.True(t, reflect.DeepEqual(applied.NodeVal, k1.NodeVal))
}

// Scenario 5: after unloading the cache window around an old keyframe,
// moving the cursor back into unloaded history must still read correctly
// (the cursor move reloads it).
func TestLoadUnloadReload(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)

	require.NoError(t, g.SetNode("a", true))
	require.NoError(t, o.SnapKeyframe())

	require.NoError(t, o.SetTurn(5))
	require.NoError(t, g.SetNode("b", true))
	require.NoError(t, o.SnapKeyframe())
	lateTurn, lateTick := o.turn, o.tick

	o.ld.Unload("G", "trunk", lateTurn, lateTick)

	require.NoError(t, o.SetTurn(0))
	aExists, err := g.ExistsNode("a")
	require.NoError(t, err)
	require.True(t, aExists, "reload on SetTurn must recover truncated history")
}

// Scenario 6: forward mode refuses branch switches outright and refuses
// moving turn/tick backward.
func TestAdvancingModeEnforcesForwardOnly(t *testing.T) {
	o := newTestORM(t)
	require.NoError(t, o.NewGraph("G", "Graph", nil))
	g, err := o.Graph("G")
	require.NoError(t, err)
	require.NoError(t, g.SetNode("a", true))
	require.NoError(t, o.SetTurn(3))

	err = o.Advancing(func() error {
		return o.SetBranch("alt")
	})
	var timeErr *common.TimeError
	require.True(t, errors.As(err, &timeErr), "branch switch must be refused in advancing mode, got %v", err)

	err = o.Advancing(func() error {
		return o.SetTurn(1)
	})
	require.True(t, errors.As(err, &timeErr), "moving turn backward must be refused in advancing mode, got %v", err)

	err = o.Advancing(func() error {
		return o.SetTurn(4)
	})
	require.NoError(t, err, "moving turn forward must be allowed in advancing mode")
}
