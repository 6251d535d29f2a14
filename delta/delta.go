// Package delta implements the Delta Engine (spec.md C6): projecting a
// window of recorded changes into the nested delta structure of §4.6,
// forward or backward (one packed (turn,tick) range query serves windows
// within a turn and across turns alike), and cross-branch composition via
// the branch tree's restartable parent iterator.
package delta

import (
	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/timeline"
)

type Turn = common.Turn
type Tick = common.Tick

// Value is a delta entry: Null means "delete this key" (spec.md §4.6's
// `value | null`), distinguishing an explicit deletion from "unchanged".
type Value struct {
	Val  any
	Null bool
}

// GraphDelta is one graph's slice of a Delta.
type GraphDelta struct {
	Nodes    map[string]bool
	Edges    map[string]bool // keyed by kv.EncodeEdgeKey
	NodeVal  map[string]map[string]Value
	EdgeVal  map[string]map[string]Value // keyed by orig\x00dest\x00idx, then attr key
	GraphVal map[string]Value
}

func newGraphDelta() *GraphDelta {
	return &GraphDelta{
		Nodes:    make(map[string]bool),
		Edges:    make(map[string]bool),
		NodeVal:  make(map[string]map[string]Value),
		EdgeVal:  make(map[string]map[string]Value),
		GraphVal: make(map[string]Value),
	}
}

// Delta is the nested projection of spec.md §4.6, one GraphDelta per
// graph touched within the window.
type Delta struct {
	Graphs map[string]*GraphDelta
}

func New() *Delta {
	return &Delta{Graphs: make(map[string]*GraphDelta)}
}

func (d *Delta) graph(name string) *GraphDelta {
	g, ok := d.Graphs[name]
	if !ok {
		g = newGraphDelta()
		d.Graphs[name] = g
	}
	return g
}

// Empty reports whether the delta touched nothing at all.
func (d *Delta) Empty() bool {
	return len(d.Graphs) == 0
}

func (d *Delta) applyNode(graph, node string, exists bool) {
	d.graph(graph).Nodes[node] = exists
}

func (d *Delta) applyEdge(graph string, orig, dest string, idx int, exists bool) {
	d.graph(graph).Edges[kv.EncodeEdgeKey(orig, dest, idx)] = exists
}

func (d *Delta) applyNodeVal(graph, node, key string, v Value) {
	g := d.graph(graph)
	m, ok := g.NodeVal[node]
	if !ok {
		m = make(map[string]Value)
		g.NodeVal[node] = m
	}
	m[key] = v
}

func (d *Delta) applyEdgeVal(graph string, orig, dest string, idx int, key string, v Value) {
	g := d.graph(graph)
	ek := kv.EncodeEdgeKey(orig, dest, idx)
	m, ok := g.EdgeVal[ek]
	if !ok {
		m = make(map[string]Value)
		g.EdgeVal[ek] = m
	}
	m[key] = v
}

func (d *Delta) applyGraphVal(graph, key string, v Value) {
	d.graph(graph).GraphVal[key] = v
}

// suppressPostDeletion drops node_val/edge_val entries for any
// node/edge whose final projected existence is false, per spec.md
// §4.6 "node/edge deletions suppress subsequent value changes for the
// same node/edge" — a deleted entity's attribute changes within the
// same window are meaningless once the entity itself is gone.
func (d *Delta) suppressPostDeletion() {
	for _, g := range d.Graphs {
		for node, exists := range g.Nodes {
			if !exists {
				delete(g.NodeVal, node)
			}
		}
		for ek, exists := range g.Edges {
			if !exists {
				delete(g.EdgeVal, ek)
			}
		}
	}
}

// GetDelta computes the change set that takes state-at-(turn0,tick0) to
// state-at-(turn1,tick1), both within branch (spec.md §4.6). The direction
// comes from comparing the (turn,tick) pairs: equal times give an empty
// delta, an earlier start projects forward through settings, a later start
// projects backward through presettings. There is no separate single-turn
// path; a window inside one turn goes through the same range query. Crossing
// a branch boundary is not supported here — see Compose.
func GetDelta(store *cache.Store, branch string, turn0 Turn, tick0 Tick, turn1 Turn, tick1 Tick) *Delta {
	d := New()
	cmp := common.CompareTT(turn0, tick0, turn1, tick1)
	if cmp == 0 {
		return d
	}
	if cmp < 0 {
		projectForward(store, branch, turn0, tick0, turn1, tick1, d)
	} else {
		projectBackward(store, branch, turn1, tick1, turn0, tick0, d)
	}
	d.suppressPostDeletion()
	return d
}

func projectForward(store *cache.Store, branch string, fromTurn Turn, fromTick Tick, toTurn Turn, toTick Tick, d *Delta) {
	store.Nodes.ForEachChangeInRange(branch, fromTurn, fromTick, toTurn, toTick, true, func(graph string, _ Turn, _ Tick, c cache.Change[bool]) {
		d.applyNode(graph, c.SubKey, c.Value && !c.Unset)
	})
	store.Edges.ForEachChangeInRange(branch, fromTurn, fromTick, toTurn, toTick, true, func(graph string, _ Turn, _ Tick, c cache.Change[bool]) {
		orig, dest, idx, ok := kv.DecodeEdgeKey(c.SubKey)
		if !ok {
			return
		}
		d.applyEdge(graph, orig, dest, idx, c.Value && !c.Unset)
	})
	store.GraphVal.ForEachChangeInRange(branch, fromTurn, fromTick, toTurn, toTick, true, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		d.applyGraphVal(graph, c.SubKey, Value{Val: c.Value, Null: c.Unset})
	})
	store.NodeVal.ForEachChangeInRange(branch, fromTurn, fromTick, toTurn, toTick, true, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		node, key, ok := kv.DecodeNodeValKey(c.SubKey)
		if !ok {
			return
		}
		d.applyNodeVal(graph, node, key, Value{Val: c.Value, Null: c.Unset})
	})
	store.EdgeVal.ForEachChangeInRange(branch, fromTurn, fromTick, toTurn, toTick, true, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(c.SubKey)
		if !ok {
			return
		}
		d.applyEdgeVal(graph, orig, dest, idx, key, Value{Val: c.Value, Null: c.Unset})
	})
}

// projectBackward reads presettings between the earlier bound (exclusive)
// and the later bound (inclusive), which record what each entity held
// immediately before the tick's write — exactly the values needed to
// walk state-at-later back to state-at-earlier.
func projectBackward(store *cache.Store, branch string, earlierTurn Turn, earlierTick Tick, laterTurn Turn, laterTick Tick, d *Delta) {
	store.Nodes.ForEachChangeInRange(branch, earlierTurn, earlierTick, laterTurn, laterTick, false, func(graph string, _ Turn, _ Tick, c cache.Change[bool]) {
		d.applyNode(graph, c.SubKey, c.Value && !c.Unset)
	})
	store.Edges.ForEachChangeInRange(branch, earlierTurn, earlierTick, laterTurn, laterTick, false, func(graph string, _ Turn, _ Tick, c cache.Change[bool]) {
		orig, dest, idx, ok := kv.DecodeEdgeKey(c.SubKey)
		if !ok {
			return
		}
		d.applyEdge(graph, orig, dest, idx, c.Value && !c.Unset)
	})
	store.GraphVal.ForEachChangeInRange(branch, earlierTurn, earlierTick, laterTurn, laterTick, false, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		d.applyGraphVal(graph, c.SubKey, Value{Val: c.Value, Null: c.Unset})
	})
	store.NodeVal.ForEachChangeInRange(branch, earlierTurn, earlierTick, laterTurn, laterTick, false, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		node, key, ok := kv.DecodeNodeValKey(c.SubKey)
		if !ok {
			return
		}
		d.applyNodeVal(graph, node, key, Value{Val: c.Value, Null: c.Unset})
	})
	store.EdgeVal.ForEachChangeInRange(branch, earlierTurn, earlierTick, laterTurn, laterTick, false, func(graph string, _ Turn, _ Tick, c cache.Change[any]) {
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(c.SubKey)
		if !ok {
			return
		}
		d.applyEdgeVal(graph, orig, dest, idx, key, Value{Val: c.Value, Null: c.Unset})
	})
}

// Merge folds next on top of d in place, as if next's writes happened
// strictly after d's — used by Compose to stitch per-branch deltas
// together across a fork boundary.
func (d *Delta) Merge(next *Delta) {
	for name, ng := range next.Graphs {
		g := d.graph(name)
		for k, v := range ng.Nodes {
			g.Nodes[k] = v
		}
		for k, v := range ng.Edges {
			g.Edges[k] = v
		}
		for node, attrs := range ng.NodeVal {
			m, ok := g.NodeVal[node]
			if !ok {
				m = make(map[string]Value)
				g.NodeVal[node] = m
			}
			for k, v := range attrs {
				m[k] = v
			}
		}
		for ek, attrs := range ng.EdgeVal {
			m, ok := g.EdgeVal[ek]
			if !ok {
				m = make(map[string]Value)
				g.EdgeVal[ek] = m
			}
			for k, v := range attrs {
				m[k] = v
			}
		}
		for k, v := range ng.GraphVal {
			g.GraphVal[k] = v
		}
	}
	d.suppressPostDeletion()
}

// Compose computes the delta from (fromBranch,fromTurn,fromTick) to
// (toBranch,toTurn,toTick) when the two points are not in the same
// branch, by walking toBranch's ancestry back to fromBranch with
// tl.IterParentBTT (spec.md §4.6 "implementer must compose via parent
// chain") and stitching one GetDelta per branch segment together at
// each fork boundary. fromBranch must be an ancestor of toBranch.
func Compose(store *cache.Store, tl *timeline.Timeline, fromBranch string, fromTurn Turn, fromTick Tick, toBranch string, toTurn Turn, toTick Tick) *Delta {
	if fromBranch == toBranch {
		return GetDelta(store, fromBranch, fromTurn, fromTick, toTurn, toTick)
	}

	var path []string // toBranch, ..., fromBranch
	found := false
	for btt := range tl.IterParentBTT(toBranch, toTurn, toTick) {
		path = append(path, btt.Branch)
		if btt.Branch == fromBranch {
			found = true
			break
		}
	}
	if !found {
		return New()
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	result := New()
	curTurn, curTick := fromTurn, fromTick
	for i := 0; i < len(path)-1; i++ {
		branch, child := path[i], path[i+1]
		childBranch, ok := tl.Branch(child)
		if !ok {
			break
		}
		d := GetDelta(store, branch, curTurn, curTick, childBranch.TurnStart, childBranch.TickStart)
		result.Merge(d)
		curTurn, curTick = childBranch.TurnStart, childBranch.TickStart
	}
	d := GetDelta(store, toBranch, curTurn, curTick, toTurn, toTick)
	result.Merge(d)
	return result
}
