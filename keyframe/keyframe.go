// Package keyframe implements the Keyframe Manager (spec.md C4):
// de-novo, from-delta, and recursive snapshot synthesis, and the
// commutative content hash used to identify a snapshot independent of
// map iteration order.
package keyframe

import (
	"github.com/anacrolix/log"

	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/delta"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/timeline"
)

type Turn = common.Turn
type Tick = common.Tick

// Snapshot is one graph's full state at a (branch,turn,tick): the
// materialised node/edge/value maps of spec.md §4.4's de-novo path.
type Snapshot struct {
	Graph   string
	Branch  string
	Turn    Turn
	Tick    Tick
	Nodes   map[string]bool
	Edges   map[string]bool // keyed by kv.EncodeEdgeKey
	NodeVal map[string]map[string]any
	EdgeVal map[string]map[string]any // keyed by orig\x00dest\x00idx
	GraphVal map[string]any
}

// NewEmptySnapshot builds an empty Snapshot at (graph,branch,turn,tick) —
// the base case the loader installs when a branch's ancestry has no
// keyframe anywhere (a brand new graph never snapshotted before).
func NewEmptySnapshot(graph, branch string, turn Turn, tick Tick) *Snapshot {
	return newSnapshot(graph, branch, turn, tick)
}

func newSnapshot(graph, branch string, turn Turn, tick Tick) *Snapshot {
	return &Snapshot{
		Graph: graph, Branch: branch, Turn: turn, Tick: tick,
		Nodes:    make(map[string]bool),
		Edges:    make(map[string]bool),
		NodeVal:  make(map[string]map[string]any),
		EdgeVal:  make(map[string]map[string]any),
		GraphVal: make(map[string]any),
	}
}

// Sink receives a freshly synthesized keyframe so the caller (package
// orm, via the persistence backend) can append it to the pending-writes
// list of spec.md §4.4.
type Sink interface {
	Keyframe(snap *Snapshot)
}

// Manager synthesizes and records keyframes for one Store, recursing
// into parent branches through tl when a branch has no keyframe of its
// own yet (spec.md §4.4 recursive synthesis).
type Manager struct {
	store *cache.Store
	tl    *timeline.Timeline
	sink  Sink
	log   log.Logger
}

func NewManager(store *cache.Store, tl *timeline.Timeline, sink Sink, logger log.Logger) *Manager {
	return &Manager{store: store, tl: tl, sink: sink, log: logger}
}

// SnapDeNovo materialises a full snapshot of graph at (branch,turn,tick)
// directly from the live cache state — snap_keyframe_de_novo_graph.
func (m *Manager) SnapDeNovo(graph, branch string, turn Turn, tick Tick) *Snapshot {
	snap := newSnapshot(graph, branch, turn, tick)

	for node := range m.store.Nodes.KeySetAt(graph, branch, turn, tick) {
		snap.Nodes[node] = true
	}
	for ek := range m.store.Edges.KeySetAt(graph, branch, turn, tick) {
		snap.Edges[ek] = true
	}
	for key := range m.store.GraphVal.KeySetAt(graph, branch, turn, tick) {
		v, unset, err := m.store.GraphVal.Retrieve(graph, branch, turn, tick, key)
		if err == nil && !unset {
			snap.GraphVal[key] = v
		}
	}
	for sk := range m.store.NodeVal.KeySetAt(graph, branch, turn, tick) {
		node, key, ok := kv.DecodeNodeValKey(sk)
		if !ok {
			continue
		}
		v, unset, err := m.store.NodeVal.Retrieve(graph, branch, turn, tick, sk)
		if err != nil || unset {
			continue
		}
		attrs, ok := snap.NodeVal[node]
		if !ok {
			attrs = make(map[string]any)
			snap.NodeVal[node] = attrs
		}
		attrs[key] = v
	}
	for sk := range m.store.EdgeVal.KeySetAt(graph, branch, turn, tick) {
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(sk)
		if !ok {
			continue
		}
		v, unset, err := m.store.EdgeVal.Retrieve(graph, branch, turn, tick, sk)
		if err != nil || unset {
			continue
		}
		ek := kv.EncodeEdgeKey(orig, dest, idx)
		attrs, ok := snap.EdgeVal[ek]
		if !ok {
			attrs = make(map[string]any)
			snap.EdgeVal[ek] = attrs
		}
		attrs[key] = v
	}

	m.record(snap)
	return snap
}

// SnapFromDelta applies d (as produced by package delta, then.branch ==
// now.branch required by spec.md §4.4) onto the keyframe at then,
// storing the result as the keyframe at now. copyToBranch, if non-empty,
// also stores the result as a keyframe on that branch at the same
// (turn,tick) — the "mirror into another branch" option.
func (m *Manager) SnapFromDelta(graph, branch string, thenTurn Turn, thenTick Tick, nowTurn Turn, nowTick Tick, d *delta.Delta, copyToBranch string) (*Snapshot, error) {
	snap := m.keyframeAt(graph, branch, thenTurn, thenTick)
	if snap == nil {
		// no prior keyframe at `then`: synthesize de-novo there first.
		snap = m.SnapDeNovo(graph, branch, thenTurn, thenTick)
	}
	result := ApplyDelta(snap, d, graph, branch, nowTurn, nowTick)
	m.record(result)
	if copyToBranch != "" {
		mirrored := *result
		mirrored.Branch = copyToBranch
		m.record(&mirrored)
	}
	return result, nil
}

// Snap is snap_keyframe (spec.md §4.4): if a keyframe already exists at
// the cursor, it's returned unchanged. Otherwise the nearest keyframe at
// or before the cursor in this branch is found and replayed forward; if
// this branch has none, the parent branch is synthesized recursively at
// its own fork point and the result replayed forward across the fork.
// With no parent, a de-novo snapshot is materialised directly.
func (m *Manager) Snap(graph, branch string, turn Turn, tick Tick) (*Snapshot, error) {
	if m.store.Nodes.HasKeyframe(graph, branch, turn, tick) {
		return m.keyframeAt(graph, branch, turn, tick), nil
	}

	if snap, found, fromTurn, fromTick := m.nearestInBranch(graph, branch, turn, tick); found {
		d := delta.GetDelta(m.store, branch, fromTurn, fromTick, turn, tick)
		result := ApplyDelta(snap, d, graph, branch, turn, tick)
		m.record(result)
		return result, nil
	}

	parentBranch, forkTurn, forkTick, hasParent := m.tl.ParentBranch(branch)
	if !hasParent {
		return m.SnapDeNovo(graph, branch, turn, tick), nil
	}

	parentSnap, err := m.Snap(graph, parentBranch, forkTurn, forkTick)
	if err != nil {
		return nil, err
	}
	d := delta.Compose(m.store, m.tl, parentBranch, forkTurn, forkTick, branch, turn, tick)
	result := ApplyDelta(parentSnap, d, graph, branch, turn, tick)
	m.record(result)
	return result, nil
}

func (m *Manager) nearestInBranch(graph, branch string, turn Turn, tick Tick) (snap *Snapshot, found bool, atTurn Turn, atTick Tick) {
	_, at, atT, ok := m.store.Nodes.NearestKeyframe(graph, branch, turn, tick)
	if !ok {
		return nil, false, 0, 0
	}
	return m.keyframeAt(graph, branch, at, atT), true, at, atT
}

// keyframeAt reassembles a *Snapshot from the five families' recorded
// keyframes at exactly (turn,tick) — used once SnapDeNovo (or an
// earlier Snap call) has already stored one there.
func (m *Manager) keyframeAt(graph, branch string, turn Turn, tick Tick) *Snapshot {
	nodesSnap, atTurn, atTick, ok := m.store.Nodes.NearestKeyframe(graph, branch, turn, tick)
	if !ok || atTurn != turn || atTick != tick {
		return nil
	}
	edgesSnap, _, _, _ := m.store.Edges.NearestKeyframe(graph, branch, turn, tick)
	graphValSnap, _, _, _ := m.store.GraphVal.NearestKeyframe(graph, branch, turn, tick)
	nodeValSnap, _, _, _ := m.store.NodeVal.NearestKeyframe(graph, branch, turn, tick)
	edgeValSnap, _, _, _ := m.store.EdgeVal.NearestKeyframe(graph, branch, turn, tick)

	snap := newSnapshot(graph, branch, turn, tick)
	for k, v := range nodesSnap {
		snap.Nodes[k] = v
	}
	for k, v := range edgesSnap {
		snap.Edges[k] = v
	}
	for k, v := range graphValSnap {
		snap.GraphVal[k] = v
	}
	for sk, v := range nodeValSnap {
		node, key, ok := kv.DecodeNodeValKey(sk)
		if !ok {
			continue
		}
		attrs, ok := snap.NodeVal[node]
		if !ok {
			attrs = make(map[string]any)
			snap.NodeVal[node] = attrs
		}
		attrs[key] = v
	}
	for sk, v := range edgeValSnap {
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(sk)
		if !ok {
			continue
		}
		ek := kv.EncodeEdgeKey(orig, dest, idx)
		attrs, ok := snap.EdgeVal[ek]
		if !ok {
			attrs = make(map[string]any)
			snap.EdgeVal[ek] = attrs
		}
		attrs[key] = v
	}
	return snap
}

// Install registers a snapshot obtained from elsewhere (the loader,
// reconstructing one from a backend.KeyframeRow blob) into the cache and
// notifies the sink, exactly as if it had just been synthesized by Snap.
func (m *Manager) Install(snap *Snapshot) {
	m.record(snap)
}

// record stores snap into every family's keyframe journal and notifies
// the sink for persistence.
func (m *Manager) record(snap *Snapshot) {
	m.store.Nodes.StoreKeyframe(snap.Graph, snap.Branch, snap.Turn, snap.Tick, snap.Nodes)
	m.store.Edges.StoreKeyframe(snap.Graph, snap.Branch, snap.Turn, snap.Tick, snap.Edges)
	m.store.GraphVal.StoreKeyframe(snap.Graph, snap.Branch, snap.Turn, snap.Tick, snap.GraphVal)

	flatNodeVal := make(map[string]any)
	for node, attrs := range snap.NodeVal {
		for key, v := range attrs {
			flatNodeVal[kv.EncodeNodeValKey(node, key)] = v
		}
	}
	m.store.NodeVal.StoreKeyframe(snap.Graph, snap.Branch, snap.Turn, snap.Tick, flatNodeVal)

	flatEdgeVal := make(map[string]any)
	for ek, attrs := range snap.EdgeVal {
		orig, dest, idx, ok := kv.DecodeEdgeKey(ek)
		if !ok {
			continue
		}
		for key, v := range attrs {
			flatEdgeVal[kv.EncodeEdgeValKey(orig, dest, idx, key)] = v
		}
	}
	m.store.EdgeVal.StoreKeyframe(snap.Graph, snap.Branch, snap.Turn, snap.Tick, flatEdgeVal)

	if m.sink != nil {
		m.sink.Keyframe(snap)
	}
}
