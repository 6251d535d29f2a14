// Package cache implements the Historical Cache (spec.md C3): per
// entity-family windowed history with keyframes, settings/presettings
// change journals, and base_retrieve — the read path every ORM get
// goes through, falling back to the Loader on a miss.
package cache

import (
	"sync"

	"github.com/anacrolix/log"

	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/kv"
)

type Turn = common.Turn
type Tick = common.Tick

func pack(turn Turn, tick Tick) int64 {
	return int64(turn)<<32 | (int64(tick) & 0xffffffff)
}

func unpack(p int64) (Turn, Tick) {
	return Turn(p >> 32), Tick(int32(p))
}

// Change is one recorded write: the sub-key identifies which entry
// within a graph's family changed (a node name, an "orig\x00dest\x00idx"
// edge triple, or an attribute key), Value is what it changed to.
type Change[V any] struct {
	SubKey string
	Value  V
	Unset  bool // true if Value deletes the entry (null in spec.md §3)
}

// ParentOf lets a Family recurse into a branch's parent at the fork
// point (spec.md invariant 4) without depending on package timeline
// directly, keeping cache import-free of the branch tree's own
// bookkeeping.
type ParentOf interface {
	ParentBranch(branch string) (parent string, turnStart Turn, tickStart Tick, ok bool)
}

// Recorder is notified of every write so the plan manager can find,
// for a given (branch,turn,tick), every cache that recorded something
// there (spec.md §4.3 where_cached) — used to sweep a contradicted
// plan's tail out of every family at once.
type Recorder interface {
	MarkWhereCached(branch string, turn Turn, tick Tick, kind, graph string)
	Unmark(branch string, turn Turn, tick Tick, kind, graph string)
}

type branchJournal[V any] struct {
	settings    *kv.WindowDict[int64, []Change[V]]
	presettings *kv.BackWindow[int64, []Change[V]]
	keyframes   *kv.WindowDict[int64, map[string]V]
}

func newBranchJournal[V any]() *branchJournal[V] {
	return &branchJournal[V]{
		settings:    kv.NewWindowDict[int64, []Change[V]](),
		presettings: kv.NewBackWindow[int64, []Change[V]](),
		keyframes:   kv.NewWindowDict[int64, map[string]V](),
	}
}

// Family is one entity-family's windowed history across every graph and
// branch: graph_val, nodes, edges, node_val, or edge_val (spec.md §4.3).
type Family[V any] struct {
	mu       sync.RWMutex
	kind     string
	byGraph  map[string]map[string]*branchJournal[V] // graph -> branch -> journal
	rec      Recorder
	parent   ParentOf
	keycache *KeyCache
	log      log.Logger
}

func NewFamily[V any](kind string, rec Recorder, parent ParentOf, logger log.Logger) *Family[V] {
	return &Family[V]{
		kind:     kind,
		byGraph:  make(map[string]map[string]*branchJournal[V]),
		rec:      rec,
		parent:   parent,
		keycache: NewKeyCache(4096),
		log:      logger,
	}
}

func (f *Family[V]) journal(graph, branch string, create bool) *branchJournal[V] {
	f.mu.Lock()
	defer f.mu.Unlock()
	byBranch, ok := f.byGraph[graph]
	if !ok {
		if !create {
			return nil
		}
		byBranch = make(map[string]*branchJournal[V])
		f.byGraph[graph] = byBranch
	}
	j, ok := byBranch[branch]
	if !ok {
		if !create {
			return nil
		}
		j = newBranchJournal[V]()
		byBranch[branch] = j
	}
	return j
}

// Write records a change at (branch,turn,tick) for subKey within graph,
// journalling it forward (settings) and backward (presettings, storing
// what was there before) and notifying the Recorder for plan bookkeeping.
func (f *Family[V]) Write(graph, branch string, turn Turn, tick Tick, subKey string, value V, unset bool) {
	j := f.journal(graph, branch, true)
	p := pack(turn, tick)

	prevVal, prevUnset, hadPrev := f.retrieveAtPacked(graph, branch, p-1, subKey)
	var prevChange Change[V]
	if hadPrev {
		prevChange = Change[V]{SubKey: subKey, Value: prevVal, Unset: prevUnset}
	} else {
		prevChange = Change[V]{SubKey: subKey, Unset: true}
	}

	f.mu.Lock()
	cur, _ := j.settings.Get(p)
	j.settings.Set(p, append(cur, Change[V]{SubKey: subKey, Value: value, Unset: unset}))
	preCur, _ := j.presettings.Get(p)
	j.presettings.Set(p, append(preCur, prevChange))
	f.mu.Unlock()

	f.keycache.Invalidate(graph, branch, turn)
	f.keycache.MarkSeen(graph, subKey)
	if f.rec != nil {
		f.rec.MarkWhereCached(branch, turn, tick, f.kind, graph)
	}
}

// StoreKeyframe records a full snapshot for graph at (branch,turn,tick).
// Keyframes are never mutated (spec.md §3 Lifecycles).
func (f *Family[V]) StoreKeyframe(graph, branch string, turn Turn, tick Tick, snapshot map[string]V) {
	j := f.journal(graph, branch, true)
	f.mu.Lock()
	defer f.mu.Unlock()
	j.keyframes.Set(pack(turn, tick), snapshot)
}

// HasKeyframe reports whether a keyframe exists exactly at (turn,tick)
// (spec.md §4.4 "if a keyframe already exists at the cursor, return").
func (f *Family[V]) HasKeyframe(graph, branch string, turn Turn, tick Tick) bool {
	j := f.journal(graph, branch, false)
	if j == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := j.keyframes.Get(pack(turn, tick))
	return ok
}

// NearestKeyframe returns the latest keyframe at or before (turn,tick)
// within this exact branch (no parent recursion — callers needing that
// use the keyframe manager, which walks branches itself).
func (f *Family[V]) NearestKeyframe(graph, branch string, turn Turn, tick Tick) (snapshot map[string]V, atTurn Turn, atTick Tick, ok bool) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return nil, 0, 0, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, p, found := j.keyframes.AtOrBefore(pack(turn, tick))
	if !found {
		return nil, 0, 0, false
	}
	t, tk := unpack(p)
	return snap, t, tk, true
}

// NextKeyframe returns the earliest keyframe strictly after (turn,tick)
// within this exact branch — the upper bracket Unload (spec.md §4.7)
// needs alongside NearestKeyframe's lower bracket. No parent recursion:
// a future keyframe only ever lives in the branch it was taken on.
func (f *Family[V]) NextKeyframe(graph, branch string, turn Turn, tick Tick) (snapshot map[string]V, atTurn Turn, atTick Tick, ok bool) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return nil, 0, 0, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	target := pack(turn, tick)
	var (
		p   int64
		has bool
	)
	j.keyframes.Ascend(target+1, func(pp int64, snap map[string]V) bool {
		snapshot, p, has = snap, pp, true
		return false
	})
	if !has {
		return nil, 0, 0, false
	}
	t, tk := unpack(p)
	return snapshot, t, tk, true
}

// Retrieve is base_retrieve (spec.md §4.3): the value effective at the
// end of (turn,tick), recursing into the parent branch at the fork
// point when this branch's own history has nothing to say, per
// invariant 4.
func (f *Family[V]) Retrieve(graph, branch string, turn Turn, tick Tick, subKey string) (value V, unset bool, err error) {
	const maxDepth = 10000
	for depth := 0; ; depth++ {
		if depth > maxDepth {
			var zero V
			return zero, true, common.NewFatalError("base_retrieve: branch parentage cycle or too deep", nil)
		}
		val, uns, ok := f.retrieveNoRecurse(graph, branch, turn, tick, subKey)
		if ok {
			return val, uns, nil
		}
		if f.parent == nil {
			var zero V
			return zero, true, nil
		}
		parentBranch, turnStart, tickStart, hasParent := f.parent.ParentBranch(branch)
		if !hasParent {
			var zero V
			return zero, true, nil
		}
		branch, turn, tick = parentBranch, turnStart, tickStart
	}
}

// ForEachChangeInRange calls fn for every recorded change across every
// graph in branch between the (fromTurn,fromTick) and (toTurn,toTick)
// bounds, fromTurn/fromTick assumed earlier than toTurn/toTick
// regardless of which one is the query's "then" or "now". When forward
// is true it walks settings ascending over (from, to] — the forward
// half of get_delta (spec.md §4.6). When forward is false it walks
// presettings descending over (from, to] starting at the later bound,
// reading "value before this tick" instead — the backward half.
func (f *Family[V]) ForEachChangeInRange(branch string, fromTurn Turn, fromTick Tick, toTurn Turn, toTick Tick, forward bool, fn func(graph string, turn Turn, tick Tick, c Change[V])) {
	fromPacked, toPacked := pack(fromTurn, fromTick), pack(toTurn, toTick)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for graph, byBranch := range f.byGraph {
		j, ok := byBranch[branch]
		if !ok {
			continue
		}
		if forward {
			j.settings.Ascend(fromPacked+1, func(p int64, changes []Change[V]) bool {
				if p > toPacked {
					return false
				}
				t, tk := unpack(p)
				for _, c := range changes {
					fn(graph, t, tk, c)
				}
				return true
			})
		} else {
			j.presettings.Descend(toPacked, func(p int64, changes []Change[V]) bool {
				if p <= fromPacked {
					return false
				}
				t, tk := unpack(p)
				for _, c := range changes {
					fn(graph, t, tk, c)
				}
				return true
			})
		}
	}
}

// retrieveNoRecurse answers from this branch alone: ok is false only
// when this branch's settings+keyframes say nothing at all about
// subKey at or before (turn,tick), meaning the caller should consult
// the parent branch.
func (f *Family[V]) retrieveNoRecurse(graph, branch string, turn Turn, tick Tick, subKey string) (value V, unset bool, ok bool) {
	return f.retrieveAtPacked(graph, branch, pack(turn, tick), subKey)
}

// retrieveAtPacked is retrieveNoRecurse taking the target as an already
// packed (turn,tick) value, so callers that need "one packed slot
// before this write" (Write, for presettings) don't have to reconstruct
// a (Turn,Tick) pair by decrementing Tick alone — which breaks at a
// turn boundary, since tick 0 has no valid "tick -1" within the same
// turn.
func (f *Family[V]) retrieveAtPacked(graph, branch string, target int64, subKey string) (value V, unset bool, ok bool) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return value, false, false
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	kfSnap, kfPacked, haveKF := j.keyframes.AtOrBefore(target)
	scanFrom := int64(0)
	if haveKF {
		scanFrom = kfPacked
	}

	var (
		bestPacked int64 = -1
		bestChange Change[V]
		foundAny   bool
	)
	j.settings.Ascend(scanFrom, func(p int64, changes []Change[V]) bool {
		if p > target {
			return false
		}
		for _, c := range changes {
			if c.SubKey != subKey {
				continue
			}
			if !foundAny || p >= bestPacked {
				bestPacked, bestChange, foundAny = p, c, true
			}
		}
		return true
	})
	if foundAny {
		return bestChange.Value, bestChange.Unset, true
	}
	if haveKF {
		v, present := kfSnap[subKey]
		if !present {
			return value, true, true
		}
		return v, false, true
	}
	return value, false, false
}

// Remove deletes the single change recorded at exactly (branch,turn,tick)
// for graph, across settings and presettings (spec.md §4.5 plan
// contradiction / §4.7 unload truncation use this to forget a tick
// without disturbing neighbours).
func (f *Family[V]) Remove(graph, branch string, turn Turn, tick Tick) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return
	}
	p := pack(turn, tick)
	f.mu.Lock()
	j.settings.Delete(p)
	j.presettings.Delete(p)
	f.mu.Unlock()
	f.keycache.Invalidate(graph, branch, turn)
	if f.rec != nil {
		f.rec.Unmark(branch, turn, tick, f.kind, graph)
	}
}

// TruncateBefore forgets everything strictly before (turn,tick) for
// graph/branch — forward half of Unload's retained-window trim.
func (f *Family[V]) TruncateBefore(graph, branch string, turn Turn, tick Tick) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return
	}
	p := pack(turn, tick)
	f.mu.Lock()
	defer f.mu.Unlock()
	j.settings.TruncateBefore(p)
	j.presettings.TruncateBefore(p)
	j.keyframes.TruncateBefore(p)
	f.keycache.Invalidate(graph, branch, 0)
}

// TruncateAfter forgets everything strictly after (turn,tick).
func (f *Family[V]) TruncateAfter(graph, branch string, turn Turn, tick Tick) {
	j := f.journal(graph, branch, false)
	if j == nil {
		return
	}
	p := pack(turn, tick)
	f.mu.Lock()
	defer f.mu.Unlock()
	j.settings.TruncateAfter(p)
	j.presettings.TruncateAfter(p)
	j.keyframes.TruncateAfter(p)
	f.keycache.Invalidate(graph, branch, 0)
}

// DropBranch forgets an entire branch's journal for graph (Unload drops
// branches that no longer bracket the cursor entirely, spec.md §4.7).
func (f *Family[V]) DropBranch(graph, branch string) {
	f.mu.Lock()
	if byBranch, ok := f.byGraph[graph]; ok {
		delete(byBranch, branch)
	}
	f.mu.Unlock()
	f.keycache.Invalidate(graph, branch, 0)
}

// KeySetAt computes (and caches) the set of sub-keys present in graph at
// (branch,turn,tick) — the "key set at time" index of spec.md §4.3,
// derived lazily from the nearest keyframe plus journal replay.
func (f *Family[V]) KeySetAt(graph, branch string, turn Turn, tick Tick) map[string]struct{} {
	target := pack(turn, tick)
	if keys, ok := f.keycache.Get(graph, branch, target); ok {
		return keys
	}
	j := f.journal(graph, branch, false)
	keys := make(map[string]struct{})
	if j == nil {
		f.keycache.Set(graph, branch, target, keys)
		return keys
	}
	f.mu.RLock()
	kfSnap, kfPacked, haveKF := j.keyframes.AtOrBefore(target)
	if haveKF {
		for k, v := range kfSnap {
			if !isZeroUnset(v) {
				keys[k] = struct{}{}
			}
		}
	}
	scanFrom := int64(0)
	if haveKF {
		scanFrom = kfPacked
	}
	j.settings.Ascend(scanFrom, func(p int64, changes []Change[V]) bool {
		if p > target {
			return false
		}
		for _, c := range changes {
			if c.Unset {
				delete(keys, c.SubKey)
			} else {
				keys[c.SubKey] = struct{}{}
			}
		}
		return true
	})
	f.mu.RUnlock()
	f.keycache.Set(graph, branch, target, keys)
	return keys
}

func isZeroUnset[V any](v V) bool {
	switch x := any(v).(type) {
	case bool:
		return !x
	default:
		return false
	}
}
