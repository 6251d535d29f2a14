// Package loader implements the Loader/Unloader (spec.md C7): bringing a
// window of history into the Historical Cache from the persistence
// backend on demand, and trimming it back down once the working set
// grows past what's comfortable to keep resident (spec.md §4.7/§5).
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/anacrolix/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/keyframe"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/timeline"
)

type Turn = common.Turn
type Tick = common.Tick

// Window is the inclusive (turn,tick) range a branch currently has loaded
// into the cache for some graph.
type Window struct {
	TurnFrom Turn
	TickFrom Tick
	TurnTo   Turn
	TickTo   Tick
}

func (w Window) contains(turn Turn, tick Tick) bool {
	return common.CompareTT(turn, tick, w.TurnFrom, w.TickFrom) >= 0 &&
		common.CompareTT(turn, tick, w.TurnTo, w.TickTo) <= 0
}

type loadedKey struct{ graph, branch string }

// Loader streams rows from a backend.Backend into a cache.Store on
// demand (LoadAt) and drops what's no longer needed around the live
// cursor (Unload), per spec.md §4.7. It also reconstructs Timeline and
// plan.Manager bookkeeping from the backend at process start (Bootstrap).
type Loader struct {
	store  *cache.Store
	tl     *timeline.Timeline
	kf     *keyframe.Manager
	be     backend.Backend
	intern *kv.Intern
	log    log.Logger

	mu     sync.Mutex
	loaded map[loadedKey]Window

	sf  singleflight.Group
	sem chan struct{}

	mem *Budget
}

// NewLoader wires a Loader over store/tl/kf/be. intern must be the same
// intern table the rest of the process uses to encode/decode keyframe
// blobs (spec.md §4.4/§6), so node and edge ids round-trip identically
// across a restart. It samples the host's available memory once at
// construction (spec.md §5's cache-arranger sizing input).
func NewLoader(store *cache.Store, tl *timeline.Timeline, kf *keyframe.Manager, be backend.Backend, intern *kv.Intern, logger log.Logger) *Loader {
	return &Loader{
		store:  store,
		tl:     tl,
		kf:     kf,
		be:     be,
		intern: intern,
		log:    logger,
		loaded: make(map[loadedKey]Window),
		sem:    make(chan struct{}, 8),
		mem:    SampleBudget(),
	}
}

// Budget reports the Loader's most recent memory-pressure sample.
func (l *Loader) Budget() Budget {
	return *l.mem
}

// LoadedWindow reports the (turn,tick) bracket currently resident for
// graph/branch, for diagnostics. Package orm does not call it, and its
// LoadedTurns gauge is not fed from it.
func (l *Loader) LoadedWindow(graph, branch string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.loaded[loadedKey{graph, branch}]
	return w, ok
}

// NoteWrite extends the loaded bracket for every graph in graphs on
// branch to include (turn,tick), without streaming anything from the
// backend — the bookkeeping half of _nbtt rule 6, for a coordinate the
// cache write already covers directly.
func (l *Loader) NoteWrite(branch string, turn Turn, tick Tick, graphs []string) {
	l.extendLoaded(branch, turn, tick, graphs)
}

// LoadAt materializes every graph in graphs on branch so that (turn,tick)
// is answerable from the cache alone: the nearest-at-or-before keyframe
// (possibly synthesized recursively through ancestor branches) plus every
// row recorded between it and the cursor. Graphs are loaded concurrently,
// bounded by Loader's semaphore, via golang.org/x/sync/errgroup so the
// first failure cancels the rest.
func (l *Loader) LoadAt(ctx context.Context, graphs []string, branch string, turn Turn, tick Tick) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, graph := range graphs {
		graph := graph
		g.Go(func() error {
			select {
			case l.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-l.sem }()
			return l.loadGraph(ctx, graph, branch, turn, tick)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	l.extendLoaded(branch, turn, tick, graphs)
	return nil
}

func (l *Loader) extendLoaded(branch string, turn Turn, tick Tick, graphs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, graph := range graphs {
		k := loadedKey{graph, branch}
		w, ok := l.loaded[k]
		if !ok {
			l.loaded[k] = Window{TurnFrom: turn, TickFrom: tick, TurnTo: turn, TickTo: tick}
			continue
		}
		if common.CompareTT(turn, tick, w.TurnFrom, w.TickFrom) < 0 {
			w.TurnFrom, w.TickFrom = turn, tick
		}
		if common.CompareTT(turn, tick, w.TurnTo, w.TickTo) > 0 {
			w.TurnTo, w.TickTo = turn, tick
		}
		l.loaded[k] = w
	}
}

// loadGraph is LoadAt's per-graph body. It's a no-op if the cache already
// brackets (turn,tick) for this graph/branch.
func (l *Loader) loadGraph(ctx context.Context, graph, branch string, turn Turn, tick Tick) error {
	l.mu.Lock()
	w, covered := l.loaded[loadedKey{graph, branch}]
	l.mu.Unlock()
	if covered && w.contains(turn, tick) {
		return nil
	}

	sfKey := fmt.Sprintf("%s\x00%s\x00%d\x00%d", graph, branch, turn, tick)
	_, err, _ := l.sf.Do(sfKey, func() (any, error) {
		return nil, l.materialize(graph, branch, turn, tick)
	})
	return err
}

// materialize walks back through the backend's own keyframe rows (not
// the cache — the whole point is the cache may be empty) to find the
// nearest one at or before (turn,tick), recursing into ancestor branches
// when this branch has none, then streams every backend row between that
// point and the cursor into the cache, one branch segment at a time.
func (l *Loader) materialize(graph, branch string, turn Turn, tick Tick) error {
	segments, baseSnap, err := l.planSegments(graph, branch, turn, tick)
	if err != nil {
		return err
	}
	if baseSnap != nil {
		l.kf.Install(baseSnap)
	}
	for _, seg := range segments {
		if err := l.streamSegment(graph, seg); err != nil {
			return err
		}
	}
	return nil
}

// decodeKeyframeRow reconstructs a *keyframe.Snapshot from a backend row
// (see backend.KeyframeRow's doc comment for why only ValsBlob is read).
func decodeKeyframeRow(row backend.KeyframeRow, intern *kv.Intern) (*keyframe.Snapshot, error) {
	snap, err := keyframe.DecodeBlob(row.ValsBlob, row.Checksum, intern)
	if err != nil {
		return nil, fmt.Errorf("loader: decode keyframe blob: %w", err)
	}
	return snap, nil
}

type segment struct {
	branch           string
	turnFrom, turnTo Turn
	tickFrom, tickTo Tick
}

// planSegments finds the base keyframe (in branch or an ancestor) and
// the chain of per-branch windows from there up to (turn,tick), crossing
// fork boundaries the same way delta.Compose does via
// timeline.Timeline.IterParentBTT. At each hop the bound to search against
// is that hop's own BTT coordinate: the query point itself for the
// leaf branch, the fork point (expressed in the ancestor's own history)
// for every ancestor after it — exactly what IterParentBTT yields.
func (l *Loader) planSegments(graph, branch string, turn Turn, tick Tick) ([]segment, *keyframe.Snapshot, error) {
	allRows, err := l.be.KeyframesList()
	if err != nil {
		return nil, nil, fmt.Errorf("loader: keyframes_list: %w", err)
	}

	var path []timeline.BTT
	for btt := range l.tl.IterParentBTT(branch, turn, tick) {
		path = append(path, btt)
		row, found := nearestKeyframeRow(allRows, graph, btt.Branch, btt.Turn, btt.Tick)
		if !found {
			continue
		}
		full, gotBlob, err := l.be.GetKeyframe(graph, row.Branch, row.Turn, row.Tick)
		if err != nil {
			return nil, nil, fmt.Errorf("loader: get keyframe: %w", err)
		}
		if !gotBlob {
			continue
		}
		snap, err := decodeKeyframeRow(full, l.intern)
		if err != nil {
			return nil, nil, err
		}
		return buildSegments(path, snap.Turn, snap.Tick), snap, nil
	}
	if len(path) == 0 {
		return nil, nil, nil
	}
	root := path[len(path)-1]
	if rb, ok := l.tl.Branch(root.Branch); ok {
		root.Turn, root.Tick = rb.TurnStart, rb.TickStart
	}
	snap := keyframe.NewEmptySnapshot(graph, root.Branch, root.Turn, root.Tick)
	return buildSegments(path, root.Turn, root.Tick), snap, nil
}

// nearestKeyframeRow picks the latest-coordinate row for graph/branch at
// or before (turn,tick) out of a KeyframesList dump.
func nearestKeyframeRow(rows []backend.KeyframeRow, graph, branch string, turn Turn, tick Tick) (backend.KeyframeRow, bool) {
	var best backend.KeyframeRow
	found := false
	for _, r := range rows {
		if r.Graph != graph || r.Branch != branch {
			continue
		}
		if common.CompareTT(r.Turn, r.Tick, turn, tick) > 0 {
			continue
		}
		if !found || common.CompareTT(r.Turn, r.Tick, best.Turn, best.Tick) > 0 {
			best, found = r, true
		}
	}
	return best, found
}

// buildSegments turns path (deepest branch first, root-most last, as
// IterParentBTT yields it) plus the base coordinate into root-to-leaf
// per-branch windows to stream forward.
func buildSegments(path []timeline.BTT, baseTurn Turn, baseTick Tick) []segment {
	// reverse into root-first order
	rev := make([]timeline.BTT, len(path))
	for i, btt := range path {
		rev[len(path)-1-i] = btt
	}
	segs := make([]segment, 0, len(rev))
	fromTurn, fromTick := baseTurn, baseTick
	for _, btt := range rev {
		toTurn, toTick := btt.Turn, btt.Tick
		segs = append(segs, segment{branch: btt.Branch, turnFrom: fromTurn, tickFrom: fromTick, turnTo: toTurn, tickTo: toTick})
		fromTurn, fromTick = toTurn, toTick
	}
	return segs
}

// streamSegment loads every row kind for graph/branch within seg's bounds
// from the backend and writes it into the cache's families directly
// (bypassing plan tagging — these are already-committed historical rows,
// not new tentative writes).
func (l *Loader) streamSegment(graph string, seg segment) error {
	nodes, err := l.be.LoadNodes(graph, seg.branch, seg.turnFrom, seg.tickFrom, seg.turnTo, seg.tickTo)
	if err != nil {
		return fmt.Errorf("loader: load nodes: %w", err)
	}
	for _, row := range nodes {
		l.store.Nodes.Write(graph, seg.branch, row.Turn, row.Tick, row.Node, row.Exists, !row.Exists)
	}

	edges, err := l.be.LoadEdges(graph, seg.branch, seg.turnFrom, seg.tickFrom, seg.turnTo, seg.tickTo)
	if err != nil {
		return fmt.Errorf("loader: load edges: %w", err)
	}
	for _, row := range edges {
		key := kv.EncodeEdgeKey(row.Orig, row.Dest, row.Idx)
		l.store.Edges.Write(graph, seg.branch, row.Turn, row.Tick, key, row.Exists, !row.Exists)
	}

	graphVal, err := l.be.LoadGraphVal(graph, seg.branch, seg.turnFrom, seg.tickFrom, seg.turnTo, seg.tickTo)
	if err != nil {
		return fmt.Errorf("loader: load graph_val: %w", err)
	}
	for _, row := range graphVal {
		l.store.GraphVal.Write(graph, seg.branch, row.Turn, row.Tick, row.Key, row.Value, row.Null)
	}

	nodeVal, err := l.be.LoadNodeVal(graph, seg.branch, seg.turnFrom, seg.tickFrom, seg.turnTo, seg.tickTo)
	if err != nil {
		return fmt.Errorf("loader: load node_val: %w", err)
	}
	for _, row := range nodeVal {
		key := kv.EncodeNodeValKey(row.Node, row.Key)
		l.store.NodeVal.Write(graph, seg.branch, row.Turn, row.Tick, key, row.Value, row.Null)
	}

	edgeVal, err := l.be.LoadEdgeVal(graph, seg.branch, seg.turnFrom, seg.tickFrom, seg.turnTo, seg.tickTo)
	if err != nil {
		return fmt.Errorf("loader: load edge_val: %w", err)
	}
	for _, row := range edgeVal {
		key := kv.EncodeEdgeValKey(row.Orig, row.Dest, row.Idx, row.Key)
		l.store.EdgeVal.Write(graph, seg.branch, row.Turn, row.Tick, key, row.Value, row.Null)
	}

	return nil
}

// Unload implements spec.md §4.7's retained-window trim: for graph on
// branch, keep only the smallest keyframe-to-keyframe bracket around
// (turn,tick) and forget everything else in this branch; every other
// branch is dropped from the cache entirely. If branch has no keyframe
// at all yet, Unload leaves it alone (nothing safe to reconstruct from if
// asked for again).
func (l *Loader) Unload(graph, branch string, turn Turn, tick Tick) {
	_, lowTurn, lowTick, hasLow := l.store.Nodes.NearestKeyframe(graph, branch, turn, tick)
	if !hasLow {
		return
	}
	_, highTurn, highTick, hasHigh := l.store.Nodes.NextKeyframe(graph, branch, turn, tick)
	if !hasHigh {
		highTurn, highTick = turn, tick
	}

	for _, b := range l.tl.All() {
		if b.Name == branch {
			continue
		}
		l.store.DropBranch(graph, b.Name)
	}
	l.store.TruncateWindow(graph, branch, lowTurn, lowTick, highTurn, highTick)

	l.mu.Lock()
	for k := range l.loaded {
		if k.graph == graph && k.branch != branch {
			delete(l.loaded, k)
		}
	}
	l.loaded[loadedKey{graph, branch}] = Window{TurnFrom: lowTurn, TickFrom: lowTick, TurnTo: highTurn, TickTo: highTick}
	l.mu.Unlock()
	l.log.Printf("unload: %s@%s retained [%d.%d, %d.%d]", graph, branch, lowTurn, lowTick, highTurn, highTick)
}
