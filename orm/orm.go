// Package orm implements the ORM Facade (spec.md C8): the single public
// entry point wiring Timeline, the historical cache, the plan manager,
// the keyframe manager, the delta engine, and the loader together behind
// a re-entrant world lock (spec.md §5). Every mutator flows through
// nbtt; every reader flows through the historical cache's base_retrieve
// (package cache's Family.Retrieve).
package orm

import (
	"context"
	"fmt"

	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/delta"
	"github.com/coldbrook-sim/allegedb/keyframe"
	"github.com/coldbrook-sim/allegedb/kv"
	"github.com/coldbrook-sim/allegedb/loader"
	ormmetrics "github.com/coldbrook-sim/allegedb/orm/metrics"
	"github.com/coldbrook-sim/allegedb/plan"
	"github.com/coldbrook-sim/allegedb/timeline"
)

type Turn = common.Turn
type Tick = common.Tick

// TimeSignal is fired after every successful branch/turn/tick move
// (spec.md §4.8 "time signal"), carrying the six-tuple
// (from-branch,from-turn,from-tick,to-branch,to-turn,to-tick).
type TimeSignal struct {
	FromBranch string
	FromTurn   Turn
	FromTick   Tick
	ToBranch   string
	ToTurn     Turn
	ToTick     Tick
}

// TimeHandler is a callback registered via ORM.OnTime.
type TimeHandler func(TimeSignal)

// ORM is the facade of spec.md C8. Construct with Open.
type ORM struct {
	cfg     Config
	log     log.Logger
	metrics *ormmetrics.Metrics

	be     backend.Backend
	intern *kv.Intern
	tl     *timeline.Timeline
	store  *cache.Store
	kf     *keyframe.Manager
	pm     *plan.Manager
	ld     *loader.Loader

	arranger       *loader.CacheArranger
	arrangerCancel context.CancelFunc

	lock *worldLock

	branch   string
	turn     Turn
	tick     Tick
	planning bool
	forward  bool
	batch    bool
	curPlan  uint64

	graphs          map[string]string // name -> type
	keyframeOnClose map[string]bool
	lastKeyframe    map[string]Turn // graph -> turn of last automatic snapshot

	handlers []TimeHandler
}

var _ keyframe.Sink = (*ORM)(nil)

// Open constructs an ORM over be, bootstrapping Timeline and the plan
// manager from whatever be already has on disk (spec.md §4.9
// all_branches/turns_dump/plans_dump/plan_ticks_dump, via
// loader.Bootstrap) before anything else touches it. reg may be nil, in
// which case a private registry is used (tests; anything that doesn't
// want to pollute the default prometheus registry).
func Open(cfg Config, be backend.Backend, logger log.Logger, reg *prometheus.Registry) (*ORM, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	intern := kv.NewIntern()
	tl := timeline.New()
	store := cache.NewStore(tl, logger)
	pm := plan.NewManager(store, logger)

	o := &ORM{
		cfg:             cfg,
		log:             logger,
		metrics:         ormmetrics.New(reg),
		be:              be,
		intern:          intern,
		tl:              tl,
		store:           store,
		pm:              pm,
		lock:            &worldLock{},
		branch:          timeline.RootBranch,
		batch:           cfg.BatchDefault,
		graphs:          make(map[string]string),
		keyframeOnClose: make(map[string]bool),
		lastKeyframe:    make(map[string]Turn),
	}
	o.kf = keyframe.NewManager(store, tl, o, logger)
	o.ld = loader.NewLoader(store, tl, o.kf, be, intern, logger)

	graphNames, err := loader.Bootstrap(be, tl, pm)
	if err != nil {
		return nil, fmt.Errorf("orm: open: %w", err)
	}
	rows, err := be.AllGraphs()
	if err != nil {
		return nil, fmt.Errorf("orm: open: all_graphs: %w", err)
	}
	for _, r := range rows {
		o.graphs[r.Graph] = r.Type
	}

	// No persisted cursor getter exists on backend.Backend (only the
	// SetBranch/SetTurn writers spec.md §4.9 lists) — resume at the
	// root branch's own restored extent if it has one, else start fresh
	// at (trunk,0,0). See DESIGN.md for why this is an accepted gap
	// rather than an added backend method.
	if root, ok := tl.Branch(timeline.RootBranch); ok && (root.TurnEnd != 0 || root.TickEnd != 0) {
		o.turn, o.tick = root.TurnEnd, root.TickEnd
	}

	if len(graphNames) > 0 {
		if err := o.ld.LoadAt(context.Background(), graphNames, o.branch, o.turn, o.tick); err != nil {
			return nil, fmt.Errorf("orm: open: initial load: %w", err)
		}
	}

	if cfg.PrefetchRatePerSec > 0 {
		arranger := loader.NewCacheArranger(o.ld, o.lock, cfg.PrefetchRatePerSec, cfg.PrefetchBurst, logger)
		ctx, cancel := context.WithCancel(context.Background())
		o.arranger = arranger
		o.arrangerCancel = cancel
		go arranger.Run(ctx)
	}

	return o, nil
}

// graphNames returns every known graph's name, for LoadAt/Unload calls
// that operate across the whole open set.
func (o *ORM) graphNames() []string {
	names := make([]string, 0, len(o.graphs))
	for name := range o.graphs {
		names = append(names, name)
	}
	return names
}

// NewGraph registers a new graph called name of the given type
// ("DiGraph", "Graph", ...; spec.md §4.8 leaves the type vocabulary to
// the implementer, matching the backend's own free-form Type column).
// initialGraphVal, if non-nil, is written as the graph's attributes at
// the current cursor — NewGraph does not accept initial nodes or edges;
// those are added afterward the same way any other write is (keeping
// the operation's own scope small rather than reimplementing a bulk
// graph-loader here).
func (o *ORM) NewGraph(name, typ string, initialGraphVal map[string]any) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if kv.IsReservedGraphName(name) {
		return &common.GraphNameError{Name: name, Msg: "reserved graph name"}
	}
	if _, exists := o.graphs[name]; exists {
		return &common.GraphNameError{Name: name, Msg: "graph already exists"}
	}
	if err := o.be.NewGraph(name, typ); err != nil {
		return fmt.Errorf("orm: new_graph %q: %w", name, err)
	}
	o.graphs[name] = typ

	snap := keyframe.NewEmptySnapshot(name, o.branch, o.turn, o.tick)
	for k, v := range initialGraphVal {
		snap.GraphVal[k] = v
	}
	o.kf.Install(snap)
	return nil
}

// DelGraph removes name and everything cached for it. It does not erase
// name's history from the backend (spec.md lists no such operation;
// durable deletion of history is a non-goal), only the engine's live
// registration of it.
func (o *ORM) DelGraph(name string) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if _, ok := o.graphs[name]; !ok {
		return &common.KeyError{Kind: "graph", Key: name}
	}
	if err := o.be.DelGraph(name); err != nil {
		return fmt.Errorf("orm: del_graph %q: %w", name, err)
	}
	for _, b := range o.tl.All() {
		o.store.DropBranch(name, b.Name)
	}
	delete(o.graphs, name)
	delete(o.keyframeOnClose, name)
	delete(o.lastKeyframe, name)
	return nil
}

// Graph returns a handle onto name, or a KeyError if it isn't known.
func (o *ORM) Graph(name string) (*GraphHandle, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if _, ok := o.graphs[name]; !ok {
		return nil, &common.KeyError{Kind: "graph", Key: name}
	}
	return &GraphHandle{orm: o, name: name}, nil
}

// SetKeyframeOnClose controls whether Close flushes a final keyframe for
// graph (spec.md SUPPLEMENTED FEATURES #4; default false).
func (o *ORM) SetKeyframeOnClose(graph string, on bool) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.keyframeOnClose[graph] = on
}

// OnTime registers h to be called after every successful time move.
func (o *ORM) OnTime(h TimeHandler) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.handlers = append(o.handlers, h)
}

func (o *ORM) fireTime(sig TimeSignal) {
	for _, h := range o.handlers {
		h(sig)
	}
}

// Keyframe implements keyframe.Sink: every snapshot synthesized or
// installed anywhere in the process (including by the loader, rebuilding
// one from a backend blob at materialize time — a harmless, idempotent
// re-insert since backend rows are keyed by coordinate) is persisted
// here and counted.
func (o *ORM) Keyframe(snap *keyframe.Snapshot) {
	blob, checksum, err := keyframe.EncodeBlob(snap, o.intern)
	if err != nil {
		o.log.Printf("orm: encode keyframe blob for %s@%s: %v", snap.Graph, snap.Branch, err)
		return
	}
	row := backend.KeyframeRow{
		Graph: snap.Graph, Branch: snap.Branch, Turn: snap.Turn, Tick: snap.Tick,
		ValsBlob: blob, Checksum: checksum,
	}
	if err := o.be.KeyframesInsertMany([]backend.KeyframeRow{row}); err != nil {
		o.log.Printf("orm: persist keyframe for %s@%s: %v", snap.Graph, snap.Branch, err)
		return
	}
	o.metrics.KeyframesTotal.Inc()
	o.lastKeyframe[snap.Graph] = snap.Turn
}

// SnapKeyframe synthesizes (or confirms) a keyframe at the current
// cursor for every open graph (spec.md §4.8 snap_keyframe). Each
// de-novo synthesis is checked against the live cache's own key counts
// (spec.md SUPPLEMENTED FEATURES #5's GraphDiffer-style consistency
// check); a mismatch is an internal invariant violation (spec.md §7
// class 2), not a recoverable error.
func (o *ORM) SnapKeyframe() error {
	o.lock.Lock()
	defer o.lock.Unlock()
	for name := range o.graphs {
		if o.needsDeNovoSnap(name) {
			if _, err := o.snapDeNovoChecked(name); err != nil {
				return fmt.Errorf("orm: snap_keyframe %q: %w", name, err)
			}
			continue
		}
		if _, err := o.kf.Snap(name, o.branch, o.turn, o.tick); err != nil {
			return fmt.Errorf("orm: snap_keyframe %q: %w", name, err)
		}
	}
	return nil
}

// needsDeNovoSnap reports whether Manager.Snap would have to fall all the
// way through to a de-novo synthesis for graph at the live cursor: no
// keyframe already sits there, none sits earlier in this branch, and the
// branch has no parent to recurse into. Mirrors Manager.Snap's own
// decision so snapDeNovoChecked is only invoked on the path it actually
// covers.
func (o *ORM) needsDeNovoSnap(graph string) bool {
	if o.store.Nodes.HasKeyframe(graph, o.branch, o.turn, o.tick) {
		return false
	}
	if _, _, _, ok := o.store.Nodes.NearestKeyframe(graph, o.branch, o.turn, o.tick); ok {
		return false
	}
	_, _, _, hasParent := o.tl.ParentBranch(o.branch)
	return !hasParent
}

// snapDeNovoChecked synthesizes graph's keyframe directly from the live
// cache and cross-checks the result's node/edge counts against the
// cache's own key sets at the same coordinate, the way
// _snap_keyframe_de_novo_graph's GraphDiffer comparison does in the
// original engine.
func (o *ORM) snapDeNovoChecked(graph string) (*keyframe.Snapshot, error) {
	nodeKeys := o.store.Nodes.KeySetAt(graph, o.branch, o.turn, o.tick)
	edgeKeys := o.store.Edges.KeySetAt(graph, o.branch, o.turn, o.tick)
	snap := o.kf.SnapDeNovo(graph, o.branch, o.turn, o.tick)
	if len(snap.Nodes) != len(nodeKeys) || len(snap.Edges) != len(edgeKeys) {
		return nil, common.NewFatalError(fmt.Sprintf(
			"keyframe de novo count mismatch for %q: nodes %d/%d edges %d/%d",
			graph, len(snap.Nodes), len(nodeKeys), len(snap.Edges), len(edgeKeys)), nil)
	}
	return snap, nil
}

// GetDelta computes the change set moving branch from (t0Turn,t0Tick) to
// (t1Turn,t1Tick) (spec.md §4.8 get_delta). Both coordinates must be on
// the same branch; crossing branches is package delta's Compose, used
// internally by the keyframe manager, not exposed here since spec.md
// §4.8 only lists the single-branch form.
func (o *ORM) GetDelta(branch string, t0Turn Turn, t0Tick Tick, t1Turn Turn, t1Tick Tick) *delta.Delta {
	o.lock.Lock()
	defer o.lock.Unlock()
	return delta.GetDelta(o.store, branch, t0Turn, t0Tick, t1Turn, t1Tick)
}

// Commit flushes the live cursor to the backend and commits its
// transaction (spec.md §4.8 commit).
func (o *ORM) Commit() error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.commitLocked()
}

func (o *ORM) commitLocked() error {
	if err := o.be.SetBranch(o.branch); err != nil {
		return fmt.Errorf("orm: commit: set_branch: %w", err)
	}
	if err := o.be.SetTurn(o.branch, o.turn, o.tick); err != nil {
		return fmt.Errorf("orm: commit: set_turn: %w", err)
	}
	if err := o.be.Commit(); err != nil {
		return fmt.Errorf("orm: commit: %w", err)
	}
	return nil
}

// Close flushes a final keyframe for every graph opted into
// keyframe-on-close (spec.md SUPPLEMENTED FEATURES #2/#4), commits, stops
// the cache-arranger if one is running, and closes the backend.
func (o *ORM) Close() error {
	o.lock.Lock()
	defer o.lock.Unlock()

	for graph, on := range o.keyframeOnClose {
		if !on {
			continue
		}
		if o.needsDeNovoSnap(graph) {
			if _, err := o.snapDeNovoChecked(graph); err != nil {
				o.log.Printf("orm: close: final keyframe for %q: %v", graph, err)
			}
			continue
		}
		if _, err := o.kf.Snap(graph, o.branch, o.turn, o.tick); err != nil {
			o.log.Printf("orm: close: final keyframe for %q: %v", graph, err)
		}
	}
	if err := o.commitLocked(); err != nil {
		o.log.Printf("orm: close: commit: %v", err)
	}
	if o.arranger != nil {
		o.arranger.Shutdown()
		o.arrangerCancel()
	}
	return o.be.Close()
}
