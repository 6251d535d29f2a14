package cache

import (
	"sync"

	"github.com/anacrolix/log"
)

// cacheRef names one (family-kind, graph) pair that recorded something
// at a given (branch,turn,tick) — the unit the WhereCached registry
// tracks for plan invalidation sweeps (spec.md §4.3/§4.5).
type cacheRef struct {
	kind, graph string
}

type bttKey struct {
	branch string
	turn   Turn
	tick   Tick
}

// Store assembles the five entity-family caches of spec.md §4.3
// (graph_val, nodes, edges, node_val, edge_val) plus the shared
// where_cached registry every one of them reports into.
type Store struct {
	GraphVal *Family[any]
	Nodes    *Family[bool]
	Edges    *Family[bool]
	NodeVal  *Family[any]
	EdgeVal  *Family[any]

	mu          sync.Mutex
	whereCached map[bttKey]map[cacheRef]struct{}
	parent      ParentOf
	log         log.Logger
}

// NewStore builds a Store whose families recurse into parent branches
// via parent (normally *timeline.Timeline, which satisfies ParentOf).
func NewStore(parent ParentOf, logger log.Logger) *Store {
	s := &Store{
		whereCached: make(map[bttKey]map[cacheRef]struct{}),
		parent:      parent,
		log:         logger,
	}
	s.GraphVal = NewFamily[any]("graph_val", s, parent, logger)
	s.Nodes = NewFamily[bool]("nodes", s, parent, logger)
	s.Edges = NewFamily[bool]("edges", s, parent, logger)
	s.NodeVal = NewFamily[any]("node_val", s, parent, logger)
	s.EdgeVal = NewFamily[any]("edge_val", s, parent, logger)
	return s
}

// MarkWhereCached implements Recorder.
func (s *Store) MarkWhereCached(branch string, turn Turn, tick Tick, kind, graph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := bttKey{branch, turn, tick}
	refs, ok := s.whereCached[k]
	if !ok {
		refs = make(map[cacheRef]struct{})
		s.whereCached[k] = refs
	}
	refs[cacheRef{kind, graph}] = struct{}{}
}

// Unmark implements Recorder.
func (s *Store) Unmark(branch string, turn Turn, tick Tick, kind, graph string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := bttKey{branch, turn, tick}
	refs := s.whereCached[k]
	if refs == nil {
		return
	}
	delete(refs, cacheRef{kind, graph})
	if len(refs) == 0 {
		delete(s.whereCached, k)
	}
}

// ForgetTick removes every family's record at exactly (branch,turn,tick),
// driven by the where_cached registry — the primitive plan.Manager uses
// to erase a single contradicted tick from every cache that touched it
// without having to know in advance which families were involved.
func (s *Store) ForgetTick(branch string, turn Turn, tick Tick) {
	s.mu.Lock()
	k := bttKey{branch, turn, tick}
	refs := s.whereCached[k]
	var cp []cacheRef
	for r := range refs {
		cp = append(cp, r)
	}
	s.mu.Unlock()

	for _, r := range cp {
		switch r.kind {
		case "graph_val":
			s.GraphVal.Remove(r.graph, branch, turn, tick)
		case "nodes":
			s.Nodes.Remove(r.graph, branch, turn, tick)
		case "edges":
			s.Edges.Remove(r.graph, branch, turn, tick)
		case "node_val":
			s.NodeVal.Remove(r.graph, branch, turn, tick)
		case "edge_val":
			s.EdgeVal.Remove(r.graph, branch, turn, tick)
		}
	}
}

// TicksAt returns every (kind,graph) pair that recorded something at
// exactly (branch,turn,tick), for diagnostics and delta-engine sanity
// checks.
func (s *Store) TicksAt(branch string, turn Turn, tick Tick) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := s.whereCached[bttKey{branch, turn, tick}]
	out := make([]string, 0, len(refs))
	for r := range refs {
		out = append(out, r.kind+":"+r.graph)
	}
	return out
}

// DropBranch forgets an entire branch across every family (spec.md §4.7
// Unload, when a branch no longer brackets the retained window at all).
func (s *Store) DropBranch(graph, branch string) {
	s.GraphVal.DropBranch(graph, branch)
	s.Nodes.DropBranch(graph, branch)
	s.Edges.DropBranch(graph, branch)
	s.NodeVal.DropBranch(graph, branch)
	s.EdgeVal.DropBranch(graph, branch)
}

// TruncateWindow trims every family's journal for graph/branch down to
// [low, high], inclusive — the retained-window half of Unload (spec.md
// §4.7): everything earlier than low and everything later than high is
// forgotten, leaving the bracketing keyframes untouched.
func (s *Store) TruncateWindow(graph, branch string, lowTurn Turn, lowTick Tick, highTurn Turn, highTick Tick) {
	for _, f := range []interface {
		TruncateBefore(graph, branch string, turn Turn, tick Tick)
		TruncateAfter(graph, branch string, turn Turn, tick Tick)
	}{s.GraphVal, s.Nodes, s.Edges, s.NodeVal, s.EdgeVal} {
		f.TruncateBefore(graph, branch, lowTurn, lowTick)
		f.TruncateAfter(graph, branch, highTurn, highTick)
	}
}

// WriteByKind dispatches a write to the named family by its where_cached
// kind string ("graph_val", "nodes", "edges", "node_val", "edge_val"),
// letting plan.Manager replay a tagged write without knowing which of the
// five concrete families it belongs to. value/unset follow Family.Write's
// contract; for the two bool families a nil value is treated as false.
func (s *Store) WriteByKind(kind, graph, branch string, turn Turn, tick Tick, subKey string, value any, unset bool) {
	switch kind {
	case "graph_val":
		s.GraphVal.Write(graph, branch, turn, tick, subKey, value, unset)
	case "nodes":
		b, _ := value.(bool)
		s.Nodes.Write(graph, branch, turn, tick, subKey, b, unset)
	case "edges":
		b, _ := value.(bool)
		s.Edges.Write(graph, branch, turn, tick, subKey, b, unset)
	case "node_val":
		s.NodeVal.Write(graph, branch, turn, tick, subKey, value, unset)
	case "edge_val":
		s.EdgeVal.Write(graph, branch, turn, tick, subKey, value, unset)
	}
}

// RetrieveByKind is WriteByKind's read-side counterpart, used by the plan
// manager's cross-branch copy to read the value it's about to re-issue.
func (s *Store) RetrieveByKind(kind, graph, branch string, turn Turn, tick Tick, subKey string) (value any, unset bool, err error) {
	switch kind {
	case "graph_val":
		return s.GraphVal.Retrieve(graph, branch, turn, tick, subKey)
	case "nodes":
		v, u, e := s.Nodes.Retrieve(graph, branch, turn, tick, subKey)
		return v, u, e
	case "edges":
		v, u, e := s.Edges.Retrieve(graph, branch, turn, tick, subKey)
		return v, u, e
	case "node_val":
		return s.NodeVal.Retrieve(graph, branch, turn, tick, subKey)
	case "edge_val":
		return s.EdgeVal.Retrieve(graph, branch, turn, tick, subKey)
	}
	return nil, true, nil
}
