package orm

import (
	"fmt"

	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/kv"
)

// Capability is spec.md §9's shared trait: graph-val, node-val, and
// edge-val handles all read/write/iterate the same way, differing only
// in which cache.Family and sub-key shape they target.
type Capability interface {
	Read(key string) (any, error)
	Write(key string, value any) error
	IterKeys() ([]string, error)
}

// GraphHandle is spec.md §4.8's graph(name) return value: a capability
// over graph_val, plus node/edge existence and handle construction.
type GraphHandle struct {
	orm  *ORM
	name string
}

var _ Capability = (*GraphHandle)(nil)

func (g *GraphHandle) Read(key string) (any, error) {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	return g.orm.readLocked(g.orm.store.GraphVal, g.name, key)
}

func (g *GraphHandle) Write(key string, value any) error {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	return g.orm.writeLocked("graph_val", g.name, key, value)
}

func (g *GraphHandle) IterKeys() ([]string, error) {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	return g.orm.iterKeysLocked(g.orm.store.GraphVal, g.name)
}

// ExistsNode reports whether node exists in this graph at the cursor
// (spec.md §4.8 exists_node).
func (g *GraphHandle) ExistsNode(node string) (bool, error) {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	v, unset, err := g.orm.store.Nodes.Retrieve(g.name, g.orm.branch, g.orm.turn, g.orm.tick, node)
	if err != nil {
		return false, err
	}
	return v && !unset, nil
}

// SetNode sets node's existence (spec.md §4.8 set_node-equivalent;
// exists=false is how a node is deleted).
func (g *GraphHandle) SetNode(node string, exists bool) error {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	return g.orm.writeKindLocked("nodes", g.name, node, exists, !exists)
}

// Node returns a handle onto node's attributes, requiring it exist.
func (g *GraphHandle) Node(node string) (*NodeHandle, error) {
	ok, err := g.ExistsNode(node)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &common.KeyError{Kind: "node", Key: node}
	}
	return &NodeHandle{orm: g.orm, graph: g.name, node: node}, nil
}

// ExistsEdge reports whether the edge orig->dest[idx] exists at the
// cursor (spec.md §4.8 exists_edge).
func (g *GraphHandle) ExistsEdge(orig, dest string, idx int) (bool, error) {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	key := kv.EncodeEdgeKey(orig, dest, idx)
	v, unset, err := g.orm.store.Edges.Retrieve(g.name, g.orm.branch, g.orm.turn, g.orm.tick, key)
	if err != nil {
		return false, err
	}
	return v && !unset, nil
}

// SetEdge sets the edge's existence.
func (g *GraphHandle) SetEdge(orig, dest string, idx int, exists bool) error {
	g.orm.lock.Lock()
	defer g.orm.lock.Unlock()
	key := kv.EncodeEdgeKey(orig, dest, idx)
	return g.orm.writeKindLocked("edges", g.name, key, exists, !exists)
}

// Edge returns a handle onto the edge's attributes, requiring it exist.
func (g *GraphHandle) Edge(orig, dest string, idx int) (*EdgeHandle, error) {
	ok, err := g.ExistsEdge(orig, dest, idx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &common.KeyError{Kind: "edge", Key: kv.EncodeEdgeKey(orig, dest, idx)}
	}
	return &EdgeHandle{orm: g.orm, graph: g.name, orig: orig, dest: dest, idx: idx}, nil
}

// NodeHandle is a capability over one node's attributes (node_val).
type NodeHandle struct {
	orm         *ORM
	graph, node string
}

var _ Capability = (*NodeHandle)(nil)

func (n *NodeHandle) Read(key string) (any, error) {
	n.orm.lock.Lock()
	defer n.orm.lock.Unlock()
	return n.orm.readLocked(n.orm.store.NodeVal, n.graph, kv.EncodeNodeValKey(n.node, key))
}

func (n *NodeHandle) Write(key string, value any) error {
	n.orm.lock.Lock()
	defer n.orm.lock.Unlock()
	return n.orm.writeLocked("node_val", n.graph, kv.EncodeNodeValKey(n.node, key), value)
}

func (n *NodeHandle) IterKeys() ([]string, error) {
	n.orm.lock.Lock()
	defer n.orm.lock.Unlock()
	subKeys, err := n.orm.iterKeysLocked(n.orm.store.NodeVal, n.graph)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subKeys))
	for _, sk := range subKeys {
		node, key, ok := kv.DecodeNodeValKey(sk)
		if ok && node == n.node {
			out = append(out, key)
		}
	}
	return out, nil
}

// EdgeHandle is a capability over one edge's attributes (edge_val).
type EdgeHandle struct {
	orm        *ORM
	graph      string
	orig, dest string
	idx        int
}

var _ Capability = (*EdgeHandle)(nil)

func (e *EdgeHandle) subKey(key string) string {
	return kv.EncodeEdgeValKey(e.orig, e.dest, e.idx, key)
}

func (e *EdgeHandle) Read(key string) (any, error) {
	e.orm.lock.Lock()
	defer e.orm.lock.Unlock()
	return e.orm.readLocked(e.orm.store.EdgeVal, e.graph, e.subKey(key))
}

func (e *EdgeHandle) Write(key string, value any) error {
	e.orm.lock.Lock()
	defer e.orm.lock.Unlock()
	return e.orm.writeLocked("edge_val", e.graph, e.subKey(key), value)
}

func (e *EdgeHandle) IterKeys() ([]string, error) {
	e.orm.lock.Lock()
	defer e.orm.lock.Unlock()
	prefix := kv.EncodeEdgeKey(e.orig, e.dest, e.idx)
	subKeys, err := e.orm.iterKeysLocked(e.orm.store.EdgeVal, e.graph)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(subKeys))
	for _, sk := range subKeys {
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(sk)
		if ok && kv.EncodeEdgeKey(orig, dest, idx) == prefix {
			out = append(out, key)
		}
	}
	return out, nil
}

// anyFamily is the subset of cache.Family[any]'s surface the generic
// read/write helpers need, letting GraphHandle/NodeHandle/EdgeHandle
// share one implementation despite targeting three distinct families.
type anyFamily interface {
	Retrieve(graph, branch string, turn Turn, tick Tick, subKey string) (any, bool, error)
	Write(graph, branch string, turn Turn, tick Tick, subKey string, value any, unset bool)
	KeySetAt(graph, branch string, turn Turn, tick Tick) map[string]struct{}
}

func (o *ORM) readLocked(f anyFamily, graph, subKey string) (any, error) {
	v, unset, err := f.Retrieve(graph, o.branch, o.turn, o.tick, subKey)
	if err != nil {
		return nil, err
	}
	if unset {
		o.metrics.CacheMisses.Inc()
		return nil, &common.KeyError{Kind: "attribute", Key: subKey}
	}
	o.metrics.CacheHits.Inc()
	o.maybePrefetch([]string{graph}, o.branch, o.turn+1, 0)
	return v, nil
}

func (o *ORM) iterKeysLocked(f anyFamily, graph string) ([]string, error) {
	keys := f.KeySetAt(graph, o.branch, o.turn, o.tick)
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out, nil
}

// writeLocked is the *_val families' mutator: a nil value deletes the
// key (unset=true), matching spec.md §4.6's "value | null" convention
// for graph_val/node_val/edge_val.
func (o *ORM) writeLocked(kind, graph, subKey string, value any) error {
	return o.writeKindLocked(kind, graph, subKey, value, value == nil)
}

// writeKindLocked is the shared mutation primitive every setter funnels
// through: advance the cursor via nbtt, write into the cache, persist to
// the backend, tag or contradict the plan bookkeeping, and fire the time
// signal. Caller must already hold the world lock.
func (o *ORM) writeKindLocked(kind, graph, subKey string, value any, unset bool) error {
	if _, ok := o.graphs[graph]; !ok {
		return &common.KeyError{Kind: "graph", Key: graph}
	}
	fromBranch, fromTurn, fromTick := o.branch, o.turn, o.tick
	turn, tick, err := o.nbtt()
	if err != nil {
		return err
	}

	o.store.WriteByKind(kind, graph, o.branch, turn, tick, subKey, value, unset)
	if err := o.persistWrite(kind, graph, subKey, turn, tick, value, unset); err != nil {
		return err
	}

	if o.planning {
		o.pm.Tag(o.curPlan, turn, tick, writeRecord(kind, graph, subKey, value, unset))
	} else if n := o.pm.Contradict(o.branch, turn, tick); n > 0 {
		o.metrics.ContradictionsTotal.Add(float64(n))
	}
	o.metrics.WritesTotal.Inc()
	o.fireTime(TimeSignal{FromBranch: fromBranch, FromTurn: fromTurn, FromTick: fromTick, ToBranch: o.branch, ToTurn: turn, ToTick: tick})
	return nil
}

// persistWrite mirrors one cache write into the backend, decoding
// subKey back into its row shape per kind (spec.md §6's table layouts).
func (o *ORM) persistWrite(kind, graph, subKey string, turn Turn, tick Tick, value any, unset bool) error {
	switch kind {
	case "nodes":
		exists, _ := value.(bool)
		return o.be.SetNode(nodeRow(graph, subKey, o.branch, turn, tick, exists && !unset))
	case "edges":
		orig, dest, idx, ok := kv.DecodeEdgeKey(subKey)
		if !ok {
			return fmt.Errorf("orm: malformed edge sub-key %q", subKey)
		}
		exists, _ := value.(bool)
		return o.be.SetEdge(edgeRow(graph, orig, dest, idx, o.branch, turn, tick, exists && !unset))
	case "graph_val":
		return o.be.SetGraphVal(graphValRow(graph, subKey, o.branch, turn, tick, value, unset))
	case "node_val":
		node, key, ok := kv.DecodeNodeValKey(subKey)
		if !ok {
			return fmt.Errorf("orm: malformed node_val sub-key %q", subKey)
		}
		return o.be.SetNodeVal(nodeValRow(graph, node, key, o.branch, turn, tick, value, unset))
	case "edge_val":
		orig, dest, idx, key, ok := kv.DecodeEdgeValKey(subKey)
		if !ok {
			return fmt.Errorf("orm: malformed edge_val sub-key %q", subKey)
		}
		return o.be.SetEdgeVal(edgeValRow(graph, orig, dest, idx, key, o.branch, turn, tick, value, unset))
	}
	return fmt.Errorf("orm: unknown write kind %q", kind)
}
