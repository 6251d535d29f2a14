package keyframe

import "github.com/coldbrook-sim/allegedb/delta"

// ApplyDelta returns a new Snapshot equal to base with d's graph-scoped
// changes folded in and re-stamped at (newTurn,newTick) — the "applies
// delta... and stores the result" half of snap_keyframe_from_delta
// (spec.md §4.4). base is not mutated.
func ApplyDelta(base *Snapshot, d *delta.Delta, graph, branch string, newTurn Turn, newTick Tick) *Snapshot {
	out := newSnapshot(graph, branch, newTurn, newTick)
	for k, v := range base.Nodes {
		out.Nodes[k] = v
	}
	for k, v := range base.Edges {
		out.Edges[k] = v
	}
	for k, v := range base.GraphVal {
		out.GraphVal[k] = v
	}
	for node, attrs := range base.NodeVal {
		cp := make(map[string]any, len(attrs))
		for k, v := range attrs {
			cp[k] = v
		}
		out.NodeVal[node] = cp
	}
	for ek, attrs := range base.EdgeVal {
		cp := make(map[string]any, len(attrs))
		for k, v := range attrs {
			cp[k] = v
		}
		out.EdgeVal[ek] = cp
	}

	gd, ok := d.Graphs[graph]
	if !ok {
		return out
	}
	for node, exists := range gd.Nodes {
		if exists {
			out.Nodes[node] = true
		} else {
			delete(out.Nodes, node)
			delete(out.NodeVal, node)
		}
	}
	for ek, exists := range gd.Edges {
		if exists {
			out.Edges[ek] = true
		} else {
			delete(out.Edges, ek)
			delete(out.EdgeVal, ek)
		}
	}
	for k, v := range gd.GraphVal {
		if v.Null {
			delete(out.GraphVal, k)
		} else {
			out.GraphVal[k] = v.Val
		}
	}
	for node, attrs := range gd.NodeVal {
		if _, stillExists := out.Nodes[node]; !stillExists {
			continue
		}
		cur, ok := out.NodeVal[node]
		if !ok {
			cur = make(map[string]any)
			out.NodeVal[node] = cur
		}
		for k, v := range attrs {
			if v.Null {
				delete(cur, k)
			} else {
				cur[k] = v.Val
			}
		}
	}
	for ek, attrs := range gd.EdgeVal {
		if _, stillExists := out.Edges[ek]; !stillExists {
			continue
		}
		cur, ok := out.EdgeVal[ek]
		if !ok {
			cur = make(map[string]any)
			out.EdgeVal[ek] = cur
		}
		for k, v := range attrs {
			if v.Null {
				delete(cur, k)
			} else {
				cur[k] = v.Val
			}
		}
	}
	return out
}
