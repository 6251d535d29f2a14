package orm

import (
	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/plan"
)

// The row/write constructors below translate a cache-family write back
// into the backend's per-kind row shape (spec.md §6) and into
// plan.Write (spec.md §4.5's tagged-write record), the two places a
// write's (kind,graph,subKey,value,unset) tuple needs to become a
// typed, kind-specific value instead of the loosely-typed tuple
// writeKindLocked works with internally.

func nodeRow(graph, node, branch string, turn Turn, tick Tick, exists bool) backend.NodeRow {
	return backend.NodeRow{Graph: graph, Node: node, Branch: branch, Turn: turn, Tick: tick, Exists: exists}
}

func edgeRow(graph, orig, dest string, idx int, branch string, turn Turn, tick Tick, exists bool) backend.EdgeRow {
	return backend.EdgeRow{Graph: graph, Orig: orig, Dest: dest, Idx: idx, Branch: branch, Turn: turn, Tick: tick, Exists: exists}
}

func graphValRow(graph, key, branch string, turn Turn, tick Tick, value any, null bool) backend.GraphValRow {
	return backend.GraphValRow{Graph: graph, Key: key, Branch: branch, Turn: turn, Tick: tick, Value: value, Null: null}
}

func nodeValRow(graph, node, key, branch string, turn Turn, tick Tick, value any, null bool) backend.NodeValRow {
	return backend.NodeValRow{Graph: graph, Node: node, Key: key, Branch: branch, Turn: turn, Tick: tick, Value: value, Null: null}
}

func edgeValRow(graph, orig, dest string, idx int, key, branch string, turn Turn, tick Tick, value any, null bool) backend.EdgeValRow {
	return backend.EdgeValRow{Graph: graph, Orig: orig, Dest: dest, Idx: idx, Key: key, Branch: branch, Turn: turn, Tick: tick, Value: value, Null: null}
}

func writeRecord(kind, graph, subKey string, value any, unset bool) plan.Write {
	return plan.Write{Kind: kind, Graph: graph, SubKey: subKey, Value: value, Unset: unset}
}
