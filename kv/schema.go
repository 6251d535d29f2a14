// Copyright 2021 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package kv holds the bucket/table layout shared by every persistence
// backend (spec.md §6) and the in-process ordered containers (WindowDict,
// the name<->id intern table) that the caches are built on.
package kv

// DBSchemaVersion tracks the on-disk layout of a backend store. Bump the
// minor version for additive changes, the major version for anything
// that requires a migration the backend doesn't do for you (none do:
// schema migration is a non-goal, spec.md §1).
var DBSchemaVersion = struct{ Major, Minor, Patch int }{Major: 1, Minor: 0, Patch: 0}

// Table names, one bucket per table in spec.md §6. Key layouts are noted
// per table; all timestamps share the (branch, turn, tick) encoding
// described there.
const (
	// Branches: branch -> parent, turn_start, tick_start, turn_end, tick_end
	Branches = "Branches"

	// Turns: branch+turn_be64 -> end_tick, plan_end_tick
	Turns = "Turns"

	// Graphs: graph -> type byte
	Graphs = "Graphs"

	// Nodes: graph+node+branch+turn_be64+tick_be64 -> exists bool
	Nodes = "Nodes"

	// Edges: graph+orig+dest+idx_be64+branch+turn_be64+tick_be64 -> exists bool
	Edges = "Edges"

	// GraphVal: graph+key+branch+turn_be64+tick_be64 -> value blob (nil = deleted)
	GraphVal = "GraphVal"

	// NodeVal: graph+node+key+branch+turn_be64+tick_be64 -> value blob
	NodeVal = "NodeVal"

	// EdgeVal: graph+orig+dest+idx_be64+key+branch+turn_be64+tick_be64 -> value blob
	EdgeVal = "EdgeVal"

	// Keyframes: graph+branch+turn_be64+tick_be64 -> nodes_blob|edges_blob|vals_blob
	Keyframes = "Keyframes"

	// Plans: plan_id_be64 -> branch, turn_be64, tick_be64
	Plans = "Plans"

	// PlanTicks: plan_id_be64+turn_be64+tick_be64 -> (empty, membership only)
	PlanTicks = "PlanTicks"

	// Globals: key -> value; holds "branch", "turn", "tick" (spec.md §6)
	Globals = "Globals"
)

// AllTables lists every bucket a backend must create on first open.
var AllTables = []string{
	Branches, Turns, Graphs, Nodes, Edges,
	GraphVal, NodeVal, EdgeVal, Keyframes, Plans, PlanTicks, Globals,
}

// Reserved graph names (spec.md §3: "Names from a small reserved list
// ... are forbidden").
var ReservedGraphNames = map[string]struct{}{
	"global":  {},
	"":        {},
	"trunk":   {},
	"Globals": {},
}

func IsReservedGraphName(name string) bool {
	_, ok := ReservedGraphNames[name]
	return ok
}
