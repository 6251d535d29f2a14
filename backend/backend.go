// Package backend defines the Persistence Backend Interface (spec.md C9):
// the opaque boundary between the in-memory engine and durable storage.
// Every row type mirrors a table from spec.md §6; every method name
// mirrors the spec's own snake_case operation, translated to Go's
// naming convention.
package backend

import "github.com/coldbrook-sim/allegedb/common"

type Turn = common.Turn
type Tick = common.Tick

// BranchRow mirrors spec.md §6's branches table.
type BranchRow struct {
	Branch        string
	Parent        string
	TurnStart     Turn
	TickStart     Tick
	TurnEnd       Turn
	TickEnd       Tick
	BranchEndPlan Turn
}

// TurnRow mirrors the turns table: one row per (branch,turn).
type TurnRow struct {
	Branch      string
	Turn        Turn
	EndTick     Tick
	PlanEndTick Tick
}

// GraphRow mirrors the graphs table.
type GraphRow struct {
	Graph string
	Type  string
}

// NodeRow mirrors the nodes table.
type NodeRow struct {
	Graph  string
	Node   string
	Branch string
	Turn   Turn
	Tick   Tick
	Exists bool
}

// EdgeRow mirrors the edges table.
type EdgeRow struct {
	Graph  string
	Orig   string
	Dest   string
	Idx    int
	Branch string
	Turn   Turn
	Tick   Tick
	Exists bool
}

// GraphValRow mirrors the graph_val table.
type GraphValRow struct {
	Graph  string
	Key    string
	Branch string
	Turn   Turn
	Tick   Tick
	Value  any
	Null   bool
}

// NodeValRow mirrors the node_val table.
type NodeValRow struct {
	Graph  string
	Node   string
	Key    string
	Branch string
	Turn   Turn
	Tick   Tick
	Value  any
	Null   bool
}

// EdgeValRow mirrors the edge_val table.
type EdgeValRow struct {
	Graph  string
	Orig   string
	Dest   string
	Idx    int
	Key    string
	Branch string
	Turn   Turn
	Tick   Tick
	Value  any
	Null   bool
}

// KeyframeRow mirrors the keyframes table. Spec.md §6 names three blob
// columns (nodes_blob, edges_blob, vals_blob); keyframe.EncodeBlob folds
// node/edge existence bitmaps and every value map into one compressed
// CBOR+zstd frame (they share one blake2b checksum and compress better
// together than as three small buffers), so only ValsBlob is populated —
// NodesBlob/EdgesBlob are kept for schema parity with spec.md but unused.
type KeyframeRow struct {
	Graph     string
	Branch    string
	Turn      Turn
	Tick      Tick
	NodesBlob []byte
	EdgesBlob []byte
	ValsBlob  []byte
	Checksum  [64]byte
}

// PlanRow mirrors the plans table.
type PlanRow struct {
	PlanID uint64
	Branch string
	Turn   Turn
	Tick   Tick
}

// PlanTickRow mirrors the plan_ticks table.
type PlanTickRow struct {
	PlanID uint64
	Turn   Turn
	Tick   Tick
}

// Backend is the Persistence Backend Interface of spec.md §4.9: every
// operation the in-memory engine needs to bootstrap from and flush to
// durable storage, kept deliberately narrow — it never sees a Delta, a
// Snapshot, or a plan's correlation id, only plain rows.
type Backend interface {
	// AllBranches returns every branch row, for Timeline reconstruction.
	AllBranches() ([]BranchRow, error)
	// AllGraphs returns every known graph, for loader.Bootstrap and the
	// ORM facade to rediscover what graphs exist without having loaded
	// any of their history yet.
	AllGraphs() ([]GraphRow, error)
	// TurnsDump returns every turn row, for turn_end/turn_end_plan
	// reconstruction (spec.md §4.7 supplemented feature: four counters).
	TurnsDump() ([]TurnRow, error)
	// KeyframesList returns every keyframe row's coordinates (without
	// blobs) so the loader can decide what's already on disk.
	KeyframesList() ([]KeyframeRow, error)
	// GetKeyframe fetches one keyframe's blobs by exact coordinate.
	GetKeyframe(graph, branch string, turn Turn, tick Tick) (KeyframeRow, bool, error)
	// PlansDump and PlanTicksDump reconstruct plan.Manager at startup.
	PlansDump() ([]PlanRow, error)
	PlanTicksDump() ([]PlanTickRow, error)

	// LoadNodes streams every nodes row for graph/branch within
	// [turnFrom,tickFrom, turnTo,tickTo], inclusive, in ascending order —
	// the loader's load_nodes contract (spec.md §4.7/§4.9).
	LoadNodes(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]NodeRow, error)
	LoadEdges(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]EdgeRow, error)
	LoadGraphVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]GraphValRow, error)
	LoadNodeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]NodeValRow, error)
	LoadEdgeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]EdgeValRow, error)

	// SetNode/SetEdge/SetGraphVal/SetNodeVal/SetEdgeVal persist one write
	// each (spec.md §4.9's per-kind "set" operations).
	SetNode(row NodeRow) error
	SetEdge(row EdgeRow) error
	SetGraphVal(row GraphValRow) error
	SetNodeVal(row NodeValRow) error
	SetEdgeVal(row EdgeValRow) error
	// DelTime removes every row of kind ("nodes","edges","graph_val",
	// "node_val","edge_val") for graph/branch at exactly (turn,tick) —
	// the backend counterpart of cache.Store.ForgetTick, used to persist
	// a plan contradiction or an unload truncation.
	DelTime(kind, graph, branch string, turn Turn, tick Tick) error

	NewBranch(row BranchRow) error
	NewGraph(graph, typ string) error
	DelGraph(graph string) error

	KeyframesInsertMany(rows []KeyframeRow) error
	PlansInsertMany(rows []PlanRow) error
	PlanTicksInsertMany(rows []PlanTickRow) error

	// SetBranch/SetTurn persist the live cursor into the globals table.
	SetBranch(branch string) error
	SetTurn(branch string, turn Turn, tick Tick) error

	Commit() error
	Close() error
}
