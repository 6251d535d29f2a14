// Package memory implements backend.Backend without touching disk: an
// in-process store used by the ORM facade's own tests and by short-lived
// tools that don't need durability across restarts.
package memory

import (
	"sort"
	"sync"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/common"
)

type Turn = common.Turn
type Tick = common.Tick

var _ backend.Backend = (*Backend)(nil)

type coord struct {
	graph, branch, node string
	turn                Turn
	tick                Tick
}

type edgeCoord struct {
	graph, branch, orig, dest string
	idx                       int
	turn                      Turn
	tick                      Tick
}

type valCoord struct {
	graph, branch, entity, key string
	turn                       Turn
	tick                       Tick
}

// Backend is a map-backed, non-persistent backend.Backend.
type Backend struct {
	mu sync.Mutex

	branches map[string]backend.BranchRow
	turns    map[string]map[Turn]backend.TurnRow
	graphs   map[string]string

	nodes    map[coord]bool
	edges    map[edgeCoord]bool
	graphVal map[valCoord]backend.GraphValRow
	nodeVal  map[valCoord]backend.NodeValRow
	edgeVal  map[valCoord]backend.EdgeValRow

	keyframes map[coord]backend.KeyframeRow
	plans     map[uint64]backend.PlanRow
	planTicks []backend.PlanTickRow

	globalBranch string
	globalTurn   Turn
	globalTick   Tick
}

func New() *Backend {
	return &Backend{
		branches:  make(map[string]backend.BranchRow),
		turns:     make(map[string]map[Turn]backend.TurnRow),
		graphs:    make(map[string]string),
		nodes:     make(map[coord]bool),
		edges:     make(map[edgeCoord]bool),
		graphVal:  make(map[valCoord]backend.GraphValRow),
		nodeVal:   make(map[valCoord]backend.NodeValRow),
		edgeVal:   make(map[valCoord]backend.EdgeValRow),
		keyframes: make(map[coord]backend.KeyframeRow),
		plans:     make(map[uint64]backend.PlanRow),
	}
}

func (b *Backend) AllBranches() ([]backend.BranchRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.BranchRow, 0, len(b.branches))
	for _, row := range b.branches {
		out = append(out, row)
	}
	return out, nil
}

func (b *Backend) AllGraphs() ([]backend.GraphRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.GraphRow, 0, len(b.graphs))
	for name, typ := range b.graphs {
		out = append(out, backend.GraphRow{Graph: name, Type: typ})
	}
	return out, nil
}

func (b *Backend) TurnsDump() ([]backend.TurnRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.TurnRow
	for _, byTurn := range b.turns {
		for _, row := range byTurn {
			out = append(out, row)
		}
	}
	return out, nil
}

func (b *Backend) KeyframesList() ([]backend.KeyframeRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.KeyframeRow, 0, len(b.keyframes))
	for _, row := range b.keyframes {
		cp := row
		cp.NodesBlob, cp.EdgesBlob, cp.ValsBlob = nil, nil, nil
		out = append(out, cp)
	}
	return out, nil
}

func (b *Backend) GetKeyframe(graph, branch string, turn Turn, tick Tick) (backend.KeyframeRow, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.keyframes[coord{graph, branch, "", turn, tick}]
	return row, ok, nil
}

func (b *Backend) PlansDump() ([]backend.PlanRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.PlanRow, 0, len(b.plans))
	for _, row := range b.plans {
		out = append(out, row)
	}
	return out, nil
}

func (b *Backend) PlanTicksDump() ([]backend.PlanTickRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]backend.PlanTickRow, len(b.planTicks))
	copy(out, b.planTicks)
	return out, nil
}

func withinRange(turn Turn, tick Tick, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) bool {
	return common.CompareTT(turn, tick, turnFrom, tickFrom) >= 0 &&
		common.CompareTT(turn, tick, turnTo, tickTo) <= 0
}

func (b *Backend) LoadNodes(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.NodeRow
	for c, exists := range b.nodes {
		if c.graph == graph && c.branch == branch && withinRange(c.turn, c.tick, turnFrom, tickFrom, turnTo, tickTo) {
			out = append(out, backend.NodeRow{Graph: c.graph, Node: c.node, Branch: c.branch, Turn: c.turn, Tick: c.tick, Exists: exists})
		}
	}
	sort.Slice(out, func(i, j int) bool { return common.CompareTT(out[i].Turn, out[i].Tick, out[j].Turn, out[j].Tick) < 0 })
	return out, nil
}

func (b *Backend) LoadEdges(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.EdgeRow
	for c, exists := range b.edges {
		if c.graph == graph && c.branch == branch && withinRange(c.turn, c.tick, turnFrom, tickFrom, turnTo, tickTo) {
			out = append(out, backend.EdgeRow{Graph: c.graph, Orig: c.orig, Dest: c.dest, Idx: c.idx, Branch: c.branch, Turn: c.turn, Tick: c.tick, Exists: exists})
		}
	}
	sort.Slice(out, func(i, j int) bool { return common.CompareTT(out[i].Turn, out[i].Tick, out[j].Turn, out[j].Tick) < 0 })
	return out, nil
}

func (b *Backend) LoadGraphVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.GraphValRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.GraphValRow
	for c, row := range b.graphVal {
		if c.graph == graph && c.branch == branch && withinRange(c.turn, c.tick, turnFrom, tickFrom, turnTo, tickTo) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return common.CompareTT(out[i].Turn, out[i].Tick, out[j].Turn, out[j].Tick) < 0 })
	return out, nil
}

func (b *Backend) LoadNodeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.NodeValRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.NodeValRow
	for c, row := range b.nodeVal {
		if c.graph == graph && c.branch == branch && withinRange(c.turn, c.tick, turnFrom, tickFrom, turnTo, tickTo) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return common.CompareTT(out[i].Turn, out[i].Tick, out[j].Turn, out[j].Tick) < 0 })
	return out, nil
}

func (b *Backend) LoadEdgeVal(graph, branch string, turnFrom Turn, tickFrom Tick, turnTo Turn, tickTo Tick) ([]backend.EdgeValRow, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []backend.EdgeValRow
	for c, row := range b.edgeVal {
		if c.graph == graph && c.branch == branch && withinRange(c.turn, c.tick, turnFrom, tickFrom, turnTo, tickTo) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return common.CompareTT(out[i].Turn, out[i].Tick, out[j].Turn, out[j].Tick) < 0 })
	return out, nil
}

func (b *Backend) SetNode(row backend.NodeRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[coord{row.Graph, row.Branch, row.Node, row.Turn, row.Tick}] = row.Exists
	return nil
}

func (b *Backend) SetEdge(row backend.EdgeRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edges[edgeCoord{row.Graph, row.Branch, row.Orig, row.Dest, row.Idx, row.Turn, row.Tick}] = row.Exists
	return nil
}

func (b *Backend) SetGraphVal(row backend.GraphValRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphVal[valCoord{row.Graph, row.Branch, "", row.Key, row.Turn, row.Tick}] = row
	return nil
}

func (b *Backend) SetNodeVal(row backend.NodeValRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeVal[valCoord{row.Graph, row.Branch, row.Node, row.Key, row.Turn, row.Tick}] = row
	return nil
}

func (b *Backend) SetEdgeVal(row backend.EdgeValRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entity := row.Orig + "\x00" + row.Dest
	b.edgeVal[valCoord{row.Graph, row.Branch, entity, row.Key, row.Turn, row.Tick}] = row
	return nil
}

func (b *Backend) DelTime(kind, graph, branch string, turn Turn, tick Tick) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch kind {
	case "nodes":
		for c := range b.nodes {
			if c.graph == graph && c.branch == branch && c.turn == turn && c.tick == tick {
				delete(b.nodes, c)
			}
		}
	case "edges":
		for c := range b.edges {
			if c.graph == graph && c.branch == branch && c.turn == turn && c.tick == tick {
				delete(b.edges, c)
			}
		}
	case "graph_val":
		for c := range b.graphVal {
			if c.graph == graph && c.branch == branch && c.turn == turn && c.tick == tick {
				delete(b.graphVal, c)
			}
		}
	case "node_val":
		for c := range b.nodeVal {
			if c.graph == graph && c.branch == branch && c.turn == turn && c.tick == tick {
				delete(b.nodeVal, c)
			}
		}
	case "edge_val":
		for c := range b.edgeVal {
			if c.graph == graph && c.branch == branch && c.turn == turn && c.tick == tick {
				delete(b.edgeVal, c)
			}
		}
	}
	return nil
}

func (b *Backend) NewBranch(row backend.BranchRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.branches[row.Branch] = row
	return nil
}

func (b *Backend) NewGraph(graph, typ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graphs[graph] = typ
	return nil
}

func (b *Backend) DelGraph(graph string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.graphs, graph)
	for c := range b.nodes {
		if c.graph == graph {
			delete(b.nodes, c)
		}
	}
	for c := range b.edges {
		if c.graph == graph {
			delete(b.edges, c)
		}
	}
	return nil
}

func (b *Backend) KeyframesInsertMany(rows []backend.KeyframeRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		b.keyframes[coord{row.Graph, row.Branch, "", row.Turn, row.Tick}] = row
	}
	return nil
}

func (b *Backend) PlansInsertMany(rows []backend.PlanRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		b.plans[row.PlanID] = row
	}
	return nil
}

func (b *Backend) PlanTicksInsertMany(rows []backend.PlanTickRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.planTicks = append(b.planTicks, rows...)
	return nil
}

func (b *Backend) SetBranch(branch string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalBranch = branch
	return nil
}

func (b *Backend) SetTurn(branch string, turn Turn, tick Tick) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalTurn, b.globalTick = turn, tick
	byTurn, ok := b.turns[branch]
	if !ok {
		byTurn = make(map[Turn]backend.TurnRow)
		b.turns[branch] = byTurn
	}
	row := byTurn[turn]
	row.Branch, row.Turn = branch, turn
	if tick > row.EndTick {
		row.EndTick = tick
	}
	byTurn[turn] = row
	return nil
}

func (b *Backend) Commit() error { return nil }
func (b *Backend) Close() error  { return nil }
