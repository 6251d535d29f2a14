package loader

import (
	"fmt"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/plan"
	"github.com/coldbrook-sim/allegedb/timeline"
)

// Bootstrap reconstructs tl and pm from be's own dumps at process start
// (spec.md §4.9 all_branches/turns_dump/plans_dump/plan_ticks_dump),
// before any LoadAt is issued, and returns every known graph name so the
// caller can decide what to load before serving the first request.
// Restored plans carry no tagged Write content — see plan.Manager.Restore's
// doc comment for why that's an acceptable, documented limitation rather
// than something Bootstrap needs to work around.
func Bootstrap(be backend.Backend, tl *timeline.Timeline, pm *plan.Manager) ([]string, error) {
	branches, err := be.AllBranches()
	if err != nil {
		return nil, fmt.Errorf("loader: bootstrap: all_branches: %w", err)
	}
	turns, err := be.TurnsDump()
	if err != nil {
		return nil, fmt.Errorf("loader: bootstrap: turns_dump: %w", err)
	}

	turnEndPlan := make(map[string]map[Turn]Tick)
	turnEnd := make(map[string]map[Turn]Tick)
	for _, t := range turns {
		if turnEnd[t.Branch] == nil {
			turnEnd[t.Branch] = make(map[Turn]Tick)
		}
		turnEnd[t.Branch][t.Turn] = t.EndTick
		if turnEndPlan[t.Branch] == nil {
			turnEndPlan[t.Branch] = make(map[Turn]Tick)
		}
		turnEndPlan[t.Branch][t.Turn] = t.PlanEndTick
	}

	for _, row := range branches {
		tl.Restore(timeline.Branch{
			Name:          row.Branch,
			Parent:        row.Parent,
			TurnStart:     row.TurnStart,
			TickStart:     row.TickStart,
			TurnEnd:       row.TurnEnd,
			TickEnd:       row.TickEnd,
			BranchEndPlan: row.BranchEndPlan,
		}, turnEndPlan[row.Branch], turnEnd[row.Branch])
	}

	plans, err := be.PlansDump()
	if err != nil {
		return nil, fmt.Errorf("loader: bootstrap: plans_dump: %w", err)
	}
	planTicks, err := be.PlanTicksDump()
	if err != nil {
		return nil, fmt.Errorf("loader: bootstrap: plan_ticks_dump: %w", err)
	}
	byPlan := make(map[uint64][]plan.BTTPair, len(plans))
	for _, pt := range planTicks {
		byPlan[pt.PlanID] = append(byPlan[pt.PlanID], plan.BTTPair{Turn: pt.Turn, Tick: pt.Tick})
	}
	for _, row := range plans {
		pm.Restore(row.PlanID, row.Branch, row.Turn, row.Tick, byPlan[row.PlanID])
	}

	graphs, err := be.AllGraphs()
	if err != nil {
		return nil, fmt.Errorf("loader: bootstrap: all_graphs: %w", err)
	}
	names := make([]string, len(graphs))
	for i, g := range graphs {
		names[i] = g.Graph
	}
	return names, nil
}
