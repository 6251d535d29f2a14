// Package timeline implements the branch tree (spec.md C2): parentage,
// per-branch turn/tick extents (both committed and planned), and the
// arrow-of-time rules that the ORM facade enforces on top of it.
package timeline

import (
	"iter"
	"sync"

	"github.com/coldbrook-sim/allegedb/common"
)

type Turn = common.Turn
type Tick = common.Tick
type BTT = common.BTT

// RootBranch is the fixed name of the branch with no parent (spec.md §3).
const RootBranch = "trunk"

// Branch holds one branch's parentage and extents. TurnEnd/TickEnd is
// the committed extent; TurnEndPlan mirrors it per-turn for the tallest
// planned tick (spec.md §4.1), tracked separately in Timeline.turnEndPlan
// because it's keyed by (branch, turn) rather than being a single pair.
type Branch struct {
	Name                 string
	Parent               string // "" only for RootBranch
	TurnStart, TickStart Turn
	TurnEnd, TickEnd     Turn
	// BranchEndPlan is the furthest turn any plan on this branch reaches
	// (spec.md §4.5 "branch_end_plan"), independent of TurnEnd.
	BranchEndPlan Turn
}

// Timeline owns the branch tree. Every method takes its own mutex, so a
// Timeline is safe for concurrent use; package orm additionally calls it
// under the world lock.
type Timeline struct {
	mu          sync.RWMutex
	branches    map[string]*Branch
	turnEndPlan map[string]map[Turn]Tick
	turnEnd     map[string]map[Turn]Tick // committed end tick, used by _nbtt rule 2
}

func New() *Timeline {
	t := &Timeline{
		branches:    make(map[string]*Branch),
		turnEndPlan: make(map[string]map[Turn]Tick),
		turnEnd:     make(map[string]map[Turn]Tick),
	}
	t.branches[RootBranch] = &Branch{Name: RootBranch}
	return t
}

// Branch returns the named branch's record.
func (t *Timeline) Branch(name string) (*Branch, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.branches[name]
	if !ok {
		return nil, false
	}
	cp := *b
	return &cp, true
}

// Has reports whether name is a known branch.
func (t *Timeline) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.branches[name]
	return ok
}

// NewBranch records a new branch forked from parent at (turnStart,
// tickStart). It enforces spec.md invariant 6's lower bound (the child
// may not start before its parent started); the upper bound ("at or
// before the parent's present cursor") is the caller's responsibility
// since Timeline doesn't know the live cursor.
func (t *Timeline) NewBranch(name, parent string, turnStart Turn, tickStart Tick) (*Branch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.branches[name]; ok {
		return nil, &common.GraphNameError{Name: name, Msg: "branch already exists"}
	}
	pb, ok := t.branches[parent]
	if !ok {
		return nil, &common.OutOfTimelineError{Msg: "unknown parent branch " + parent, BranchTo: name}
	}
	if common.CompareTT(turnStart, tickStart, pb.TurnStart, pb.TickStart) < 0 {
		return nil, &common.OutOfTimelineError{
			BranchThen: parent, TurnThen: pb.TurnStart, TickThen: pb.TickStart,
			BranchTo: name, TurnTo: turnStart, TickTo: tickStart,
			Msg: "branch cannot start before its parent started",
		}
	}
	b := &Branch{
		Name: name, Parent: parent,
		TurnStart: turnStart, TickStart: tickStart,
		TurnEnd: turnStart, TickEnd: tickStart,
		BranchEndPlan: turnStart,
	}
	t.branches[name] = b
	t.turnEndPlan[name] = map[Turn]Tick{turnStart: tickStart}
	t.turnEnd[name] = map[Turn]Tick{turnStart: tickStart}
	cp := *b
	return &cp, nil
}

// ExtendCommitted grows the branch's committed (turn_end,tick_end) if
// (turn,tick) is later, matching _nbtt's monotonic extension.
func (t *Timeline) ExtendCommitted(branch string, turn Turn, tick Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.branches[branch]
	if b == nil {
		return
	}
	if common.CompareTT(turn, tick, b.TurnEnd, b.TickEnd) > 0 {
		b.TurnEnd, b.TickEnd = turn, tick
	}
	m := t.turnEnd[branch]
	if m == nil {
		m = make(map[Turn]Tick)
		t.turnEnd[branch] = m
	}
	if tick > m[turn] {
		m[turn] = tick
	}
}

// CommittedTickEnd returns turn_end[branch,turn] for _nbtt rule 2.
func (t *Timeline) CommittedTickEnd(branch string, turn Turn) Tick {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turnEnd[branch][turn]
}

// TurnEndPlan returns turn_end_plan[branch,turn], or 0 if never set.
func (t *Timeline) TurnEndPlan(branch string, turn Turn) Tick {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.turnEndPlan[branch][turn]
}

// SetTurnEndPlan sets turn_end_plan[branch,turn] and bumps the branch's
// BranchEndPlan if turn is further out than anything seen before.
func (t *Timeline) SetTurnEndPlan(branch string, turn Turn, tick Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.turnEndPlan[branch]
	if m == nil {
		m = make(map[Turn]Tick)
		t.turnEndPlan[branch] = m
	}
	m[turn] = tick
	if b := t.branches[branch]; b != nil && turn > b.BranchEndPlan {
		b.BranchEndPlan = turn
	}
}

// IsParentOf walks up from child and reports whether parent appears in
// its ancestry (including child == parent).
func (t *Timeline) IsParentOf(parent, child string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cur := child
	for {
		if cur == parent {
			return true
		}
		b, ok := t.branches[cur]
		if !ok || b.Parent == "" {
			return cur == parent
		}
		cur = b.Parent
	}
}

// IterParentBTT is the restartable generator from spec.md §4.6/§9: it
// walks upward from (branch,turn,tick) through each ancestor, yielding
// the splice point (the ancestor branch and the (turn,tick) at which the
// descendant forked from it) that the delta engine and loader use to
// cross branch boundaries. It must be restartable because the loader and
// the delta engine each walk it afresh; range-over-func closures make
// that free.
func (t *Timeline) IterParentBTT(branch string, turn Turn, tick Tick) iter.Seq[BTT] {
	return func(yield func(BTT) bool) {
		cur := branch
		curTurn, curTick := turn, tick
		for {
			if !yield(BTT{Branch: cur, Turn: curTurn, Tick: curTick}) {
				return
			}
			b, ok := t.Branch(cur)
			if !ok || b.Parent == "" {
				return
			}
			cur, curTurn, curTick = b.Parent, b.TurnStart, b.TickStart
		}
	}
}

// ParentBranch implements cache.ParentOf: it reports branch's parent and
// the (turn,tick) at which branch forked from it, so the historical
// cache can recurse into ancestor history on a miss (spec.md invariant 4).
func (t *Timeline) ParentBranch(branch string) (parent string, turnStart Turn, tickStart Tick, ok bool) {
	b, found := t.Branch(branch)
	if !found || b.Parent == "" {
		return "", 0, 0, false
	}
	return b.Parent, b.TurnStart, b.TickStart, true
}

// Ancestors returns branch and every ancestor's name, root-most last.
func (t *Timeline) Ancestors(branch string) []string {
	var out []string
	cur := branch
	for {
		out = append(out, cur)
		b, ok := t.Branch(cur)
		if !ok || b.Parent == "" {
			return out
		}
		cur = b.Parent
	}
}

// Descendants yields every branch whose ancestry includes root.
func (t *Timeline) Descendants(root string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for name := range t.branches {
		cur := name
		for {
			if cur == root {
				out = append(out, name)
				break
			}
			b, ok := t.branches[cur]
			if !ok || b.Parent == "" {
				break
			}
			cur = b.Parent
		}
	}
	return out
}

// Restore installs a branch record read back from the persistence
// backend at startup (spec.md §4.9 all_branches / turns_dump), bypassing
// the parent-time validation NewBranch performs for live forks.
func (t *Timeline) Restore(b Branch, turnEndPlanRows map[Turn]Tick, turnEndRows map[Turn]Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := b
	t.branches[b.Name] = &cp
	if turnEndPlanRows != nil {
		t.turnEndPlan[b.Name] = turnEndPlanRows
	}
	if turnEndRows != nil {
		t.turnEnd[b.Name] = turnEndRows
	}
}

// All returns every known branch record, for commit-time persistence.
func (t *Timeline) All() []Branch {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Branch, 0, len(t.branches))
	for _, b := range t.branches {
		out = append(out, *b)
	}
	return out
}
