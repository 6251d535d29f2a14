// Package plan implements the Plan Manager (spec.md C5): tentative
// future writes tagged to a plan id, contradiction invalidation when a
// non-planning write overtakes them, and cross-branch plan copy when a
// branch forks past a plan's start.
package plan

import (
	"sync"

	"github.com/anacrolix/log"
	"github.com/google/uuid"

	"github.com/coldbrook-sim/allegedb/cache"
	"github.com/coldbrook-sim/allegedb/common"
	"github.com/coldbrook-sim/allegedb/kv"
)

type Turn = common.Turn
type Tick = common.Tick

// Write is one tagged plan write, recorded in full (not just its
// sub-key) so Manager.CopyPlans can re-issue it under a fresh plan id
// without reading the value back out of the cache.
type Write struct {
	Kind   string // where_cached kind: "graph_val", "nodes", "edges", "node_val", "edge_val"
	Graph  string
	SubKey string
	Value  any
	Unset  bool
}

type bttKey struct {
	branch string
	turn   Turn
	tick   Tick
}

// Record is one plan's bookkeeping entry: spec.md §4.5's plans[id].
type Record struct {
	ID          uint64
	Branch      string
	StartTurn   Turn
	StartTick   Tick
	Correlation uuid.UUID // log correlation only, never the plan's identity
}

// Manager owns branches_plans, plan_ticks, and time_plan (spec.md §4.5)
// over the same cache.Store the ORM facade reads and writes through.
type Manager struct {
	mu  sync.Mutex
	log log.Logger

	store  *cache.Store
	nextID uint64

	plans         map[uint64]*Record
	branchesPlans map[string]map[uint64]struct{}
	planTicks     map[uint64]*kv.WindowDict[int64, []Write]
	timePlan      map[bttKey]uint64
}

func NewManager(store *cache.Store, logger log.Logger) *Manager {
	return &Manager{
		log:           logger,
		store:         store,
		plans:         make(map[uint64]*Record),
		branchesPlans: make(map[string]map[uint64]struct{}),
		planTicks:     make(map[uint64]*kv.WindowDict[int64, []Write]),
		timePlan:      make(map[bttKey]uint64),
	}
}

// New starts a plan at (branch,turn,tick), returning its id — the monotonic
// uint64 sequence of spec.md §4.5. The UUID attached is for log correlation
// only; the plan's identity for all bookkeeping purposes is the uint64.
func (m *Manager) New(branch string, turn Turn, tick Tick) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.plans[id] = &Record{ID: id, Branch: branch, StartTurn: turn, StartTick: tick, Correlation: uuid.New()}
	set, ok := m.branchesPlans[branch]
	if !ok {
		set = make(map[uint64]struct{})
		m.branchesPlans[branch] = set
	}
	set[id] = struct{}{}
	m.planTicks[id] = kv.NewWindowDict[int64, []Write]()
	m.log.Printf("plan %d started on %s@%d.%d", id, branch, turn, tick)
	return id
}

// Record looks up a plan's bookkeeping record.
func (m *Manager) Record(id uint64) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.plans[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// BTTPair is a bare (turn,tick) pair, used by Restore to reconstruct a
// plan's tick list from backend.PlanTickRow without re-deriving the
// original Write content (see Restore's doc comment).
type BTTPair struct {
	Turn Turn
	Tick Tick
}

// Restore reinstates a plan read back from the persistence backend's
// plans/plan_ticks tables (spec.md §4.9 PlansDump/PlanTicksDump) at
// startup. The backend only records which ticks belonged to a plan, not
// the original Write content, so restored tick entries carry no Write —
// Contradict still invalidates them correctly (it only needs the packed
// tick to call cache.Store.ForgetTick), but CopyPlans can't replay a
// restored plan's values into a new branch; by the time any branch forks
// across one of its ticks the loader will have already streamed the real
// rows back into the cache from the backend, so this only degrades the
// (rare) case of forking mid-plan immediately after a restart with the
// plan's own branch not yet loaded.
func (m *Manager) Restore(id uint64, branch string, startTurn Turn, startTick Tick, ticks []BTTPair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id > m.nextID {
		m.nextID = id
	}
	m.plans[id] = &Record{ID: id, Branch: branch, StartTurn: startTurn, StartTick: startTick, Correlation: uuid.New()}
	set, ok := m.branchesPlans[branch]
	if !ok {
		set = make(map[uint64]struct{})
		m.branchesPlans[branch] = set
	}
	set[id] = struct{}{}
	wd := kv.NewWindowDict[int64, []Write]()
	for _, pair := range ticks {
		wd.Set(common.PackTT(pair.Turn, pair.Tick), nil)
		m.timePlan[bttKey{branch, pair.Turn, pair.Tick}] = id
	}
	m.planTicks[id] = wd
}

// Tag appends w to plan id's tick list at (turn,tick) and records the
// reverse index time_plan[(branch,turn,tick)] = id (spec.md §4.5). The
// caller (package orm's planning-mode mutators) is responsible for having
// already performed the underlying cache write.
func (m *Manager) Tag(id uint64, turn Turn, tick Tick, w Write) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plans[id]
	if !ok {
		return
	}
	wd := m.planTicks[id]
	if wd == nil {
		wd = kv.NewWindowDict[int64, []Write]()
		m.planTicks[id] = wd
	}
	p := common.PackTT(turn, tick)
	cur, _ := wd.Get(p)
	wd.Set(p, append(cur, w))
	m.timePlan[bttKey{rec.Branch, turn, tick}] = id
}

// PlanOf returns the plan id tagged at exactly (branch,turn,tick), if any —
// time_plan's reverse lookup.
func (m *Manager) PlanOf(branch string, turn Turn, tick Tick) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.timePlan[bttKey{branch, turn, tick}]
	return id, ok
}

// Contradict implements spec.md §4.5's contradiction rule: a non-planning
// write at (branch,turn,tick) invalidates every plan active in branch that
// has a tagged write at or after that point, from that point onward. Every
// invalidated tick is forgotten from the cache via cache.Store.ForgetTick,
// and removed from plan_ticks/time_plan.
func (m *Manager) Contradict(branch string, turn Turn, tick Tick) int {
	m.mu.Lock()
	ids := make([]uint64, 0, len(m.branchesPlans[branch]))
	for id := range m.branchesPlans[branch] {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	p := common.PackTT(turn, tick)
	total := 0
	for _, id := range ids {
		m.mu.Lock()
		wd := m.planTicks[id]
		m.mu.Unlock()
		if wd == nil {
			continue
		}

		var dead []int64
		wd.Ascend(p, func(pp int64, _ []Write) bool {
			dead = append(dead, pp)
			return true
		})
		if len(dead) == 0 {
			continue
		}

		for _, pp := range dead {
			dTurn, dTick := common.UnpackTT(pp)
			m.store.ForgetTick(branch, dTurn, dTick)
			m.mu.Lock()
			delete(m.timePlan, bttKey{branch, dTurn, dTick})
			wd.Delete(pp)
			m.mu.Unlock()
		}
		total += len(dead)
		m.log.Printf("plan %d contradicted by write at %s@%d.%d, invalidated %d tick(s)", id, branch, turn, tick, len(dead))
	}
	return total
}

// CopyPlans implements spec.md §4.5's cross-branch plan copy: when toBranch
// forks from fromBranch at (turn,tick), every plan active in fromBranch
// whose start is at or before (turn,tick) has its entries at or after the
// fork point re-issued under a fresh plan id in toBranch, with the same
// values written into the new branch's cache.
func (m *Manager) CopyPlans(fromBranch, toBranch string, turn Turn, tick Tick) {
	m.mu.Lock()
	candidates := make([]uint64, 0, len(m.branchesPlans[fromBranch]))
	for id := range m.branchesPlans[fromBranch] {
		if rec := m.plans[id]; rec != nil && common.CompareTT(rec.StartTurn, rec.StartTick, turn, tick) <= 0 {
			candidates = append(candidates, id)
		}
	}
	m.mu.Unlock()

	forkPacked := common.PackTT(turn, tick)
	for _, id := range candidates {
		m.mu.Lock()
		wd := m.planTicks[id]
		m.mu.Unlock()
		if wd == nil {
			continue
		}

		type tagged struct {
			packed int64
			writes []Write
		}
		var toCopy []tagged
		wd.Ascend(forkPacked, func(pp int64, ws []Write) bool {
			cp := make([]Write, len(ws))
			copy(cp, ws)
			toCopy = append(toCopy, tagged{pp, cp})
			return true
		})
		if len(toCopy) == 0 {
			continue
		}

		newID := m.New(toBranch, turn, tick)
		for _, entry := range toCopy {
			t, tk := common.UnpackTT(entry.packed)
			for _, w := range entry.writes {
				m.store.WriteByKind(w.Kind, w.Graph, toBranch, t, tk, w.SubKey, w.Value, w.Unset)
				m.Tag(newID, t, tk, w)
			}
		}
		m.log.Printf("plan %d copied to plan %d on fork %s->%s@%d.%d", id, newID, fromBranch, toBranch, turn, tick)
	}
}
