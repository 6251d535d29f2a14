package orm

import (
	"fmt"

	"github.com/coldbrook-sim/allegedb/loader"
)

// Plan runs fn under a new tentative plan (spec.md §4.8 plan(reset=true),
// §9's exception-safe scoped guard replacing Python's PlanningContext).
// Every write fn makes through the ORM's public setters is tagged to the
// new plan id, which is also passed to fn for Tag-level bookkeeping the
// caller might want (there is none in the setters themselves — they tag
// automatically). If reset is true (the default the spec names), the
// cursor is restored to its pre-Plan position once fn returns, whether
// or not fn returned an error; if false, the cursor is left wherever fn
// last moved it, still inside the plan's own timeline.
func (o *ORM) Plan(reset bool, fn func(planID uint64) error) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.planning {
		return fmt.Errorf("orm: already planning")
	}
	entryBranch, entryTurn, entryTick := o.branch, o.turn, o.tick
	wasForward := o.forward

	o.planning = true
	o.forward = false
	id := o.pm.New(o.branch, o.turn, o.tick)
	o.curPlan = id

	defer func() {
		o.planning = false
		o.forward = wasForward
		o.curPlan = 0
		if reset {
			o.branch, o.turn, o.tick = entryBranch, entryTurn, entryTick
		}
	}()

	return fn(id)
}

// Advancing runs fn with forward-mode enabled (spec.md §4.8 advancing()):
// turn/tick may only move ahead while it's active, and SetBranch/SetTime
// are refused outright. Nesting is refused, matching the original
// engine's single-flag context manager.
func (o *ORM) Advancing(fn func() error) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.forward {
		return fmt.Errorf("orm: already advancing")
	}
	o.forward = true
	defer func() { o.forward = false }()
	return fn()
}

// Batch runs fn with batch mode enabled (spec.md §4.8 batch()): the
// cache-arranger's speculative prefetching is suppressed for the
// duration (Submit is skipped via maybePrefetch), trading slower reads
// immediately afterward for faster writes during fn.
func (o *ORM) Batch(fn func() error) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.batch {
		return fmt.Errorf("orm: already batching")
	}
	o.batch = true
	defer func() { o.batch = false }()
	return fn()
}

// maybePrefetch submits req to the cache-arranger unless batch mode is
// active or no arranger was configured.
func (o *ORM) maybePrefetch(graphs []string, branch string, turn Turn, tick Tick) {
	if o.batch || o.arranger == nil {
		return
	}
	o.arranger.Submit(loader.PrefetchRequest{Graphs: graphs, Branch: branch, Turn: turn, Tick: tick})
}
