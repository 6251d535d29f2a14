package orm

import (
	"context"
	"fmt"

	"github.com/coldbrook-sim/allegedb/backend"
	"github.com/coldbrook-sim/allegedb/common"
)

// Time returns the live (branch,turn,tick) cursor.
func (o *ORM) Time() (branch string, turn Turn, tick Tick) {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.branch, o.turn, o.tick
}

// nbtt is spec.md §4.1's "next branch/turn/tick": the single path every
// mutator advances the cursor through before writing. Callers must
// already hold the world lock. On any error the cursor, Timeline, and
// cache are left exactly as they were (spec.md §7's propagation rule):
// nbtt only mutates state once every check has passed.
func (o *ORM) nbtt() (Turn, Tick, error) {
	tickPrime := o.tick + 1
	planEnd := o.tl.TurnEndPlan(o.branch, o.turn)
	if tickPrime <= planEnd {
		tickPrime = planEnd + 1
	}

	if committed := o.tl.CommittedTickEnd(o.branch, o.turn); committed > tickPrime {
		return 0, 0, &common.HistoricalWriteError{
			Branch: o.branch, Turn: o.turn, AtTick: committed,
			Msg: "not at the end of the turn",
		}
	}

	b, ok := o.tl.Branch(o.branch)
	if !ok {
		return 0, 0, common.NewFatalError("nbtt: cursor on unknown branch "+o.branch, nil)
	}
	if o.turn < b.TurnEnd {
		return 0, 0, &common.OutOfTimelineError{
			BranchThen: o.branch, TurnThen: o.turn, TickThen: o.tick,
			BranchTo: o.branch, TurnTo: o.turn, TickTo: tickPrime,
			Msg: "writing into the branch's own past turn",
		}
	}

	if o.planning {
		if id, tagged := o.pm.PlanOf(o.branch, o.turn, tickPrime); tagged && id != o.curPlan {
			return 0, 0, &common.OutOfTimelineError{
				BranchThen: o.branch, TurnThen: o.turn, TickThen: o.tick,
				BranchTo: o.branch, TurnTo: o.turn, TickTo: tickPrime,
				Msg: "tick already claimed by another plan",
			}
		}
	}

	o.tl.SetTurnEndPlan(o.branch, o.turn, tickPrime)
	if !o.planning {
		o.tl.ExtendCommitted(o.branch, o.turn, tickPrime)
	}
	o.tick = tickPrime
	o.ld.NoteWrite(o.branch, o.turn, tickPrime, o.graphNames())
	return o.turn, tickPrime, nil
}

// setBranchLocked implements spec.md §4.2's branch-switch algorithm
// (_set_branch). Caller must already hold the world lock.
func (o *ORM) setBranchLocked(v string) error {
	if o.planning {
		return &common.OutOfTimelineError{Msg: "can't change branches while planning"}
	}
	if o.forward {
		return &common.TimeError{Msg: "can't change branches in advancing mode"}
	}
	fromBranch, fromTurn, fromTick := o.branch, o.turn, o.tick
	if v == fromBranch {
		o.tick = o.tl.TurnEndPlan(fromBranch, fromTurn)
		return nil
	}

	isNew := !o.tl.Has(v)
	if !isNew {
		b, _ := o.tl.Branch(v)
		if fromTurn < b.TurnStart {
			return &common.OutOfTimelineError{
				BranchThen: fromBranch, TurnThen: fromTurn, TickThen: fromTick,
				BranchTo: v, TurnTo: b.TurnStart, TickTo: b.TickStart,
				Msg: "can't move to a branch before its own start",
			}
		}
	} else {
		if _, err := o.tl.NewBranch(v, fromBranch, fromTurn, fromTick); err != nil {
			return err
		}
		row := backend.BranchRow{
			Branch: v, Parent: fromBranch,
			TurnStart: fromTurn, TickStart: fromTick,
			TurnEnd: fromTurn, TickEnd: fromTick,
			BranchEndPlan: fromTurn,
		}
		if err := o.be.NewBranch(row); err != nil {
			return common.NewFatalError("persist new branch "+v, err)
		}
	}

	o.branch = v
	o.tick = o.tl.TurnEndPlan(v, fromTurn)
	o.turn = fromTurn

	if isNew {
		o.pm.CopyPlans(fromBranch, v, fromTurn, fromTick)
	}
	if err := o.ld.LoadAt(context.Background(), o.graphNames(), v, o.turn, o.tick); err != nil {
		return fmt.Errorf("orm: set_branch %q: %w", v, err)
	}

	o.fireTime(TimeSignal{FromBranch: fromBranch, FromTurn: fromTurn, FromTick: fromTick, ToBranch: v, ToTurn: o.turn, ToTick: o.tick})
	return nil
}

// SetBranch moves the cursor to branch v, per spec.md §4.8/§4.2.
func (o *ORM) SetBranch(v string) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.setBranchLocked(v)
}

// setTurnLocked implements _set_turn. Caller must already hold the lock.
func (o *ORM) setTurnLocked(v Turn) error {
	if o.forward && v < o.turn {
		return &common.TimeError{Msg: "can't move backward in advancing mode"}
	}
	b, ok := o.tl.Branch(o.branch)
	if !ok {
		return common.NewFatalError("set_turn: cursor on unknown branch "+o.branch, nil)
	}
	if v < b.TurnStart {
		return &common.OutOfTimelineError{
			BranchThen: o.branch, TurnThen: o.turn, TickThen: o.tick,
			BranchTo: o.branch, TurnTo: v,
			Msg: "can't move before the branch's own start turn",
		}
	}

	fromTurn, fromTick := o.turn, o.tick
	tick := o.tl.TurnEndPlan(o.branch, v)
	o.turn, o.tick = v, tick
	o.tl.SetTurnEndPlan(o.branch, v, tick)

	if err := o.ld.LoadAt(context.Background(), o.graphNames(), o.branch, v, tick); err != nil {
		return fmt.Errorf("orm: set_turn %d: %w", v, err)
	}
	o.maybeAutoKeyframe(v)

	o.fireTime(TimeSignal{FromBranch: o.branch, FromTurn: fromTurn, FromTick: fromTick, ToBranch: o.branch, ToTurn: v, ToTick: tick})
	return nil
}

// SetTurn moves the cursor to turn v on the current branch.
func (o *ORM) SetTurn(v Turn) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.setTurnLocked(v)
}

// setTickLocked implements _set_tick. Caller must already hold the lock.
func (o *ORM) setTickLocked(v Tick) error {
	if o.forward && v < o.tick {
		return &common.TimeError{Msg: "can't move backward in advancing mode"}
	}
	fromTurn, fromTick := o.turn, o.tick
	if v > o.tl.TurnEndPlan(o.branch, o.turn) {
		o.tl.SetTurnEndPlan(o.branch, o.turn, v)
	}
	if !o.planning {
		o.tl.ExtendCommitted(o.branch, o.turn, v)
	}
	o.tick = v

	if err := o.ld.LoadAt(context.Background(), o.graphNames(), o.branch, o.turn, v); err != nil {
		return fmt.Errorf("orm: set_tick %d: %w", v, err)
	}
	o.fireTime(TimeSignal{FromBranch: o.branch, FromTurn: fromTurn, FromTick: fromTick, ToBranch: o.branch, ToTurn: o.turn, ToTick: v})
	return nil
}

// SetTick moves the cursor to tick v within the current turn.
func (o *ORM) SetTick(v Tick) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.setTickLocked(v)
}

// SetTime moves branch and turn together (spec.md §4.8's time=(branch,
// turn) pair), at that turn's planned tick end.
func (o *ORM) SetTime(branchName string, turn Turn) error {
	o.lock.Lock()
	defer o.lock.Unlock()
	if err := o.setBranchLocked(branchName); err != nil {
		return err
	}
	return o.setTurnLocked(turn)
}

// maybeAutoKeyframe snapshots every open graph once KeyframeInterval
// turns have passed since its last keyframe (spec.md §4.4's keyframe
// policy, left to the implementer; zero disables it).
func (o *ORM) maybeAutoKeyframe(turn Turn) {
	if o.cfg.KeyframeInterval <= 0 {
		return
	}
	for name := range o.graphs {
		last, ok := o.lastKeyframe[name]
		if ok && int64(turn-last) < o.cfg.KeyframeInterval {
			continue
		}
		if o.needsDeNovoSnap(name) {
			if _, err := o.snapDeNovoChecked(name); err != nil {
				o.log.Printf("orm: auto keyframe %q: %v", name, err)
			}
			continue
		}
		if _, err := o.kf.Snap(name, o.branch, o.turn, o.tick); err != nil {
			o.log.Printf("orm: auto keyframe %q: %v", name, err)
		}
	}
}
