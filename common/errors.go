package common

import (
	"fmt"

	"github.com/go-stack/stack"
	"github.com/pkg/errors"
)

// GraphNameError is raised when a graph is created under a reserved or
// already-taken name.
type GraphNameError struct {
	Name any
	Msg  string
}

func (e *GraphNameError) Error() string {
	return fmt.Sprintf("graph name error: %s: %v", e.Msg, e.Name)
}

// OutOfTimelineError is raised on an invalid time move: branching before
// the parent's present, jumping into an unplanned future tick, etc.
type OutOfTimelineError struct {
	BranchThen string
	TurnThen   Turn
	TickThen   Tick
	BranchTo   string
	TurnTo     Turn
	TickTo     Tick
	Msg        string
}

func (e *OutOfTimelineError) Error() string {
	return fmt.Sprintf("out of timeline: %s (from %s@%d.%d to %s@%d.%d)",
		e.Msg, e.BranchThen, e.TurnThen, e.TickThen, e.BranchTo, e.TurnTo, e.TickTo)
}

// HistoricalWriteError is raised when a write would rewrite committed
// past within the current turn (spec.md §4.1 rule 2).
type HistoricalWriteError struct {
	Branch string
	Turn   Turn
	AtTick Tick
	Msg    string
}

func (e *HistoricalWriteError) Error() string {
	return fmt.Sprintf("historical write: %s (%s turn %d, go to tick %d)", e.Msg, e.Branch, e.Turn, e.AtTick)
}

// TimeError is raised on forward-mode violations (spec.md §4.2).
type TimeError struct {
	Msg string
}

func (e *TimeError) Error() string {
	return "time error: " + e.Msg
}

// KeyError is raised when a graph/node/edge/attribute doesn't exist at
// the time being read.
type KeyError struct {
	Kind string
	Key  any
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("no such %s: %v", e.Kind, e.Key)
}

// PrunedError is returned when the data requested has been unloaded and
// no keyframe remains to reconstruct it from (old data permanently gone).
var PrunedError = errors.New("allegedb: data not available, pruned")

// FatalError wraps an internal invariant violation (spec.md §7 class 2):
// these are never supposed to happen and recovery requires a restart, so
// the call stack at the point of detection is captured for postmortems.
type FatalError struct {
	Msg   string
	Stack stack.CallStack
	cause error
}

func NewFatalError(msg string, cause error) *FatalError {
	return &FatalError{Msg: msg, Stack: stack.Trace().TrimRuntime(), cause: cause}
}

func (e *FatalError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("allegedb: invariant violated: %s: %v\n%+v", e.Msg, e.cause, e.Stack)
	}
	return fmt.Sprintf("allegedb: invariant violated: %s\n%+v", e.Msg, e.Stack)
}

func (e *FatalError) Unwrap() error { return e.cause }

// Wrap attaches a message to err using pkg/errors, preserving the chain
// for errors.Is/errors.As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.WithMessage(err, msg)
}
