// Copyright 2024 The Erigon Authors
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

// Package common holds the basic time coordinates (branch, turn, tick)
// shared by every other package in the module, plus the small integer
// helpers that keep tick arithmetic from silently overflowing.
package common

import (
	"cmp"
	"fmt"
	"math/bits"
)

// Turn and Tick are both non-negative; Branch is the empty interface
// of hashable names in the spec but in practice is always a string.
type Turn = int64
type Tick = int64

// BTT is a point in time: (branch, turn, tick), ordered lexicographically
// within a branch. Comparisons across branches require the Timeline's
// parentage, so BTT itself only orders turn/tick.
type BTT struct {
	Branch string
	Turn   Turn
	Tick   Tick
}

func (b BTT) String() string {
	return fmt.Sprintf("%s@%d.%d", b.Branch, b.Turn, b.Tick)
}

// CompareTT compares (turn,tick) pairs within the same branch.
func CompareTT(turn1, tick1, turn2, tick2 Turn) int {
	if c := cmp.Compare(turn1, turn2); c != 0 {
		return c
	}
	return cmp.Compare(tick1, tick2)
}

// Before reports whether b is strictly earlier than o, assuming both
// are in the same branch (callers crossing branches must use the
// Timeline to decide ancestry first).
func (b BTT) Before(o BTT) bool {
	return CompareTT(b.Turn, b.Tick, o.Turn, o.Tick) < 0
}

// SafeAddTick returns tick+delta and whether it overflowed; ticks are
// incremented on every write (spec.md §4.1) so a long-running branch
// must not wrap silently.
func SafeAddTick(tick Tick, delta int64) (Tick, bool) {
	sum, carry := bits.Add64(uint64(tick), uint64(delta), 0)
	return Tick(sum), carry != 0 || sum > uint64(MaxTick)
}

// CeilDiv divides rounding up; used when sizing loader windows against
// a configured batch granularity.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// MaxTurn/MaxTick bound what the timeline will accept before refusing
// to advance further (spec.md invariant 6 style guardrail).
const (
	MaxTurn Turn = 1<<63 - 1
	MaxTick Tick = 1<<63 - 1
)

// PackTT and UnpackTT give packages outside cache (plan, loader) the same
// (turn,tick) ordering key cache/historical.go uses internally, so a plan's
// tick list and a loader window can be compared against a WindowDict's keys
// without reaching into cache's unexported pack/unpack.
func PackTT(turn Turn, tick Tick) int64 {
	return int64(turn)<<32 | (int64(tick) & 0xffffffff)
}

func UnpackTT(p int64) (Turn, Tick) {
	return Turn(p >> 32), Tick(int32(p))
}
