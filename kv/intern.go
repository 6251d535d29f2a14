package kv

import "sync"

// Intern assigns small dense uint32 ids to arbitrary hashable names, so
// that node/edge existence sets can be represented as
// github.com/RoaringBitmap/roaring bitmaps in keyframes (package
// keyframe) instead of Go maps. Ids are never reused within a process:
// allocation is monotonic, so a bitmap captured in one keyframe keeps
// meaning relative to bitmaps captured later in the same process.
type Intern struct {
	mu      sync.RWMutex
	byName  map[string]uint32
	byID    []string
}

func NewIntern() *Intern {
	return &Intern{byName: make(map[string]uint32)}
}

// ID returns the id for name, allocating a new one if name hasn't been
// seen before.
func (in *Intern) ID(name string) uint32 {
	in.mu.RLock()
	if id, ok := in.byName[name]; ok {
		in.mu.RUnlock()
		return id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.byName[name]; ok {
		return id
	}
	id := uint32(len(in.byID))
	in.byName[name] = id
	in.byID = append(in.byID, name)
	return id
}

// Name reverses ID; the second return is false if id was never
// allocated by this Intern.
func (in *Intern) Name(id uint32) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.byID) {
		return "", false
	}
	return in.byID[id], true
}

// Lookup returns the id for name without allocating one.
func (in *Intern) Lookup(name string) (uint32, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	id, ok := in.byName[name]
	return id, ok
}
