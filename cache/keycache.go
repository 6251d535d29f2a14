package cache

import (
	"fmt"
	"sync"

	"github.com/elastic/go-freelru"
	"github.com/holiman/bloomfilter/v2"
	"github.com/spaolacci/murmur3"
)

// KeyCache holds the bounded, in-memory "key set at time" working set
// (spec.md §1's bounded working set, concretely): a capacity-bounded LRU
// of computed key sets, versioned per (graph,branch) so a single write
// invalidates every cached turn in that branch without an O(n) scan,
// plus a bloom filter giving a cheap "definitely never written" answer
// for sub-keys that were never interned at all.
type KeyCache struct {
	mu       sync.Mutex
	lru      *freelru.LRU[string, map[string]struct{}]
	seen     *bloomfilter.Filter
	versions map[string]uint64
}

func hashString(s string) uint32 {
	return murmur3.Sum32([]byte(s))
}

func NewKeyCache(capacity uint32) *KeyCache {
	lru, err := freelru.New[string, map[string]struct{}](capacity, hashString)
	if err != nil {
		// capacity is always a compile-time constant supplied by us; a
		// non-power-of-two would be the only way this fails.
		panic(fmt.Sprintf("cache: freelru.New: %v", err))
	}
	seen, err := bloomfilter.NewOptimal(1<<20, 0.001)
	if err != nil {
		panic(fmt.Sprintf("cache: bloomfilter.NewOptimal: %v", err))
	}
	return &KeyCache{
		lru:      lru,
		seen:     seen,
		versions: make(map[string]uint64),
	}
}

func (kc *KeyCache) branchKey(graph, branch string) string {
	return graph + "\x00" + branch
}

func (kc *KeyCache) cacheKey(graph, branch string, turn Turn, version uint64) string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d", graph, branch, version, turn)
}

// Get returns the cached key set for (graph,branch,turn) if one is
// cached and not stale. Family.KeySetAt passes the packed (turn,tick) as
// turn, so each tick gets its own entry.
func (kc *KeyCache) Get(graph, branch string, turn Turn) (map[string]struct{}, bool) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	v := kc.versions[kc.branchKey(graph, branch)]
	return kc.lru.Get(kc.cacheKey(graph, branch, turn, v))
}

// Set caches keys for (graph,branch,turn) at the current version.
func (kc *KeyCache) Set(graph, branch string, turn Turn, keys map[string]struct{}) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	v := kc.versions[kc.branchKey(graph, branch)]
	kc.lru.Add(kc.cacheKey(graph, branch, turn, v), keys)
	for k := range keys {
		kc.seen.Add(bloomKey(graph, k))
	}
}

// Invalidate bumps (graph,branch)'s version, orphaning every cached
// turn in one branch without walking the LRU: a write at any turn can
// shift the key set of every later turn, so per-turn eviction would
// still have to invalidate forward from turn anyway.
func (kc *KeyCache) Invalidate(graph, branch string, turn Turn) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.versions[kc.branchKey(graph, branch)]++
}

// MarkSeen records that subKey has been written at least once in graph,
// for MightHaveExisted's bloom-filter fast path.
func (kc *KeyCache) MarkSeen(graph, subKey string) {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	kc.seen.Add(bloomKey(graph, subKey))
}

// MightHaveExisted reports false only when subKey is certain to have
// never been written in graph; true is advisory (it may be a false
// positive, per bloom filter semantics) and callers must still consult
// Retrieve for a definitive answer.
func (kc *KeyCache) MightHaveExisted(graph, subKey string) bool {
	kc.mu.Lock()
	defer kc.mu.Unlock()
	return kc.seen.Contains(bloomKey(graph, subKey))
}

func bloomKey(graph, subKey string) bloomfilter.Key {
	h1, h2 := murmur3.Sum128([]byte(graph + "\x00" + subKey))
	return bloomfilter.Key{h1, h2, 0, 0}
}
