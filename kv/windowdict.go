package kv

import (
	"cmp"

	"github.com/google/btree"
)

// WindowDict is an ordered map from an integer-like key to a value,
// supporting "value at or before k" lookup and forward/backward
// truncation (spec.md C1). It backs the historical cache's settings and
// keyframe journals (keyed by packed (turn,tick)) and the plan manager's
// tick lists.
type WindowDict[K cmp.Ordered, V any] struct {
	t *btree.BTreeG[entry[K, V]]
}

type entry[K cmp.Ordered, V any] struct {
	key K
	val V
}

func lessEntry[K cmp.Ordered, V any](a, b entry[K, V]) bool {
	return a.key < b.key
}

// NewWindowDict constructs an empty window over keys of type K.
func NewWindowDict[K cmp.Ordered, V any]() *WindowDict[K, V] {
	return &WindowDict[K, V]{t: btree.NewG(32, lessEntry[K, V])}
}

// Set records v at k, overwriting any previous value there.
func (w *WindowDict[K, V]) Set(k K, v V) {
	w.t.ReplaceOrInsert(entry[K, V]{key: k, val: v})
}

// Get returns the value recorded exactly at k.
func (w *WindowDict[K, V]) Get(k K) (V, bool) {
	e, ok := w.t.Get(entry[K, V]{key: k})
	return e.val, ok
}

// Delete removes the value recorded exactly at k.
func (w *WindowDict[K, V]) Delete(k K) {
	w.t.Delete(entry[K, V]{key: k})
}

// Len returns the number of entries in the window.
func (w *WindowDict[K, V]) Len() int { return w.t.Len() }

// AtOrBefore returns the most recently set value whose key is <= k —
// the retrieval contract in spec.md §4.3: "the value effective at the
// end of time (turn, tick)".
func (w *WindowDict[K, V]) AtOrBefore(k K) (V, K, bool) {
	var (
		found  entry[K, V]
		hasAny bool
	)
	w.t.DescendLessOrEqual(entry[K, V]{key: k}, func(item entry[K, V]) bool {
		found = item
		hasAny = true
		return false
	})
	return found.val, found.key, hasAny
}

// AtOrAfter is the mirror of AtOrBefore: it finds the earliest entry >= k.
func (w *WindowDict[K, V]) AtOrAfter(k K) (V, K, bool) {
	var (
		found  entry[K, V]
		hasAny bool
	)
	w.t.AscendGreaterOrEqual(entry[K, V]{key: k}, func(item entry[K, V]) bool {
		found = item
		hasAny = true
		return false
	})
	return found.val, found.key, hasAny
}

// Last returns the greatest key in the window, if any.
func (w *WindowDict[K, V]) Last() (K, V, bool) {
	e, ok := w.t.Max()
	return e.key, e.val, ok
}

// First returns the least key in the window, if any.
func (w *WindowDict[K, V]) First() (K, V, bool) {
	e, ok := w.t.Min()
	return e.key, e.val, ok
}

// Ascend calls fn for every entry with key >= from, in increasing key
// order, stopping early if fn returns false.
func (w *WindowDict[K, V]) Ascend(from K, fn func(k K, v V) bool) {
	w.t.AscendGreaterOrEqual(entry[K, V]{key: from}, func(item entry[K, V]) bool {
		return fn(item.key, item.val)
	})
}

// Descend calls fn for every entry with key <= from, in decreasing key
// order, stopping early if fn returns false.
func (w *WindowDict[K, V]) Descend(from K, fn func(k K, v V) bool) {
	w.t.DescendLessOrEqual(entry[K, V]{key: from}, func(item entry[K, V]) bool {
		return fn(item.key, item.val)
	})
}

// TruncateBefore drops every entry with key < k — backward truncation,
// used by Unload (spec.md §4.7) to forget history before the retained
// window.
func (w *WindowDict[K, V]) TruncateBefore(k K) {
	var dead []K
	w.t.Descend(func(item entry[K, V]) bool {
		if item.key >= k {
			return true
		}
		dead = append(dead, item.key)
		return true
	})
	for _, d := range dead {
		w.t.Delete(entry[K, V]{key: d})
	}
}

// TruncateAfter drops every entry with key > k — forward truncation,
// used when a plan is invalidated from k onward (spec.md §4.5) or when
// Unload drops everything past the keyframe bracketing the cursor.
func (w *WindowDict[K, V]) TruncateAfter(k K) {
	var dead []K
	w.t.Ascend(func(item entry[K, V]) bool {
		if item.key <= k {
			return true
		}
		dead = append(dead, item.key)
		return true
	})
	for _, d := range dead {
		w.t.Delete(entry[K, V]{key: d})
	}
}

// Keys returns every key in ascending order. Intended for small windows
// (plan tick lists, single-turn journals); large scans should use
// Ascend/Descend instead.
func (w *WindowDict[K, V]) Keys() []K {
	keys := make([]K, 0, w.t.Len())
	w.t.Ascend(func(item entry[K, V]) bool {
		keys = append(keys, item.key)
		return true
	})
	return keys
}

// Clone performs a structural (copy-on-write) clone: cheap, and safe to
// mutate independently of the original, which google/btree's persistent
// node layout guarantees without a deep copy of every entry.
func (w *WindowDict[K, V]) Clone() *WindowDict[K, V] {
	return &WindowDict[K, V]{t: w.t.Clone()}
}
