package kv

import (
	"cmp"

	"github.com/tidwall/btree"
)

// BackWindow is presettings' counterpart to WindowDict: same ordered
// map shape, backed by a second ordered-tree implementation
// (github.com/tidwall/btree) so the forward settings journal and the
// backward presettings journal don't share one data structure's node
// layout for two traversal directions that have different access
// patterns (settings is scanned forward far more often than
// presettings, which is only walked when time runs backward).
type BackWindow[K cmp.Ordered, V any] struct {
	t *btree.BTreeG[bwEntry[K, V]]
}

type bwEntry[K cmp.Ordered, V any] struct {
	key K
	val V
}

func NewBackWindow[K cmp.Ordered, V any]() *BackWindow[K, V] {
	less := func(a, b bwEntry[K, V]) bool { return a.key < b.key }
	return &BackWindow[K, V]{t: btree.NewBTreeG(less)}
}

func (w *BackWindow[K, V]) Set(k K, v V) {
	w.t.Set(bwEntry[K, V]{key: k, val: v})
}

func (w *BackWindow[K, V]) Get(k K) (V, bool) {
	e, ok := w.t.Get(bwEntry[K, V]{key: k})
	return e.val, ok
}

func (w *BackWindow[K, V]) Delete(k K) {
	w.t.Delete(bwEntry[K, V]{key: k})
}

func (w *BackWindow[K, V]) Len() int { return w.t.Len() }

// Descend calls fn for every entry with key <= from, in decreasing
// key order, until fn returns false — the shape presettings replay
// needs to walk backward from "now" to an earlier time.
func (w *BackWindow[K, V]) Descend(from K, fn func(k K, v V) bool) {
	w.t.Descend(bwEntry[K, V]{key: from}, func(item bwEntry[K, V]) bool {
		if item.key > from {
			return true
		}
		return fn(item.key, item.val)
	})
}

func (w *BackWindow[K, V]) Ascend(from K, fn func(k K, v V) bool) {
	w.t.Ascend(bwEntry[K, V]{key: from}, func(item bwEntry[K, V]) bool {
		return fn(item.key, item.val)
	})
}

func (w *BackWindow[K, V]) TruncateBefore(k K) {
	var dead []K
	w.t.Ascend(bwEntry[K, V]{}, func(item bwEntry[K, V]) bool {
		if item.key >= k {
			return false
		}
		dead = append(dead, item.key)
		return true
	})
	for _, d := range dead {
		w.t.Delete(bwEntry[K, V]{key: d})
	}
}

func (w *BackWindow[K, V]) TruncateAfter(k K) {
	var dead []K
	w.t.Descend(bwEntry[K, V]{key: k}, func(item bwEntry[K, V]) bool { return true })
	w.t.Ascend(bwEntry[K, V]{key: k}, func(item bwEntry[K, V]) bool {
		if item.key > k {
			dead = append(dead, item.key)
		}
		return true
	})
	for _, d := range dead {
		w.t.Delete(bwEntry[K, V]{key: d})
	}
}

// Clone is a cheap copy-on-write snapshot, the property presettings
// replay relies on when a reader walks backward while a writer appends.
func (w *BackWindow[K, V]) Clone() *BackWindow[K, V] {
	return &BackWindow[K, V]{t: w.t.Copy()}
}
