package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowDictAtOrBefore(t *testing.T) {
	w := NewWindowDict[int64, string]()
	w.Set(0, "a")
	w.Set(5, "b")
	w.Set(10, "c")

	v, k, ok := w.AtOrBefore(7)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.EqualValues(t, 5, k)

	v, k, ok = w.AtOrBefore(0)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.EqualValues(t, 0, k)

	_, _, ok = w.AtOrBefore(-1)
	assert.False(t, ok)

	v, k, ok = w.AtOrBefore(100)
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.EqualValues(t, 10, k)
}

func TestWindowDictAtOrAfter(t *testing.T) {
	w := NewWindowDict[int64, string]()
	w.Set(0, "a")
	w.Set(5, "b")
	w.Set(10, "c")

	v, k, ok := w.AtOrAfter(6)
	require.True(t, ok)
	assert.Equal(t, "c", v)
	assert.EqualValues(t, 10, k)

	_, _, ok = w.AtOrAfter(11)
	assert.False(t, ok)
}

func TestWindowDictTruncateBefore(t *testing.T) {
	w := NewWindowDict[int64, string]()
	for i := int64(0); i < 10; i++ {
		w.Set(i, "x")
	}
	w.TruncateBefore(5)
	assert.Equal(t, 5, w.Len())
	_, _, ok := w.Get(4)
	assert.False(t, ok)
	k, _, ok := w.First()
	require.True(t, ok)
	assert.EqualValues(t, 5, k)
}

func TestWindowDictTruncateAfter(t *testing.T) {
	w := NewWindowDict[int64, string]()
	for i := int64(0); i < 10; i++ {
		w.Set(i, "x")
	}
	w.TruncateAfter(5)
	assert.Equal(t, 6, w.Len())
	k, _, ok := w.Last()
	require.True(t, ok)
	assert.EqualValues(t, 5, k)
}

func TestWindowDictCloneIndependence(t *testing.T) {
	w := NewWindowDict[int64, string]()
	w.Set(1, "orig")
	clone := w.Clone()
	clone.Set(1, "changed")
	clone.Set(2, "new")

	v, _, _ := w.AtOrBefore(1)
	assert.Equal(t, "orig", v)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 2, clone.Len())
}
