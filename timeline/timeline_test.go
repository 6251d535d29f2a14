package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBranchRejectsBeforeParentStart(t *testing.T) {
	tl := New()
	tl.ExtendCommitted(RootBranch, 5, 0)
	_, err := tl.NewBranch("alt", RootBranch, 2, 0)
	require.NoError(t, err, "parent start is turn 0, so turn 2 is fine")

	_, err = tl.NewBranch("alt2", "alt", 0, 0)
	assert.Error(t, err, "alt starts at turn 2; forking it at turn 0 must fail")
}

func TestIsParentOf(t *testing.T) {
	tl := New()
	_, err := tl.NewBranch("alt", RootBranch, 2, 0)
	require.NoError(t, err)
	_, err = tl.NewBranch("alt2", "alt", 3, 0)
	require.NoError(t, err)

	assert.True(t, tl.IsParentOf(RootBranch, "alt2"))
	assert.True(t, tl.IsParentOf("alt", "alt2"))
	assert.False(t, tl.IsParentOf("alt2", "alt"))
	assert.True(t, tl.IsParentOf("alt2", "alt2"))
}

func TestIterParentBTT(t *testing.T) {
	tl := New()
	_, err := tl.NewBranch("alt", RootBranch, 2, 0)
	require.NoError(t, err)

	var got []BTT
	for btt := range tl.IterParentBTT("alt", 5, 3) {
		got = append(got, btt)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "alt", got[0].Branch)
	assert.EqualValues(t, 5, got[0].Turn)
	assert.Equal(t, RootBranch, got[1].Branch)
	assert.EqualValues(t, 2, got[1].Turn)

	// restartable: iterating twice yields the same sequence
	var got2 []BTT
	for btt := range tl.IterParentBTT("alt", 5, 3) {
		got2 = append(got2, btt)
	}
	assert.Equal(t, got, got2)
}

func TestIterParentBTTEarlyStop(t *testing.T) {
	tl := New()
	_, err := tl.NewBranch("alt", RootBranch, 2, 0)
	require.NoError(t, err)

	count := 0
	for range tl.IterParentBTT("alt", 5, 3) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestTurnEndPlanTracking(t *testing.T) {
	tl := New()
	tl.SetTurnEndPlan(RootBranch, 4, 7)
	assert.EqualValues(t, 7, tl.TurnEndPlan(RootBranch, 4))
	b, ok := tl.Branch(RootBranch)
	require.True(t, ok)
	assert.EqualValues(t, 4, b.BranchEndPlan)
}
