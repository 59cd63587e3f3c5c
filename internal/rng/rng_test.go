package rng

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulekernel/internal/ir"
)

func TestIntRangeDeterministic(t *testing.T) {
	s1, s2 := New(42), New(42)

	for i := 0; i < 50; i++ {
		a, next1, err := IntRange(s1, 1, 6)
		require.NoError(t, err)
		b, next2, err := IntRange(s2, 1, 6)
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.GreaterOrEqual(t, a, int64(1))
		assert.LessOrEqual(t, a, int64(6))
		s1, s2 = next1, next2
	}
	assert.Equal(t, s1, s2)
}

func TestIntRangeAdvancesState(t *testing.T) {
	s := New(7)
	_, next, err := IntRange(s, 0, 100)
	require.NoError(t, err)
	assert.NotEqual(t, s.State, next.State)
}

func TestIntRangeSinglePoint(t *testing.T) {
	n, _, err := IntRange(New(1), 5, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestIntRangeWideRanges(t *testing.T) {
	for _, r := range [][2]int64{
		{-1, math.MaxInt64},
		{math.MinInt64, math.MaxInt64},
		{math.MinInt64, 0},
		{math.MaxInt64 - 1, math.MaxInt64},
	} {
		s := New(9)
		for range 20 {
			n, next, err := IntRange(s, r[0], r[1])
			require.NoError(t, err, "range %v", r)
			assert.GreaterOrEqual(t, n, r[0])
			assert.LessOrEqual(t, n, r[1])

			again, _, err := IntRange(s, r[0], r[1])
			require.NoError(t, err)
			assert.Equal(t, n, again, "same state, same draw")
			s = next
		}
	}
}

func TestIntRangeRejectsInvertedRange(t *testing.T) {
	_, _, err := IntRange(New(1), 3, 2)
	require.Error(t, err)
}

func TestShuffleIsPermutationAndPure(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f"}

	out1, next1, err := Shuffle(New(9), items)
	require.NoError(t, err)
	out2, next2, err := Shuffle(New(9), items)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, next1, next2)
	assert.ElementsMatch(t, items, out1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, items, "input must not be modified")
}

func TestShuffleShortListKeepsState(t *testing.T) {
	s := New(3)
	out, next, err := Shuffle(s, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, out)
	assert.Equal(t, s, next)
}

func TestDecodeRejectsUnknownAlgorithm(t *testing.T) {
	_, _, err := IntRange(ir.RngState{Algorithm: "mt", Version: 1}, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported rng")
}
