package kpi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEquitableWeights(t *testing.T) {
	require.Equal(t, []int{34, 33, 33}, EquitableWeights(3))
	require.Equal(t, []int{100}, EquitableWeights(1))
	require.Nil(t, EquitableWeights(0))

	for n := 1; n <= 150; n++ {
		ws := EquitableWeights(n)
		sum := 0
		for _, w := range ws {
			sum += w
		}
		require.Equal(t, FullWeight, sum, "n=%d", n)
	}
}

func TestTotalWeight(t *testing.T) {
	require.Equal(t, 80, TotalWeight([]Assignment{{Weight: 40}, {Weight: 40}}))
	require.Equal(t, 0, TotalWeight(nil))
}
