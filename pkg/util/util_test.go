package util

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	out := Map([]int{3, 4, 5}, func(v int, i uint64) string {
		return strconv.Itoa(v) + ":" + strconv.FormatUint(i, 10)
	})
	require.Equal(t, []string{"3:0", "4:1", "5:2"}, out)

	require.Empty(t, Map([]int{}, func(v int, i uint64) int { return v }))
}

func TestFilter(t *testing.T) {
	out := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	require.Equal(t, []int{2, 4}, out)
}

func TestReduce(t *testing.T) {
	sum := Reduce([]int{1, 2, 3}, func(acc int, v int) int { return acc + v }, 10)
	require.Equal(t, 16, sum)
}
