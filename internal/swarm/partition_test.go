package swarm

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCreateEmptyPartitions_CoverIsDisjointAndComplete checks property 10:
// the default partition cover is pairwise disjoint and its union spans
// the full alphabetic keyspace.
func TestCreateEmptyPartitions_CoverIsDisjointAndComplete(t *testing.T) {
	parts := CreateEmptyPartitions()
	require := assert.New(t)
	require.Len(parts, 4)

	sorted := append([]Partition{}, parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	require.Equal("A", sorted[0].Start)
	for i := 1; i < len(sorted); i++ {
		require.Equal(sorted[i-1].End, sorted[i].Start, "partitions must be contiguous with no gap or overlap")
	}
	require.Equal("[", sorted[len(sorted)-1].End)
}

func TestNewPartitions_AssignsDescendingPriorityByDeclarationOrder(t *testing.T) {
	parts := NewPartitions([][2]string{{"A", "M"}, {"M", "["}})
	assert.Equal(t, 2, parts[0].Priority)
	assert.Equal(t, 1, parts[1].Priority)
}
