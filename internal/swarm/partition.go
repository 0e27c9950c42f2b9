package swarm

import "fmt"

// defaultRanges is the default 4-way alphabetic split (§4.8).
var defaultRanges = [][2]string{
	{"A", "G"}, // [A-F]
	{"G", "M"}, // [G-L]
	{"M", "S"}, // [M-R]
	{"S", "["}, // [S-Z] ('[' sorts immediately after 'Z' in ASCII)
}

// CreateEmptyPartitions returns the default disjoint cover of the
// alphabetic keyspace: [A-F], [G-L], [M-R], [S-Z].
func CreateEmptyPartitions() []Partition {
	out := make([]Partition, 0, len(defaultRanges))
	for i, r := range defaultRanges {
		out = append(out, Partition{
			ID:    fmt.Sprintf("partition-%d", i),
			Start: r[0],
			End:   r[1],
		})
	}
	return out
}

// NewPartitions builds partitions from caller-supplied contiguous
// key ranges, preserving order as priority when priorities are not
// supplied explicitly (highest priority first).
func NewPartitions(ranges [][2]string) []Partition {
	out := make([]Partition, 0, len(ranges))
	for i, r := range ranges {
		out = append(out, Partition{
			ID:       fmt.Sprintf("partition-%d", i),
			Start:    r[0],
			End:      r[1],
			Priority: len(ranges) - i,
		})
	}
	return out
}
