package table

import "math/bits"

// levelCapacities partitions total into a geometrically decreasing capacity
// sequence: the remainder is halved while it exceeds twice the minimum level
// size, and the final level takes whatever is left. The capacities sum to
// total exactly and are non-increasing.
func levelCapacities(total, minLevelSize uint64) []uint64 {
	caps := make([]uint64, 0, bits.Len64(total))

	remaining := total
	for remaining > 2*minLevelSize {
		half := remaining / 2
		caps = append(caps, half)
		remaining -= half
	}
	return append(caps, remaining)
}

func buildLevels(total, minLevelSize uint64) []*subArray {
	caps := levelCapacities(total, minLevelSize)
	levels := make([]*subArray, len(caps))
	for i, c := range caps {
		levels[i] = newSubArray(i, c)
	}
	return levels
}
