package mot

import (
	"cmp"
	"slices"
)

// Births enumerate subsets of at most this many cameras
const maxHypothesisCameras = 20

// SetOfSubsets returns all subsets of set (the power set), including the empty set and set itself.
// Elements of each subset keep the order of the sorted input.
func SetOfSubsets[K cmp.Ordered](set []K) [][]K {
	sorted := slices.Clone(set)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	n := len(sorted)
	if n > maxHypothesisCameras {
		n = maxHypothesisCameras
		sorted = sorted[:n]
	}
	masks := subsetMasks(n, 0)
	result := make([][]K, 0, len(masks))
	for _, mask := range masks {
		subset := make([]K, 0, popcount(mask))
		for i := 0; i < n; i++ {
			if mask&(1<<uint(i)) != 0 {
				subset = append(subset, sorted[i])
			}
		}
		result = append(result, subset)
	}
	return result
}

// subsetMasks returns bit masks of all subsets of n elements having at least minSize members.
func subsetMasks(n int, minSize int) []uint32 {
	if n > maxHypothesisCameras {
		n = maxHypothesisCameras
	}
	total := uint32(1) << uint(n)
	masks := make([]uint32, 0, total)
	for mask := uint32(0); mask < total; mask++ {
		if popcount(mask) >= minSize {
			masks = append(masks, mask)
		}
	}
	return masks
}
