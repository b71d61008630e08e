package mot

import (
	"testing"
)

func TestSetOfSubsets(t *testing.T) {
	subsets := SetOfSubsets([]int{3, 1, 2, 2})
	if len(subsets) != 8 {
		t.Fatalf("Wrong number of subsets: %d, correct answer: 8", len(subsets))
	}
	seen := make(map[string]bool)
	for _, subset := range subsets {
		key := ""
		for i, v := range subset {
			if i > 0 && subset[i-1] >= v {
				t.Errorf("Subset %v is not sorted", subset)
			}
			key += string(rune('0' + v))
		}
		if seen[key] {
			t.Errorf("Duplicated subset %v", subset)
		}
		seen[key] = true
	}
	for _, key := range []string{"", "1", "2", "3", "12", "13", "23", "123"} {
		if !seen[key] {
			t.Errorf("Missing subset %q", key)
		}
	}
}

func TestSubsetMasksMinSize(t *testing.T) {
	masks := subsetMasks(4, 2)
	// C(4,2) + C(4,3) + C(4,4)
	if len(masks) != 11 {
		t.Errorf("Wrong number of masks: %d, correct answer: 11", len(masks))
	}
	for _, mask := range masks {
		if popcount(mask) < 2 {
			t.Errorf("Mask %b has less than 2 members", mask)
		}
	}
}
