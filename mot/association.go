package mot

import (
	"math"

	"github.com/arthurkushman/go-hungarian"
)

// assignCamera matches objects (rows) to detections (columns) of a single camera.
// distances holds reprojection distances; +Inf marks ineligible pairs.
// Returns a slice of [2]int, where each element is {objectIndex, detectionIndex}.
func assignCamera(distances [][]float64, gate float64, algorithm MatchingAlgorithm) [][2]int {
	numObjects := len(distances)
	if numObjects == 0 {
		return [][2]int{}
	}
	numDetections := len(distances[0])
	if numDetections == 0 {
		return [][2]int{}
	}
	switch algorithm {
	case MatchingAlgorithmGreedy:
		return performGreedyMatching(distances, gate)
	default:
		return performHungarianMatching(distances, gate)
	}
}

// performHungarianMatching minimizes total reprojection distance over the eligible pairs.
//
// go-hungarian maximizes, so each eligible pair scores 1 + gate - distance and
// ineligible pairs score zero. Any assignment of an ineligible pair is discarded.
func performHungarianMatching(distances [][]float64, gate float64) [][2]int {
	numObjects := len(distances)
	numDetections := len(distances[0])

	anyEligible := false
	paddedSize := maxInt(numObjects, numDetections)
	paddedMatrix := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		paddedMatrix[i] = make([]float64, paddedSize)
	}
	for i := 0; i < numObjects; i++ {
		for j := 0; j < numDetections; j++ {
			if isEligible(distances[i][j], gate) {
				paddedMatrix[i][j] = 1.0 + gate - distances[i][j]
				anyEligible = true
			}
		}
	}
	if !anyEligible {
		return [][2]int{}
	}

	assignmentsMap := hungarian.SolveMax(paddedMatrix)
	matches := make([][2]int, 0, minInt(numObjects, numDetections))
	for objectIndex, rowMap := range assignmentsMap {
		for detectionIndex := range rowMap {
			if objectIndex >= numObjects || detectionIndex >= numDetections {
				// dummy row or column
				continue
			}
			if !isEligible(distances[objectIndex][detectionIndex], gate) {
				continue
			}
			matches = append(matches, [2]int{objectIndex, detectionIndex})
		}
	}
	return matches
}

// performGreedyMatching repeatedly takes the closest free pair.
func performGreedyMatching(distances [][]float64, gate float64) [][2]int {
	priorityQueue := make(distanceHeap, 0)
	for i := range distances {
		for j, dist := range distances[i] {
			if isEligible(dist, gate) {
				priorityQueue.Push(&candidatePair{objectIdx: i, detectionIdx: j, distance: dist})
			}
		}
	}

	matches := make([][2]int, 0)
	// We need to prevent double use of objects and detections
	reservedObjects := make(map[int]struct{})
	reservedDetections := make(map[int]struct{})
	for priorityQueue.Len() > 0 {
		pair := priorityQueue.Pop()
		if _, ok := reservedObjects[pair.objectIdx]; ok {
			continue
		}
		if _, ok := reservedDetections[pair.detectionIdx]; ok {
			continue
		}
		reservedObjects[pair.objectIdx] = struct{}{}
		reservedDetections[pair.detectionIdx] = struct{}{}
		matches = append(matches, [2]int{pair.objectIdx, pair.detectionIdx})
	}
	return matches
}

func isEligible(distance, gate float64) bool {
	return !math.IsInf(distance, 1) && !math.IsNaN(distance) && distance <= gate
}
