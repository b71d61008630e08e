package mot

import (
	"math"

	"github.com/LdDl/mot3d-go/frames"
)

// unusedCamera holds detections of one camera which no object claimed.
type unusedCamera struct {
	cam    Camera
	camNum frames.CamNum
	points []frames.Detection
	rays   []Ray
	// rays[i] is usable only when rayOK[i] is set
	rayOK []bool
	used  []bool
}

func newUnusedCamera(cam Camera, camNum frames.CamNum, points []frames.Detection) unusedCamera {
	uc := unusedCamera{
		cam:    cam,
		camNum: camNum,
		points: points,
		rays:   make([]Ray, len(points)),
		rayOK:  make([]bool, len(points)),
		used:   make([]bool, len(points)),
	}
	for i, pt := range points {
		ray, err := cam.BackProject(Point{X: pt.X, Y: pt.Y})
		if err != nil {
			continue
		}
		uc.rays[i] = ray
		uc.rayOK[i] = true
	}
	return uc
}

func (uc *unusedCamera) free() []int {
	out := make([]int, 0, len(uc.points))
	for i := range uc.points {
		if !uc.used[i] && uc.rayOK[i] {
			out = append(out, i)
		}
	}
	return out
}

// Unused holds all detections left for the birth test after data association.
type Unused struct {
	cams []unusedCamera
}

// NumPoints returns number of detections not yet used
func (u Unused) NumPoints() int {
	n := 0
	for i := range u.cams {
		for _, used := range u.cams[i].used {
			if !used {
				n++
			}
		}
	}
	return n
}

// hypothesisMember is a detection supporting a birth hypothesis.
type hypothesisMember struct {
	cam   int
	point int
	dist  float64
}

// hypothesisTestResult is a 3D point which reprojects close to a detection in each member camera.
type hypothesisTestResult struct {
	coords   Point3
	members  []hypothesisMember
	meanDist float64
}

// Mean distances closer than this (pixels) are considered equal
const hypothesisTieTolerance = 1e-6

func (h hypothesisTestResult) betterThan(other hypothesisTestResult) bool {
	if math.Abs(h.meanDist-other.meanDist) > hypothesisTieTolerance {
		return h.meanDist < other.meanDist
	}
	return len(h.members) > len(other.members)
}

// hypothesisTest searches all subsets of cameras with free detections for the best new object.
func hypothesisTest(u *Unused, minCameras int, maxError float64) (hypothesisTestResult, bool) {
	active := make([]int, 0, len(u.cams))
	for i := range u.cams {
		if len(u.cams[i].free()) > 0 {
			active = append(active, i)
		}
		if len(active) == maxHypothesisCameras {
			break
		}
	}
	if len(active) < minCameras || len(active) < 2 {
		return hypothesisTestResult{}, false
	}

	var best hypothesisTestResult
	found := false
	members := make([]int, 0, len(active))
	for _, mask := range subsetMasks(len(active), maxInt(minCameras, 2)) {
		members = members[:0]
		for i := range active {
			if mask&(1<<uint(i)) != 0 {
				members = append(members, active[i])
			}
		}
		result, ok := testSubset(u, members, maxError)
		if !ok {
			continue
		}
		if !found || result.betterThan(best) {
			best = result
			found = true
		}
	}
	return best, found
}

// testSubset seeds a point from the first two member cameras and completes it with
// the closest detection of every other member camera.
func testSubset(u *Unused, members []int, maxError float64) (hypothesisTestResult, bool) {
	var best hypothesisTestResult
	found := false
	first := &u.cams[members[0]]
	second := &u.cams[members[1]]
	for _, pa := range first.free() {
		for _, pb := range second.free() {
			seed, err := Triangulate([]Ray{first.rays[pa], second.rays[pb]})
			if err != nil {
				continue
			}
			chosen := []hypothesisMember{{cam: members[0], point: pa}, {cam: members[1], point: pb}}
			complete := true
			for _, camIdx := range members[2:] {
				uc := &u.cams[camIdx]
				px, err := uc.cam.Project(seed)
				if err != nil {
					complete = false
					break
				}
				bestPt, bestDist := -1, math.Inf(1)
				for _, pc := range uc.free() {
					dist := euclideanDistance(px, Point{X: uc.points[pc].X, Y: uc.points[pc].Y})
					if dist < bestDist {
						bestPt, bestDist = pc, dist
					}
				}
				if bestPt < 0 {
					complete = false
					break
				}
				chosen = append(chosen, hypothesisMember{cam: camIdx, point: bestPt})
			}
			if !complete {
				continue
			}
			result, ok := evaluateHypothesis(u, chosen, maxError)
			if !ok {
				continue
			}
			if !found || result.betterThan(best) {
				best = result
				found = true
			}
		}
	}
	return best, found
}

func evaluateHypothesis(u *Unused, chosen []hypothesisMember, maxError float64) (hypothesisTestResult, bool) {
	rays := make([]Ray, len(chosen))
	for i, m := range chosen {
		rays[i] = u.cams[m.cam].rays[m.point]
	}
	coords, err := Triangulate(rays)
	if err != nil {
		return hypothesisTestResult{}, false
	}
	dists := make([]float64, len(chosen))
	for i := range chosen {
		uc := &u.cams[chosen[i].cam]
		px, err := uc.cam.Project(coords)
		if err != nil {
			return hypothesisTestResult{}, false
		}
		pt := uc.points[chosen[i].point]
		dist := euclideanDistance(px, Point{X: pt.X, Y: pt.Y})
		if dist >= maxError {
			return hypothesisTestResult{}, false
		}
		chosen[i].dist = dist
		dists[i] = dist
	}
	return hypothesisTestResult{
		coords:   coords,
		members:  chosen,
		meanDist: meanFloat64(dists),
	}, true
}
