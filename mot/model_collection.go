package mot

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/LdDl/mot3d-go/frames"
)

// collectionInner is the state shared by all phases of a ModelCollection:
// the live objects and everything needed to advance them.
type collectionInner struct {
	params  TrackingParams
	system  *CameraSystem
	motion  motionModel
	objects []*TrackedObject
	nextID  uint32
	logger  *slog.Logger
}

// CollectionFrameDone is the collection of live objects between frames.
// Advance it with PredictMotion or Step.
type CollectionFrameDone struct {
	inner *collectionInner
}

// CollectionFramePredicted holds objects advanced to the current frame.
type CollectionFramePredicted struct {
	inner *collectionInner
}

// CollectionFrameWithObservationLikes holds predicted objects and their
// reprojection distances to every detection of the current bundle.
type CollectionFrameWithObservationLikes struct {
	inner  *collectionInner
	bundle frames.Bundle
	cams   []bundleCamera
	// likes[object][camera][detection] is the gated reprojection distance
	likes [][][]float64
	// models[object][camera] is nil when the camera can't observe the object this frame
	models [][]*ObservationModel
}

// CollectionFrameUpdated holds objects after the Kalman update of the current frame.
type CollectionFrameUpdated struct {
	inner   *collectionInner
	bundle  frames.Bundle
	records []EstimateRecord
	updated []ObjectState
}

// StepResult is everything produced by processing one bundle.
type StepResult struct {
	Frame   frames.SyncFno
	Records []EstimateRecord
	Births  []ObjectState
	Updates []ObjectState
	Deaths  []uint32
}

// bundleCamera is a bundle camera known to the camera system.
type bundleCamera struct {
	cam    Camera
	points frames.FramePoints
}

// NewModelCollection creates an empty collection tracking at the given frame rate.
func NewModelCollection(params TrackingParams, system *CameraSystem, fps float64, logger *slog.Logger) (CollectionFrameDone, error) {
	if system == nil || system.Len() == 0 {
		return CollectionFrameDone{}, ErrNoCameras
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return CollectionFrameDone{}, fmt.Errorf("frame rate must be positive, got %v", fps)
	}
	if err := params.Validate(); err != nil {
		return CollectionFrameDone{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return CollectionFrameDone{
		inner: &collectionInner{
			params:  params,
			system:  system,
			motion:  newMotionModel(1.0/fps, params.MotionNoiseScale),
			objects: make([]*TrackedObject, 0),
			logger:  logger,
		},
	}, nil
}

// Objects returns snapshots of all live objects.
func (c CollectionFrameDone) Objects() []ObjectState {
	out := make([]ObjectState, 0, len(c.inner.objects))
	for _, obj := range c.inner.objects {
		out = append(out, obj.snapshot(0))
	}
	return out
}

// Len returns number of live objects
func (c CollectionFrameDone) Len() int {
	return len(c.inner.objects)
}

// Step runs every stage for a single bundle.
func (c CollectionFrameDone) Step(bundle frames.Bundle) (CollectionFrameDone, StepResult) {
	withLikes := c.PredictMotion().ComputeObservationLikes(bundle)
	updated, unused := withLikes.SolveDataAssociationAndUpdate()
	return updated.BirthsAndDeaths(unused)
}

// PredictMotion advances every live object by one frame interval.
func (c CollectionFrameDone) PredictMotion() CollectionFramePredicted {
	for _, obj := range c.inner.objects {
		obj.PredictNextPosition(c.inner.motion)
	}
	return CollectionFramePredicted(c)
}

// ComputeObservationLikes computes reprojection distance of every detection to every object.
// Distances beyond the gating threshold are +Inf.
func (c CollectionFramePredicted) ComputeObservationLikes(bundle frames.Bundle) CollectionFrameWithObservationLikes {
	inner := c.inner
	cams := make([]bundleCamera, 0, len(bundle.Cams))
	for _, fp := range bundle.Cams {
		cam, ok := inner.system.Camera(fp.CamName)
		if !ok {
			inner.logger.Debug("mot: detections from unknown camera ignored", "camera", fp.CamName, "frame", uint64(bundle.Frame))
			continue
		}
		cams = append(cams, bundleCamera{cam: cam, points: fp})
	}

	gate := inner.params.AcceptReprojectionDistance
	likes := make([][][]float64, len(inner.objects))
	models := make([][]*ObservationModel, len(inner.objects))
	for i, obj := range inner.objects {
		likes[i] = make([][]float64, len(cams))
		models[i] = make([]*ObservationModel, len(cams))
		for j, bc := range cams {
			dists := make([]float64, len(bc.points.Points))
			for k := range dists {
				dists[k] = math.Inf(1)
			}
			likes[i][j] = dists
			if len(dists) == 0 {
				continue
			}
			om, err := NewObservationModel(bc.cam, obj.state.x, inner.params.EkfObservationCovariancePixels)
			if err != nil {
				inner.logger.Warn("mot: excluding camera observation for this frame",
					"camera", bc.cam.Name(),
					"obj_id", obj.id,
					"frame", uint64(bundle.Frame),
					"error", err,
				)
				continue
			}
			predicted, err := om.PredictObservation(obj.state.x)
			if err != nil {
				inner.logger.Warn("mot: excluding camera observation for this frame",
					"camera", bc.cam.Name(),
					"obj_id", obj.id,
					"frame", uint64(bundle.Frame),
					"error", err,
				)
				continue
			}
			models[i][j] = om
			for k, pt := range bc.points.Points {
				dist := euclideanDistance(predicted, Point{X: pt.X, Y: pt.Y})
				if dist <= gate {
					dists[k] = dist
				}
			}
		}
	}
	return CollectionFrameWithObservationLikes{
		inner:  inner,
		bundle: bundle,
		cams:   cams,
		likes:  likes,
		models: models,
	}
}

// camMatch is a detection assigned to an object.
type camMatch struct {
	camIdx int
	detIdx int
}

// SolveDataAssociationAndUpdate assigns detections to objects camera by camera and
// corrects the matched objects. Detections left over are returned for the birth test.
func (c CollectionFrameWithObservationLikes) SolveDataAssociationAndUpdate() (CollectionFrameUpdated, Unused) {
	inner := c.inner
	gate := inner.params.AcceptReprojectionDistance

	matches := make([][]camMatch, len(inner.objects))
	unused := Unused{cams: make([]unusedCamera, 0, len(c.cams))}
	for j, bc := range c.cams {
		numPoints := len(bc.points.Points)
		claimed := make([]bool, numPoints)
		if numPoints > 0 && len(inner.objects) > 0 {
			distances := make([][]float64, len(inner.objects))
			for i := range inner.objects {
				distances[i] = c.likes[i][j]
			}
			for _, m := range assignCamera(distances, gate, inner.params.Matching) {
				matches[m[0]] = append(matches[m[0]], camMatch{camIdx: j, detIdx: m[1]})
				claimed[m[1]] = true
			}
		}
		left := make([]frames.Detection, 0, numPoints)
		for k, pt := range bc.points.Points {
			if !claimed[k] {
				left = append(left, pt)
			}
		}
		if len(left) > 0 {
			unused.cams = append(unused.cams, newUnusedCamera(bc.cam, bc.points.CamNum, left))
		}
	}

	records := make([]EstimateRecord, 0, len(inner.objects))
	updated := make([]ObjectState, 0, len(inner.objects))
	for i, obj := range inner.objects {
		if len(matches[i]) == 0 {
			obj.IncNoMatch()
			continue
		}
		// each camera contributes independently, in camera number order
		sort.Slice(matches[i], func(a, b int) bool {
			return c.cams[matches[i][a].camIdx].points.CamNum < c.cams[matches[i][b].camIdx].points.CamNum
		})
		used := make([]camMatch, 0, len(matches[i]))
		for _, m := range matches[i] {
			pt := c.cams[m.camIdx].points.Points[m.detIdx]
			err := obj.Update(Point{X: pt.X, Y: pt.Y}, c.models[i][m.camIdx])
			if err != nil {
				inner.logger.Warn("mot: skipping camera observation",
					"camera", c.cams[m.camIdx].cam.Name(),
					"obj_id", obj.id,
					"frame", uint64(c.bundle.Frame),
					"error", err,
				)
				continue
			}
			used = append(used, m)
		}
		if len(used) == 0 {
			obj.IncNoMatch()
			continue
		}
		obj.markObserved(inner.params)
		records = append(records, c.estimateRecord(obj, used))
		updated = append(updated, obj.snapshot(c.bundle.Frame))
	}

	return CollectionFrameUpdated{
		inner:   inner,
		bundle:  c.bundle,
		records: records,
		updated: updated,
	}, unused
}

func (c CollectionFrameWithObservationLikes) estimateRecord(obj *TrackedObject, used []camMatch) EstimateRecord {
	record := EstimateRecord{
		Row:       obj.estimatesRow(c.bundle),
		DataAssoc: make([]DataAssocRow, 0, len(used)),
	}
	position := obj.GetPosition()
	dists := make([]float64, 0, len(used))
	for _, m := range used {
		bc := c.cams[m.camIdx]
		pt := bc.points.Points[m.detIdx]
		record.DataAssoc = append(record.DataAssoc, DataAssocRow{
			ObjID:  obj.id,
			Frame:  c.bundle.Frame,
			CamNum: bc.points.CamNum,
			PtIdx:  pt.Idx,
		})
		px, err := bc.cam.Project(position)
		if err != nil {
			continue
		}
		dists = append(dists, euclideanDistance(px, Point{X: pt.X, Y: pt.Y}))
	}
	if len(dists) > 0 {
		record.MeanReprojDist100x = uint64(math.Round(meanFloat64(dists) * 100))
		record.HasReprojDist = true
	}
	return record
}

// BirthsAndDeaths creates objects from unused detections and removes objects not seen for too long.
func (c CollectionFrameUpdated) BirthsAndDeaths(unused Unused) (CollectionFrameDone, StepResult) {
	inner := c.inner
	result := StepResult{
		Frame:   c.bundle.Frame,
		Records: c.records,
		Updates: c.updated,
	}

	for {
		hypothesis, ok := hypothesisTest(&unused, inner.params.MinimumNumberOfCameras, inner.params.HypothesisTestMaxAcceptableError)
		if !ok {
			break
		}
		for _, m := range hypothesis.members {
			unused.cams[m.cam].used[m.point] = true
		}
		obj := newTrackedObject(inner.nextID, hypothesis.coords, inner.params)
		inner.nextID++
		inner.objects = append(inner.objects, obj)
		inner.logger.Debug("mot: birth",
			"obj_id", obj.id,
			"frame", uint64(c.bundle.Frame),
			"cameras", len(hypothesis.members),
			"mean_reproj_dist", hypothesis.meanDist,
		)
		result.Births = append(result.Births, obj.snapshot(c.bundle.Frame))
	}

	alive := inner.objects[:0]
	for _, obj := range inner.objects {
		if obj.GetNoMatchTimes() > inner.params.MaxFramesNoObservation {
			obj.lifecycle = Dead
			inner.logger.Debug("mot: death", "obj_id", obj.id, "frame", uint64(c.bundle.Frame))
			result.Deaths = append(result.Deaths, obj.id)
			continue
		}
		alive = append(alive, obj)
	}
	// release references held by the tail of the backing array
	for i := len(alive); i < len(inner.objects); i++ {
		inner.objects[i] = nil
	}
	inner.objects = alive

	return CollectionFrameDone{inner: inner}, result
}
