package mot

import (
	"github.com/pkg/errors"

	"github.com/LdDl/mot3d-go/frames"
)

// TrackedObject is a point target estimated with 6-D Kalman filter (position and velocity).
type TrackedObject struct {
	id           uint32
	state        kalmanState
	lifecycle    Lifecycle
	noMatchTimes int
	observations int
	track        []Point3
	maxTrackLen  int
}

func newTrackedObject(id uint32, pos Point3, params TrackingParams) *TrackedObject {
	obj := TrackedObject{
		id:          id,
		state:       newKalmanState(pos, params.InitialPositionStd, params.InitialVelStd),
		lifecycle:   Provisional,
		track:       make([]Point3, 0, 150),
		maxTrackLen: 150,
		// the birth frame counts as the first observation
		observations: 1,
	}
	obj.track = append(obj.track, pos)
	if obj.observations >= params.NumObservationsToVisibility {
		obj.lifecycle = Alive
	}
	return &obj
}

// GetID returns object's identifier
func (obj *TrackedObject) GetID() uint32 {
	return obj.id
}

// GetLifecycle returns object's lifecycle tag
func (obj *TrackedObject) GetLifecycle() Lifecycle {
	return obj.lifecycle
}

// GetPosition returns current estimate of position
func (obj *TrackedObject) GetPosition() Point3 {
	return obj.state.position()
}

// GetVelocity returns current estimate of velocity
func (obj *TrackedObject) GetVelocity() Point3 {
	return obj.state.velocity()
}

// GetTrack returns object's positions after each update. Be careful: this is not copy of track, but reference to it
func (obj *TrackedObject) GetTrack() []Point3 {
	return obj.track
}

// GetNoMatchTimes returns number of consecutive frames without observation
func (obj *TrackedObject) GetNoMatchTimes() int {
	return obj.noMatchTimes
}

// IncNoMatch increases object's no match times
func (obj *TrackedObject) IncNoMatch() {
	obj.noMatchTimes++
}

// ResetNoMatch resets object's no match times
func (obj *TrackedObject) ResetNoMatch() {
	obj.noMatchTimes = 0
}

// PredictNextPosition execute Kalman filter's first step but without re-evaluating state vector based on Kalman gain
func (obj *TrackedObject) PredictNextPosition(model motionModel) {
	obj.state.predict(model)
}

// Update execute Kalman filter's second step with a single camera observation
func (obj *TrackedObject) Update(observation Point, om *ObservationModel) error {
	err := obj.state.update(observation, om)
	if err != nil {
		return errors.Wrapf(err, "can't update object %d with camera %s", obj.id, om.Camera().Name())
	}
	return nil
}

// markObserved finishes a frame in which at least one observation was used
func (obj *TrackedObject) markObserved(params TrackingParams) {
	obj.noMatchTimes = 0
	obj.observations++
	if obj.lifecycle == Provisional && obj.observations >= params.NumObservationsToVisibility {
		obj.lifecycle = Alive
	}
	obj.track = append(obj.track, obj.state.position())
	if len(obj.track) > obj.maxTrackLen {
		obj.track = obj.track[1:]
	}
}

func (obj *TrackedObject) snapshot(frame frames.SyncFno) ObjectState {
	return ObjectState{
		ID:        obj.id,
		Lifecycle: obj.lifecycle,
		Frame:     frame,
		Position:  obj.state.position(),
		Velocity:  obj.state.velocity(),
	}
}

func (obj *TrackedObject) estimatesRow(bundle frames.Bundle) KalmanEstimatesRow {
	x := obj.state.x
	p := obj.state.p
	return KalmanEstimatesRow{
		ObjID:     obj.id,
		Frame:     bundle.Frame,
		Timestamp: bundle.TriggerTimestamp,
		X:         x.AtVec(0),
		Y:         x.AtVec(1),
		Z:         x.AtVec(2),
		XVel:      x.AtVec(3),
		YVel:      x.AtVec(4),
		ZVel:      x.AtVec(5),
		P00:       p.At(0, 0),
		P01:       p.At(0, 1),
		P02:       p.At(0, 2),
		P11:       p.At(1, 1),
		P12:       p.At(1, 2),
		P22:       p.At(2, 2),
		P33:       p.At(3, 3),
		P44:       p.At(4, 4),
		P55:       p.At(5, 5),
	}
}
