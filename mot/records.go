package mot

import (
	"time"

	"github.com/LdDl/mot3d-go/frames"
)

// KalmanEstimatesRow is the saved estimate of one object on one frame.
type KalmanEstimatesRow struct {
	ObjID     uint32
	Frame     frames.SyncFno
	Timestamp time.Time
	X         float64
	Y         float64
	Z         float64
	XVel      float64
	YVel      float64
	ZVel      float64
	P00       float64
	P01       float64
	P02       float64
	P11       float64
	P12       float64
	P22       float64
	P33       float64
	P44       float64
	P55       float64
}

// DataAssocRow records that a detection was used to update an object.
type DataAssocRow struct {
	ObjID  uint32
	Frame  frames.SyncFno
	CamNum frames.CamNum
	PtIdx  uint8
}

// EstimateRecord is everything saved about one object after its update on one frame.
type EstimateRecord struct {
	Row       KalmanEstimatesRow
	DataAssoc []DataAssocRow
	// MeanReprojDist100x is the mean reprojection distance of the used detections times 100.
	// Valid only when HasReprojDist is set.
	MeanReprojDist100x uint64
	HasReprojDist      bool
}

// Lifecycle is the state of a tracked object.
type Lifecycle uint8

const (
	Provisional Lifecycle = iota
	Alive
	Dead
)

func (l Lifecycle) String() string {
	switch l {
	case Provisional:
		return "provisional"
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// ObjectState is a snapshot of a tracked object, safe to hand to other goroutines.
type ObjectState struct {
	ID        uint32
	Lifecycle Lifecycle
	Frame     frames.SyncFno
	Position  Point3
	Velocity  Point3
}
