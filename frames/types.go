package frames

import (
	"math"
	"sort"
	"time"
)

// SyncFno is a frame number after synchronization of all cameras.
type SyncFno uint64

// InvalidSyncFno is never produced by a healthy synchronization layer.
const InvalidSyncFno SyncFno = math.MaxUint64

// CamNum is the camera identification number used in saved data.
type CamNum uint8

// Detection is a single 2D point found by a camera's image processing.
type Detection struct {
	// Pixel coordinates (distorted, as seen by the camera)
	X float64
	Y float64
	// Area of the detected blob in pixels
	Area float64
	// Slope and Eccentricity are NaN when the detector did not estimate shape
	Slope        float64
	Eccentricity float64
	// Intensity statistics
	CurVal    uint8
	MeanVal   float64
	SumSqfVal float64
	// Idx is the original index of the point within its camera frame
	Idx uint8
}

// HasShape reports whether slope and eccentricity were estimated.
func (d Detection) HasShape() bool {
	return !math.IsNaN(d.Slope) && !math.IsNaN(d.Eccentricity)
}

// FrameData is the per-camera metadata of a single synchronized frame.
type FrameData struct {
	CamName     string
	CamNum      CamNum
	SyncedFrame SyncFno
	// TriggerTimestamp is zero when there is no clock model
	TriggerTimestamp     time.Time
	CamReceivedTimestamp time.Time
	// DeviceTimestamp and BlockID are zero when the camera does not report them
	DeviceTimestamp uint64
	BlockID         uint64
}

// FramePoints is one camera's detections for one synchronized frame.
type FramePoints struct {
	FrameData
	Points []Detection
}

// Clone returns a copy which shares no memory with fp.
func (fp FramePoints) Clone() FramePoints {
	out := FramePoints{FrameData: fp.FrameData}
	if fp.Points != nil {
		out.Points = make([]Detection, len(fp.Points))
		copy(out.Points, fp.Points)
	}
	return out
}

// Bundle holds the detections of all cameras for exactly one synchronized frame.
type Bundle struct {
	Frame            SyncFno
	TriggerTimestamp time.Time
	// Cams is sorted by CamNum
	Cams []FramePoints
}

// NewEmptyBundle creates bundle without detections for any camera.
func NewEmptyBundle(frame SyncFno) Bundle {
	return Bundle{Frame: frame}
}

// IsEmpty returns true when no camera reported any detection.
func (b Bundle) IsEmpty() bool {
	return b.NumDetections() == 0
}

// NumDetections returns total number of detections across all cameras.
func (b Bundle) NumDetections() int {
	n := 0
	for i := range b.Cams {
		n += len(b.Cams[i].Points)
	}
	return n
}

// Camera returns detections of the given camera if it contributed to the bundle.
func (b Bundle) Camera(name string) (FramePoints, bool) {
	for i := range b.Cams {
		if b.Cams[i].CamName == name {
			return b.Cams[i], true
		}
	}
	return FramePoints{}, false
}

// EarliestReceived returns the earliest time any camera received its frame.
func (b Bundle) EarliestReceived() (time.Time, bool) {
	var earliest time.Time
	found := false
	for i := range b.Cams {
		ts := b.Cams[i].CamReceivedTimestamp
		if ts.IsZero() {
			continue
		}
		if !found || ts.Before(earliest) {
			earliest = ts
			found = true
		}
	}
	return earliest, found
}

func (b *Bundle) sortCams() {
	sort.SliceStable(b.Cams, func(i, j int) bool {
		return b.Cams[i].CamNum < b.Cams[j].CamNum
	})
}
