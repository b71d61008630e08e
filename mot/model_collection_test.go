package mot

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/LdDl/mot3d-go/frames"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// observe builds a bundle in which every camera sees every given point.
func observe(t *testing.T, system *CameraSystem, frame frames.SyncFno, points ...Point3) frames.Bundle {
	t.Helper()
	bundle := frames.Bundle{
		Frame:            frame,
		TriggerTimestamp: time.Unix(1000, 0).Add(time.Duration(frame) * 10 * time.Millisecond),
	}
	for i, cam := range system.Cameras() {
		fp := frames.FramePoints{
			FrameData: frames.FrameData{
				CamName:     cam.Name(),
				CamNum:      frames.CamNum(i),
				SyncedFrame: frame,
			},
		}
		for j, pt := range points {
			px, err := cam.Project(pt)
			if err != nil {
				t.Fatal(err)
			}
			fp.Points = append(fp.Points, frames.Detection{X: px.X, Y: px.Y, Idx: uint8(j)})
		}
		bundle.Cams = append(bundle.Cams, fp)
	}
	return bundle
}

func newTestCollection(t *testing.T, params TrackingParams) (CollectionFrameDone, *CameraSystem) {
	t.Helper()
	system := threeCameraRig(t)
	collection, err := NewModelCollection(params, system, 100, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	return collection, system
}

func TestModelCollectionBirthAndUpdates(t *testing.T) {
	collection, system := newTestCollection(t, DefaultTrackingParams())
	truth := Point3{X: 0.1, Y: 0.2, Z: 0.3}

	collection, result := collection.Step(observe(t, system, 1, truth))
	if len(result.Births) != 1 {
		t.Fatalf("Expected single birth, got %d", len(result.Births))
	}
	if len(result.Records) != 0 {
		t.Errorf("No estimates expected on birth frame, got %d", len(result.Records))
	}
	born := result.Births[0]
	if born.ID != 0 || born.Lifecycle != Provisional {
		t.Errorf("Wrong newborn: %+v", born)
	}
	if euclideanDistance3(born.Position, truth) > 1e-4 {
		t.Errorf("Wrong birth position: %v, correct answer: %v", born.Position, truth)
	}

	for frame := frames.SyncFno(2); frame <= 10; frame++ {
		collection, result = collection.Step(observe(t, system, frame, truth))
		if len(result.Births) != 0 {
			t.Errorf("Frame %d: unexpected birth", frame)
		}
		if len(result.Records) != 1 {
			t.Fatalf("Frame %d: expected single estimate, got %d", frame, len(result.Records))
		}
		record := result.Records[0]
		if record.Row.ObjID != 0 || record.Row.Frame != frame {
			t.Errorf("Frame %d: wrong estimate row %+v", frame, record.Row)
		}
		if len(record.DataAssoc) != 3 {
			t.Errorf("Frame %d: expected 3 data association rows, got %d", frame, len(record.DataAssoc))
		}
		for i, assoc := range record.DataAssoc {
			if assoc.CamNum != frames.CamNum(i) {
				t.Errorf("Frame %d: data association must follow camera order, got %v at %d", frame, assoc.CamNum, i)
			}
		}
		if !record.HasReprojDist || record.MeanReprojDist100x > 100 {
			t.Errorf("Frame %d: wrong reprojection distance %v", frame, record.MeanReprojDist100x)
		}
	}

	objects := collection.Objects()
	if len(objects) != 1 {
		t.Fatalf("Expected single object, got %d", len(objects))
	}
	if objects[0].Lifecycle != Alive {
		t.Errorf("Object must be alive after repeated observations, got %v", objects[0].Lifecycle)
	}
	if euclideanDistance3(objects[0].Position, truth) > 1e-3 {
		t.Errorf("Wrong estimate: %v, correct answer: %v", objects[0].Position, truth)
	}
}

func TestModelCollectionDeath(t *testing.T) {
	params := DefaultTrackingParams()
	params.MaxFramesNoObservation = 2
	collection, system := newTestCollection(t, params)
	truth := Point3{X: -0.1, Y: 0.1, Z: 0.2}

	collection, _ = collection.Step(observe(t, system, 1, truth))
	collection, _ = collection.Step(observe(t, system, 2, truth))

	var result StepResult
	for frame := frames.SyncFno(3); frame <= 4; frame++ {
		collection, result = collection.Step(frames.NewEmptyBundle(frame))
		if len(result.Deaths) != 0 {
			t.Fatalf("Frame %d: object must survive %d frames without observation", frame, params.MaxFramesNoObservation)
		}
		if collection.Len() != 1 {
			t.Fatalf("Frame %d: expected single object", frame)
		}
	}
	collection, result = collection.Step(frames.NewEmptyBundle(5))
	if len(result.Deaths) != 1 || result.Deaths[0] != 0 {
		t.Fatalf("Expected death of object 0, got %v", result.Deaths)
	}
	if collection.Len() != 0 {
		t.Errorf("Dead object must be removed")
	}
}

func TestModelCollectionTwoObjects(t *testing.T) {
	collection, system := newTestCollection(t, DefaultTrackingParams())
	first := Point3{X: 0.3, Y: 0.0, Z: 0.1}
	second := Point3{X: -0.3, Y: 0.2, Z: 0.4}

	collection, result := collection.Step(observe(t, system, 1, first, second))
	if len(result.Births) != 2 {
		t.Fatalf("Expected 2 births, got %d", len(result.Births))
	}
	if result.Births[0].ID != 0 || result.Births[1].ID != 1 {
		t.Errorf("Identifiers must be assigned sequentially: %+v", result.Births)
	}

	for frame := frames.SyncFno(2); frame <= 5; frame++ {
		collection, result = collection.Step(observe(t, system, frame, first, second))
		if len(result.Births) != 0 {
			t.Errorf("Frame %d: unexpected birth", frame)
		}
		if len(result.Records) != 2 {
			t.Fatalf("Frame %d: expected 2 estimates, got %d", frame, len(result.Records))
		}
	}
	objects := collection.Objects()
	if len(objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(objects))
	}
	// births may come in any order, so pair each estimate with the closest truth
	for _, obj := range objects {
		dist := euclideanDistance3(obj.Position, first)
		if other := euclideanDistance3(obj.Position, second); other < dist {
			dist = other
		}
		if dist > 1e-2 {
			t.Errorf("Object %d: estimate %v is far from every point", obj.ID, obj.Position)
		}
	}
	if euclideanDistance3(objects[0].Position, objects[1].Position) < 0.1 {
		t.Errorf("Objects must follow different points")
	}
}

// blindCamera fails to project once blind is set.
type blindCamera struct {
	Camera
	blind bool
}

func (cam *blindCamera) Project(pt Point3) (Point, error) {
	if cam.blind {
		return Point{}, ErrDegenerateGeometry
	}
	return cam.Camera.Project(pt)
}

func TestModelCollectionCameraProjectionFails(t *testing.T) {
	rig := threeCameraRig(t)
	cams := rig.Cameras()
	blind := &blindCamera{Camera: cams[1]}
	system, err := NewCameraSystem(cams[0], blind, cams[2])
	if err != nil {
		t.Fatal(err)
	}
	collection, err := NewModelCollection(DefaultTrackingParams(), system, 100, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	truth := Point3{X: 0.1, Y: -0.2, Z: 0.25}

	collection, result := collection.Step(observe(t, system, 1, truth))
	if len(result.Births) != 1 {
		t.Fatalf("Expected single birth, got %d", len(result.Births))
	}

	for frame := frames.SyncFno(2); frame <= 4; frame++ {
		// detections are still reported by the blind camera
		bundle := observe(t, system, frame, truth)
		blind.blind = true
		collection, result = collection.Step(bundle)
		blind.blind = false

		if len(result.Births) != 0 {
			t.Errorf("Frame %d: unexpected birth from detections of the failing camera", frame)
		}
		if len(result.Records) != 1 {
			t.Fatalf("Frame %d: expected single estimate, got %d", frame, len(result.Records))
		}
		record := result.Records[0]
		if record.Row.ObjID != 0 || record.Row.Frame != frame {
			t.Errorf("Frame %d: wrong estimate row %+v", frame, record.Row)
		}
		if len(record.DataAssoc) != 2 {
			t.Fatalf("Frame %d: expected 2 data association rows, got %d", frame, len(record.DataAssoc))
		}
		for _, assoc := range record.DataAssoc {
			if assoc.CamNum == 1 {
				t.Errorf("Frame %d: failing camera must not be associated", frame)
			}
		}
	}
	if collection.Len() != 1 {
		t.Fatalf("Expected single object, got %d", collection.Len())
	}
	if pos := collection.Objects()[0].Position; euclideanDistance3(pos, truth) > 1e-3 {
		t.Errorf("Wrong estimate: %v, correct answer: %v", pos, truth)
	}
}

func TestModelCollectionSingleCameraNoBirth(t *testing.T) {
	collection, system := newTestCollection(t, DefaultTrackingParams())
	bundle := observe(t, system, 1, Point3{})
	bundle.Cams = bundle.Cams[:1]
	collection, result := collection.Step(bundle)
	if len(result.Births) != 0 || collection.Len() != 0 {
		t.Errorf("Single camera must not give birth")
	}
}

func TestNewModelCollectionValidation(t *testing.T) {
	system := threeCameraRig(t)
	if _, err := NewModelCollection(DefaultTrackingParams(), system, 0, testLogger); err == nil {
		t.Errorf("Zero frame rate must be rejected")
	}
	params := DefaultTrackingParams()
	params.MinimumNumberOfCameras = 1
	if _, err := NewModelCollection(params, system, 100, testLogger); err == nil {
		t.Errorf("Less than two cameras for birth must be rejected")
	}
	if _, err := NewModelCollection(DefaultTrackingParams(), nil, 100, testLogger); err != ErrNoCameras {
		t.Errorf("Expected ErrNoCameras, got %v", err)
	}
}
