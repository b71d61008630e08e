package mot

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestKalmanPredict(t *testing.T) {
	model := newMotionModel(0.01, 0.1)
	ks := newKalmanState(Point3{X: 1, Y: 2, Z: 3}, 0.1, 1.0)
	ks.x.SetVec(3, 10)
	ks.x.SetVec(5, -20)
	ks.predict(model)

	correctAnswer := Point3{X: 1.1, Y: 2, Z: 2.8}
	if euclideanDistance3(ks.position(), correctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", ks.position(), correctAnswer)
	}
	// position variance grows with velocity uncertainty and process noise
	correctVariance := 0.01 + 0.01*0.01*1.0 + 0.1*0.01*0.01*0.01/3.0
	if math.Abs(ks.p.At(0, 0)-correctVariance) > 1e-12 {
		t.Errorf("Wrong variance: %v, correct variance: %v", ks.p.At(0, 0), correctVariance)
	}
	if math.Abs(ks.p.At(0, 3)-ks.p.At(3, 0)) > 1e-15 {
		t.Errorf("Covariance must stay symmetric")
	}
}

func TestKalmanUpdateMovesTowardsObservation(t *testing.T) {
	system := threeCameraRig(t)
	truth := Point3{X: 0.05, Y: -0.05, Z: 0.1}
	ks := newKalmanState(Point3{}, 0.1, 1.0)
	before := euclideanDistance3(ks.position(), truth)
	for _, cam := range system.Cameras() {
		px, err := cam.Project(truth)
		if err != nil {
			t.Fatal(err)
		}
		om, err := NewObservationModel(cam, ks.x, 1.0)
		if err != nil {
			t.Fatal(err)
		}
		if err := ks.update(px, om); err != nil {
			t.Fatal(err)
		}
	}
	after := euclideanDistance3(ks.position(), truth)
	if after >= before || after > 0.03 {
		t.Errorf("Update must converge to observed point: before %v, after %v", before, after)
	}
	// posterior variance shrinks
	if ks.p.At(0, 0) >= 0.01 {
		t.Errorf("Posterior variance must shrink, got %v", ks.p.At(0, 0))
	}
	if !mat.EqualApprox(ks.p, ks.p.T(), 1e-12) {
		t.Errorf("Covariance must stay symmetric")
	}
}
