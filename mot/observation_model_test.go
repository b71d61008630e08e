package mot

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestObservationModelLinearization(t *testing.T) {
	// camera at z = -5 looking along +z, so u = 1000*x/(z+5) + 640
	cam, err := NewPinholeCamera("cam1",
		[9]float64{1000, 0, 640, 0, 1000, 480, 0, 0, 1},
		[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[3]float64{0, 0, 5},
	)
	if err != nil {
		t.Fatal(err)
	}
	state := mat.NewVecDense(6, []float64{0.5, -0.25, 0, 1, 2, 3})
	om, err := NewObservationModel(cam, state, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	h, _, r := om.Linearization()

	correctAnswer := [2][6]float64{
		{200, 0, -20, 0, 0, 0},
		{0, 200, 10, 0, 0, 0},
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 6; j++ {
			if math.Abs(h.At(i, j)-correctAnswer[i][j]) > 1e-3 {
				t.Errorf("H[%d][%d]: wrong answer: %v, correct answer: %v", i, j, h.At(i, j), correctAnswer[i][j])
			}
		}
	}
	if r.At(0, 0) != 1.0 || r.At(1, 1) != 1.0 || r.At(0, 1) != 0 {
		t.Errorf("Wrong observation noise: %v", mat.Formatted(r))
	}

	predicted, err := om.PredictObservation(state)
	if err != nil {
		t.Fatal(err)
	}
	if euclideanDistance(predicted, Point{X: 740, Y: 430}) > eps {
		t.Errorf("Wrong predicted observation: %v", predicted)
	}
}

func TestObservationModelBehindCamera(t *testing.T) {
	cam, err := NewPinholeCamera("cam1",
		[9]float64{1000, 0, 640, 0, 1000, 480, 0, 0, 1},
		[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		[3]float64{0, 0, 5},
	)
	if err != nil {
		t.Fatal(err)
	}
	state := mat.NewVecDense(6, []float64{0, 0, -10, 0, 0, 0})
	if _, err := NewObservationModel(cam, state, 1.0); err == nil {
		t.Errorf("Linearization behind camera must fail")
	}
}
