package mot

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Step for numerical differentiation of the projection, in world units
const linearizationStep = 0.001

// ObservationModel maps the 6-D state [x, y, z, xvel, yvel, zvel] to a pixel of one camera.
// The projection is linearized at the predicted 3D point.
type ObservationModel struct {
	cam Camera
	h   *mat.Dense
	hT  mat.Matrix
	r   *mat.Dense
}

// NewObservationModel linearizes the camera projection at the position of state.
// noisePixels is the variance of the (isotropic) observation noise.
func NewObservationModel(cam Camera, state mat.Vector, noisePixels float64) (*ObservationModel, error) {
	pt := stateToPoint(state)
	jac, err := linearizeNumericallyAt(cam, pt, linearizationStep)
	if err != nil {
		return nil, errors.Wrapf(err, "can't linearize camera %s", cam.Name())
	}
	h := mat.NewDense(2, 6, nil)
	h.Slice(0, 2, 0, 3).(*mat.Dense).Copy(jac)
	r := mat.NewDense(2, 2, []float64{
		noisePixels, 0,
		0, noisePixels,
	})
	return &ObservationModel{
		cam: cam,
		h:   h,
		hT:  h.T(),
		r:   r,
	}, nil
}

// Camera returns the camera this model observes through
func (om *ObservationModel) Camera() Camera {
	return om.cam
}

// PredictObservation projects the position of state into the camera.
func (om *ObservationModel) PredictObservation(state mat.Vector) (Point, error) {
	return om.cam.Project(stateToPoint(state))
}

// Linearization returns observation matrix H (2x6), its transpose and observation noise covariance R (2x2).
func (om *ObservationModel) Linearization() (h, hT, r mat.Matrix) {
	return om.h, om.hT, om.r
}

// linearizeNumericallyAt computes the 2x3 jacobian of the projection by central differences.
func linearizeNumericallyAt(cam Camera, pt Point3, step float64) (*mat.Dense, error) {
	jac := mat.NewDense(2, 3, nil)
	for i := 0; i < 3; i++ {
		plus, minus := pt, pt
		switch i {
		case 0:
			plus.X += step
			minus.X -= step
		case 1:
			plus.Y += step
			minus.Y -= step
		case 2:
			plus.Z += step
			minus.Z -= step
		}
		pxPlus, err := cam.Project(plus)
		if err != nil {
			return nil, err
		}
		pxMinus, err := cam.Project(minus)
		if err != nil {
			return nil, err
		}
		jac.Set(0, i, (pxPlus.X-pxMinus.X)/(2*step))
		jac.Set(1, i, (pxPlus.Y-pxMinus.Y)/(2*step))
	}
	return jac, nil
}

func stateToPoint(state mat.Vector) Point3 {
	return Point3{X: state.AtVec(0), Y: state.AtVec(1), Z: state.AtVec(2)}
}
