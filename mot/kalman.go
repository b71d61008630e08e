package mot

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// motionModel is the constant velocity model for state [x, y, z, xvel, yvel, zvel].
type motionModel struct {
	dt float64
	f  *mat.Dense
	q  *mat.Dense
}

func newMotionModel(dt, noiseScale float64) motionModel {
	f := mat.NewDense(6, 6, nil)
	q := mat.NewDense(6, 6, nil)
	t33 := dt * dt * dt / 3.0
	t22 := dt * dt / 2.0
	for i := 0; i < 3; i++ {
		f.Set(i, i, 1)
		f.Set(i+3, i+3, 1)
		f.Set(i, i+3, dt)

		q.Set(i, i, noiseScale*t33)
		q.Set(i, i+3, noiseScale*t22)
		q.Set(i+3, i, noiseScale*t22)
		q.Set(i+3, i+3, noiseScale*dt)
	}
	return motionModel{dt: dt, f: f, q: q}
}

// kalmanState is the estimate of a single object.
type kalmanState struct {
	x *mat.VecDense
	p *mat.Dense
}

func newKalmanState(pos Point3, posStd, velStd float64) kalmanState {
	x := mat.NewVecDense(6, []float64{pos.X, pos.Y, pos.Z, 0, 0, 0})
	p := mat.NewDense(6, 6, nil)
	for i := 0; i < 3; i++ {
		p.Set(i, i, posStd*posStd)
		p.Set(i+3, i+3, velStd*velStd)
	}
	return kalmanState{x: x, p: p}
}

// predict executes Kalman filter's first step: x = F*x, P = F*P*F^T + Q
func (ks *kalmanState) predict(model motionModel) {
	var x mat.VecDense
	x.MulVec(model.f, ks.x)
	var fp mat.Dense
	fp.Mul(model.f, ks.p)
	var p mat.Dense
	p.Mul(&fp, model.f.T())
	p.Add(&p, model.q)
	ks.x = &x
	ks.p = &p
}

// update executes Kalman filter's second step with a single camera observation.
func (ks *kalmanState) update(observation Point, om *ObservationModel) error {
	predicted, err := om.PredictObservation(ks.x)
	if err != nil {
		return errors.Wrap(err, "can't predict observation")
	}
	h, hT, r := om.Linearization()

	innovation := mat.NewVecDense(2, []float64{
		observation.X - predicted.X,
		observation.Y - predicted.Y,
	})

	// S = H*P*H^T + R
	var hp mat.Dense
	hp.Mul(h, ks.p)
	var s mat.Dense
	s.Mul(&hp, hT)
	s.Add(&s, r)
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return errors.Wrap(ErrDegenerateGeometry, "innovation covariance is singular")
	}

	// K = P*H^T*S^-1
	var pht mat.Dense
	pht.Mul(ks.p, hT)
	var gain mat.Dense
	gain.Mul(&pht, &sInv)

	var correction mat.VecDense
	correction.MulVec(&gain, innovation)
	var x mat.VecDense
	x.AddVec(ks.x, &correction)

	// P = (I - K*H)*P
	var kh mat.Dense
	kh.Mul(&gain, h)
	ikh := eye(6)
	ikh.Sub(ikh, &kh)
	var p mat.Dense
	p.Mul(ikh, ks.p)
	symmetrize(&p)

	ks.x = &x
	ks.p = &p
	return nil
}

func (ks *kalmanState) position() Point3 {
	return Point3{X: ks.x.AtVec(0), Y: ks.x.AtVec(1), Z: ks.x.AtVec(2)}
}

func (ks *kalmanState) velocity() Point3 {
	return Point3{X: ks.x.AtVec(3), Y: ks.x.AtVec(4), Z: ks.x.AtVec(5)}
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}
