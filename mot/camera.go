package mot

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

var (
	// ErrDegenerateGeometry is returned when projection or triangulation is not defined.
	ErrDegenerateGeometry = errors.New("degenerate camera geometry")
	// ErrNoCameras is returned when a camera system has no cameras.
	ErrNoCameras = errors.New("camera system has no cameras")
)

// Camera is a calibrated camera model. Implementations may be nonlinear
// (e.g. refraction-aware); the tracker only projects and back-projects.
type Camera interface {
	Name() string
	// Project maps a world point to a pixel.
	Project(pt Point3) (Point, error)
	// BackProject returns the ray of world points which project to the pixel.
	BackProject(px Point) (Ray, error)
}

// PinholeCamera is a linear camera without distortion: x = K [R|t] X.
type PinholeCamera struct {
	CamName string     `yaml:"name"`
	K       [9]float64 `yaml:"k"`
	R       [9]float64 `yaml:"r"`
	T       [3]float64 `yaml:"t"`
	Width   int        `yaml:"width,omitempty"`
	Height  int        `yaml:"height,omitempty"`

	k    *mat.Dense
	kInv *mat.Dense
	r    *mat.Dense
	t    *mat.VecDense
}

// NewPinholeCamera creates a camera from row-major intrinsics K, rotation R and translation t.
func NewPinholeCamera(name string, k, r [9]float64, t [3]float64) (*PinholeCamera, error) {
	cam := &PinholeCamera{CamName: name, K: k, R: r, T: t}
	if err := cam.init(); err != nil {
		return nil, err
	}
	return cam, nil
}

func (cam *PinholeCamera) init() error {
	cam.k = mat.NewDense(3, 3, append([]float64(nil), cam.K[:]...))
	cam.r = mat.NewDense(3, 3, append([]float64(nil), cam.R[:]...))
	cam.t = mat.NewVecDense(3, append([]float64(nil), cam.T[:]...))
	var kInv mat.Dense
	if err := kInv.Inverse(cam.k); err != nil {
		return fmt.Errorf("camera %q: intrinsics not invertible: %w", cam.CamName, err)
	}
	cam.kInv = &kInv
	return nil
}

// UnmarshalYAML decodes the calibration and prepares the matrices.
func (cam *PinholeCamera) UnmarshalYAML(value *yaml.Node) error {
	type plain PinholeCamera
	var raw plain
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*cam = PinholeCamera(raw)
	return cam.init()
}

// Name returns camera name
func (cam *PinholeCamera) Name() string {
	return cam.CamName
}

// Center returns camera center in world coordinates
func (cam *PinholeCamera) Center() Point3 {
	var c mat.VecDense
	c.MulVec(cam.r.T(), cam.t)
	c.ScaleVec(-1, &c)
	return point3FromVec(&c)
}

// Project maps a world point to a pixel. Points behind the camera are rejected.
func (cam *PinholeCamera) Project(pt Point3) (Point, error) {
	var camPt mat.VecDense
	camPt.MulVec(cam.r, pt.vec())
	camPt.AddVec(&camPt, cam.t)
	if camPt.AtVec(2) <= 1e-12 {
		return Point{}, fmt.Errorf("camera %q: point behind camera: %w", cam.CamName, ErrDegenerateGeometry)
	}
	var img mat.VecDense
	img.MulVec(cam.k, &camPt)
	w := img.AtVec(2)
	return Point{X: img.AtVec(0) / w, Y: img.AtVec(1) / w}, nil
}

// BackProject returns the ray through the given pixel.
func (cam *PinholeCamera) BackProject(px Point) (Ray, error) {
	var dirCam mat.VecDense
	dirCam.MulVec(cam.kInv, mat.NewVecDense(3, []float64{px.X, px.Y, 1}))
	var dirWorld mat.VecDense
	dirWorld.MulVec(cam.r.T(), &dirCam)
	norm := mat.Norm(&dirWorld, 2)
	if norm == 0 || math.IsNaN(norm) {
		return Ray{}, fmt.Errorf("camera %q: %w", cam.CamName, ErrDegenerateGeometry)
	}
	dirWorld.ScaleVec(1/norm, &dirWorld)
	return Ray{Origin: cam.Center(), Direction: point3FromVec(&dirWorld)}, nil
}

// CameraSystem is an ordered set of calibrated cameras.
type CameraSystem struct {
	cams   []Camera
	byName map[string]int
}

// NewCameraSystem creates new CameraSystem. Cameras are kept sorted by name.
func NewCameraSystem(cams ...Camera) (*CameraSystem, error) {
	if len(cams) == 0 {
		return nil, ErrNoCameras
	}
	sorted := append([]Camera(nil), cams...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name() < sorted[j].Name() })
	byName := make(map[string]int, len(sorted))
	for i, cam := range sorted {
		if _, ok := byName[cam.Name()]; ok {
			return nil, fmt.Errorf("duplicate camera name %q", cam.Name())
		}
		byName[cam.Name()] = i
	}
	return &CameraSystem{cams: sorted, byName: byName}, nil
}

// Len returns number of cameras
func (cs *CameraSystem) Len() int {
	return len(cs.cams)
}

// Cameras returns cameras sorted by name
func (cs *CameraSystem) Cameras() []Camera {
	return cs.cams
}

// Camera looks camera up by name
func (cs *CameraSystem) Camera(name string) (Camera, bool) {
	idx, ok := cs.byName[name]
	if !ok {
		return nil, false
	}
	return cs.cams[idx], true
}

// Calibration returns YAML document describing every camera.
func (cs *CameraSystem) Calibration() ([]byte, error) {
	doc := struct {
		Cameras []Camera `yaml:"cameras"`
	}{Cameras: cs.cams}
	return yaml.Marshal(doc)
}

// Triangulate finds the point closest (in least squares sense) to all rays.
func Triangulate(rays []Ray) (Point3, error) {
	if len(rays) < 2 {
		return Point3{}, fmt.Errorf("need at least 2 rays, got %d: %w", len(rays), ErrDegenerateGeometry)
	}
	a := mat.NewDense(3, 3, nil)
	b := mat.NewVecDense(3, nil)
	for _, ray := range rays {
		d := ray.Direction.vec()
		// I - d*d^T projects onto the plane orthogonal to the ray
		var proj mat.Dense
		proj.Outer(-1, d, d)
		for i := 0; i < 3; i++ {
			proj.Set(i, i, proj.At(i, i)+1)
		}
		a.Add(a, &proj)
		var po mat.VecDense
		po.MulVec(&proj, ray.Origin.vec())
		b.AddVec(b, &po)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || float64(cond) > 1e12 {
			return Point3{}, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
		}
	}
	return point3FromVec(&x), nil
}
