package mot

import (
	"errors"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

// lookAtCamera creates a 1280x960 camera at center looking at target, z axis up.
func lookAtCamera(t *testing.T, name string, center, target Point3) *PinholeCamera {
	t.Helper()
	forward := normalize3(Point3{X: target.X - center.X, Y: target.Y - center.Y, Z: target.Z - center.Z})
	right := normalize3(cross3(forward, Point3{Z: 1}))
	down := cross3(forward, right)
	r := [9]float64{
		right.X, right.Y, right.Z,
		down.X, down.Y, down.Z,
		forward.X, forward.Y, forward.Z,
	}
	tr := [3]float64{
		-(r[0]*center.X + r[1]*center.Y + r[2]*center.Z),
		-(r[3]*center.X + r[4]*center.Y + r[5]*center.Z),
		-(r[6]*center.X + r[7]*center.Y + r[8]*center.Z),
	}
	k := [9]float64{
		1000, 0, 640,
		0, 1000, 480,
		0, 0, 1,
	}
	cam, err := NewPinholeCamera(name, k, r, tr)
	if err != nil {
		t.Fatal(err)
	}
	return cam
}

func cross3(a, b Point3) Point3 {
	return Point3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func normalize3(a Point3) Point3 {
	n := math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
	return Point3{X: a.X / n, Y: a.Y / n, Z: a.Z / n}
}

// threeCameraRig is three cameras around the origin
func threeCameraRig(t *testing.T) *CameraSystem {
	t.Helper()
	origin := Point3{}
	system, err := NewCameraSystem(
		lookAtCamera(t, "cam1", Point3{X: 3, Y: 0, Z: 1}, origin),
		lookAtCamera(t, "cam2", Point3{X: 0, Y: 3, Z: 1}, origin),
		lookAtCamera(t, "cam3", Point3{X: -3, Y: -0.5, Z: 1.5}, origin),
	)
	if err != nil {
		t.Fatal(err)
	}
	return system
}

func TestPinholeProjectBackProject(t *testing.T) {
	cam := lookAtCamera(t, "cam1", Point3{X: 3, Y: 0, Z: 1}, Point3{})
	center := cam.Center()
	if euclideanDistance3(center, Point3{X: 3, Y: 0, Z: 1}) > eps {
		t.Errorf("Wrong camera center: %v", center)
	}
	px, err := cam.Project(Point3{})
	if err != nil {
		t.Fatal(err)
	}
	if euclideanDistance(px, Point{X: 640, Y: 480}) > eps {
		t.Errorf("Target must project to principal point, got %v", px)
	}

	world := Point3{X: 0.2, Y: -0.1, Z: 0.3}
	px, err = cam.Project(world)
	if err != nil {
		t.Fatal(err)
	}
	ray, err := cam.BackProject(px)
	if err != nil {
		t.Fatal(err)
	}
	// distance from world point to the ray must vanish
	v := Point3{X: world.X - ray.Origin.X, Y: world.Y - ray.Origin.Y, Z: world.Z - ray.Origin.Z}
	c := cross3(v, ray.Direction)
	if dist := math.Sqrt(c.X*c.X + c.Y*c.Y + c.Z*c.Z); dist > eps {
		t.Errorf("Point is %v away from its back-projected ray", dist)
	}
}

func TestPinholeBehindCamera(t *testing.T) {
	cam := lookAtCamera(t, "cam1", Point3{X: 3, Y: 0, Z: 1}, Point3{})
	_, err := cam.Project(Point3{X: 6, Y: 0, Z: 2})
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("Expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestTriangulate(t *testing.T) {
	system := threeCameraRig(t)
	world := Point3{X: 0.1, Y: 0.2, Z: 0.3}
	rays := make([]Ray, 0, system.Len())
	for _, cam := range system.Cameras() {
		px, err := cam.Project(world)
		if err != nil {
			t.Fatal(err)
		}
		ray, err := cam.BackProject(px)
		if err != nil {
			t.Fatal(err)
		}
		rays = append(rays, ray)
	}
	answer, err := Triangulate(rays)
	if err != nil {
		t.Fatal(err)
	}
	if euclideanDistance3(answer, world) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, world)
	}

	_, err = Triangulate(rays[:1])
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("Single ray: expected ErrDegenerateGeometry, got %v", err)
	}
	parallel := []Ray{
		{Origin: Point3{}, Direction: Point3{X: 1}},
		{Origin: Point3{Y: 1}, Direction: Point3{X: 1}},
	}
	_, err = Triangulate(parallel)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("Parallel rays: expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestCameraSystem(t *testing.T) {
	a := lookAtCamera(t, "b", Point3{X: 3, Y: 0, Z: 1}, Point3{})
	b := lookAtCamera(t, "a", Point3{X: 0, Y: 3, Z: 1}, Point3{})
	system, err := NewCameraSystem(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if system.Cameras()[0].Name() != "a" || system.Cameras()[1].Name() != "b" {
		t.Errorf("Cameras must be sorted by name")
	}
	if _, ok := system.Camera("c"); ok {
		t.Errorf("Unknown camera must not be found")
	}
	if _, err := NewCameraSystem(a, a); err == nil {
		t.Errorf("Duplicate camera names must be rejected")
	}
	if _, err := NewCameraSystem(); !errors.Is(err, ErrNoCameras) {
		t.Errorf("Expected ErrNoCameras, got %v", err)
	}

	calibration, err := system.Calibration()
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Cameras []*PinholeCamera `yaml:"cameras"`
	}
	if err := yaml.Unmarshal(calibration, &decoded); err != nil {
		t.Fatal(err)
	}
	if len(decoded.Cameras) != 2 {
		t.Fatalf("Expected 2 cameras in calibration, got %d", len(decoded.Cameras))
	}
	px1, _ := b.Project(Point3{X: 0.1, Y: 0.1, Z: 0.1})
	px2, err := decoded.Cameras[0].Project(Point3{X: 0.1, Y: 0.1, Z: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if euclideanDistance(px1, px2) > eps {
		t.Errorf("Decoded camera projects differently: %v vs %v", px2, px1)
	}
}
