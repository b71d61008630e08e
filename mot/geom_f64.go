package mot

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a 2D point in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// Point3 is a 3D point in world coordinates.
type Point3 struct {
	X float64
	Y float64
	Z float64
}

func NewPoint3(x, y, z float64) Point3 {
	return Point3{
		X: x,
		Y: y,
		Z: z,
	}
}

func (p Point3) vec() *mat.VecDense {
	return mat.NewVecDense(3, []float64{p.X, p.Y, p.Z})
}

func point3FromVec(v mat.Vector) Point3 {
	return Point3{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
}

// Ray is a half-line from the camera center through a pixel. Direction has unit length.
type Ray struct {
	Origin    Point3
	Direction Point3
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(float64(p1.X-p2.X), 2) + math.Pow(float64(p1.Y-p2.Y), 2))
}

func euclideanDistance3(p1, p2 Point3) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2) + math.Pow(p1.Z-p2.Z, 2))
}
