package motion

import (
	"fmt"
	"math"

	"golang.org/x/image/math/f64"

	"github.com/ivlev/vidstab/internal/tracker"
)

// Affine is a 2x3 matrix stored row-major:
//
//	| A[0] A[1] A[2] |
//	| A[3] A[4] A[5] |
//
// mapping (x, y) to (A[0]x + A[1]y + A[2], A[3]x + A[4]y + A[5]).
type Affine [6]float64

func Identity() Affine {
	return Affine{1, 0, 0, 0, 1, 0}
}

func Translation(tx, ty float64) Affine {
	return Affine{1, 0, tx, 0, 1, ty}
}

// Similarity builds the partial affine transform with uniform scale s,
// rotation theta (radians) and translation (tx, ty).
func Similarity(s, theta, tx, ty float64) Affine {
	c, n := s*math.Cos(theta), s*math.Sin(theta)
	return Affine{c, -n, tx, n, c, ty}
}

func (a Affine) Apply(p tracker.Point) tracker.Point {
	return tracker.Point{
		X: a[0]*p.X + a[1]*p.Y + a[2],
		Y: a[3]*p.X + a[4]*p.Y + a[5],
	}
}

// Add returns the element-wise sum.
func (a Affine) Add(b Affine) Affine {
	for i := range a {
		a[i] += b[i]
	}
	return a
}

// Sub returns the element-wise difference.
func (a Affine) Sub(b Affine) Affine {
	for i := range a {
		a[i] -= b[i]
	}
	return a
}

// Scale multiplies every element by k.
func (a Affine) Scale(k float64) Affine {
	for i := range a {
		a[i] *= k
	}
	return a
}

// Mul composes two transforms: the result applies b first, then a.
func (a Affine) Mul(b Affine) Affine {
	return Affine{
		a[0]*b[0] + a[1]*b[3], a[0]*b[1] + a[1]*b[4], a[0]*b[2] + a[1]*b[5] + a[2],
		a[3]*b[0] + a[4]*b[3], a[3]*b[1] + a[4]*b[4], a[3]*b[2] + a[4]*b[5] + a[5],
	}
}

func (a Affine) IsIdentity() bool {
	return a == Identity()
}

func (a Affine) IsFinite() bool {
	for _, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Aff3 converts to the x/image representation.
func (a Affine) Aff3() f64.Aff3 {
	return f64.Aff3(a)
}

// ApproxEqual reports whether every element differs by at most tol.
func (a Affine) ApproxEqual(b Affine, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func (a Affine) String() string {
	return fmt.Sprintf("[%.4f %.4f %.3f; %.4f %.4f %.3f]", a[0], a[1], a[2], a[3], a[4], a[5])
}
