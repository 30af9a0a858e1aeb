// Package geometry implements the ray tests used for pointer picking.
package geometry

import (
	"math"

	"github.com/aretw0/abyss/pkg/domain"
)

// Epsilon is the tolerance used by the intersection tests.
const Epsilon = 1e-9

// Ray is a half-line starting at Origin. Direction is kept normalised so that
// the ray parameter t of a hit equals its distance from the origin.
type Ray struct {
	Origin    domain.Vec3
	Direction domain.Vec3
}

// NewRay builds a ray, normalising the direction.
func NewRay(origin, direction domain.Vec3) Ray {
	return Ray{Origin: origin, Direction: direction.Normalize()}
}

// Valid reports whether the ray can hit anything.
func (r Ray) Valid() bool {
	return r.Origin.IsFinite() && r.Direction.IsFinite() && r.Direction.Norm() > Epsilon
}

// At returns the point at parameter t.
func (r Ray) At(t float64) domain.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}

// Triangle is a mesh face with counter-clockwise winding for its outward side.
type Triangle struct {
	A, B, C domain.Vec3
}

// Normal returns the unit geometric normal implied by the winding.
func (tr Triangle) Normal() domain.Vec3 {
	return tr.B.Sub(tr.A).Cross(tr.C.Sub(tr.A)).Normalize()
}

// IntersectTriangle returns the distance to the triangle along the ray
// (Möller–Trumbore). Both faces are hit; hits behind the origin are ignored.
func IntersectTriangle(r Ray, tr Triangle) (float64, bool) {
	e1 := tr.B.Sub(tr.A)
	e2 := tr.C.Sub(tr.A)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < Epsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(tr.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= Epsilon {
		return 0, false
	}
	return t, true
}

// IntersectSphere returns the nearest non-negative distance at which the ray
// enters the sphere. A ray starting inside the sphere hits at distance 0.
func IntersectSphere(r Ray, center domain.Vec3, radius float64) (float64, bool) {
	oc := r.Origin.Sub(center)
	b := oc.Dot(r.Direction)
	c := oc.Dot(oc) - radius*radius
	if c <= 0 {
		return 0, true
	}
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(disc)
	if t < 0 {
		return 0, false
	}
	return t, true
}

// Hit describes where a ray met a surface.
type Hit struct {
	Point    domain.Vec3
	Normal   domain.Vec3
	Distance float64
}
