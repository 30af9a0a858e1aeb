package geometry

import (
	"math"

	"github.com/aretw0/abyss/pkg/domain"
)

// Capsule is a segment swept by a sphere. It is the pick volume of a marker glyph.
type Capsule struct {
	A, B   domain.Vec3
	Radius float64
}

// Contains reports whether p lies inside the capsule.
func (c Capsule) Contains(p domain.Vec3) bool {
	return p.DistanceTo(closestOnSegment(c.A, c.B, p)) <= c.Radius
}

// IntersectCapsule returns the distance at which the ray enters the capsule.
// The cylinder body is solved analytically; the end caps are tested as spheres.
func IntersectCapsule(r Ray, c Capsule) (float64, bool) {
	if c.Contains(r.Origin) {
		return 0, true
	}

	best := math.Inf(1)
	hit := false

	axis := c.B.Sub(c.A)
	length := axis.Norm()
	if length > Epsilon {
		d := axis.Scale(1 / length)
		oc := r.Origin.Sub(c.A)
		// Components of the ray direction and origin perpendicular to the axis.
		dp := r.Direction.Sub(d.Scale(r.Direction.Dot(d)))
		op := oc.Sub(d.Scale(oc.Dot(d)))
		a := dp.Dot(dp)
		b := 2 * dp.Dot(op)
		cc := op.Dot(op) - c.Radius*c.Radius
		if a > Epsilon {
			disc := b*b - 4*a*cc
			if disc >= 0 {
				t := (-b - math.Sqrt(disc)) / (2 * a)
				if t >= 0 {
					along := r.At(t).Sub(c.A).Dot(d)
					if along >= 0 && along <= length {
						best, hit = t, true
					}
				}
			}
		}
	}

	for _, end := range [2]domain.Vec3{c.A, c.B} {
		if t, ok := IntersectSphere(r, end, c.Radius); ok && t < best {
			best, hit = t, true
		}
	}
	return best, hit
}

func closestOnSegment(a, b, p domain.Vec3) domain.Vec3 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return a
	}
	t := p.Sub(a).Dot(ab) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.Add(ab.Scale(t))
}
