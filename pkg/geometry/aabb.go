package geometry

import (
	"math"

	"github.com/aretw0/abyss/pkg/domain"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max domain.Vec3
}

// EmptyAABB returns a box that any Extend call replaces.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{Min: domain.V(inf, inf, inf), Max: domain.V(-inf, -inf, -inf)}
}

// Empty reports whether no point was added to the box.
func (b AABB) Empty() bool {
	return b.Min.X > b.Max.X
}

// Extend grows the box to contain p.
func (b AABB) Extend(p domain.Vec3) AABB {
	return AABB{
		Min: domain.V(math.Min(b.Min.X, p.X), math.Min(b.Min.Y, p.Y), math.Min(b.Min.Z, p.Z)),
		Max: domain.V(math.Max(b.Max.X, p.X), math.Max(b.Max.Y, p.Y), math.Max(b.Max.Z, p.Z)),
	}
}

// Size returns the edge lengths of the box.
func (b AABB) Size() domain.Vec3 {
	if b.Empty() {
		return domain.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b AABB) Center() domain.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// IntersectAABB reports whether the ray passes through the box (slab test).
func IntersectAABB(r Ray, b AABB) bool {
	if b.Empty() {
		return false
	}
	tmin, tmax := 0.0, math.Inf(1)
	o := [3]float64{r.Origin.X, r.Origin.Y, r.Origin.Z}
	d := [3]float64{r.Direction.X, r.Direction.Y, r.Direction.Z}
	lo := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	hi := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < Epsilon {
			if o[i] < lo[i]-Epsilon || o[i] > hi[i]+Epsilon {
				return false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax+Epsilon {
			return false
		}
	}
	return true
}
