package geometry

import (
	"math"

	"github.com/aretw0/abyss/pkg/domain"
)

// Transform is an affine map p -> M·p + T.
type Transform struct {
	M [3][3]float64
	T domain.Vec3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{M: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// Translation returns a pure translation.
func Translation(t domain.Vec3) Transform {
	tr := Identity()
	tr.T = t
	return tr
}

// Scaling returns a per-axis scale.
func Scaling(sx, sy, sz float64) Transform {
	return Transform{M: [3][3]float64{{sx, 0, 0}, {0, sy, 0}, {0, 0, sz}}}
}

// RotationY returns a rotation of angle radians about the Y axis.
func RotationY(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{M: [3][3]float64{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}}
}

// IsIdentity reports whether the transform leaves every point unchanged.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// Then returns the transform that applies t first and next second.
func (t Transform) Then(next Transform) Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out.M[i][j] += next.M[i][k] * t.M[k][j]
			}
		}
	}
	out.T = next.ApplyVector(t.T).Add(next.T)
	return out
}

// ApplyPoint maps a position.
func (t Transform) ApplyPoint(p domain.Vec3) domain.Vec3 {
	return t.ApplyVector(p).Add(t.T)
}

// ApplyVector maps a direction (translation is ignored).
func (t Transform) ApplyVector(v domain.Vec3) domain.Vec3 {
	return domain.Vec3{
		X: t.M[0][0]*v.X + t.M[0][1]*v.Y + t.M[0][2]*v.Z,
		Y: t.M[1][0]*v.X + t.M[1][1]*v.Y + t.M[1][2]*v.Z,
		Z: t.M[2][0]*v.X + t.M[2][1]*v.Y + t.M[2][2]*v.Z,
	}
}

// ApplyNormal maps a surface normal with the inverse transpose of the linear
// part, so normals stay perpendicular under non-uniform scaling. The result is unit length.
func (t Transform) ApplyNormal(n domain.Vec3) domain.Vec3 {
	inv, ok := invert3(t.M)
	if !ok {
		return t.ApplyVector(n).Normalize()
	}
	// Multiply by the transpose of inv.
	return domain.Vec3{
		X: inv[0][0]*n.X + inv[1][0]*n.Y + inv[2][0]*n.Z,
		Y: inv[0][1]*n.X + inv[1][1]*n.Y + inv[2][1]*n.Z,
		Z: inv[0][2]*n.X + inv[1][2]*n.Y + inv[2][2]*n.Z,
	}.Normalize()
}

// Inverse returns the inverse transform. ok is false for singular transforms.
func (t Transform) Inverse() (Transform, bool) {
	inv, ok := invert3(t.M)
	if !ok {
		return Transform{}, false
	}
	out := Transform{M: inv}
	out.T = out.ApplyVector(t.T).Neg()
	return out, true
}

// ApplyRay maps a ray. The direction is renormalised; callers converting hit
// distances between spaces must recompute them from the mapped points.
func (t Transform) ApplyRay(r Ray) Ray {
	return NewRay(t.ApplyPoint(r.Origin), t.ApplyVector(r.Direction))
}

func invert3(m [3][3]float64) ([3][3]float64, bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < Epsilon {
		return [3][3]float64{}, false
	}
	inv := 1 / det
	return [3][3]float64{
		{
			(m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv,
			(m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv,
			(m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv,
		},
		{
			(m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv,
			(m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv,
			(m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv,
		},
		{
			(m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv,
			(m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv,
			(m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv,
		},
	}, true
}
