package mesh

import (
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/geometry"
)

// Box returns a closed axis-aligned box with outward (counter-clockwise) faces.
// It is the canonical test solid and the fallback shape of the dev service.
func Box(min, max domain.Vec3) *Mesh {
	p := func(x, y, z float64) domain.Vec3 { return domain.V(x, y, z) }
	x0, y0, z0 := min.X, min.Y, min.Z
	x1, y1, z1 := max.X, max.Y, max.Z

	quads := [][4]domain.Vec3{
		{p(x0, y0, z1), p(x1, y0, z1), p(x1, y1, z1), p(x0, y1, z1)}, // +Z
		{p(x1, y0, z0), p(x0, y0, z0), p(x0, y1, z0), p(x1, y1, z0)}, // -Z
		{p(x1, y0, z1), p(x1, y0, z0), p(x1, y1, z0), p(x1, y1, z1)}, // +X
		{p(x0, y0, z0), p(x0, y0, z1), p(x0, y1, z1), p(x0, y1, z0)}, // -X
		{p(x0, y1, z1), p(x1, y1, z1), p(x1, y1, z0), p(x0, y1, z0)}, // +Y
		{p(x0, y0, z0), p(x1, y0, z0), p(x1, y0, z1), p(x0, y0, z1)}, // -Y
	}

	tris := make([]geometry.Triangle, 0, 12)
	for _, q := range quads {
		tris = append(tris,
			geometry.Triangle{A: q[0], B: q[1], C: q[2]},
			geometry.Triangle{A: q[0], B: q[2], C: q[3]},
		)
	}
	m, _ := New("box", tris)
	return m
}
