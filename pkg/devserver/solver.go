package devserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/geometry"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/aretw0/abyss/pkg/wire"
)

// ErrEmptyDomain is returned when no grid cell falls inside the mesh.
var ErrEmptyDomain = errors.New("design domain is empty at this grid resolution")

// ProgressFunc receives one report per solver iteration.
type ProgressFunc func(domain.ProgressSnapshot)

// Solver turns a mesh and boundary conditions into an optimized mesh.
type Solver interface {
	Solve(ctx context.Context, stl []byte, p wire.Params, progress ProgressFunc) ([]byte, error)
}

// SyntheticSolver voxelises the normalised mesh on the requested grid and
// removes material far from the straight load paths until the volume fraction
// is reached. Every iteration halves the excess material.
type SyntheticSolver struct {
	// StepDelay is slept between iterations so progress can be watched.
	StepDelay time.Duration
}

var _ Solver = SyntheticSolver{}

type cell struct {
	ix, iy, iz int
	score      float64
}

// Solve runs the synthetic optimization.
func (s SyntheticSolver) Solve(ctx context.Context, stl []byte, p wire.Params, progress ProgressFunc) ([]byte, error) {
	m, err := mesh.Parse(stl)
	if err != nil {
		return nil, err
	}
	m.Normalize()

	g := newGrid(m.Bounds(), p.Nelx, p.Nely, p.Nelz)
	var cells []cell
	for ix := 0; ix < g.nx; ix++ {
		for iy := 0; iy < g.ny; iy++ {
			for iz := 0; iz < g.nz; iz++ {
				c := g.center(ix, iy, iz)
				if !m.Contains(c) {
					continue
				}
				cells = append(cells, cell{ix: ix, iy: iy, iz: iz, score: loadPathDistance(c, p)})
			}
		}
	}
	if len(cells) == 0 {
		return nil, ErrEmptyDomain
	}
	sort.SliceStable(cells, func(i, j int) bool { return cells[i].score < cells[j].score })

	total := float64(len(cells))
	target := int(math.Round(p.VolumeFraction * total))
	if target < 1 {
		target = 1
	}

	start := time.Now()
	kept := len(cells)
	change := 1.0
	for it := 1; it <= p.MaxIterations && change > p.Tolx; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev := kept
		kept = target + (kept-target)/2
		change = float64(prev-kept) / total

		if progress != nil {
			progress(domain.ProgressSnapshot{
				Iteration:      it,
				MaxIterations:  p.MaxIterations,
				Objective:      round(compliance(cells[:kept], p.Penal), 6),
				VolumeFraction: round(float64(kept)/total, 4),
				Change:         round(change, 6),
				ElapsedSeconds: round(time.Since(start).Seconds(), 2),
			})
		}
		if s.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.StepDelay):
			}
		}
	}

	out, err := g.voxelMesh(cells[:kept])
	if err != nil {
		return nil, err
	}
	return out.Encode()
}

// compliance is a stand-in objective: it grows as material is removed and
// as the kept cells sit further from the load paths.
func compliance(kept []cell, penal float64) float64 {
	sum := 0.0
	for _, c := range kept {
		sum += 1 + c.score
	}
	return sum / math.Pow(float64(len(kept)), 1+1/math.Max(penal, 1))
}

// loadPathDistance is the distance from p to the nearest segment joining a
// fixed support and a load.
func loadPathDistance(p domain.Vec3, params wire.Params) float64 {
	best := math.Inf(1)
	for _, f := range params.FixedSupports {
		for _, l := range params.LoadVectors {
			if d := segmentDistance(p, f.Position, l.Position); d < best {
				best = d
			}
		}
	}
	return best
}

func segmentDistance(p, a, b domain.Vec3) float64 {
	ab := b.Sub(a)
	den := ab.Dot(ab)
	if den == 0 {
		return p.DistanceTo(a)
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/den))
	return p.DistanceTo(a.Add(ab.Scale(t)))
}

func round(v float64, digits int) float64 {
	f := math.Pow(10, float64(digits))
	return math.Round(v*f) / f
}

type grid struct {
	min        domain.Vec3
	dx, dy, dz float64
	nx, ny, nz int
}

func newGrid(b geometry.AABB, nx, ny, nz int) grid {
	size := b.Size()
	return grid{
		min: b.Min,
		dx:  size.X / float64(nx),
		dy:  size.Y / float64(ny),
		dz:  size.Z / float64(nz),
		nx:  nx,
		ny:  ny,
		nz:  nz,
	}
}

func (g grid) corner(ix, iy, iz int) domain.Vec3 {
	return domain.V(
		g.min.X+float64(ix)*g.dx,
		g.min.Y+float64(iy)*g.dy,
		g.min.Z+float64(iz)*g.dz,
	)
}

func (g grid) center(ix, iy, iz int) domain.Vec3 {
	return g.corner(ix, iy, iz).Add(domain.V(g.dx/2, g.dy/2, g.dz/2))
}

// voxelMesh emits the outer faces of the kept cells.
func (g grid) voxelMesh(kept []cell) (*mesh.Mesh, error) {
	type key [3]int
	solid := make(map[key]bool, len(kept))
	for _, c := range kept {
		solid[key{c.ix, c.iy, c.iz}] = true
	}

	var tris []geometry.Triangle
	for _, c := range kept {
		box := mesh.Box(g.corner(c.ix, c.iy, c.iz), g.corner(c.ix+1, c.iy+1, c.iz+1))
		for _, tri := range box.Triangles {
			n := tri.Normal()
			nb := key{c.ix + int(math.Round(n.X)), c.iy + int(math.Round(n.Y)), c.iz + int(math.Round(n.Z))}
			if solid[nb] {
				continue
			}
			tris = append(tris, tri)
		}
	}
	out, err := mesh.New("optimized", tris)
	if err != nil {
		return nil, fmt.Errorf("failed to build result mesh: %w", err)
	}
	return out, nil
}
