// Package mesh loads STL surface meshes and answers ray queries against them.
//
// A Mesh is the base surface markers are placed on. Its triangles are kept in
// model space; an optional world transform maps them onto the scene, and
// every hit is reported in world space.
package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/geometry"
	"github.com/hschendel/stl"
)

// TargetSize is the largest edge of a normalised mesh's bounding box.
const TargetSize = 3.0

// ErrEmptyMesh is returned when a file contains no usable triangle.
var ErrEmptyMesh = errors.New("mesh has no triangles")

// Mesh is a triangle soup with a world transform.
type Mesh struct {
	Name      string
	Triangles []geometry.Triangle

	bounds    geometry.AABB
	transform geometry.Transform
	inverse   geometry.Transform
}

// Parse decodes binary or ASCII STL bytes.
func Parse(data []byte) (*Mesh, error) {
	if len(data) == 0 {
		return nil, domain.ErrNoMesh
	}
	solid, err := stl.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse stl: %w", err)
	}

	tris := make([]geometry.Triangle, 0, len(solid.Triangles))
	for _, t := range solid.Triangles {
		tri := geometry.Triangle{
			A: fromSTL(t.Vertices[0]),
			B: fromSTL(t.Vertices[1]),
			C: fromSTL(t.Vertices[2]),
		}
		if !tri.A.IsFinite() || !tri.B.IsFinite() || !tri.C.IsFinite() {
			continue
		}
		tris = append(tris, tri)
	}
	return New(solid.Name, tris)
}

// New builds a mesh from triangles with an identity transform.
func New(name string, tris []geometry.Triangle) (*Mesh, error) {
	if len(tris) == 0 {
		return nil, ErrEmptyMesh
	}
	m := &Mesh{
		Name:      name,
		Triangles: tris,
		transform: geometry.Identity(),
		inverse:   geometry.Identity(),
	}
	m.recomputeBounds()
	return m, nil
}

// Bounds returns the model-space bounding box.
func (m *Mesh) Bounds() geometry.AABB {
	return m.bounds
}

// Transform returns the model-to-world transform.
func (m *Mesh) Transform() geometry.Transform {
	return m.transform
}

// SetTransform installs a model-to-world transform.
func (m *Mesh) SetTransform(t geometry.Transform) error {
	inv, ok := t.Inverse()
	if !ok {
		return fmt.Errorf("mesh transform is singular")
	}
	m.transform = t
	m.inverse = inv
	return nil
}

// Normalize rewrites the vertices so the mesh is centred on the origin in X
// and Z, scaled uniformly so its largest dimension equals TargetSize, and
// resting on the y = 0 plane. Marker coordinates sent to the solver live in
// this frame.
func (m *Mesh) Normalize() {
	center := m.bounds.Center()
	size := m.bounds.Size()
	maxDim := math.Max(size.X, math.Max(size.Y, size.Z))
	scale := 1.0
	if maxDim > 0 {
		scale = TargetSize / maxDim
	}

	apply := func(p domain.Vec3) domain.Vec3 {
		return p.Sub(center).Scale(scale)
	}
	for i, t := range m.Triangles {
		m.Triangles[i] = geometry.Triangle{A: apply(t.A), B: apply(t.B), C: apply(t.C)}
	}
	m.recomputeBounds()

	lift := domain.V(0, -m.bounds.Min.Y, 0)
	for i, t := range m.Triangles {
		m.Triangles[i] = geometry.Triangle{A: t.A.Add(lift), B: t.B.Add(lift), C: t.C.Add(lift)}
	}
	m.recomputeBounds()
}

// CharacteristicSize returns the largest world-space edge of the bounding box.
// Glyphs are sized relative to it.
func (m *Mesh) CharacteristicSize() float64 {
	b := geometry.EmptyAABB()
	lo, hi := m.bounds.Min, m.bounds.Max
	for _, c := range []domain.Vec3{
		lo, hi,
		domain.V(lo.X, lo.Y, hi.Z), domain.V(lo.X, hi.Y, lo.Z), domain.V(hi.X, lo.Y, lo.Z),
		domain.V(hi.X, hi.Y, lo.Z), domain.V(hi.X, lo.Y, hi.Z), domain.V(lo.X, hi.Y, hi.Z),
	} {
		b = b.Extend(m.transform.ApplyPoint(c))
	}
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// Intersect returns the closest world-space hit of the ray on the mesh.
// The normal faces away from the solid (counter-clockwise winding) and is
// mapped through the inverse transpose of the world transform.
func (m *Mesh) Intersect(r geometry.Ray) (geometry.Hit, bool) {
	if !r.Valid() {
		return geometry.Hit{}, false
	}
	local := r
	if !m.transform.IsIdentity() {
		local = m.inverse.ApplyRay(r)
	}
	if !geometry.IntersectAABB(local, m.bounds) {
		return geometry.Hit{}, false
	}

	best := math.Inf(1)
	bestIdx := -1
	for i, tri := range m.Triangles {
		if t, ok := geometry.IntersectTriangle(local, tri); ok && t < best {
			best, bestIdx = t, i
		}
	}
	if bestIdx < 0 {
		return geometry.Hit{}, false
	}

	tri := m.Triangles[bestIdx]
	point := m.transform.ApplyPoint(local.At(best))
	normal := m.transform.ApplyNormal(tri.Normal())
	return geometry.Hit{
		Point:    point,
		Normal:   normal,
		Distance: point.DistanceTo(r.Origin),
	}, true
}

// probe is skewed off the axes so parity rays rarely graze shared edges.
var probe = domain.V(1, 0.0123, 0.0071).Normalize()

// Contains reports whether a model-space point lies inside the closed mesh,
// counting how many faces a ray from the point crosses.
func (m *Mesh) Contains(p domain.Vec3) bool {
	if p.X < m.bounds.Min.X || p.Y < m.bounds.Min.Y || p.Z < m.bounds.Min.Z ||
		p.X > m.bounds.Max.X || p.Y > m.bounds.Max.Y || p.Z > m.bounds.Max.Z {
		return false
	}
	r := geometry.Ray{Origin: p, Direction: probe}
	crossings := 0
	for _, tri := range m.Triangles {
		if _, ok := geometry.IntersectTriangle(r, tri); ok {
			crossings++
		}
	}
	return crossings%2 == 1
}

// Encode writes the mesh (model space) as binary STL.
func (m *Mesh) Encode() ([]byte, error) {
	solid := &stl.Solid{Name: m.Name, Triangles: make([]stl.Triangle, len(m.Triangles))}
	for i, t := range m.Triangles {
		solid.Triangles[i] = stl.Triangle{
			Normal:   toSTL(t.Normal()),
			Vertices: [3]stl.Vec3{toSTL(t.A), toSTL(t.B), toSTL(t.C)},
		}
	}
	var buf bytes.Buffer
	if err := solid.WriteAll(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode stl: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *Mesh) recomputeBounds() {
	b := geometry.EmptyAABB()
	for _, t := range m.Triangles {
		b = b.Extend(t.A).Extend(t.B).Extend(t.C)
	}
	m.bounds = b
}

func fromSTL(v stl.Vec3) domain.Vec3 {
	return domain.V(float64(v[0]), float64(v[1]), float64(v[2]))
}

func toSTL(v domain.Vec3) stl.Vec3 {
	return stl.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}
