package scenario

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cantilever = `
name: cantilever
description: beam clamped on the left, pushed down on the right
mesh:
  box:
    min: [-1.5, 0, -0.5]
    max: [1.5, 1, 0.5]
solver:
  nelx: 8
  nely: 4
  nelz: 4
  volume_fraction: "0.4"
clicks:
  - mode: fixed
    origin: [-5, 0.3, 0.1]
    direction: [1, 0, 0]
  - mode: load
    origin: [5, 0.6, 0.1]
    direction: [-1, 0, 0]
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(cantilever), ".")
	require.NoError(t, err)
	assert.Equal(t, "cantilever", s.Name)
	require.Len(t, s.Clicks, 2)
	assert.Equal(t, domain.ModeLoad, s.Clicks[1].Mode)

	origin, dir := s.Clicks[0].Ray()
	assert.Equal(t, domain.V(-5, 0.3, 0.1), origin)
	assert.Equal(t, domain.V(1, 0, 0), dir)

	data, err := s.MeshBytes()
	require.NoError(t, err)
	m, err := mesh.Parse(data)
	require.NoError(t, err)
	assert.Len(t, m.Triangles, 12)
}

func TestApplySolver(t *testing.T) {
	s, err := Parse([]byte(cantilever), ".")
	require.NoError(t, err)

	cfg, err := s.ApplySolver(domain.DefaultSolverConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Nelx)
	assert.Equal(t, 0.4, cfg.VolumeFraction)
	assert.Equal(t, 80, cfg.MaxIterations, "unset fields keep the base value")

	s.Solver = map[string]any{"nelq": 3}
	_, err = s.ApplySolver(domain.DefaultSolverConfig())
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"no mesh":     "clicks: []\n",
		"both meshes": "mesh: {file: a.stl, box: {min: [0,0,0], max: [1,1,1]}}\n",
		"flat box":    "mesh: {box: {min: [0,0,0], max: [1,0,1]}}\n",
		"bad mode":    "mesh: {file: a.stl}\nclicks: [{mode: pin, origin: [0,0,0], direction: [1,0,0]}]\n",
		"zero ray":    "mesh: {file: a.stl}\nclicks: [{mode: fixed, origin: [0,0,0], direction: [0,0,0]}]\n",
		"broken yaml": "mesh: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), ".")
			assert.Error(t, err)
		})
	}
}

func TestLoad_RelativeMesh(t *testing.T) {
	dir := t.TempDir()
	stl, err := mesh.Box(domain.V(0, 0, 0), domain.V(1, 1, 1)).Encode()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cube.stl"), stl, 0o644))
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mesh: {file: cube.stl}\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	data, err := s.MeshBytes()
	require.NoError(t, err)
	assert.Equal(t, stl, data)
}

type fakeClicker struct {
	modes []domain.Mode
	fail  int
	calls int
}

func (f *fakeClicker) SetMode(m domain.Mode) { f.modes = append(f.modes, m) }

func (f *fakeClicker) Click(origin, direction domain.Vec3) (domain.HitResult, domain.MarkerID, error) {
	f.calls++
	if f.calls == f.fail {
		return domain.Miss(), 0, errors.New("renderer gone")
	}
	return domain.SurfaceHit(origin, direction.Neg(), 1), domain.MarkerID(f.calls), nil
}

func TestPlay(t *testing.T) {
	s, err := Parse([]byte(cantilever), ".")
	require.NoError(t, err)

	c := &fakeClicker{}
	out, err := s.Play(c)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []domain.Mode{domain.ModeFixed, domain.ModeLoad}, c.modes)
	assert.Equal(t, domain.MarkerID(2), out[1].Created)

	out, err = s.Play(&fakeClicker{fail: 2})
	assert.ErrorContains(t, err, "clicks[1]")
	assert.Len(t, out, 1)
}
