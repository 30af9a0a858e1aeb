package abyss_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/abyss"
	httpAdapter "github.com/aretw0/abyss/pkg/adapters/http"
	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/adapters/scene"
	"github.com/aretw0/abyss/pkg/binding"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beamSTL(t *testing.T) []byte {
	t.Helper()
	data, err := mesh.Box(domain.V(-1.5, 0, -0.5), domain.V(1.5, 1, 0.5)).Encode()
	require.NoError(t, err)
	return data
}

var (
	fromLeft  = [2]domain.Vec3{domain.V(-5, 0.3, 0.1), domain.V(1, 0, 0)}
	fromRight = [2]domain.Vec3{domain.V(5, 0.6, 0.1), domain.V(-1, 0, 0)}
	skyward   = [2]domain.Vec3{domain.V(0, 5, 0), domain.V(0, 1, 0)}
)

func newDevService(t *testing.T) string {
	t.Helper()
	svc := devserver.New(memory.NewStore())
	srv := httptest.NewServer(httpAdapter.NewHandler(svc, httpAdapter.WithPollInterval(5*time.Millisecond)))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(context.Background())
	})
	return srv.URL
}

func smallConfig() domain.SolverConfig {
	cfg := domain.DefaultSolverConfig()
	cfg.Nelx, cfg.Nely, cfg.Nelz = 8, 4, 4
	return cfg
}

func TestWorkbench_Clicks(t *testing.T) {
	sc := scene.New()
	wb := abyss.New(httpAdapter.NewClient("http://unused"), abyss.WithRenderer(sc))
	t.Cleanup(func() { _ = wb.Close() })
	require.NoError(t, wb.LoadMesh(beamSTL(t)))

	hit, id, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)
	assert.Equal(t, domain.HitSurface, hit.Kind)
	assert.InDelta(t, -1.5, hit.Point.X, 1e-9)
	assert.Equal(t, domain.V(-1, 0, 0), hit.Normal)
	assert.NotZero(t, id)
	assert.Equal(t, 1, sc.Live())

	wb.SetMode(domain.ModeLoad)
	_, loadID, err := wb.Click(fromRight[0], fromRight[1])
	require.NoError(t, err)
	assert.Greater(t, loadID, id)

	snap := wb.Markers()
	require.Len(t, snap.FixedSupports, 1)
	require.Len(t, snap.LoadVectors, 1)
	assert.Equal(t, domain.V(-1, 0, 0), snap.LoadVectors[0].Direction)
	assert.Equal(t, domain.DefaultMagnitude, snap.LoadVectors[0].Magnitude)

	// The same ray now hits the glyph in front of the surface.
	hit, _, err = wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)
	assert.Equal(t, domain.HitMarker, hit.Kind)
	assert.Equal(t, id, hit.MarkerID)
	assert.Len(t, wb.Markers().FixedSupports, 0)
	assert.Equal(t, 1, sc.Live())

	hit, _, err = wb.Click(skyward[0], skyward[1])
	require.NoError(t, err)
	assert.Equal(t, domain.HitMiss, hit.Kind)
	assert.Equal(t, 1, wb.Markers().Len())
}

func TestWorkbench_MarkerBehindSurfaceWinsHit(t *testing.T) {
	sc := scene.New()
	wb := abyss.New(httpAdapter.NewClient("http://unused"), abyss.WithRenderer(sc))
	t.Cleanup(func() { _ = wb.Close() })
	require.NoError(t, wb.LoadMesh(beamSTL(t)))

	_, fixedID, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)

	// Fired from the opposite side along the same line: the near face is
	// closer, but the glyph on the far face still takes the click.
	wb.SetMode(domain.ModeLoad)
	hit, _, err := wb.Click(domain.V(5, 0.3, 0.1), domain.V(-1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.HitMarker, hit.Kind)
	assert.Equal(t, fixedID, hit.MarkerID)
	assert.Equal(t, 0, wb.Markers().Len())
	assert.Equal(t, 0, sc.Live())
}

func TestWorkbench_LoadMeshClearsMarkers(t *testing.T) {
	sc := scene.New()
	wb := abyss.New(httpAdapter.NewClient("http://unused"), abyss.WithRenderer(sc))
	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	_, _, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)

	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	assert.Equal(t, 0, wb.Markers().Len())
	assert.Equal(t, 0, sc.Live())
	assert.Equal(t, domain.JobIdle, wb.Job().State)

	assert.Error(t, wb.LoadMesh([]byte("garbage")))
}

func TestWorkbench_RunValidation(t *testing.T) {
	wb := abyss.New(httpAdapter.NewClient("http://127.0.0.1:1"))
	t.Cleanup(func() { _ = wb.Close() })

	err := wb.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoMesh)
	assert.Equal(t, domain.JobError, wb.Job().State)
	assert.Equal(t, domain.FailureValidation, wb.Job().Failure)

	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	_, _, err = wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)
	err = wb.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoLoadVectors)
}

func TestWorkbench_RunAgainstDevService(t *testing.T) {
	url := newDevService(t)
	sc := scene.New()
	wb := abyss.New(httpAdapter.NewClient(url),
		abyss.WithRenderer(sc),
		abyss.WithSolverConfig(smallConfig()),
	)
	t.Cleanup(func() { _ = wb.Close() })

	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	_, _, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)
	wb.SetMode(domain.ModeLoad)
	_, _, err = wb.Click(fromRight[0], fromRight[1])
	require.NoError(t, err)

	updates, cancel := wb.SubscribeJob()
	defer cancel()

	require.NoError(t, wb.Run(context.Background()))
	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	job, err := wb.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.JobComplete, job.State, job.Error)
	require.NotNil(t, job.Progress)
	assert.Greater(t, job.Progress.Iteration, 0)
	require.Len(t, sc.Results(), 1)
	_, err = mesh.Parse(sc.Results()[0])
	assert.NoError(t, err)

	var states []domain.JobState
	for len(updates) > 0 {
		states = append(states, (<-updates).State)
	}
	assert.Contains(t, states, domain.JobRunning)

	wb.ClearResults()
	assert.Equal(t, domain.JobIdle, wb.Job().State)
}

func TestWorkbench_CancelRun(t *testing.T) {
	url := newDevServiceWithDelay(t, 50*time.Millisecond)
	wb := abyss.New(httpAdapter.NewClient(url), abyss.WithSolverConfig(smallConfig()))
	t.Cleanup(func() { _ = wb.Close() })

	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	_, _, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)
	wb.SetMode(domain.ModeLoad)
	_, _, err = wb.Click(fromRight[0], fromRight[1])
	require.NoError(t, err)

	require.NoError(t, wb.Run(context.Background()))
	wb.Cancel()
	wb.Cancel()

	job, err := wb.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, job.State)
	assert.Equal(t, domain.MsgCancelled, job.Error)
}

func newDevServiceWithDelay(t *testing.T, delay time.Duration) string {
	t.Helper()
	svc := devserver.New(memory.NewStore(), devserver.WithSolver(devserver.SyntheticSolver{StepDelay: delay}))
	srv := httptest.NewServer(httpAdapter.NewHandler(svc, httpAdapter.WithPollInterval(5*time.Millisecond)))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Shutdown(context.Background())
	})
	return srv.URL
}

func TestWorkbench_CloseDisposesGlyphs(t *testing.T) {
	sc := scene.New()
	wb := abyss.New(httpAdapter.NewClient("http://unused"), abyss.WithRenderer(sc))
	require.NoError(t, wb.LoadMesh(beamSTL(t)))
	_, _, err := wb.Click(fromLeft[0], fromLeft[1])
	require.NoError(t, err)

	require.NoError(t, wb.Close())
	assert.Equal(t, 0, sc.Live())
	assert.Equal(t, 1, wb.Markers().Len())

	_, _, err = wb.Click(fromRight[0], fromRight[1])
	assert.ErrorIs(t, err, binding.ErrDisposed)
}
