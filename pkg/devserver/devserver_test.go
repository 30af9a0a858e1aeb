package devserver_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beamSTL(t *testing.T) []byte {
	t.Helper()
	data, err := mesh.Box(domain.V(-1.5, 0, -0.5), domain.V(1.5, 1, 0.5)).Encode()
	require.NoError(t, err)
	return data
}

func beamParams() wire.Params {
	cfg := domain.DefaultSolverConfig()
	cfg.Nelx, cfg.Nely, cfg.Nelz = 8, 4, 4
	p := wire.NewParams(nil, nil, cfg)
	p.FixedSupports = append(p.FixedSupports, wire.FixedSupportParam{
		Position: domain.V(-1.5, 0.5, 0), Normal: domain.V(-1, 0, 0),
	})
	p.LoadVectors = append(p.LoadVectors, wire.LoadVectorParam{
		Position: domain.V(1.5, 0.5, 0), Direction: domain.V(0, -1, 0), Magnitude: 1,
	})
	return p
}

func waitTerminal(t *testing.T, svc *devserver.Service, id string) *ports.JobRecord {
	t.Helper()
	var rec *ports.JobRecord
	require.Eventually(t, func() bool {
		r, err := svc.Get(context.Background(), id)
		if err != nil {
			return false
		}
		rec = r
		return r.Status != ports.StatusRunning
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestValidateParams(t *testing.T) {
	t.Run("Defaults Pass", func(t *testing.T) {
		assert.NoError(t, devserver.ValidateParams(beamParams()))
	})

	t.Run("Missing Markers", func(t *testing.T) {
		p := beamParams()
		p.FixedSupports = nil
		p.LoadVectors = nil
		err := devserver.ValidateParams(p)
		assert.ErrorIs(t, err, domain.ErrNoFixedSupports)
		assert.ErrorIs(t, err, domain.ErrNoLoadVectors)
		assert.True(t, devserver.IsValidationError(err))
	})

	t.Run("Bounds Reported Together", func(t *testing.T) {
		p := beamParams()
		p.VolumeFraction = 0.99
		p.Nelx = 3
		p.MaxIterations = 5000
		err := devserver.ValidateParams(p)
		require.ErrorIs(t, err, domain.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "volume_fraction")
		assert.Contains(t, err.Error(), "nelx")
		assert.Contains(t, err.Error(), "max_iterations")
	})

	t.Run("Tolx Bounds", func(t *testing.T) {
		p := beamParams()
		p.Tolx = 0
		assert.ErrorIs(t, devserver.ValidateParams(p), domain.ErrInvalidConfig)
	})

	t.Run("Unrelated Error", func(t *testing.T) {
		assert.False(t, devserver.IsValidationError(errors.New("boom")))
	})
}

func TestSyntheticSolver(t *testing.T) {
	p := beamParams()
	var snaps []domain.ProgressSnapshot
	out, err := devserver.SyntheticSolver{}.Solve(context.Background(), beamSTL(t), p, func(s domain.ProgressSnapshot) {
		snaps = append(snaps, s)
	})
	require.NoError(t, err)
	require.NotEmpty(t, snaps)

	for i, s := range snaps {
		assert.Equal(t, i+1, s.Iteration)
		assert.Equal(t, p.MaxIterations, s.MaxIterations)
	}
	last := snaps[len(snaps)-1]
	assert.LessOrEqual(t, last.Change, p.Tolx)
	assert.InDelta(t, p.VolumeFraction, last.VolumeFraction, 0.05)

	m, err := mesh.Parse(out)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Triangles)
}

func TestSyntheticSolver_IterationBudget(t *testing.T) {
	p := beamParams()
	p.MaxIterations = 2
	count := 0
	_, err := devserver.SyntheticSolver{}.Solve(context.Background(), beamSTL(t), p, func(domain.ProgressSnapshot) {
		count++
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyntheticSolver_Errors(t *testing.T) {
	t.Run("Invalid STL", func(t *testing.T) {
		_, err := devserver.SyntheticSolver{}.Solve(context.Background(), []byte("not a mesh"), beamParams(), nil)
		assert.Error(t, err)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := devserver.SyntheticSolver{}.Solve(ctx, beamSTL(t), beamParams(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestService_Lifecycle(t *testing.T) {
	svc := devserver.New(memory.NewStore())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	id, err := svc.Submit(context.Background(), beamSTL(t), beamParams())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec := waitTerminal(t, svc, id)
	assert.Equal(t, ports.StatusComplete, rec.Status)

	_, snaps, err := svc.Progress(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, rec.ProgressCount)

	_, tail, err := svc.Progress(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Len(t, tail, rec.ProgressCount-1)

	result, err := svc.Result(context.Background(), id)
	require.NoError(t, err)
	_, err = mesh.Parse(result)
	assert.NoError(t, err)
}

func TestService_Rejections(t *testing.T) {
	svc := devserver.New(memory.NewStore())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	_, err := svc.Submit(context.Background(), nil, beamParams())
	assert.ErrorIs(t, err, domain.ErrNoMesh)

	p := beamParams()
	p.LoadVectors = nil
	_, err = svc.Submit(context.Background(), beamSTL(t), p)
	assert.ErrorIs(t, err, domain.ErrNoLoadVectors)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

type solverFunc func(ctx context.Context, stl []byte, p wire.Params, progress devserver.ProgressFunc) ([]byte, error)

func (f solverFunc) Solve(ctx context.Context, stl []byte, p wire.Params, progress devserver.ProgressFunc) ([]byte, error) {
	return f(ctx, stl, p, progress)
}

type countingMetrics struct {
	started  int
	finished map[ports.JobStatus]int
}

func (m *countingMetrics) JobStarted() { m.started++ }
func (m *countingMetrics) JobFinished(status ports.JobStatus, _ time.Duration) {
	m.finished[status]++
}

func TestService_SolverFailure(t *testing.T) {
	metrics := &countingMetrics{finished: map[ports.JobStatus]int{}}
	svc := devserver.New(memory.NewStore(),
		devserver.WithMetrics(metrics),
		devserver.WithSolver(solverFunc(func(context.Context, []byte, wire.Params, devserver.ProgressFunc) ([]byte, error) {
			return nil, errors.New("matrix is singular")
		})),
	)

	id, err := svc.Submit(context.Background(), beamSTL(t), beamParams())
	require.NoError(t, err)

	rec := waitTerminal(t, svc, id)
	assert.Equal(t, ports.StatusFailed, rec.Status)
	assert.Equal(t, "matrix is singular", rec.ErrorMessage)

	_, err = svc.Result(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrResultNotReady)

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, 1, metrics.started)
	assert.Equal(t, 1, metrics.finished[ports.StatusFailed])
}

func TestService_ShutdownCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	svc := devserver.New(memory.NewStore(),
		devserver.WithSolver(solverFunc(func(ctx context.Context, _ []byte, _ wire.Params, _ devserver.ProgressFunc) ([]byte, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})),
	)

	id, err := svc.Submit(context.Background(), beamSTL(t), beamParams())
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	rec, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusFailed, rec.Status)

	_, err = svc.Submit(context.Background(), beamSTL(t), beamParams())
	assert.ErrorIs(t, err, devserver.ErrShuttingDown)
}

func TestService_JobTimeout(t *testing.T) {
	svc := devserver.New(memory.NewStore(),
		devserver.WithJobTimeout(20*time.Millisecond),
		devserver.WithSolver(solverFunc(func(ctx context.Context, _ []byte, _ wire.Params, _ devserver.ProgressFunc) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})),
	)
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	id, err := svc.Submit(context.Background(), beamSTL(t), beamParams())
	require.NoError(t, err)
	rec := waitTerminal(t, svc, id)
	assert.Equal(t, ports.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "deadline exceeded")
}
