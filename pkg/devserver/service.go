package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
	"github.com/google/uuid"
)

// ErrBadRequest is returned for malformed submissions.
var ErrBadRequest = errors.New("bad request")

// ErrShuttingDown is returned by Submit after Shutdown was called.
var ErrShuttingDown = errors.New("service is shutting down")

// Metrics receives job lifecycle counts.
type Metrics interface {
	JobStarted()
	JobFinished(status ports.JobStatus, elapsed time.Duration)
}

// Service owns the job lifecycle of the development solver.
type Service struct {
	store   ports.JobStore
	solver  Solver
	logger  *slog.Logger
	metrics Metrics
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithSolver replaces the default synthetic solver.
func WithSolver(solver Solver) Option {
	return func(s *Service) { s.solver = solver }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithJobTimeout bounds every solver run. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// New creates a Service backed by store.
func New(store ports.JobStore, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		store:   store,
		solver:  SyntheticSolver{},
		logger:  logging.NewNop(),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the request, registers a job and starts solving it in the
// background. It returns the new job id.
func (s *Service) Submit(ctx context.Context, stl []byte, p wire.Params) (string, error) {
	if len(stl) == 0 {
		return "", domain.ErrNoMesh
	}
	if err := ValidateParams(p); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShuttingDown
	}

	id := uuid.NewString()
	if err := s.store.Create(ctx, id); err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	if s.metrics != nil {
		s.metrics.JobStarted()
	}
	s.logger.Info("Job submitted", "job_id", id, "bytes", len(stl),
		"grid", fmt.Sprintf("%dx%dx%d", p.Nelx, p.Nely, p.Nelz))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(id, stl, p)
	}()
	return id, nil
}

func (s *Service) run(id string, stl []byte, p wire.Params) {
	ctx := s.baseCtx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.solver.Solve(ctx, stl, p, func(snap domain.ProgressSnapshot) {
		if err := s.store.AppendProgress(ctx, id, snap); err != nil {
			s.logger.Warn("Failed to record progress", "job_id", id, "error", err)
		}
	})

	// The job ctx may be gone; the final write must still land.
	writeCtx := context.WithoutCancel(ctx)
	status := ports.StatusComplete
	if err != nil {
		status = ports.StatusFailed
		s.logger.Error("Job failed", "job_id", id, "error", err)
		if ferr := s.store.Fail(writeCtx, id, err.Error()); ferr != nil {
			s.logger.Error("Failed to record job failure", "job_id", id, "error", ferr)
		}
	} else {
		s.logger.Info("Job complete", "job_id", id, "bytes", len(result), "elapsed", time.Since(start))
		if cerr := s.store.Complete(writeCtx, id, result); cerr != nil {
			status = ports.StatusFailed
			s.logger.Error("Failed to store result", "job_id", id, "error", cerr)
			_ = s.store.Fail(writeCtx, id, cerr.Error())
		}
	}
	if s.metrics != nil {
		s.metrics.JobFinished(status, time.Since(start))
	}
}

// Progress returns the job record and the reports recorded after offset.
// The record is read first, so a terminal status implies the returned slice
// holds every remaining report.
func (s *Service) Progress(ctx context.Context, id string, offset int) (*ports.JobRecord, []domain.ProgressSnapshot, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := s.store.ProgressSince(ctx, id, offset)
	if err != nil {
		return nil, nil, err
	}
	return rec, snaps, nil
}

// Get returns the job record.
func (s *Service) Get(ctx context.Context, id string) (*ports.JobRecord, error) {
	return s.store.Get(ctx, id)
}

// Result returns the optimized mesh of a completed job.
func (s *Service) Result(ctx context.Context, id string) ([]byte, error) {
	return s.store.Result(ctx, id)
}

// Shutdown stops accepting jobs, cancels running solves and waits for them to
// record their outcome or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
