package abyss

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/adapters/scene"
	"github.com/aretw0/abyss/pkg/binding"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/markers"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/aretw0/abyss/pkg/orchestrator"
	"github.com/aretw0/abyss/pkg/ports"
)

// Version is the release of the workbench and CLI.
var Version = "0.1.0"

// Workbench is the high-level entry point. It owns the marker store, the
// binding layer over the loaded mesh, the solver configuration and the job
// orchestrator.
type Workbench struct {
	mu        sync.Mutex
	meshBytes []byte
	surface   *mesh.Mesh
	config    domain.SolverConfig

	store    *markers.Store
	layer    *binding.Layer
	orch     *orchestrator.Orchestrator
	renderer ports.Renderer
	logger   *slog.Logger
}

type options struct {
	logger      *slog.Logger
	renderer    ports.Renderer
	sink        ports.ResultSink
	config      domain.SolverConfig
	ids         markers.IDSource
	bindingOpts []binding.Option
	orchOpts    []orchestrator.Option
}

// Option configures a Workbench.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRenderer replaces the headless scene as the glyph renderer.
func WithRenderer(r ports.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithResultSink sets where optimized meshes are delivered. By default the
// renderer receives them when it implements ports.ResultSink.
func WithResultSink(s ports.ResultSink) Option {
	return func(o *options) { o.sink = s }
}

// WithSolverConfig sets the initial solver configuration.
func WithSolverConfig(cfg domain.SolverConfig) Option {
	return func(o *options) { o.config = cfg }
}

// WithIDSource injects the marker id generator.
func WithIDSource(ids markers.IDSource) Option {
	return func(o *options) { o.ids = ids }
}

// WithBindingOptions forwards options to the binding layer.
func WithBindingOptions(opts ...binding.Option) Option {
	return func(o *options) { o.bindingOpts = append(o.bindingOpts, opts...) }
}

// WithOrchestratorOptions forwards options to the job orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(o *options) { o.orchOpts = append(o.orchOpts, opts...) }
}

// New creates a Workbench that submits jobs through transport.
func New(transport ports.Transport, opts ...Option) *Workbench {
	o := options{
		logger: logging.NewNop(),
		config: domain.DefaultSolverConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.renderer == nil {
		o.renderer = scene.New(scene.WithLogger(o.logger))
	}
	if o.sink == nil {
		if s, ok := o.renderer.(ports.ResultSink); ok {
			o.sink = s
		} else {
			o.sink = scene.New()
		}
	}

	storeOpts := []markers.Option{markers.WithLogger(o.logger)}
	if o.ids != nil {
		storeOpts = append(storeOpts, markers.WithIDSource(o.ids))
	}
	store := markers.NewStore(storeOpts...)

	return &Workbench{
		config:   o.config,
		store:    store,
		layer:    binding.New(store, o.renderer, append([]binding.Option{binding.WithLogger(o.logger)}, o.bindingOpts...)...),
		orch:     orchestrator.New(transport, o.sink, append([]orchestrator.Option{orchestrator.WithLogger(o.logger)}, o.orchOpts...)...),
		renderer: o.renderer,
		logger:   o.logger,
	}
}

// LoadMesh parses STL bytes, normalises the solid and makes it the clickable
// surface. Existing markers are cleared and the job returns to Idle.
func (w *Workbench) LoadMesh(data []byte) error {
	m, err := mesh.Parse(data)
	if err != nil {
		return err
	}
	m.Normalize()

	w.mu.Lock()
	w.meshBytes = append([]byte(nil), data...)
	w.surface = m
	w.mu.Unlock()

	w.orch.Reset()
	if err := w.layer.SetSurface(m); err != nil {
		w.logger.Warn("Failed to release markers of the previous mesh", "error", err)
	}
	w.logger.Info("Mesh loaded", "name", m.Name, "triangles", len(m.Triangles), "bytes", len(data))
	return nil
}

// Mesh returns the loaded surface, or nil.
func (w *Workbench) Mesh() *mesh.Mesh {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.surface
}

// SetMode selects which marker variant the next surface click creates.
func (w *Workbench) SetMode(mode domain.Mode) {
	w.store.SetMode(mode)
}

// Mode returns the current placement mode.
func (w *Workbench) Mode() domain.Mode {
	return w.store.Mode()
}

// Click handles a pointer ray: a hit marker is removed, a hit surface gets a
// new marker in the current mode, a miss does nothing. The hit is returned
// together with the id of a created marker.
func (w *Workbench) Click(origin, direction domain.Vec3) (domain.HitResult, domain.MarkerID, error) {
	hit := w.layer.HitTest(origin, direction)
	switch hit.Kind {
	case domain.HitMarker:
		if h, ok := w.layer.HandleFor(hit.MarkerID); ok {
			w.layer.HandleMarkerClick(h)
		}
		return hit, 0, nil
	case domain.HitSurface:
		id, err := w.layer.HandleSurfaceClick(hit.Point, hit.Normal)
		return hit, id, err
	}
	return hit, 0, nil
}

// RemoveMarker deletes a marker and its glyph. Unknown ids are ignored.
func (w *Workbench) RemoveMarker(id domain.MarkerID) bool {
	return w.layer.RemoveMarker(id)
}

// ClearMarkers removes every marker and glyph.
func (w *Workbench) ClearMarkers() error {
	return w.layer.ClearAllMarkers()
}

// Markers returns a snapshot of the placed markers.
func (w *Workbench) Markers() markers.Snapshot {
	return w.store.Snapshot()
}

// SubscribeMarkers streams a snapshot after every marker mutation.
func (w *Workbench) SubscribeMarkers() (<-chan markers.Snapshot, func()) {
	return w.store.Subscribe()
}

// Config returns the solver configuration.
func (w *Workbench) Config() domain.SolverConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

// SetConfig replaces the solver configuration. It is validated when a run
// is requested.
func (w *Workbench) SetConfig(cfg domain.SolverConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

// Run submits the current markers, configuration and mesh. Validation
// failures and rejected submits are returned and recorded on the job.
func (w *Workbench) Run(ctx context.Context) error {
	w.mu.Lock()
	req := orchestrator.Request{
		FixedSupports: w.store.FixedSupports(),
		LoadVectors:   w.store.LoadVectors(),
		Config:        w.config,
		Mesh:          w.meshBytes,
	}
	w.mu.Unlock()

	if err := w.orch.Submit(ctx, req); err != nil {
		return fmt.Errorf("run rejected: %w", err)
	}
	return nil
}

// Wait blocks until the current run settles.
func (w *Workbench) Wait(ctx context.Context) (domain.Job, error) {
	return w.orch.Wait(ctx)
}

// Cancel stops the active run. It is a no-op when nothing is running.
func (w *Workbench) Cancel() {
	w.orch.Cancel()
}

// ClearResults returns the job to Idle.
func (w *Workbench) ClearResults() {
	w.orch.Reset()
}

// Job returns a copy of the current job.
func (w *Workbench) Job() domain.Job {
	return w.orch.Job()
}

// SubscribeJob streams a job copy after every change.
func (w *Workbench) SubscribeJob() (<-chan domain.Job, func()) {
	return w.orch.Subscribe()
}

// Close cancels any active run and releases every glyph. Markers stay in the
// store; further clicks fail with binding.ErrDisposed.
func (w *Workbench) Close() error {
	w.orch.Close()
	return w.layer.DisposeAll()
}
