// Package binding maps pointer picks on the 3D view to marker entities and
// keeps every live marker paired with exactly one renderer glyph.
package binding

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/geometry"
	"github.com/aretw0/abyss/pkg/markers"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/aretw0/abyss/pkg/ports"
)

// ErrDisposed is returned when the layer is used after DisposeAll.
var ErrDisposed = errors.New("binding layer disposed")

// Glyph dimensions for a mesh normalised to mesh.TargetSize.
const (
	DefaultGlyphLength = 0.3
	DefaultGlyphRadius = 0.05
)

// Surface is the base solid that clicks land on.
type Surface interface {
	Intersect(r geometry.Ray) (geometry.Hit, bool)
	CharacteristicSize() float64
}

// Metrics receives live counts after every change to the table.
type Metrics interface {
	SetMarkerCounts(fixed, load, handles int)
}

type entry struct {
	handle ports.Handle
	kind   domain.MarkerKind
	volume geometry.Capsule
}

// Layer owns the arena of marker glyphs. Safe for concurrent use.
type Layer struct {
	mu       sync.Mutex
	store    *markers.Store
	renderer ports.Renderer
	surface  Surface
	entries  map[domain.MarkerID]entry
	byHandle map[ports.Handle]domain.MarkerID
	disposed bool

	glyphLength float64
	glyphRadius float64
	magnitude   float64

	logger  *slog.Logger
	metrics Metrics
}

// Option configures the Layer.
type Option func(*Layer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		l.logger = logger
	}
}

// WithGlyphSize sets glyph length and radius for a mesh of mesh.TargetSize.
// Glyphs scale with the characteristic size of the actual surface.
func WithGlyphSize(length, radius float64) Option {
	return func(l *Layer) {
		l.glyphLength = length
		l.glyphRadius = radius
	}
}

// WithLoadMagnitude sets the magnitude given to load vectors created by clicks.
func WithLoadMagnitude(m float64) Option {
	return func(l *Layer) {
		l.magnitude = m
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(l *Layer) {
		l.metrics = m
	}
}

// New creates a layer over the store that draws through the renderer.
func New(store *markers.Store, renderer ports.Renderer, opts ...Option) *Layer {
	l := &Layer{
		store:       store,
		renderer:    renderer,
		entries:     make(map[domain.MarkerID]entry),
		byHandle:    make(map[ports.Handle]domain.MarkerID),
		glyphLength: DefaultGlyphLength,
		glyphRadius: DefaultGlyphRadius,
		magnitude:   domain.DefaultMagnitude,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetSurface installs a new base surface. Markers placed on the previous
// surface are cleared.
func (l *Layer) SetSurface(s Surface) error {
	err := l.ClearAllMarkers()
	l.mu.Lock()
	l.surface = s
	l.mu.Unlock()
	return err
}

// Surface returns the current base surface, or nil.
func (l *Layer) Surface() Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.surface
}

// HitTest resolves a pick ray. Marker glyphs take priority over the surface:
// if any glyph is hit, the closest glyph wins even when the surface is nearer.
func (l *Layer) HitTest(origin, direction domain.Vec3) domain.HitResult {
	r := geometry.NewRay(origin, direction)
	if !r.Valid() {
		return domain.Miss()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	best := math.Inf(1)
	var bestID domain.MarkerID
	found := false
	for id, e := range l.entries {
		t, ok := geometry.IntersectCapsule(r, e.volume)
		if !ok {
			continue
		}
		// Ties go to the lower id so results do not depend on map order.
		if t < best || (t == best && id < bestID) {
			best, bestID, found = t, id, true
		}
	}
	if found {
		return domain.MarkerHit(bestID, best)
	}

	if l.surface == nil {
		return domain.Miss()
	}
	hit, ok := l.surface.Intersect(r)
	if !ok {
		return domain.Miss()
	}
	return domain.SurfaceHit(hit.Point, hit.Normal, hit.Distance)
}

// HandleSurfaceClick creates a marker of the current mode at the clicked point
// and draws its glyph. Fixed supports point along the surface normal; load
// vectors push into the surface. If the glyph cannot be created the marker is
// removed again and the renderer error is returned.
func (l *Layer) HandleSurfaceClick(point, normal domain.Vec3) (domain.MarkerID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return 0, ErrDisposed
	}

	n := normal.Normalize()
	length, radius := l.glyphDims()

	var (
		id    domain.MarkerID
		glyph ports.Glyph
	)
	switch l.store.Mode() {
	case domain.ModeLoad:
		dir := n.Neg()
		id = l.store.AddLoadVector(point, dir, l.magnitude)
		glyph = ports.Glyph{
			Kind:   ports.GlyphArrow,
			Marker: id,
			Origin: point.Sub(dir.Scale(length)),
			Axis:   dir,
			Length: length,
			Radius: radius,
		}
	default:
		id = l.store.AddFixedSupport(point, n)
		glyph = ports.Glyph{
			Kind:   ports.GlyphAnchor,
			Marker: id,
			Origin: point,
			Axis:   n,
			Length: length,
			Radius: radius,
		}
	}

	h, err := l.renderer.CreateGlyph(glyph)
	if err != nil {
		l.store.Remove(id)
		l.logger.Error("Glyph creation failed, marker rolled back", "marker_id", id, "error", err)
		return 0, fmt.Errorf("failed to create glyph for marker %s: %w", id, err)
	}

	kind := domain.KindFixedSupport
	if glyph.Kind == ports.GlyphArrow {
		kind = domain.KindLoadVector
	}
	l.entries[id] = entry{
		handle: h,
		kind:   kind,
		volume: geometry.Capsule{A: glyph.Origin, B: glyph.Tip(), Radius: radius},
	}
	l.byHandle[h] = id
	l.logger.Debug("Marker bound", "marker_id", id, "handle", h, "kind", kind)
	l.reportLocked()
	return id, nil
}

// HandleMarkerClick removes the marker that owns the handle and destroys its
// glyph. A stale or unknown handle is a no-op. It reports whether a marker was
// removed.
func (l *Layer) HandleMarkerClick(h ports.Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byHandle[h]
	if !ok {
		return false
	}
	l.store.Remove(id)
	if err := l.destroy(id); err != nil {
		l.logger.Warn("Glyph teardown failed", "marker_id", id, "handle", h, "error", err)
	}
	l.reportLocked()
	return true
}

// RemoveMarker removes a marker by id through the same path as a marker click.
func (l *Layer) RemoveMarker(id domain.MarkerID) bool {
	h, ok := l.HandleFor(id)
	if !ok {
		return false
	}
	return l.HandleMarkerClick(h)
}

// ClearAllMarkers destroys every glyph, empties the table and clears the store.
// The table is always emptied; teardown failures are joined and returned.
func (l *Layer) ClearAllMarkers() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.destroyAllLocked()
	l.store.ClearAll()
	l.reportLocked()
	return err
}

// DisposeAll releases every glyph when the hosting view is torn down. It keeps
// going past individual failures and returns them joined. The layer rejects
// new markers afterwards. Calling it again is a no-op.
func (l *Layer) DisposeAll() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Join(err, fmt.Errorf("panic during dispose: %v", r))
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return nil
	}
	l.disposed = true
	err = l.destroyAllLocked()
	l.reportLocked()
	if err != nil {
		l.logger.Warn("Dispose finished with errors", "error", err)
	}
	return err
}

// HandleFor returns the glyph handle bound to a marker.
func (l *Layer) HandleFor(id domain.MarkerID) (ports.Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e.handle, ok
}

// MarkerFor returns the marker that owns a glyph handle.
func (l *Layer) MarkerFor(h ports.Handle) (domain.MarkerID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byHandle[h]
	return id, ok
}

// Len returns the number of bound glyphs.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Layer) destroyAllLocked() error {
	var errs []error
	for id := range l.entries {
		if err := l.destroy(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// destroy is the only code path that releases a glyph. The table entry is
// removed before the renderer is asked to tear down, so a failing renderer
// never leaves a dangling binding.
func (l *Layer) destroy(id domain.MarkerID) (err error) {
	e, ok := l.entries[id]
	if !ok {
		return nil
	}
	delete(l.entries, id)
	delete(l.byHandle, e.handle)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("destroy glyph %d for marker %s: panic: %v", e.handle, id, r)
		}
	}()
	if derr := l.renderer.DestroyGlyph(e.handle); derr != nil {
		return fmt.Errorf("destroy glyph %d for marker %s: %w", e.handle, id, derr)
	}
	return nil
}

func (l *Layer) glyphDims() (length, radius float64) {
	scale := 1.0
	if l.surface != nil {
		if size := l.surface.CharacteristicSize(); size > 0 && !math.IsInf(size, 0) {
			scale = size / mesh.TargetSize
		}
	}
	return l.glyphLength * scale, l.glyphRadius * scale
}

func (l *Layer) reportLocked() {
	if l.metrics == nil {
		return
	}
	fixed, load := 0, 0
	for _, e := range l.entries {
		if e.kind == domain.KindLoadVector {
			load++
		} else {
			fixed++
		}
	}
	l.metrics.SetMarkerCounts(fixed, load, len(l.entries))
}
