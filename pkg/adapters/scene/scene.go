// Package scene provides a headless scene graph: an in-memory Renderer and
// ResultSink used by the CLI and by tests.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/ports"
)

// ErrUnknownHandle is returned when destroying a handle the scene does not own.
var ErrUnknownHandle = errors.New("unknown glyph handle")

// Scene keeps glyphs and received results in memory. Safe for concurrent use.
type Scene struct {
	mu        sync.Mutex
	next      ports.Handle
	glyphs    map[ports.Handle]ports.Glyph
	results   [][]byte
	created   int
	destroyed int
	logger    *slog.Logger

	// CreateHook and DestroyHook let callers inject failures.
	CreateHook  func(g ports.Glyph) error
	DestroyHook func(h ports.Handle) error
}

var (
	_ ports.Renderer   = (*Scene)(nil)
	_ ports.ResultSink = (*Scene)(nil)
)

// Option configures the Scene.
type Option func(*Scene)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scene) {
		s.logger = logger
	}
}

// New creates an empty scene.
func New(opts ...Option) *Scene {
	s := &Scene{
		glyphs: make(map[ports.Handle]ports.Glyph),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGlyph allocates a handle for the glyph.
func (s *Scene) CreateGlyph(g ports.Glyph) (ports.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateHook != nil {
		if err := s.CreateHook(g); err != nil {
			return 0, err
		}
	}
	s.next++
	h := s.next
	s.glyphs[h] = g
	s.created++
	s.logger.Debug("Glyph created", "handle", h, "kind", g.Kind, "marker_id", g.Marker)
	return h, nil
}

// DestroyGlyph releases a handle.
func (s *Scene) DestroyGlyph(h ports.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.glyphs[h]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	// The glyph is released even when the hook reports a failure, like a
	// renderer that frees GPU memory but fails to detach a listener.
	delete(s.glyphs, h)
	s.destroyed++
	if s.DestroyHook != nil {
		if err := s.DestroyHook(h); err != nil {
			return err
		}
	}
	s.logger.Debug("Glyph destroyed", "handle", h)
	return nil
}

// Glyph returns the glyph behind a live handle.
func (s *Scene) Glyph(h ports.Handle) (ports.Glyph, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.glyphs[h]
	return g, ok
}

// Handles returns the live handles in ascending order.
func (s *Scene) Handles() []ports.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.Handle, 0, len(s.glyphs))
	for h := range s.glyphs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Live returns the number of glyphs not yet destroyed.
func (s *Scene) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.glyphs)
}

// Stats returns how many glyphs were created and destroyed over the scene lifetime.
func (s *Scene) Stats() (created, destroyed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created, s.destroyed
}

// ShowResult records a copy of the result bytes.
func (s *Scene) ShowResult(stl []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, append([]byte(nil), stl...))
	s.logger.Info("Result received", "bytes", len(stl))
	return nil
}

// Results returns every result shown so far.
func (s *Scene) Results() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.results))
	copy(out, s.results)
	return out
}

// FileSink writes results to a file on disk.
type FileSink struct {
	Path string
}

var _ ports.ResultSink = FileSink{}

// ShowResult writes the bytes, creating parent directories as needed.
func (f FileSink) ShowResult(stl []byte) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, stl, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// MultiSink fans a result out to several sinks, stopping at the first failure.
type MultiSink []ports.ResultSink

// ShowResult forwards to every sink in order.
func (m MultiSink) ShowResult(stl []byte) error {
	for _, s := range m {
		if err := s.ShowResult(stl); err != nil {
			return err
		}
	}
	return nil
}
