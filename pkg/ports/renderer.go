package ports

import (
	"github.com/aretw0/abyss/pkg/domain"
)

// Handle is an opaque reference to a renderer-owned glyph.
// The zero Handle is never issued.
type Handle uint64

// GlyphKind selects the visual shape of a marker glyph.
type GlyphKind string

const (
	GlyphAnchor GlyphKind = "anchor"
	GlyphArrow  GlyphKind = "arrow"
)

// Glyph describes the visual representation of one marker.
// The glyph body spans Origin to Origin+Axis*Length.
type Glyph struct {
	Kind   GlyphKind
	Marker domain.MarkerID
	Origin domain.Vec3
	Axis   domain.Vec3
	Length float64
	Radius float64
}

// Tip returns the far end of the glyph body.
func (g Glyph) Tip() domain.Vec3 {
	return g.Origin.Add(g.Axis.Scale(g.Length))
}

// Renderer owns the visual resources backing marker glyphs.
type Renderer interface {
	// CreateGlyph allocates the visual resources for a glyph.
	CreateGlyph(g Glyph) (Handle, error)

	// DestroyGlyph releases every resource held by the handle.
	// Destroying an unknown handle returns an error.
	DestroyGlyph(h Handle) error
}

// ResultSink displays the optimized mesh of a completed job.
type ResultSink interface {
	ShowResult(stl []byte) error
}
