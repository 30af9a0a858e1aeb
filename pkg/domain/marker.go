package domain

import "fmt"

// MarkerID identifies a marker. IDs are issued in strictly increasing order
// and are never reused, even after the marker is removed.
type MarkerID uint64

func (id MarkerID) String() string {
	return fmt.Sprintf("m-%d", uint64(id))
}

// MarkerKind discriminates the Marker variants.
type MarkerKind string

const (
	KindFixedSupport MarkerKind = "fixed_support"
	KindLoadVector   MarkerKind = "load_vector"
)

// DefaultMagnitude is the load magnitude used when none is specified.
const DefaultMagnitude = 1.0

// Marker is a user-placed boundary condition bound to a point on the base surface.
// The set of implementations is closed: FixedSupport and LoadVector.
type Marker interface {
	MarkerID() MarkerID
	Kind() MarkerKind
	Anchor() Vec3
	marker()
}

// FixedSupport is a clamped boundary point.
type FixedSupport struct {
	ID       MarkerID
	Position Vec3
	Normal   Vec3
}

func (f FixedSupport) MarkerID() MarkerID { return f.ID }
func (f FixedSupport) Kind() MarkerKind   { return KindFixedSupport }
func (f FixedSupport) Anchor() Vec3       { return f.Position }
func (FixedSupport) marker()              {}

// Validate checks the support can be sent to the solver.
func (f FixedSupport) Validate() error {
	if !f.Position.IsFinite() || !f.Normal.IsFinite() {
		return fmt.Errorf("%w: fixed support %s has non-finite coordinates", ErrInvalidMarker, f.ID)
	}
	return nil
}

// LoadVector is an applied force.
type LoadVector struct {
	ID        MarkerID
	Position  Vec3
	Direction Vec3
	Magnitude float64
}

func (l LoadVector) MarkerID() MarkerID { return l.ID }
func (l LoadVector) Kind() MarkerKind   { return KindLoadVector }
func (l LoadVector) Anchor() Vec3       { return l.Position }
func (LoadVector) marker()              {}

// Validate checks the load can be sent to the solver.
// Magnitude must be finite and non-negative.
func (l LoadVector) Validate() error {
	if !l.Position.IsFinite() || !l.Direction.IsFinite() {
		return fmt.Errorf("%w: load vector %s has non-finite coordinates", ErrInvalidMarker, l.ID)
	}
	if !isFinite(l.Magnitude) || l.Magnitude < 0 {
		return fmt.Errorf("%w: load vector %s has invalid magnitude %v", ErrInvalidMarker, l.ID, l.Magnitude)
	}
	return nil
}

// Mode selects which marker variant the next surface click creates.
type Mode string

const (
	ModeFixed Mode = "fixed"
	ModeLoad  Mode = "load"
)

// ParseMode converts a user supplied string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFixed, ModeLoad:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown marker mode %q (expected %q or %q)", s, ModeFixed, ModeLoad)
}
