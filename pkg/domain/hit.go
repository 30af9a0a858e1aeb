package domain

import "fmt"

// HitKind discriminates HitResult.
type HitKind int

const (
	HitMiss HitKind = iota
	HitMarker
	HitSurface
)

func (k HitKind) String() string {
	switch k {
	case HitMarker:
		return "marker"
	case HitSurface:
		return "surface"
	default:
		return "miss"
	}
}

// HitResult is the outcome of a pointer ray test.
// Only the fields belonging to Kind are meaningful.
type HitResult struct {
	Kind     HitKind
	MarkerID MarkerID // HitMarker
	Point    Vec3     // HitSurface
	Normal   Vec3     // HitSurface, world space, outward
	Distance float64  // HitMarker, HitSurface
}

// Miss returns the empty hit.
func Miss() HitResult {
	return HitResult{Kind: HitMiss}
}

// MarkerHit returns a hit on the marker with the given id.
func MarkerHit(id MarkerID, distance float64) HitResult {
	return HitResult{Kind: HitMarker, MarkerID: id, Distance: distance}
}

// SurfaceHit returns a hit on the base surface.
func SurfaceHit(point, normal Vec3, distance float64) HitResult {
	return HitResult{Kind: HitSurface, Point: point, Normal: normal, Distance: distance}
}

func (h HitResult) String() string {
	switch h.Kind {
	case HitMarker:
		return fmt.Sprintf("marker(%s)", h.MarkerID)
	case HitSurface:
		return fmt.Sprintf("surface(%.3f,%.3f,%.3f)", h.Point.X, h.Point.Y, h.Point.Z)
	default:
		return "miss"
	}
}
