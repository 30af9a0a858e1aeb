package devserver

import (
	"errors"
	"fmt"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/wire"
)

// Bounds accepted by the service.
const (
	MinVolumeFraction = 0.05
	MaxVolumeFraction = 0.95
	MinElements       = domain.MinElements
	MaxElements       = 200
	MinPenal          = 1.0
	MaxPenal          = 5.0
	MinRmin           = 1.0
	MaxRmin           = 5.0
	MinIterations     = 1
	MaxIterations     = 2000
	MinTolx           = 0.0001
	MaxTolx           = 0.1
)

// ValidateParams checks params against the service bounds and reports every
// violation together.
func ValidateParams(p wire.Params) error {
	var errs []error
	if len(p.FixedSupports) == 0 {
		errs = append(errs, domain.ErrNoFixedSupports)
	}
	if len(p.LoadVectors) == 0 {
		errs = append(errs, domain.ErrNoLoadVectors)
	}
	for i, f := range p.FixedSupports {
		if !f.Position.IsFinite() || !f.Normal.IsFinite() {
			errs = append(errs, fmt.Errorf("%w: fixed_supports[%d] has non-finite coordinates", domain.ErrInvalidMarker, i))
		}
	}
	for i, l := range p.LoadVectors {
		if !l.Position.IsFinite() || !l.Direction.IsFinite() {
			errs = append(errs, fmt.Errorf("%w: load_vectors[%d] has non-finite coordinates", domain.ErrInvalidMarker, i))
		}
	}

	var bounds []error
	checkFloat := func(name string, v, lo, hi float64) {
		if !(v >= lo && v <= hi) {
			bounds = append(bounds, fmt.Errorf("%s must be in [%g, %g], got %g", name, lo, hi, v))
		}
	}
	checkInt := func(name string, v, lo, hi int) {
		if v < lo || v > hi {
			bounds = append(bounds, fmt.Errorf("%s must be in [%d, %d], got %d", name, lo, hi, v))
		}
	}
	checkFloat("volume_fraction", p.VolumeFraction, MinVolumeFraction, MaxVolumeFraction)
	checkInt("nelx", p.Nelx, MinElements, MaxElements)
	checkInt("nely", p.Nely, MinElements, MaxElements)
	checkInt("nelz", p.Nelz, MinElements, MaxElements)
	checkFloat("penal", p.Penal, MinPenal, MaxPenal)
	checkFloat("rmin", p.Rmin, MinRmin, MaxRmin)
	checkInt("max_iterations", p.MaxIterations, MinIterations, MaxIterations)
	checkFloat("tolx", p.Tolx, MinTolx, MaxTolx)
	if len(bounds) > 0 {
		errs = append(errs, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(bounds...)))
	}
	return errors.Join(errs...)
}

// IsValidationError reports whether err came from ValidateParams or from
// decoding the request.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrInvalidConfig) ||
		errors.Is(err, domain.ErrInvalidMarker) ||
		errors.Is(err, domain.ErrNoFixedSupports) ||
		errors.Is(err, domain.ErrNoLoadVectors) ||
		errors.Is(err, domain.ErrNoMesh) ||
		errors.Is(err, ErrBadRequest)
}
