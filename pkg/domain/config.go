package domain

import (
	"errors"
	"fmt"
)

// SolverConfig holds the parameters forwarded to the optimization service.
type SolverConfig struct {
	Nelx           int     `json:"nelx" yaml:"nelx" mapstructure:"nelx"`
	Nely           int     `json:"nely" yaml:"nely" mapstructure:"nely"`
	Nelz           int     `json:"nelz" yaml:"nelz" mapstructure:"nelz"`
	Penal          float64 `json:"penal" yaml:"penal" mapstructure:"penal"`
	Rmin           float64 `json:"rmin" yaml:"rmin" mapstructure:"rmin"`
	VolumeFraction float64 `json:"volume_fraction" yaml:"volume_fraction" mapstructure:"volume_fraction"`
	MaxIterations  int     `json:"max_iterations" yaml:"max_iterations" mapstructure:"max_iterations"`
	Tolx           float64 `json:"tolx" yaml:"tolx" mapstructure:"tolx"`
}

// MinElements is the smallest grid resolution accepted along any axis.
const MinElements = 4

// DefaultSolverConfig returns the defaults used by the optimization service.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Nelx:           60,
		Nely:           20,
		Nelz:           10,
		Penal:          3.0,
		Rmin:           1.5,
		VolumeFraction: 0.3,
		MaxIterations:  80,
		Tolx:           0.01,
	}
}

// Validate checks the configuration against the client-side bounds.
// All violations are reported together.
func (c SolverConfig) Validate() error {
	var errs []error
	for _, axis := range []struct {
		name string
		val  int
	}{{"nelx", c.Nelx}, {"nely", c.Nely}, {"nelz", c.Nelz}} {
		if axis.val < MinElements {
			errs = append(errs, fmt.Errorf("%s must be >= %d, got %d", axis.name, MinElements, axis.val))
		}
	}
	if !(c.Penal > 0) || !isFinite(c.Penal) {
		errs = append(errs, fmt.Errorf("penal must be > 0, got %v", c.Penal))
	}
	if !(c.Rmin > 0) || !isFinite(c.Rmin) {
		errs = append(errs, fmt.Errorf("rmin must be > 0, got %v", c.Rmin))
	}
	if !(c.VolumeFraction > 0 && c.VolumeFraction < 1) {
		errs = append(errs, fmt.Errorf("volume_fraction must be in (0,1), got %v", c.VolumeFraction))
	}
	if c.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be > 0, got %d", c.MaxIterations))
	}
	// Zero tolx is unset; the service applies its own default.
	if c.Tolx != 0 && (!(c.Tolx > 0) || !isFinite(c.Tolx)) {
		errs = append(errs, fmt.Errorf("tolx must be > 0, got %v", c.Tolx))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
