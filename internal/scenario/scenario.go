// Package scenario reads scripted workbench sessions from YAML: which mesh to
// load, solver overrides and the clicks that place markers.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Scenario is one scripted session.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Mesh        MeshSource     `yaml:"mesh"`
	Solver      map[string]any `yaml:"solver"`
	Clicks      []Click        `yaml:"clicks"`

	baseDir string
}

// MeshSource names an STL file or describes a box.
type MeshSource struct {
	File string   `yaml:"file"`
	Box  *BoxSpec `yaml:"box"`
}

// BoxSpec is an axis-aligned box given by two corners.
type BoxSpec struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// Click is one pointer ray fired in a mode.
type Click struct {
	Mode      domain.Mode `yaml:"mode"`
	Origin    [3]float64  `yaml:"origin"`
	Direction [3]float64  `yaml:"direction"`
}

// Ray returns the click as vectors.
func (c Click) Ray() (origin, direction domain.Vec3) {
	return vec(c.Origin), vec(c.Direction)
}

func vec(a [3]float64) domain.Vec3 {
	return domain.V(a[0], a[1], a[2])
}

// Load reads a scenario file. Relative mesh paths resolve against the
// file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes and validates a scenario document.
func Parse(data []byte, baseDir string) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	s.baseDir = baseDir
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the document shape. Solver values are checked when the
// overrides are applied.
func (s *Scenario) Validate() error {
	var errs []error
	switch {
	case s.Mesh.File == "" && s.Mesh.Box == nil:
		errs = append(errs, errors.New("mesh: either file or box is required"))
	case s.Mesh.File != "" && s.Mesh.Box != nil:
		errs = append(errs, errors.New("mesh: file and box are mutually exclusive"))
	}
	if b := s.Mesh.Box; b != nil {
		for i := 0; i < 3; i++ {
			if !(b.Max[i] > b.Min[i]) {
				errs = append(errs, fmt.Errorf("mesh.box: max must exceed min on every axis"))
				break
			}
		}
	}
	for i, c := range s.Clicks {
		if _, err := domain.ParseMode(string(c.Mode)); err != nil {
			errs = append(errs, fmt.Errorf("clicks[%d]: %w", i, err))
		}
		if _, dir := c.Ray(); dir.Norm() == 0 {
			errs = append(errs, fmt.Errorf("clicks[%d]: direction must be non-zero", i))
		}
	}
	return errors.Join(errs...)
}

// MeshBytes returns the STL bytes of the scenario mesh.
func (s *Scenario) MeshBytes() ([]byte, error) {
	if s.Mesh.Box != nil {
		return mesh.Box(vec(s.Mesh.Box.Min), vec(s.Mesh.Box.Max)).Encode()
	}
	path := s.Mesh.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mesh: %w", err)
	}
	return data, nil
}

// ApplySolver overlays the scenario's solver section on base.
func (s *Scenario) ApplySolver(base domain.SolverConfig) (domain.SolverConfig, error) {
	if len(s.Solver) == 0 {
		return base, nil
	}
	cfg := base
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return base, err
	}
	if err := dec.Decode(s.Solver); err != nil {
		return base, fmt.Errorf("solver: %w", err)
	}
	return cfg, nil
}

// Clicker is the part of the workbench a scenario drives.
type Clicker interface {
	SetMode(domain.Mode)
	Click(origin, direction domain.Vec3) (domain.HitResult, domain.MarkerID, error)
}

// Outcome records what one click did.
type Outcome struct {
	Click   Click
	Hit     domain.HitResult
	Created domain.MarkerID
}

// Play fires every click in order and stops at the first error.
func (s *Scenario) Play(c Clicker) ([]Outcome, error) {
	out := make([]Outcome, 0, len(s.Clicks))
	for i, click := range s.Clicks {
		c.SetMode(click.Mode)
		origin, dir := click.Ray()
		hit, id, err := c.Click(origin, dir)
		if err != nil {
			return out, fmt.Errorf("clicks[%d]: %w", i, err)
		}
		out = append(out, Outcome{Click: click, Hit: hit, Created: id})
	}
	return out, nil
}
