// Package wire defines the JSON shapes exchanged with the optimization service.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/abyss/pkg/domain"
)

// Multipart field names and fixed values of the submit call.
const (
	FieldMesh     = "stl_file"
	FieldParams   = "params"
	MeshFilename  = "model.stl"
	SubmitPath    = "/api/optimize"
	StatusOK      = "complete"
	StatusFailed  = "error"
	StatusRunning = "running"
)

// ProgressPath returns the SSE path for a job.
func ProgressPath(jobID string) string {
	return SubmitPath + "/" + jobID + "/progress"
}

// ResultPath returns the result download path for a job.
func ResultPath(jobID string) string {
	return SubmitPath + "/" + jobID + "/result"
}

// FixedSupportParam is one fixed support in Params.
type FixedSupportParam struct {
	Position domain.Vec3 `json:"position"`
	Normal   domain.Vec3 `json:"normal"`
}

// LoadVectorParam is one load vector in Params.
type LoadVectorParam struct {
	Position  domain.Vec3 `json:"position"`
	Direction domain.Vec3 `json:"direction"`
	Magnitude float64     `json:"magnitude"`
}

// UnmarshalJSON decodes a load vector, defaulting a missing magnitude to
// domain.DefaultMagnitude.
func (l *LoadVectorParam) UnmarshalJSON(data []byte) error {
	type plain LoadVectorParam
	p := plain{Magnitude: domain.DefaultMagnitude}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = LoadVectorParam(p)
	return nil
}

// Params is the JSON document sent in the "params" form field.
type Params struct {
	FixedSupports  []FixedSupportParam `json:"fixed_supports"`
	LoadVectors    []LoadVectorParam   `json:"load_vectors"`
	VolumeFraction float64             `json:"volume_fraction"`
	Nelx           int                 `json:"nelx"`
	Nely           int                 `json:"nely"`
	Nelz           int                 `json:"nelz"`
	Penal          float64             `json:"penal"`
	Rmin           float64             `json:"rmin"`
	MaxIterations  int                 `json:"max_iterations"`
	Tolx           float64             `json:"tolx,omitempty"`
}

// NewParams serializes markers and configuration. Slices are never nil so
// empty lists encode as [] rather than null.
func NewParams(fixed []domain.FixedSupport, loads []domain.LoadVector, cfg domain.SolverConfig) Params {
	p := Params{
		FixedSupports:  make([]FixedSupportParam, 0, len(fixed)),
		LoadVectors:    make([]LoadVectorParam, 0, len(loads)),
		VolumeFraction: cfg.VolumeFraction,
		Nelx:           cfg.Nelx,
		Nely:           cfg.Nely,
		Nelz:           cfg.Nelz,
		Penal:          cfg.Penal,
		Rmin:           cfg.Rmin,
		MaxIterations:  cfg.MaxIterations,
		Tolx:           cfg.Tolx,
	}
	for _, f := range fixed {
		p.FixedSupports = append(p.FixedSupports, FixedSupportParam{Position: f.Position, Normal: f.Normal})
	}
	for _, l := range loads {
		p.LoadVectors = append(p.LoadVectors, LoadVectorParam{Position: l.Position, Direction: l.Direction, Magnitude: l.Magnitude})
	}
	return p
}

// DecodeParams parses a params document. Solver fields missing from the
// document take the values of domain.DefaultSolverConfig.
func DecodeParams(data []byte) (Params, error) {
	p := NewParams(nil, nil, domain.DefaultSolverConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("failed to decode params: %w", err)
	}
	return p, nil
}

// Config returns the solver configuration carried by the params.
func (p Params) Config() domain.SolverConfig {
	return domain.SolverConfig{
		Nelx:           p.Nelx,
		Nely:           p.Nely,
		Nelz:           p.Nelz,
		Penal:          p.Penal,
		Rmin:           p.Rmin,
		VolumeFraction: p.VolumeFraction,
		MaxIterations:  p.MaxIterations,
		Tolx:           p.Tolx,
	}
}

// SubmitResponse is the body of a successful submit call.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// EventKind discriminates stream messages.
type EventKind int

const (
	EventProgress EventKind = iota
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "progress"
	}
}

// Event is one decoded progress stream message.
type Event struct {
	Kind     EventKind
	Progress domain.ProgressSnapshot // EventProgress
	Message  string                  // EventError
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind != EventProgress
}

// DecodeEvent parses the JSON payload of one stream message. A message with a
// "status" field is terminal; anything else must be a progress object.
func DecodeEvent(data []byte) (Event, error) {
	var raw struct {
		Status  *string `json:"status"`
		Message string  `json:"message"`
		domain.ProgressSnapshot
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("failed to decode stream message: %w", err)
	}
	if raw.Status == nil {
		return Event{Kind: EventProgress, Progress: raw.ProgressSnapshot}, nil
	}
	switch *raw.Status {
	case StatusOK:
		return Event{Kind: EventComplete}, nil
	case StatusFailed:
		msg := raw.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return Event{Kind: EventError, Message: msg}, nil
	}
	return Event{}, fmt.Errorf("unknown stream status %q", *raw.Status)
}

// EncodeEvent renders an event as the JSON payload of one stream message.
func EncodeEvent(e Event) ([]byte, error) {
	switch e.Kind {
	case EventComplete:
		return json.Marshal(map[string]string{"status": StatusOK})
	case EventError:
		return json.Marshal(map[string]string{"status": StatusFailed, "message": e.Message})
	default:
		return json.Marshal(e.Progress)
	}
}
