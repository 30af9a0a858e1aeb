package domain

import "errors"

// ErrNoMesh is returned when a job is submitted before a mesh is loaded.
var ErrNoMesh = errors.New("no mesh loaded")

// ErrNoFixedSupports is returned when a job has no fixed support.
var ErrNoFixedSupports = errors.New("at least one fixed support is required")

// ErrNoLoadVectors is returned when a job has no load vector.
var ErrNoLoadVectors = errors.New("at least one load vector is required")

// ErrJobActive is returned when a run is requested while another is submitting or running.
var ErrJobActive = errors.New("an optimization job is already running")

// ErrInvalidConfig is returned when the solver configuration is out of bounds.
var ErrInvalidConfig = errors.New("invalid solver configuration")

// ErrInvalidMarker is returned when a marker cannot be serialized for the solver.
var ErrInvalidMarker = errors.New("invalid marker")

// ErrJobNotFound is returned by job stores and the service for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrResultNotReady is returned when a result is requested before the job completed.
var ErrResultNotReady = errors.New("result not ready")
