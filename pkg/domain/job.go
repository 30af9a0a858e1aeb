package domain

// JobState is the lifecycle state of the optimization job.
type JobState string

const (
	JobIdle       JobState = "idle"
	JobSubmitting JobState = "submitting"
	JobRunning    JobState = "running"
	JobComplete   JobState = "complete"
	JobError      JobState = "error"
	JobCancelled  JobState = "cancelled"
)

// Active reports whether a job in this state holds network resources.
func (s JobState) Active() bool {
	return s == JobSubmitting || s == JobRunning
}

// Terminal reports whether the state ends a run.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobError || s == JobCancelled
}

// ErrorKind classifies why a job ended in Error or Cancelled.
type ErrorKind string

const (
	FailureNone        ErrorKind = ""
	FailureValidation  ErrorKind = "validation"
	FailureSubmit      ErrorKind = "submit"
	FailureStream      ErrorKind = "stream"
	FailureResultFetch ErrorKind = "result_fetch"
	FailureCancelled   ErrorKind = "cancelled"
)

// User-facing messages recorded on the job.
const (
	MsgCancelled       = "Cancelled"
	MsgConnectionLost  = "Connection lost."
	MsgResultFetchFail = "Failed to fetch result"
)

// ProgressSnapshot is the most recent status report for a running job.
type ProgressSnapshot struct {
	Iteration      int     `json:"iteration"`
	MaxIterations  int     `json:"max_iterations"`
	Objective      float64 `json:"objective"`
	VolumeFraction float64 `json:"volume_fraction"`
	Change         float64 `json:"change"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Fraction returns the completed share of the iteration budget in [0,1].
func (p ProgressSnapshot) Fraction() float64 {
	if p.MaxIterations <= 0 {
		return 0
	}
	f := float64(p.Iteration) / float64(p.MaxIterations)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Job is the client-side view of one remote optimization run.
type Job struct {
	ID       string
	State    JobState
	Progress *ProgressSnapshot
	Error    string
	Failure  ErrorKind
}

// NewJob returns a job in the Idle state.
func NewJob() Job {
	return Job{State: JobIdle}
}

// Snapshot returns a deep copy safe to hand to observers.
func (j Job) Snapshot() Job {
	if j.Progress != nil {
		p := *j.Progress
		j.Progress = &p
	}
	return j
}
