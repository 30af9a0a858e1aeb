package orchestrator

import (
	"github.com/aretw0/abyss/pkg/domain"
)

// EventKind identifies an input to the job state machine.
type EventKind int

const (
	EvSubmitRequested EventKind = iota
	EvValidationFailed
	EvSubmitSucceeded
	EvSubmitFailed
	EvProgress
	EvStreamComplete
	EvStreamError
	EvStreamFailed
	EvFetchSucceeded
	EvFetchFailed
	EvCancel
	EvReset
)

var eventNames = [...]string{
	EvSubmitRequested:  "submit_requested",
	EvValidationFailed: "validation_failed",
	EvSubmitSucceeded:  "submit_succeeded",
	EvSubmitFailed:     "submit_failed",
	EvProgress:         "progress",
	EvStreamComplete:   "stream_complete",
	EvStreamError:      "stream_error",
	EvStreamFailed:     "stream_failed",
	EvFetchSucceeded:   "fetch_succeeded",
	EvFetchFailed:      "fetch_failed",
	EvCancel:           "cancel",
	EvReset:            "reset",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is one input to Transition. Only the fields belonging to Kind are read.
type Event struct {
	Kind     EventKind
	JobID    string                  // EvSubmitSucceeded
	Progress domain.ProgressSnapshot // EvProgress
	Message  string                  // EvValidationFailed, EvSubmitFailed, EvStreamError
}

// Action is the set of side effects the driver must perform after a transition.
type Action uint8

const (
	ActSubmit Action = 1 << iota
	ActOpenStream
	ActCloseStream
	ActFetchResult
	ActShowResult
	ActAbort

	ActNone Action = 0
)

// Has reports whether a contains every bit of b.
func (a Action) Has(b Action) bool {
	return b != 0 && a&b == b
}

// Machine is the complete state the transition function works on.
type Machine struct {
	Job domain.Job
	// Fetching is set while Running after the stream reported completion and
	// the result download is outstanding.
	Fetching bool
}

// NewMachine returns a machine with an Idle job.
func NewMachine() Machine {
	return Machine{Job: domain.NewJob()}
}

// streaming reports whether progress events are still expected.
func (m Machine) streaming() bool {
	return m.Job.State == domain.JobRunning && !m.Fetching
}

// Transition is the pure job state machine. It never mutates its input; events
// that do not apply to the current state leave it unchanged with ActNone.
//
//	Idle --submit--> Submitting --ok--> Running --complete--> Running(fetching) --ok--> Complete
//	Submitting --fail--> Error
//	Running --error event | transport failure--> Error
//	Running(fetching) --fetch fails--> Error
//	Submitting | Running --cancel--> Cancelled
//	any --reset--> Idle
func Transition(m Machine, e Event) (Machine, Action) {
	state := m.Job.State
	switch e.Kind {
	case EvSubmitRequested:
		if state.Active() {
			return m, ActNone
		}
		return Machine{Job: domain.Job{State: domain.JobSubmitting}}, ActSubmit

	case EvValidationFailed:
		if state.Active() {
			return m, ActNone
		}
		return Machine{Job: domain.Job{
			State:   domain.JobError,
			Error:   e.Message,
			Failure: domain.FailureValidation,
		}}, ActNone

	case EvSubmitSucceeded:
		if state != domain.JobSubmitting {
			return m, ActNone
		}
		return Machine{Job: domain.Job{State: domain.JobRunning, ID: e.JobID}}, ActOpenStream

	case EvSubmitFailed:
		if state != domain.JobSubmitting {
			return m, ActNone
		}
		return Machine{Job: domain.Job{
			State:   domain.JobError,
			Error:   e.Message,
			Failure: domain.FailureSubmit,
		}}, ActAbort

	case EvProgress:
		if !m.streaming() {
			return m, ActNone
		}
		next := m
		p := e.Progress
		next.Job.Progress = &p
		return next, ActNone

	case EvStreamComplete:
		if !m.streaming() {
			return m, ActNone
		}
		next := m
		next.Job = m.Job.Snapshot()
		next.Fetching = true
		return next, ActCloseStream | ActFetchResult

	case EvStreamError, EvStreamFailed:
		if !m.streaming() {
			return m, ActNone
		}
		msg := e.Message
		if e.Kind == EvStreamFailed || msg == "" {
			msg = domain.MsgConnectionLost
		}
		return failed(m, msg, domain.FailureStream), ActCloseStream | ActAbort

	case EvFetchSucceeded:
		if state != domain.JobRunning || !m.Fetching {
			return m, ActNone
		}
		next := Machine{Job: m.Job.Snapshot()}
		next.Job.State = domain.JobComplete
		return next, ActShowResult | ActAbort

	case EvFetchFailed:
		if state != domain.JobRunning || !m.Fetching {
			return m, ActNone
		}
		return failed(m, domain.MsgResultFetchFail, domain.FailureResultFetch), ActAbort

	case EvCancel:
		if !state.Active() {
			return m, ActNone
		}
		return failed(m, domain.MsgCancelled, domain.FailureCancelled), ActCloseStream | ActAbort

	case EvReset:
		if state.Active() {
			return NewMachine(), ActCloseStream | ActAbort
		}
		return NewMachine(), ActNone
	}
	return m, ActNone
}

// failed keeps the job id and last progress so the UI can still show them.
func failed(m Machine, msg string, kind domain.ErrorKind) Machine {
	job := m.Job.Snapshot()
	job.Error = msg
	job.Failure = kind
	job.State = domain.JobError
	if kind == domain.FailureCancelled {
		job.State = domain.JobCancelled
	}
	return Machine{Job: job}
}
