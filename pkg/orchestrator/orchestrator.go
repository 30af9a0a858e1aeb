package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/abyss/internal/broadcast"
	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
)

// ErrCancelled is returned by Submit when the run was cancelled or reset
// before the service answered.
var ErrCancelled = errors.New("optimization job cancelled")

// Request is everything a run needs.
type Request struct {
	FixedSupports []domain.FixedSupport
	LoadVectors   []domain.LoadVector
	Config        domain.SolverConfig
	Mesh          []byte
}

// Validate checks the request before any network call is made.
func (r Request) Validate() error {
	if len(r.Mesh) == 0 {
		return domain.ErrNoMesh
	}
	if len(r.FixedSupports) == 0 {
		return domain.ErrNoFixedSupports
	}
	if len(r.LoadVectors) == 0 {
		return domain.ErrNoLoadVectors
	}
	var errs []error
	for _, f := range r.FixedSupports {
		if err := f.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range r.LoadVectors {
		if err := l.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.Config.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// StateChange describes one job state transition.
type StateChange struct {
	From      domain.JobState
	To        domain.JobState
	Job       domain.Job
	Event     EventKind
	Timestamp time.Time
}

// Hooks are optional observability callbacks. They run with the orchestrator
// lock held and must not call back into it.
type Hooks struct {
	OnTransition func(context.Context, StateChange)
	OnProgress   func(context.Context, domain.ProgressSnapshot)
	OnResult     func(ctx context.Context, jobID string, size int)
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) {
		o.hooks = h
	}
}

// Orchestrator owns the lifecycle of one job at a time. Safe for concurrent use.
type Orchestrator struct {
	mu        sync.Mutex
	m         Machine
	gen       uint64
	runCtx    context.Context
	abort     context.CancelFunc
	sub       ports.Subscription
	done      *signal
	transport ports.Transport
	sink      ports.ResultSink
	hub       *broadcast.Hub[domain.Job]
	hooks     Hooks
	logger    *slog.Logger
}

// signal is closed once a run has settled.
type signal struct {
	ch   chan struct{}
	once sync.Once
}

func newSignal() *signal { return &signal{ch: make(chan struct{})} }

func (s *signal) fire() { s.once.Do(func() { close(s.ch) }) }

// New creates an orchestrator with an Idle job.
func New(transport ports.Transport, sink ports.ResultSink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		m:         NewMachine(),
		transport: transport,
		sink:      sink,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.hub = broadcast.New[domain.Job]("job", o.logger)
	return o
}

// Job returns a copy of the current job.
func (o *Orchestrator) Job() domain.Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.m.Job.Snapshot()
}

// Subscribe returns a channel receiving a job copy after every state change
// and every applied progress report.
func (o *Orchestrator) Subscribe() (<-chan domain.Job, func()) {
	return o.hub.Subscribe(broadcast.DefaultBuffer)
}

// Submit validates the request, uploads it and opens the progress stream.
//
// Validation failures end the job in Error without touching the network and
// are returned. A request made while a job is submitting or running is
// rejected with domain.ErrJobActive and leaves that job untouched. A job in a
// terminal state is reset first. Submit returns once the job is Running or
// has failed; progress is delivered in the background.
func (o *Orchestrator) Submit(ctx context.Context, req Request) error {
	o.mu.Lock()
	if o.m.Job.State.Active() {
		o.mu.Unlock()
		o.logger.Warn("Submit rejected, job already active")
		return domain.ErrJobActive
	}
	o.gen++
	gen := o.gen

	if err := req.Validate(); err != nil {
		o.applyLocked(ctx, Event{Kind: EvValidationFailed, Message: err.Error()})
		o.mu.Unlock()
		o.logger.Info("Submit rejected by validation", "error", err)
		return err
	}

	runCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	o.runCtx, o.abort = runCtx, abort
	o.done = newSignal()
	o.applyLocked(ctx, Event{Kind: EvSubmitRequested})
	o.mu.Unlock()

	callCtx, stop := context.WithCancel(runCtx)
	defer stop()
	defer context.AfterFunc(ctx, stop)()

	params := wire.NewParams(req.FixedSupports, req.LoadVectors, req.Config)
	o.logger.Info("Submitting job",
		"fixed_supports", len(req.FixedSupports),
		"load_vectors", len(req.LoadVectors),
		"mesh_bytes", len(req.Mesh),
	)
	jobID, err := o.transport.Submit(callCtx, req.Mesh, params)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		o.logger.Debug("Submit response discarded", "job_id", jobID, "error", err)
		return ErrCancelled
	}
	if err != nil {
		act := o.applyLocked(runCtx, Event{Kind: EvSubmitFailed, Message: err.Error()})
		o.effectsLocked(act)
		o.mu.Unlock()
		o.logger.Error("Submit failed", "error", err)
		return fmt.Errorf("submit job: %w", err)
	}
	o.applyLocked(runCtx, Event{Kind: EvSubmitSucceeded, JobID: jobID})
	o.mu.Unlock()

	o.logger.Info("Job accepted", "job_id", jobID)
	o.openStream(runCtx, gen, jobID)
	return nil
}

// openStream subscribes outside the lock. Handlers may fire before Subscribe
// returns; if the run has moved on by then the new subscription is closed.
func (o *Orchestrator) openStream(ctx context.Context, gen uint64, jobID string) {
	sub, err := o.transport.Subscribe(ctx, jobID, &streamHandler{o: o, gen: gen})
	if err != nil {
		o.logger.Error("Progress subscription failed", "job_id", jobID, "error", err)
		o.dispatch(gen, Event{Kind: EvStreamFailed})
		return
	}

	o.mu.Lock()
	if gen != o.gen || !o.m.streaming() {
		o.mu.Unlock()
		sub.Close()
		return
	}
	o.sub = sub
	o.mu.Unlock()
}

// OnProgressEvent applies a progress report to the current run.
func (o *Orchestrator) OnProgressEvent(p domain.ProgressSnapshot) {
	o.dispatch(o.generation(), Event{Kind: EvProgress, Progress: p})
}

// OnStreamComplete handles the terminal success message of the current run.
func (o *Orchestrator) OnStreamComplete() {
	o.dispatch(o.generation(), Event{Kind: EvStreamComplete})
}

// OnStreamError handles a terminal failure of the current run.
func (o *Orchestrator) OnStreamError(message string) {
	o.dispatch(o.generation(), Event{Kind: EvStreamError, Message: message})
}

// Cancel stops the active job. It is a no-op when no job is active.
// A result download already in flight is aborted and its outcome dropped.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.m.Job.State.Active() {
		o.mu.Unlock()
		return
	}
	o.gen++
	act := o.applyLocked(o.runCtx, Event{Kind: EvCancel})
	o.effectsLocked(act)
	o.mu.Unlock()
	o.logger.Info("Job cancelled")
}

// Reset returns the job to Idle, cancelling it first if it is active.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	act := o.applyLocked(ctx, Event{Kind: EvReset})
	o.effectsLocked(act)
	if o.done != nil {
		o.done.fire()
	}
}

// Wait blocks until the current run has settled and returns the job. A
// completed run settles after the result was handed to the sink.
func (o *Orchestrator) Wait(ctx context.Context) (domain.Job, error) {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return o.Job(), nil
	}

	select {
	case <-done.ch:
		return o.Job(), nil
	case <-ctx.Done():
		return o.Job(), ctx.Err()
	}
}

// Close cancels any active job and closes observer channels.
func (o *Orchestrator) Close() {
	o.Cancel()
	o.hub.Close()
}

func (o *Orchestrator) generation() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen
}

// dispatch applies an event for run gen. Events from any other run are dropped.
func (o *Orchestrator) dispatch(gen uint64, e Event) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		o.logger.Debug("Stale event discarded", "event", e.Kind, "generation", gen)
		return
	}
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	act := o.applyLocked(ctx, e)
	jobID := o.m.Job.ID
	o.effectsLocked(act)
	o.mu.Unlock()

	if act.Has(ActFetchResult) {
		go o.fetch(ctx, gen, jobID)
	}
}

func (o *Orchestrator) fetch(ctx context.Context, gen uint64, jobID string) {
	data, err := o.transport.FetchResult(ctx, jobID)

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		o.logger.Info("Result discarded, job no longer running", "job_id", jobID)
		return
	}
	if err != nil {
		act := o.applyLocked(ctx, Event{Kind: EvFetchFailed})
		o.effectsLocked(act)
		o.mu.Unlock()
		o.logger.Error("Result fetch failed", "job_id", jobID, "error", err)
		return
	}

	act := o.applyLocked(ctx, Event{Kind: EvFetchSucceeded})
	if !act.Has(ActShowResult) {
		o.mu.Unlock()
		return
	}
	done := o.done
	if o.abort != nil {
		o.abort()
	}
	if o.hooks.OnResult != nil {
		o.hooks.OnResult(ctx, jobID, len(data))
	}
	o.mu.Unlock()

	if o.sink != nil {
		if err := o.sink.ShowResult(data); err != nil {
			o.logger.Error("Result display failed", "job_id", jobID, "error", err)
		}
	}
	o.logger.Info("Job complete", "job_id", jobID, "result_bytes", len(data))
	if done != nil {
		done.fire()
	}
}

// applyLocked runs the transition, publishes the new job and fires hooks.
func (o *Orchestrator) applyLocked(ctx context.Context, e Event) Action {
	prev := o.m
	next, act := Transition(prev, e)
	o.m = next

	progressed := e.Kind == EvProgress && next.Job.Progress != prev.Job.Progress
	if progressed && o.hooks.OnProgress != nil {
		o.hooks.OnProgress(ctx, *next.Job.Progress)
	}
	changed := prev.Job.State != next.Job.State
	if changed {
		o.logger.Debug("Job transition", "from", prev.Job.State, "to", next.Job.State, "event", e.Kind)
		if o.hooks.OnTransition != nil {
			o.hooks.OnTransition(ctx, StateChange{
				From:      prev.Job.State,
				To:        next.Job.State,
				Job:       next.Job.Snapshot(),
				Event:     e.Kind,
				Timestamp: time.Now(),
			})
		}
	}
	if changed || progressed {
		o.hub.Publish(next.Job.Snapshot())
	}
	return act
}

// effectsLocked performs the synchronous side effects of an action.
// Subscription.Close is non-blocking, so it is safe under the lock.
func (o *Orchestrator) effectsLocked(act Action) {
	if act.Has(ActCloseStream) && o.sub != nil {
		o.sub.Close()
		o.sub = nil
	}
	if act.Has(ActAbort) && o.abort != nil {
		o.abort()
	}
	if o.m.Job.State.Terminal() && o.done != nil {
		o.done.fire()
	}
}

type streamHandler struct {
	o   *Orchestrator
	gen uint64
}

func (h *streamHandler) OnEvent(e wire.Event) {
	switch e.Kind {
	case wire.EventProgress:
		h.o.dispatch(h.gen, Event{Kind: EvProgress, Progress: e.Progress})
	case wire.EventComplete:
		h.o.dispatch(h.gen, Event{Kind: EvStreamComplete})
	case wire.EventError:
		h.o.dispatch(h.gen, Event{Kind: EvStreamError, Message: e.Message})
	}
}

func (h *streamHandler) OnError(err error) {
	h.o.logger.Warn("Progress stream failed", "error", err)
	h.o.dispatch(h.gen, Event{Kind: EvStreamFailed})
}
