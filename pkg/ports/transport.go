package ports

import (
	"context"

	"github.com/aretw0/abyss/pkg/wire"
)

// StreamHandler receives progress stream callbacks.
// Calls for one subscription are serialized.
type StreamHandler interface {
	// OnEvent is called for every decoded stream message.
	OnEvent(e wire.Event)

	// OnError is called at most once when the stream fails before a terminal message.
	OnError(err error)
}

// StreamHandlerFuncs adapts plain functions to StreamHandler.
type StreamHandlerFuncs struct {
	Event func(wire.Event)
	Error func(error)
}

func (f StreamHandlerFuncs) OnEvent(e wire.Event) {
	if f.Event != nil {
		f.Event(e)
	}
}

func (f StreamHandlerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Subscription is an open progress stream.
type Subscription interface {
	// Close stops delivery. It is idempotent, safe to call from a handler and
	// does not block on the handler. A callback already in flight when Close
	// is called from another goroutine may still run; none start after it.
	Close()
}

// Transport talks to the remote optimization service.
type Transport interface {
	// Submit uploads the mesh and parameters and returns the job id.
	Submit(ctx context.Context, mesh []byte, params wire.Params) (string, error)

	// Subscribe opens the progress stream for a job.
	Subscribe(ctx context.Context, jobID string, h StreamHandler) (Subscription, error)

	// FetchResult downloads the optimized mesh of a completed job.
	FetchResult(ctx context.Context, jobID string) ([]byte, error)
}
