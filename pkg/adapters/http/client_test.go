package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recorder collects stream callbacks.
type recorder struct {
	mu     sync.Mutex
	events []wire.Event
	errs   []error
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder { return &recorder{done: make(chan struct{})} }

func (r *recorder) OnEvent(e wire.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if e.Terminal() {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func (r *recorder) snapshot() ([]wire.Event, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wire.Event(nil), r.events...), append([]error(nil), r.errs...)
}

func beamParams() wire.Params {
	cfg := domain.DefaultSolverConfig()
	cfg.Nelx, cfg.Nely, cfg.Nelz = 8, 4, 4
	p := wire.NewParams(nil, nil, cfg)
	p.FixedSupports = append(p.FixedSupports, wire.FixedSupportParam{Position: domain.V(-1.5, 0.5, 0), Normal: domain.V(-1, 0, 0)})
	p.LoadVectors = append(p.LoadVectors, wire.LoadVectorParam{Position: domain.V(1.5, 0.5, 0), Direction: domain.V(0, -1, 0), Magnitude: 1})
	return p
}

func TestClient_EndToEnd(t *testing.T) {
	svc := devserver.New(memory.NewStore())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	srv := httptest.NewServer(NewHandler(svc, WithPollInterval(5*time.Millisecond)))
	t.Cleanup(srv.Close)

	stl, err := mesh.Box(domain.V(-1.5, 0, -0.5), domain.V(1.5, 1, 0.5)).Encode()
	require.NoError(t, err)

	client := NewClient(srv.URL+"/", WithRequestTimeout(5*time.Second))
	ctx := context.Background()

	id, err := client.Submit(ctx, stl, beamParams())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec := newRecorder()
	sub, err := client.Subscribe(ctx, id, rec)
	require.NoError(t, err)
	defer sub.Close()
	rec.wait(t)

	events, errs := rec.snapshot()
	assert.Empty(t, errs)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, wire.EventComplete, last.Kind)
	for i, e := range events[:len(events)-1] {
		assert.Equal(t, wire.EventProgress, e.Kind)
		assert.Equal(t, i+1, e.Progress.Iteration)
	}

	data, err := client.FetchResult(ctx, id)
	require.NoError(t, err)
	m, err := mesh.Parse(data)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Triangles)
}

func TestClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		body   string
		detail string
	}{
		{"string detail", http.StatusUnprocessableEntity, `{"detail":"volume_fraction out of range"}`, "volume_fraction out of range"},
		{"structured detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","params"]}]}`, `[{"loc":["body","params"]}]`},
		{"plain text", http.StatusInternalServerError, "boom\n", "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Submit(context.Background(), []byte("x"), beamParams())
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, tt.detail, se.Detail)
		})
	}
}

func TestClient_SubmitSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wire.SubmitPath, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, hdr, err := r.FormFile(wire.FieldMesh)
		require.NoError(t, err)
		file.Close()
		assert.Equal(t, wire.MeshFilename, hdr.Filename)
		p, err := wire.DecodeParams([]byte(r.FormValue(wire.FieldParams)))
		require.NoError(t, err)
		assert.Len(t, p.FixedSupports, 1)
		fmt.Fprint(w, `{"job_id":"abc"}`)
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL).Submit(context.Background(), []byte("solid x"), beamParams())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestClient_StreamEndsWithoutTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"iteration\":1,\"max_iterations\":5}\n\n")
		fmt.Fprint(w, "data: not json\n\n")
	}))
	defer srv.Close()

	rec := newRecorder()
	sub, err := NewClient(srv.URL).Subscribe(context.Background(), "job", rec)
	require.NoError(t, err)
	defer sub.Close()
	rec.wait(t)

	events, errs := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Progress.Iteration)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrStreamEnded)
}

func TestClient_SubscribeNotFound(t *testing.T) {
	srv := httptest.NewServer(NewHandler(&stubJobs{}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Subscribe(context.Background(), "nope", newRecorder())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "Job not found", se.Detail)
}

func TestClient_CloseStopsDelivery(t *testing.T) {
	disconnected := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"iteration\":1,\"max_iterations\":5}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(disconnected)
	}))
	defer srv.Close()

	first := make(chan struct{}, 1)
	var errCalls atomic.Int32
	var events atomic.Int32
	h := ports.StreamHandlerFuncs{
		Event: func(wire.Event) {
			events.Add(1)
			select {
			case first <- struct{}{}:
			default:
			}
		},
		Error: func(error) { errCalls.Add(1) },
	}

	sub, err := NewClient(srv.URL).Subscribe(context.Background(), "job", h)
	require.NoError(t, err)
	<-first

	sub.Close()
	sub.Close()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe the disconnect")
	}
	assert.Never(t, func() bool { return errCalls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, int32(1), events.Load())
}

func TestClient_CloseFromHandlerDropsBufferedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"iteration\":1,\"max_iterations\":5}\n\n"+
			"data: {\"iteration\":2,\"max_iterations\":5}\n\n"+
			"data: {\"iteration\":3,\"max_iterations\":5}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	var (
		sub    ports.Subscription
		ready  = make(chan struct{})
		events atomic.Int32
		errs   atomic.Int32
	)
	h := ports.StreamHandlerFuncs{
		Event: func(wire.Event) {
			<-ready
			events.Add(1)
			sub.Close()
		},
		Error: func(error) { errs.Add(1) },
	}

	var err error
	sub, err = NewClient(srv.URL).Subscribe(context.Background(), "job", h)
	require.NoError(t, err)
	close(ready)

	require.Eventually(t, func() bool { return events.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return events.Load() > 1 || errs.Load() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestClient_FetchResultNotReady(t *testing.T) {
	srv := httptest.NewServer(NewHandler(&stubJobs{result: func(string) ([]byte, error) {
		return nil, domain.ErrResultNotReady
	}}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchResult(context.Background(), "job")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
}

func TestClient_PropagatesTrace(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	traceparent := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent <- r.Header.Get("Traceparent")
		w.Write([]byte("mesh"))
	}))
	defer srv.Close()

	data, err := NewClient(srv.URL, WithTracerProvider(tp)).FetchResult(context.Background(), "job")
	require.NoError(t, err)
	assert.Equal(t, []byte("mesh"), data)
	assert.NotEmpty(t, <-traceparent)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "abyss.fetch_result", spans[0].Name)
}

func TestClient_ContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := NewClient(srv.URL).Submit(ctx, []byte("x"), beamParams())
	assert.True(t, errors.Is(err, context.Canceled))
}
