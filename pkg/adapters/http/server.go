package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPollInterval is how often the progress stream checks the job store.
const DefaultPollInterval = 500 * time.Millisecond

const maxUploadSize = 64 << 20

// JobService is the job lifecycle served by the handler.
type JobService interface {
	Submit(ctx context.Context, stl []byte, p wire.Params) (string, error)
	Progress(ctx context.Context, id string, offset int) (*ports.JobRecord, []domain.ProgressSnapshot, error)
	Get(ctx context.Context, id string) (*ports.JobRecord, error)
	Result(ctx context.Context, id string) ([]byte, error)
}

var _ JobService = (*devserver.Service)(nil)

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// Server serves the optimization API over a JobService.
type Server struct {
	Jobs         JobService
	PollInterval time.Duration

	logger     *slog.Logger
	metrics    http.Handler
	observer   RequestObserver
	version    string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the handler logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithPollInterval sets how often progress streams poll the store.
func WithPollInterval(d time.Duration) ServerOption {
	return func(s *Server) { s.PollInterval = d }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithRequestObserver records every request with its route pattern.
func WithRequestObserver(o RequestObserver) ServerOption {
	return func(s *Server) { s.observer = o }
}

// WithVersion sets the version reported by /api/info.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithServerTracerProvider sets the provider request spans are created from.
func WithServerTracerProvider(tp trace.TracerProvider) ServerOption {
	return func(s *Server) { s.tracer = tp.Tracer(tracerName) }
}

// NewHandler creates the HTTP handler for the optimization API.
func NewHandler(jobs JobService, opts ...ServerOption) http.Handler {
	s := &Server{
		Jobs:         jobs,
		PollInterval: DefaultPollInterval,
		logger:       logging.NewNop(),
		version:      "dev",
		tracer:       otel.GetTracerProvider().Tracer(tracerName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.trace)
	if s.observer != nil {
		r.Use(s.observe)
	}

	r.Post(wire.SubmitPath, s.Submit)
	r.Get(wire.SubmitPath+"/{jobID}/progress", s.StreamProgress)
	r.Get(wire.SubmitPath+"/{jobID}/result", s.GetResult)
	r.Get("/api/jobs/{jobID}", s.GetJob)
	r.Get("/api/info", s.GetInfo)
	r.Get("/healthz", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, traceparent, tracestate, baggage")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// trace continues the caller's trace for every request.
func (s *Server) trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := s.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.observer.ObserveRequest(r.Method, route, code, time.Since(start))
	})
}

// Submit handles POST /api/optimize.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid multipart body: %v", err))
		s.logger.Warn("Submit: invalid body", "error", err)
		return
	}

	file, _, err := r.FormFile(wire.FieldMesh)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, wire.FieldMesh+" is required")
		return
	}
	defer file.Close()
	stl, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("failed to read %s: %v", wire.FieldMesh, err))
		return
	}

	raw := r.FormValue(wire.FieldParams)
	if raw == "" {
		writeDetail(w, http.StatusUnprocessableEntity, wire.FieldParams+" is required")
		return
	}
	params, err := wire.DecodeParams([]byte(raw))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id, err := s.Jobs.Submit(r.Context(), stl, params)
	if err != nil {
		if devserver.IsValidationError(err) {
			writeDetail(w, http.StatusUnprocessableEntity, err.Error())
			s.logger.Warn("Submit: rejected", "error", err)
			return
		}
		http.Error(w, fmt.Sprintf("Submit error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Submit failed", "error", err)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("job.id", id))
	writeJSON(w, http.StatusOK, wire.SubmitResponse{JobID: id}, s.logger)
}

// StreamProgress handles GET /api/optimize/{jobID}/progress (SSE). Reports are
// sent in order from an offset, followed by one terminal message.
func (s *Server) StreamProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	ctx := r.Context()

	rec, snaps, err := s.Jobs.Progress(ctx, id, 0)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("StreamProgress: Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With("job_id", id)
	logger.Info("SSE: client subscribed")

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	sent := 0
	for {
		for _, snap := range snaps {
			if err := s.send(w, wire.Event{Kind: wire.EventProgress, Progress: snap}); err != nil {
				logger.Debug("SSE: write failed", "error", err)
				return
			}
		}
		sent += len(snaps)
		flusher.Flush()

		switch rec.Status {
		case ports.StatusComplete:
			_ = s.send(w, wire.Event{Kind: wire.EventComplete})
			flusher.Flush()
			return
		case ports.StatusFailed:
			_ = s.send(w, wire.Event{Kind: wire.EventError, Message: rec.ErrorMessage})
			flusher.Flush()
			return
		}

		select {
		case <-ctx.Done():
			logger.Info("SSE: client disconnected", "sent", sent)
			return
		case <-ticker.C:
		}

		rec, snaps, err = s.Jobs.Progress(ctx, id, sent)
		if err != nil {
			logger.Warn("SSE: job lookup failed", "error", err)
			_ = s.send(w, wire.Event{Kind: wire.EventError, Message: err.Error()})
			flusher.Flush()
			return
		}
	}
}

func (s *Server) send(w io.Writer, e wire.Event) error {
	payload, err := wire.EncodeEvent(e)
	if err != nil {
		return err
	}
	return writeEvent(w, payload)
}

// GetResult handles GET /api/optimize/{jobID}/result.
func (s *Server) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	data, err := s.Jobs.Result(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=optimized.stl")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("GetResult: write failed", "job_id", id, "error", err)
	}
}

// GetJob handles GET /api/jobs/{jobID}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec, s.logger)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles GET /api/info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "abyss-devserver",
		"version": s.version,
	}, s.logger)
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrResultNotReady):
		http.Error(w, "Result not ready", http.StatusConflict)
	default:
		http.Error(w, fmt.Sprintf("Lookup error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Job lookup failed", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail}, nil)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("Response encode failed", "error", err)
	}
}
