package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/aretw0/abyss/pkg/wire"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/aretw0/abyss/pkg/adapters/http"

// ErrStreamEnded is reported when the progress stream closes before a
// terminal message.
var ErrStreamEnded = errors.New("progress stream ended before a terminal message")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Detail)
}

// Client implements ports.Transport against the optimization service.
type Client struct {
	baseURL    string
	http       *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	timeout    time.Duration
}

var _ ports.Transport = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces http.DefaultClient. Its Timeout must be zero or
// long enough for a whole progress stream.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// WithRequestTimeout bounds submit and fetch calls. The progress stream is
// not bounded.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  logging.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads the mesh and params as multipart form data.
func (c *Client) Submit(ctx context.Context, mesh []byte, params wire.Params) (string, error) {
	ctx, span := c.tracer.Start(ctx, "abyss.submit", trace.WithAttributes(
		attribute.Int("mesh.bytes", len(mesh)),
		attribute.Int("params.fixed_supports", len(params.FixedSupports)),
		attribute.Int("params.load_vectors", len(params.LoadVectors)),
	))
	defer span.End()

	body, contentType, err := encodeSubmit(mesh, params)
	if err != nil {
		return "", c.fail(span, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+wire.SubmitPath, body)
	if err != nil {
		return "", c.fail(span, err)
	}
	req.Header.Set("Content-Type", contentType)
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.fail(span, fmt.Errorf("submit failed: %w", err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return "", c.fail(span, readStatusError(resp))
	}
	var out wire.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.fail(span, fmt.Errorf("failed to decode submit response: %w", err))
	}
	if out.JobID == "" {
		return "", c.fail(span, errors.New("submit response has no job_id"))
	}
	span.SetAttributes(attribute.String("job.id", out.JobID))
	c.logger.Debug("Job submitted", "job_id", out.JobID)
	return out.JobID, nil
}

func encodeSubmit(mesh []byte, params wire.Params) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(wire.FieldMesh, wire.MeshFilename)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(mesh); err != nil {
		return nil, "", err
	}
	doc, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode params: %w", err)
	}
	if err := mw.WriteField(wire.FieldParams, string(doc)); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Subscribe opens the progress stream. The connection is established before
// it returns; events are then delivered on a reader goroutine.
func (c *Client) Subscribe(ctx context.Context, jobID string, h ports.StreamHandler) (ports.Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	streamCtx, span := c.tracer.Start(streamCtx, "abyss.progress", trace.WithAttributes(
		attribute.String("job.id", jobID),
	))

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+wire.ProgressPath(jobID), nil)
	if err != nil {
		err = c.fail(span, err)
		span.End()
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.propagator.Inject(streamCtx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		err = c.fail(span, fmt.Errorf("progress stream failed: %w", err))
		span.End()
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		err := c.fail(span, readStatusError(resp))
		resp.Body.Close()
		span.End()
		cancel()
		return nil, err
	}

	sub := &subscription{cancel: cancel}
	go sub.read(resp.Body, h, span, c.logger.With("job_id", jobID))
	return sub, nil
}

type subscription struct {
	cancel context.CancelFunc
	closed atomic.Bool
	once   sync.Once
}

// Close cancels the request; the reader goroutine exits on its own.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

func (s *subscription) read(body io.ReadCloser, h ports.StreamHandler, span trace.Span, logger *slog.Logger) {
	defer span.End()
	defer body.Close()
	defer s.cancel()

	events := 0
	r := newEventReader(body)
	for {
		payload, err := r.Next()
		if s.closed.Load() {
			span.SetAttributes(attribute.Int("stream.events", events), attribute.Bool("stream.closed", true))
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamEnded
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Progress stream failed", "error", err, "events", events)
			h.OnError(err)
			return
		}

		ev, err := wire.DecodeEvent(payload)
		if err != nil {
			logger.Warn("Skipping malformed stream message", "error", err)
			continue
		}
		if s.closed.Load() {
			span.SetAttributes(attribute.Int("stream.events", events), attribute.Bool("stream.closed", true))
			return
		}
		events++
		h.OnEvent(ev)
		if ev.Terminal() {
			span.SetAttributes(attribute.Int("stream.events", events), attribute.String("stream.outcome", ev.Kind.String()))
			return
		}
	}
}

// FetchResult downloads the optimized mesh.
func (c *Client) FetchResult(ctx context.Context, jobID string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "abyss.fetch_result", trace.WithAttributes(
		attribute.String("job.id", jobID),
	))
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+wire.ResultPath(jobID), nil)
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("fetch failed: %w", err))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(span, readStatusError(resp))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(span, fmt.Errorf("failed to read result: %w", err))
	}
	span.SetAttributes(attribute.Int("result.bytes", len(data)))
	return data, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// readStatusError builds a StatusError from a {"detail": ...} body when one
// is present, falling back to the raw text.
func readStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	se := &StatusError{Code: resp.StatusCode}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			se.Detail = s
		} else {
			se.Detail = string(body.Detail)
		}
		return se
	}
	se.Detail = strings.TrimSpace(string(raw))
	return se
}
