package observability

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/orchestrator"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func newCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	return c, reg
}

func TestCollector_MarkerCounts(t *testing.T) {
	c, _ := newCollector(t)
	c.SetMarkerCounts(2, 1, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Markers.WithLabelValues("fixed_support")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Markers.WithLabelValues("load_vector")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.GlyphHandles))
}

func TestCollector_OrchestratorHooks(t *testing.T) {
	c, _ := newCollector(t)
	var forwarded int
	hooks := c.OrchestratorHooks(orchestrator.Hooks{
		OnTransition: func(context.Context, orchestrator.StateChange) { forwarded++ },
	})

	ctx := context.Background()
	hooks.OnTransition(ctx, orchestrator.StateChange{From: domain.JobIdle, To: domain.JobSubmitting})
	hooks.OnTransition(ctx, orchestrator.StateChange{From: domain.JobSubmitting, To: domain.JobRunning})
	hooks.OnProgress(ctx, domain.ProgressSnapshot{Iteration: 7, Change: 0.25})
	hooks.OnResult(ctx, "job", 2048)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues("idle", "submitting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Transitions.WithLabelValues("submitting", "running")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.ProgressIter))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.ProgressChange))
	assert.Equal(t, 2, forwarded)
}

func TestCollector_DevServer(t *testing.T) {
	c, reg := newCollector(t)
	c.JobStarted()
	c.JobStarted()
	c.JobFinished(ports.StatusComplete, time.Second)
	c.JobFinished(ports.StatusFailed, time.Millisecond)
	c.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
	c.ObserveRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.JobsStarted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsFinished.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.JobsFinished.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Requests.WithLabelValues("GET", "unmatched", "404")))

	count, err := testutil.GatherAndCount(reg, "abyss_devserver_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCollector_ReRegisterReuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)

	a.JobStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.JobsStarted))
}

func TestCollector_Handler(t *testing.T) {
	c, _ := newCollector(t)
	c.JobStarted()

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "abyss_devserver_jobs_started_total 1")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetMarkerCounts(1, 1, 1)
		c.JobStarted()
		c.JobFinished(ports.StatusComplete, 0)
		c.ObserveRequest("GET", "/", 200, 0)
	})
}

func TestInitTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("Disabled", func(t *testing.T) {
		tp, shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
		require.NoError(t, err)
		_, span := tp.Tracer("test").Start(context.Background(), "noop")
		assert.False(t, span.SpanContext().IsValid())
		span.End()
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("Stdout", func(t *testing.T) {
		var buf bytes.Buffer
		tp, shutdown, err := InitTracing(context.Background(), TracingConfig{
			Enabled:     true,
			ServiceName: "abyss-test",
			Writer:      &buf,
		}, nil)
		require.NoError(t, err)

		_, span := tp.Tracer("test").Start(context.Background(), "submit")
		span.End()
		ShutdownWithTimeout(context.Background(), shutdown, nil)

		assert.Contains(t, buf.String(), `"Name": "submit"`)
		assert.Contains(t, buf.String(), "abyss-test")
	})

	t.Run("Unknown Exporter", func(t *testing.T) {
		_, _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
		assert.Error(t, err)
	})
}
