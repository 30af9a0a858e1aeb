package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/orchestrator"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the workbench and the
// development service.
type Collector struct {
	gatherer prometheus.Gatherer

	Markers      *prometheus.GaugeVec
	GlyphHandles prometheus.Gauge

	Transitions    *prometheus.CounterVec
	ProgressIter   prometheus.Gauge
	ProgressChange prometheus.Gauge
	ResultBytes    prometheus.Histogram

	JobsStarted  prometheus.Counter
	JobsFinished *prometheus.CounterVec
	JobDurations prometheus.Histogram

	Requests         *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec
}

// NewCollector registers all metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the
// existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	c := &Collector{gatherer: gatherer}

	var err error
	if c.Markers, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "abyss_markers",
		Help: "Current number of placed markers, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.GlyphHandles, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "abyss_glyph_handles",
		Help: "Current number of live marker glyphs.",
	})); err != nil {
		return nil, err
	}
	if c.Transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abyss_job_transitions_total",
		Help: "Job state transitions observed by the orchestrator.",
	}, []string{"from", "to"})); err != nil {
		return nil, err
	}
	if c.ProgressIter, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "abyss_job_iteration",
		Help: "Iteration of the most recent progress report.",
	})); err != nil {
		return nil, err
	}
	if c.ProgressChange, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "abyss_job_change",
		Help: "Design change of the most recent progress report.",
	})); err != nil {
		return nil, err
	}
	if c.ResultBytes, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "abyss_result_bytes",
		Help:    "Size of downloaded result meshes.",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})); err != nil {
		return nil, err
	}
	if c.JobsStarted, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "abyss_devserver_jobs_started_total",
		Help: "Jobs accepted by the development service.",
	})); err != nil {
		return nil, err
	}
	if c.JobsFinished, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abyss_devserver_jobs_finished_total",
		Help: "Jobs finished by the development service, labeled by status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if c.JobDurations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "abyss_devserver_job_duration_seconds",
		Help:    "Solver run time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})); err != nil {
		return nil, err
	}
	if c.Requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abyss_http_requests_total",
		Help: "HTTP requests served, labeled by method, route and status code.",
	}, []string{"method", "route", "code"})); err != nil {
		return nil, err
	}
	if c.RequestDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "abyss_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetMarkerCounts implements binding.Metrics.
func (c *Collector) SetMarkerCounts(fixed, load, handles int) {
	if c == nil {
		return
	}
	c.Markers.WithLabelValues(string(domain.KindFixedSupport)).Set(float64(fixed))
	c.Markers.WithLabelValues(string(domain.KindLoadVector)).Set(float64(load))
	c.GlyphHandles.Set(float64(handles))
}

// OrchestratorHooks returns hooks that record transitions, progress and
// result sizes. extra, when non-nil, is called after recording.
func (c *Collector) OrchestratorHooks(extra orchestrator.Hooks) orchestrator.Hooks {
	return orchestrator.Hooks{
		OnTransition: func(ctx context.Context, sc orchestrator.StateChange) {
			c.Transitions.WithLabelValues(string(sc.From), string(sc.To)).Inc()
			if extra.OnTransition != nil {
				extra.OnTransition(ctx, sc)
			}
		},
		OnProgress: func(ctx context.Context, p domain.ProgressSnapshot) {
			c.ProgressIter.Set(float64(p.Iteration))
			c.ProgressChange.Set(p.Change)
			if extra.OnProgress != nil {
				extra.OnProgress(ctx, p)
			}
		},
		OnResult: func(ctx context.Context, jobID string, size int) {
			c.ResultBytes.Observe(float64(size))
			if extra.OnResult != nil {
				extra.OnResult(ctx, jobID, size)
			}
		},
	}
}

// JobStarted implements devserver.Metrics.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.JobsStarted.Inc()
}

// JobFinished implements devserver.Metrics.
func (c *Collector) JobFinished(status ports.JobStatus, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.JobsFinished.WithLabelValues(string(status)).Inc()
	c.JobDurations.Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request.
func (c *Collector) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.Requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	c.RequestDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// register adds col to reg, returning the already registered collector of
// the same type when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, col C) (C, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero C
		return zero, err
	}
	return col, nil
}
