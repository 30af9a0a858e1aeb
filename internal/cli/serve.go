package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/abyss"
	"github.com/aretw0/abyss/internal/config"
	httpAdapter "github.com/aretw0/abyss/pkg/adapters/http"
	"github.com/aretw0/abyss/pkg/adapters/memory"
	"github.com/aretw0/abyss/pkg/adapters/redis"
	"github.com/aretw0/abyss/pkg/devserver"
	"github.com/aretw0/abyss/pkg/observability"
	"github.com/aretw0/abyss/pkg/persistence/middleware"
	"github.com/aretw0/abyss/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownGrace bounds how long in-flight requests and jobs get on exit.
const shutdownGrace = 5 * time.Second

// DevServer is an assembled development optimization service.
type DevServer struct {
	Handler http.Handler
	Service *devserver.Service

	closers []func() error
}

// NewDevServer builds the job store, service and HTTP handler described by
// cfg. Metrics are registered against reg.
func NewDevServer(ctx context.Context, cfg config.Config, reg *prometheus.Registry, logger *slog.Logger) (*DevServer, error) {
	ds := &DevServer{}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		ds.closers = append(ds.closers, c.Close)
	}
	enc, err := cfg.Server.Encryption()
	if err != nil {
		ds.Close()
		return nil, err
	}
	if enc != nil {
		mw, err := middleware.NewEncryptionMiddleware(*enc)
		if err != nil {
			ds.Close()
			return nil, err
		}
		store = middleware.Chain(store, mw)
		logger.Info("Result encryption enabled", "fallback_keys", len(enc.FallbackKeys))
	}

	collector, err := observability.NewCollector(reg)
	if err != nil {
		ds.Close()
		return nil, err
	}

	tp, shutdown, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		ds.Close()
		return nil, err
	}
	ds.closers = append(ds.closers, func() error {
		observability.ShutdownWithTimeout(context.Background(), shutdown, logger)
		return nil
	})

	ds.Service = devserver.New(store,
		devserver.WithLogger(logger),
		devserver.WithSolver(devserver.SyntheticSolver{StepDelay: cfg.Server.StepDelay}),
		devserver.WithMetrics(collector),
		devserver.WithJobTimeout(cfg.Server.JobTimeout),
	)
	ds.Handler = httpAdapter.NewHandler(ds.Service,
		httpAdapter.WithServerLogger(logger),
		httpAdapter.WithPollInterval(cfg.Server.PollInterval),
		httpAdapter.WithMetricsHandler(collector.Handler()),
		httpAdapter.WithRequestObserver(collector),
		httpAdapter.WithVersion(abyss.Version),
		httpAdapter.WithServerTracerProvider(tp),
	)
	return ds, nil
}

// Shutdown stops accepting jobs and waits for running ones.
func (ds *DevServer) Shutdown(ctx context.Context) error {
	return ds.Service.Shutdown(ctx)
}

// Close releases the store and flushes traces.
func (ds *DevServer) Close() error {
	var errs []error
	for i := len(ds.closers) - 1; i >= 0; i-- {
		errs = append(errs, ds.closers[i]())
	}
	ds.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.JobStore, error) {
	switch cfg.Server.Store {
	case config.StoreRedis:
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
		)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
		}
		logger.Info("Using redis job store", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return store, nil
	default:
		logger.Info("Using in-memory job store")
		return memory.NewStore(), nil
	}
}

// Serve runs the development service until ctx is cancelled. ready, when
// non-nil, receives the bound address once the listener is open.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger, ready func(addr string)) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ds, err := NewDevServer(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer ds.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	srv := &http.Server{
		Handler:           ds.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting optimization service", "addr", ln.Addr().String(), "store", cfg.Server.Store)
		serverErrors <- srv.Serve(ln)
	}()
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Start shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	// Jobs first so open progress streams see their terminal event.
	if err := ds.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Jobs did not finish in time", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown did not complete", "timeout", shutdownGrace, "err", err)
		if err := srv.Close(); err != nil {
			logger.Error("Error killing server", "err", err)
		}
	}
	logger.Info("Optimization service stopped")
	return nil
}
