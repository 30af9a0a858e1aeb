package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/abyss"
	"github.com/aretw0/abyss/internal/config"
	"github.com/aretw0/abyss/internal/presentation/tui"
	"github.com/aretw0/abyss/internal/scenario"
	httpAdapter "github.com/aretw0/abyss/pkg/adapters/http"
	"github.com/aretw0/abyss/pkg/adapters/scene"
	"github.com/aretw0/abyss/pkg/binding"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/observability"
	"github.com/aretw0/abyss/pkg/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrJobNotComplete is returned when a run ends in Error or Cancelled.
var ErrJobNotComplete = errors.New("job did not complete")

// RunOptions contains the configuration for the run command.
type RunOptions struct {
	ScenarioPath string
	// Output is where the optimized STL is written. Empty derives it from
	// the scenario file name.
	Output string
	// Quiet suppresses the banner, progress lines and summary.
	Quiet bool
	// Plain disables terminal styling even on a TTY.
	Plain bool
	// MetricsPath, when set, receives the run's metrics in the Prometheus
	// text format.
	MetricsPath string
}

// RunResult reports a finished run.
type RunResult struct {
	Job        domain.Job
	Markers    int
	OutputPath string
}

// Run plays a scenario against the optimization service and writes the
// optimized mesh. The first interrupt cancels the job, a second one aborts.
func Run(ctx context.Context, cfg config.Config, opts RunOptions, stdout io.Writer, logger *slog.Logger) (*RunResult, error) {
	sc, err := scenario.Load(opts.ScenarioPath)
	if err != nil {
		return nil, err
	}
	solverCfg, err := sc.ApplySolver(cfg.Solver)
	if err != nil {
		return nil, err
	}
	if err := solverCfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario solver settings: %w", err)
	}
	meshBytes, err := sc.MeshBytes()
	if err != nil {
		return nil, err
	}

	live := !opts.Plain && tui.IsTerminal(stdout)
	if !opts.Quiet && live {
		tui.PrintBanner(stdout, abyss.Version)
	}

	if cfg.Tracing.Writer == nil {
		cfg.Tracing.Writer = os.Stderr
	}
	tp, shutdown, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, logger)

	client := httpAdapter.NewClient(cfg.Service.URL,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithTracerProvider(tp),
		httpAdapter.WithRequestTimeout(cfg.Service.RequestTimeout),
	)
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return nil, err
	}
	if opts.MetricsPath != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(opts.MetricsPath, reg); err != nil {
				logger.Warn("Failed to write metrics", "path", opts.MetricsPath, "err", err)
			}
		}()
	}

	view := scene.New(scene.WithLogger(logger))
	wb := abyss.New(client,
		abyss.WithLogger(logger),
		abyss.WithRenderer(view),
		abyss.WithSolverConfig(solverCfg),
		abyss.WithBindingOptions(
			binding.WithLoadMagnitude(cfg.Workbench.LoadMagnitude),
			binding.WithGlyphSize(cfg.Workbench.GlyphLength, cfg.Workbench.GlyphRadius),
			binding.WithMetrics(collector),
		),
		abyss.WithOrchestratorOptions(orchestrator.WithHooks(collector.OrchestratorHooks(debugHooks(logger)))),
	)
	defer wb.Close()

	if err := wb.LoadMesh(meshBytes); err != nil {
		return nil, err
	}
	if _, err := sc.Play(wb); err != nil {
		return nil, err
	}
	logger.Info("Scenario loaded", "scenario", sc.Name, "markers", wb.Markers().Len())

	sigCtx := NewSignalContext(ctx, func() {
		if !opts.Quiet {
			printSystemMessage(stdout, "Cancelling job (interrupt again to abort)...")
		}
		wb.Cancel()
	})
	defer sigCtx.Cancel()

	printer := tui.NewProgressPrinter(io.Discard, false)
	if !opts.Quiet {
		printer = tui.NewProgressPrinter(stdout, live)
	}
	updates, unsubscribe := wb.SubscribeJob()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for job := range updates {
			printer.Update(job)
		}
	}()

	runErr := wb.Run(sigCtx)
	job, waitErr := wb.Wait(sigCtx)
	unsubscribe()
	<-printed
	printer.Update(job)
	printer.Finish()

	if runErr != nil {
		return &RunResult{Job: job}, runErr
	}
	if waitErr != nil {
		return &RunResult{Job: job}, waitErr
	}

	res := &RunResult{Job: job, Markers: wb.Markers().Len()}
	if job.State == domain.JobComplete {
		results := view.Results()
		if len(results) == 0 {
			return res, fmt.Errorf("%w: no result received", ErrJobNotComplete)
		}
		res.OutputPath = outputPath(opts)
		if err := os.WriteFile(res.OutputPath, results[len(results)-1], 0o644); err != nil {
			return res, fmt.Errorf("failed to write result: %w", err)
		}
		logger.Info("Result written", "path", res.OutputPath, "bytes", len(results[len(results)-1]))
	}

	if !opts.Quiet {
		render := tui.NewPlainRenderer()
		if live {
			render = tui.NewRenderer(tui.Width(stdout, 80))
		}
		title := sc.Name
		if title == "" {
			title = filepath.Base(opts.ScenarioPath)
		}
		out, err := render(tui.Summary(title, solverCfg, wb.Markers(), job))
		if err != nil {
			logger.Warn("Failed to render summary", "err", err)
		} else {
			fmt.Fprintln(stdout, out)
		}
		if res.OutputPath != "" {
			printSystemMessage(stdout, "Optimized mesh written to %s", res.OutputPath)
		}
	}

	if job.State != domain.JobComplete {
		return res, fmt.Errorf("%w: %s %s", ErrJobNotComplete, job.State, job.Error)
	}
	return res, nil
}

func outputPath(opts RunOptions) string {
	if opts.Output != "" {
		return opts.Output
	}
	base := strings.TrimSuffix(opts.ScenarioPath, filepath.Ext(opts.ScenarioPath))
	return base + ".optimized.stl"
}
