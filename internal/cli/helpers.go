package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/abyss/internal/config"
	"github.com/aretw0/abyss/internal/logging"
	"github.com/aretw0/abyss/pkg/orchestrator"
)

// SignalContext is cancelled on the second SIGINT or SIGTERM. The first one
// runs the interrupt callback, which lets a run cancel its job and report
// the outcome before exiting.
type SignalContext struct {
	context.Context
	Cancel func()

	sigCh chan os.Signal
	stop  sync.Once
	mu    sync.Mutex
	count int
}

// NewSignalContext starts listening for signals. onInterrupt may be nil, in
// which case the first signal cancels the context.
func NewSignalContext(parent context.Context, onInterrupt func()) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 2),
	}
	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer sc.stop.Do(func() { signal.Stop(sc.sigCh) })
		for {
			select {
			case <-sc.sigCh:
				if sc.interrupt() == 1 && onInterrupt != nil {
					onInterrupt()
					continue
				}
				sc.Cancel()
				return
			case <-sc.Done():
				return
			}
		}
	}()
	return sc
}

func (sc *SignalContext) interrupt() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.count++
	return sc.count
}

// Interrupted reports how many signals were received.
func (sc *SignalContext) Interrupted() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.count
}

// NewLogger builds the application logger from the log settings.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format := logging.Format(cfg.Format)
	if format != logging.FormatJSON {
		format = logging.FormatText
	}
	return logging.NewWithWriter(w, level, format), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func debugHooks(logger *slog.Logger) orchestrator.Hooks {
	return orchestrator.Hooks{
		OnTransition: func(ctx context.Context, c orchestrator.StateChange) {
			logger.Debug("Job transition", "from", c.From, "to", c.To, "job_id", c.Job.ID)
		},
		OnResult: func(ctx context.Context, jobID string, size int) {
			logger.Debug("Result received", "job_id", jobID, "bytes", size)
		},
	}
}
