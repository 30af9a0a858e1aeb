package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/muesli/termenv"
)

// ProgressLine formats one progress snapshot with a bar of barWidth cells.
func ProgressLine(p domain.ProgressSnapshot, barWidth int) string {
	if barWidth < 1 {
		barWidth = 1
	}
	filled := int(p.Fraction()*float64(barWidth) + 0.5)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	return fmt.Sprintf("[%s] %3d/%d  vf %.3f  change %.4f  obj %.2f  %.1fs",
		bar, p.Iteration, p.MaxIterations, p.VolumeFraction, p.Change, p.Objective, p.ElapsedSeconds)
}

// ProgressPrinter writes job updates to a terminal or a log-like stream.
// In live mode the progress line is redrawn in place.
type ProgressPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	out      *termenv.Output
	live     bool
	barWidth int

	lastState domain.JobState
	lastIter  int
	drawn     bool
}

// NewProgressPrinter returns a printer writing to w.
func NewProgressPrinter(w io.Writer, live bool) *ProgressPrinter {
	return &ProgressPrinter{
		w:        w,
		out:      termenv.NewOutput(w),
		live:     live,
		barWidth: 24,
		lastIter: -1,
	}
}

// Update renders a job snapshot. Repeated snapshots are ignored.
func (p *ProgressPrinter) Update(job domain.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if job.State != p.lastState {
		p.endLine()
		p.lastState = job.State
		p.lastIter = -1
		if line := p.stateLine(job); line != "" {
			fmt.Fprintln(p.w, line)
		}
	}
	if job.State != domain.JobRunning || job.Progress == nil || job.Progress.Iteration == p.lastIter {
		return
	}
	p.lastIter = job.Progress.Iteration

	line := ProgressLine(*job.Progress, p.barWidth)
	if !p.live {
		fmt.Fprintln(p.w, line)
		return
	}
	fmt.Fprint(p.w, "\r", line, termenv.CSI+termenv.EraseLineRightSeq)
	p.drawn = true
}

// Finish terminates a redrawn line.
func (p *ProgressPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *ProgressPrinter) endLine() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func (p *ProgressPrinter) stateLine(job domain.Job) string {
	switch job.State {
	case domain.JobSubmitting:
		return p.out.String("submitting job...").Faint().String()
	case domain.JobRunning:
		return p.out.String("job " + job.ID + " running").Foreground(p.out.Color("#38bdf8")).String()
	case domain.JobComplete:
		return p.out.String("optimization complete").Foreground(p.out.Color("#4ade80")).Bold().String()
	case domain.JobError:
		return p.out.String("optimization failed: " + job.Error).Foreground(p.out.Color("#f87171")).Bold().String()
	case domain.JobCancelled:
		return p.out.String("optimization cancelled").Foreground(p.out.Color("#fbbf24")).String()
	}
	return ""
}
