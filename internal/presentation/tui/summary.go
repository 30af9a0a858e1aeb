package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/markers"
)

// Summary describes a session as markdown: solver settings, placed markers
// and the job outcome.
func Summary(title string, cfg domain.SolverConfig, snap markers.Snapshot, job domain.Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	b.WriteString("## Solver\n\n")
	b.WriteString("| grid | penal | rmin | volume fraction | max iterations | tolx |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %dx%dx%d | %g | %g | %g | %d | %g |\n\n",
		cfg.Nelx, cfg.Nely, cfg.Nelz, cfg.Penal, cfg.Rmin, cfg.VolumeFraction, cfg.MaxIterations, cfg.Tolx)

	fmt.Fprintf(&b, "## Markers (%d)\n\n", snap.Len())
	if snap.Len() == 0 {
		b.WriteString("_none placed_\n\n")
	}
	for _, f := range snap.FixedSupports {
		fmt.Fprintf(&b, "- **fixed** %s at %s\n", f.ID, vec(f.Position))
	}
	for _, l := range snap.LoadVectors {
		fmt.Fprintf(&b, "- **load** %s at %s, direction %s, magnitude %g\n", l.ID, vec(l.Position), vec(l.Direction), l.Magnitude)
	}
	if snap.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Job\n\n")
	fmt.Fprintf(&b, "- state: `%s`\n", job.State)
	if job.ID != "" {
		fmt.Fprintf(&b, "- id: `%s`\n", job.ID)
	}
	if p := job.Progress; p != nil {
		fmt.Fprintf(&b, "- iterations: %d of %d, final change %.4f, volume fraction %.3f\n",
			p.Iteration, p.MaxIterations, p.Change, p.VolumeFraction)
	}
	if job.Error != "" {
		fmt.Fprintf(&b, "- error: %s\n", job.Error)
	}
	return b.String()
}

func vec(v domain.Vec3) string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", v.X, v.Y, v.Z)
}
