// Package graph renders the job state machine as a Mermaid state diagram.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/orchestrator"
)

// Edge is one accepted transition between two machine states.
type Edge struct {
	From  string
	To    string
	Event orchestrator.EventKind
}

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []string
	CurrentState  string
}

// StateLabel names a machine state. A running job waiting for its result is
// shown separately from one still streaming.
func StateLabel(m orchestrator.Machine) string {
	if m.Job.State == domain.JobRunning && m.Fetching {
		return "running (fetching)"
	}
	return string(m.Job.State)
}

var sampleEvents = []orchestrator.Event{
	{Kind: orchestrator.EvSubmitRequested},
	{Kind: orchestrator.EvValidationFailed, Message: "invalid"},
	{Kind: orchestrator.EvSubmitSucceeded, JobID: "job"},
	{Kind: orchestrator.EvSubmitFailed, Message: "refused"},
	{Kind: orchestrator.EvProgress, Progress: domain.ProgressSnapshot{Iteration: 1, MaxIterations: 2}},
	{Kind: orchestrator.EvStreamComplete},
	{Kind: orchestrator.EvStreamError, Message: "diverged"},
	{Kind: orchestrator.EvStreamFailed},
	{Kind: orchestrator.EvFetchSucceeded},
	{Kind: orchestrator.EvFetchFailed},
	{Kind: orchestrator.EvCancel},
	{Kind: orchestrator.EvReset},
}

// Explore walks every state reachable from Idle by feeding each event kind
// through orchestrator.Transition. Ignored events produce no edge.
func Explore() []Edge {
	start := orchestrator.NewMachine()
	seen := map[string]bool{StateLabel(start): true}
	queue := []orchestrator.Machine{start}
	edgeSet := map[Edge]bool{}

	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		from := StateLabel(m)
		for _, e := range sampleEvents {
			next, act := orchestrator.Transition(m, e)
			if next == m && act == orchestrator.ActNone {
				continue
			}
			to := StateLabel(next)
			edgeSet[Edge{From: from, To: to, Event: e.Kind}] = true
			if !seen[to] {
				seen[to] = true
				queue = append(queue, next)
			}
		}
	}

	edges := make([]Edge, 0, len(edgeSet))
	for e := range edgeSet {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.Event != b.Event {
			return a.Event < b.Event
		}
		return a.To < b.To
	})
	return edges
}

// GenerateMermaid produces a Mermaid stateDiagram from a list of edges.
// Terminal job states get an exit arrow. Overlay styles are applied when
// provided.
func GenerateMermaid(edges []Edge, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("stateDiagram-v2\n")
	sb.WriteString(fmt.Sprintf("    [*] --> %s\n", sanitizeMermaidID(string(domain.JobIdle))))

	states := map[string]bool{}
	for _, e := range edges {
		states[e.From] = true
		states[e.To] = true
	}
	names := make([]string, 0, len(states))
	for s := range states {
		names = append(names, s)
	}
	sort.Strings(names)
	for _, s := range names {
		if id := sanitizeMermaidID(s); id != s {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", id, s))
		}
	}

	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s: %s\n", sanitizeMermaidID(e.From), sanitizeMermaidID(e.To), e.Event))
	}
	for _, s := range names {
		if domain.JobState(s).Terminal() {
			sb.WriteString(fmt.Sprintf("    %s --> [*]\n", sanitizeMermaidID(s)))
		}
	}

	// Apply Overlay Styles
	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, s := range overlay.VisitedStates {
			id := sanitizeMermaidID(s)
			if !visited[id] && id != "" {
				visited[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited\n", id))
			}
		}
		if overlay.CurrentState != "" {
			sb.WriteString(fmt.Sprintf("    class %s current\n", sanitizeMermaidID(overlay.CurrentState)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.NewReplacer(" ", "_", "(", "", ")", "", "-", "_", ".", "_").Replace(id)
	return s
}
