package main

import (
	"fmt"

	"github.com/aretw0/abyss/internal/presentation/graph"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the job state machine as a Mermaid diagram",
	Long: `Walks every state the job lifecycle can reach and prints a Mermaid
stateDiagram. Use --current to highlight a state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, _ := cmd.Flags().GetString("current")
		var overlay *graph.GraphOverlay
		if current != "" {
			overlay = &graph.GraphOverlay{CurrentState: current}
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(graph.Explore(), overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("current", "", "State to highlight (e.g. running)")
}
