package main

import (
	"os"

	"github.com/aretw0/abyss/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run an optimization scenario",
	Long: `Loads the scenario's mesh, places its markers, submits the job to the
optimization service and writes the optimized STL. Press Ctrl-C once to
cancel the job, twice to abort.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.Service.URL = url
		}

		opts := cli.RunOptions{ScenarioPath: args[0]}
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")
		opts.Plain, _ = cmd.Flags().GetBool("plain")
		opts.MetricsPath, _ = cmd.Flags().GetString("metrics-out")

		_, err = cli.Run(cmd.Context(), cfg, opts, os.Stdout, logger)
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("output", "o", "", "Where to write the optimized STL (default <scenario>.optimized.stl)")
	runCmd.Flags().String("url", "", "Optimization service URL (overrides config)")
	runCmd.Flags().BoolP("quiet", "q", false, "Only log, no progress or summary")
	runCmd.Flags().Bool("plain", false, "Disable terminal styling")
	runCmd.Flags().String("metrics-out", "", "Write run metrics in Prometheus text format to this file")
}
