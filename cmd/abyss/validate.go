package main

import (
	"errors"
	"fmt"

	"github.com/aretw0/abyss/internal/scenario"
	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/mesh"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.yaml...]",
	Short: "Check the configuration and scenarios",
	Long: `Loads the configuration, then parses each scenario, its mesh and its
solver overrides, reporting every problem found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		var errs []error
		for _, path := range args {
			if err := validateScenario(path, cfg.Solver); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid! ✅\n", path)
		}
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("validation failed:\n%w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateScenario(path string, base domain.SolverConfig) error {
	sc, err := scenario.Load(path)
	if err != nil {
		return err
	}
	cfg, err := sc.ApplySolver(base)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := sc.MeshBytes()
	if err != nil {
		return err
	}
	if _, err := mesh.Parse(data); err != nil {
		return fmt.Errorf("mesh: %w", err)
	}
	return nil
}
