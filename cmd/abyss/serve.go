package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/abyss/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the development optimization service",
	Long: `Starts a local optimization service speaking the same HTTP and SSE API as
the production solver. Jobs are solved by a fast synthetic solver and stored
in memory or redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if store, _ := cmd.Flags().GetString("store"); store != "" {
			cfg.Server.Store = store
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cli.Serve(ctx, cfg, logger, nil)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("store", "", "Job store: memory or redis (overrides config)")
}
