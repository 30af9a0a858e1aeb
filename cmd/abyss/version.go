package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/abyss"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of abyss",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "abyss version %s\n", strings.TrimSpace(abyss.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
