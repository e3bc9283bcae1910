package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "dealflow",
		Short:         "Dealflow - commission and payment recalculation engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (DEALFLOW_* env vars override it)")

	// Add subcommands
	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(seedCmd(&configPath))
	rootCmd.AddCommand(recomputeCmd(&configPath))
	rootCmd.AddCommand(overrideCmd(&configPath))
	rootCmd.AddCommand(clearOverrideCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))

	return rootCmd
}
