package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/centsible/infera/cmd/infera/commands"
)

var cfgPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infera",
		Short: "Hybrid local/remote inference router",
		Long: `infera routes inference tasks between a local and a remote backend with
confidence-gated fallback, concurrent racing and adaptive strategy selection,
and serves the routing telemetry over HTTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env if present; real env still wins.
			_ = godotenv.Load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "directory containing config.yaml")

	rootCmd.AddCommand(commands.NewServeCommand(&cfgPath))
	rootCmd.AddCommand(commands.NewConfigCommand(&cfgPath))
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
