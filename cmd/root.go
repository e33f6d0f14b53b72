// Package cmd defines the CLI commands for the report-relay executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report-relay",
		Short: "Resolves message-referenced report files and relays them to routed webhooks.",
		Long: `report-relay listens for message webhooks, resolves the referenced
message through the upstream API, downloads the linked report through a shared
headless-browser engine, and re-uploads it to a filename-routed destination
webhook.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// A local .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		os.Exit(1)
	}
}
