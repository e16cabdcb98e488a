// Package cmd defines the CLI commands for the buddi-chain executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buddi-chain",
		Short: "Ingests Buddi conversations and anchors them on-chain.",
		Long: `buddi-chain periodically fetches conversation summaries from the
Buddi API, enriches them with sentiment and quality analytics, anchors each
one on an aeternity-style ledger, and persists the result. An HTTP control
surface exposes scheduler start/stop, manual fetches, live configuration
updates and status.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
