package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rpcgate",
	Short: "Typed, schema-validated RPC dispatch engine",
	Long: `rpcgate is a transport-agnostic RPC framework core: procedures are
declared with schemas and middleware, composed into an immutable
routing table, and dispatched with validation, telemetry, and bounded
batch execution.

Quick start:
  rpcgate serve     # Start the demo server (HTTP + WebSocket)
  rpcgate routes    # Print the routing table

Management:
  rpcgate validate  # Validate configuration and declarations
  rpcgate version   # Show version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
}
