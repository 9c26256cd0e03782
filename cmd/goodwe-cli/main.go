// Goodwe-cli is a diagnostic utility for GoodWe-class solar inverters.
//
// It provides LAN discovery, device identification, runtime data readout,
// and setting validation over the inverter's native UDP protocol or the
// Modbus-TCP variant. No cloud account or vendor app is required; the
// tool talks to the inverter directly.
//
// Usage:
//
//	goodwe-cli [command] [flags]
//
// See 'goodwe-cli --help' for available commands. Set GOODWE_LOG_LEVEL
// (debug, info, warn, error) to enable protocol logging.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solarkit/goodwe-lan/internal/logging"
	"github.com/solarkit/goodwe-lan/internal/version"
)

func main() {
	if err := logging.InitializeFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "goodwe-cli",
	Short: "GoodWe Inverter Diagnostic Utility",
	Long: `A standalone utility for talking to GoodWe-class solar inverters over a LAN.

Provides broadcast discovery, device identification, runtime sensor readout,
and setting validation using the inverter's native UDP protocol (port 8899)
or its Modbus-TCP variant.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("goodwe-cli %s\n", version.Full())
	},
}
