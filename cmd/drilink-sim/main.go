// Drilink-sim simulates a Datex-Ohmeda patient monitor speaking DRI.
//
// It generates plausible numerics, waveforms and alarms and sends them as
// DRI records on a serial port (through a null-modem cable) or to
// WebSocket clients such as 'drilink read --port ws://...'. Transmission
// requests from the reader are honoured.
//
// Usage:
//
//	drilink-sim run [flags]
//
// See 'drilink-sim --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "drilink-sim",
	Short: "DRI Patient Monitor Simulator",
	Long: `A patient monitor simulator speaking the Datex-Ohmeda DRI protocol.

The simulator produces numerics (heart rate, SpO2, blood pressure, gases,
temperatures), waveforms and alarm text, and sends them on a serial port or
over WebSocket. It answers PHDB and waveform transmission requests the way
a monitor does, so readers can be tested without hardware.

Note: To read the data, use the separate 'drilink' utility.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is $XDG_CONFIG_HOME/drilink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides DRILINK_LOG_LEVEL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Banner("drilink-sim"))
	},
}
