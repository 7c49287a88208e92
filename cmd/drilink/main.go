// Drilink reads physiological data from Datex-Ohmeda patient monitors over
// the DRI serial protocol.
//
// It connects to a monitor (or a drilink-sim simulator), asks it to send
// numerics and waveforms, and writes the decoded values to CSV, JSON lines,
// a trend store or a live terminal view. Raw traffic can be captured to a
// pcap file and replayed later.
//
// Usage:
//
//	drilink [command] [flags]
//
// See 'drilink --help' for available commands.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/config"
	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/transport"
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
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "drilink",
	Short: "Datex-Ohmeda DRI Telemetry Reader",
	Long: `Read physiological data from Datex-Ohmeda patient monitors over the
DRI (Data Record Interface) serial protocol.

The reader talks to a monitor on a serial port, or to a simulator or serial
bridge over WebSocket or TCP. Decoded numerics, waveforms and alarms can be
written to CSV, JSON lines, a local trend store or shown live.

For a monitor to test against, use the separate 'drilink-sim' utility.`,
	Version: version.Version,
	Example: `  # Read from a serial port, JSON lines on stdout
  drilink read --port /dev/ttyUSB0

  # Live view of a simulator
  drilink read --port ws://localhost:8765/dri --tui

  # Record a session and replay it later
  drilink read --port /dev/ttyUSB0 --capture session.pcap --store trends.db
  drilink replay session.pcap --csv session.csv`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless --log-level or DRILINK_LOG_LEVEL is set
		return logging.InitializeWithOutput(logLevel, logFile)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is $XDG_CONFIG_HOME/drilink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides DRILINK_LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stdout")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Banner("drilink"))
	},
}

// loadConfig reads --config, or the default config file when the flag is
// not set. A missing default file yields the defaults.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// troubleshooting turns a transport hint into bullet points for a failure box
func troubleshooting(err error) []string {
	var tips []string
	for _, line := range strings.Split(transport.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, strings.TrimPrefix(line, "• "))
	}
	if transport.IsRetryable(err) {
		tips = append(tips, "The failure may be temporary, run the command again")
	}
	return tips
}
