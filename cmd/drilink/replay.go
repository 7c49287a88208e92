package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/capture"
	"github.com/muurk/drilink/internal/protocol"
	"github.com/muurk/drilink/internal/ui"
)

// Replay command flags
var (
	replaySpeed     float64
	replayDirection string
	replayOut       outputFlags
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Decode a recorded capture",
	Long: `Decode the traffic recorded by 'drilink read --capture' or
'drilink-sim run --capture' as if it came from a live monitor.

By default the capture is decoded as fast as possible. --speed 1 replays in
real time, which is useful with --tui.`,
	Example: `  # Convert a capture to CSV
  drilink replay session.pcap --csv session.csv

  # Watch it again at twice the recorded speed
  drilink replay session.pcap --tui --speed 2

  # Show the requests that were sent to the monitor
  drilink replay session.pcap --direction tx`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed factor (0 = as fast as possible)")
	replayCmd.Flags().StringVar(&replayDirection, "direction", "rx", "Side of the link to decode (rx = from monitor, tx = to monitor)")
	addOutputFlags(replayCmd, &replayOut)

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tables, err := cfg.Tables()
	if err != nil {
		return err
	}

	var dir capture.Direction
	switch replayDirection {
	case "rx":
		dir = capture.FromMonitor
	case "tx":
		dir = capture.ToMonitor
	default:
		return fmt.Errorf("invalid --direction %q (want rx or tx)", replayDirection)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	src := capture.NewReplay(r, capture.WithSpeed(replaySpeed), capture.WithDirection(dir))

	// stdout may carry JSON lines, so decoration goes to stderr
	p := ui.NewPrinter(cmd.ErrOrStderr())
	outs, err := openOutputs(replayOut, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer outs.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := runSession(ctx, "Replay", args[0], src, protocol.NewDecoder(tables), outs.Handler(), replayOut.tui)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		p.PrintFailure("Replay failed", err)
		return err
	}

	if !replayOut.tui {
		p.PrintSuccess("Capture replayed", append([]ui.Field{ui.F("File", args[0]), ui.F("Direction", dir.String())}, summary(stats)...)...)
	}
	return nil
}
