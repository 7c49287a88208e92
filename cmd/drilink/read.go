package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/drilink/internal/capture"
	"github.com/muurk/drilink/internal/config"
	"github.com/muurk/drilink/internal/export"
	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"github.com/muurk/drilink/internal/transport"
	"github.com/muurk/drilink/internal/ui"
)

// Read command flags
var (
	readPort      string
	readBaud      int
	readNoRequest bool
	readDuration  time.Duration
	readCapture   string
	readOut       outputFlags
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read live data from a monitor",
	Long: `Connect to a monitor and decode the records it sends.

On connect the reader asks the monitor for numerics (and waveforms, when
configured) using the 'requests' section of the config file. Use
--no-request for monitors that are already transmitting.

The port may be a serial device (/dev/ttyUSB0, COM3), a WebSocket URL
(ws://host:8765/dri, as served by drilink-sim) or tcp://host:port for a
serial-to-network bridge.`,
	Example: `  # JSON lines on stdout
  drilink read --port /dev/ttyUSB0

  # CSV file and trend store, stop after an hour
  drilink read --port /dev/ttyUSB0 --csv vitals.csv --store trends.db --duration 1h

  # Live view of a simulator
  drilink read --port ws://localhost:8765/dri --tui

  # Keep the raw traffic for later replay
  drilink read --port COM3 --capture session.pcap`,
	RunE: runRead,
}

func init() {
	readCmd.Flags().StringVarP(&readPort, "port", "p", "", "Serial port or URL (default from config serial.port)")
	readCmd.Flags().IntVar(&readBaud, "baud", 0, "Baud rate (default from config, 19200 for DRI)")
	readCmd.Flags().BoolVar(&readNoRequest, "no-request", false, "Do not send transmission requests on connect")
	readCmd.Flags().DurationVar(&readDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	readCmd.Flags().StringVar(&readCapture, "capture", "", "Record raw traffic to a pcap file")
	addOutputFlags(readCmd, &readOut)

	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tables, err := cfg.Tables()
	if err != nil {
		return err
	}

	address := readPort
	if address == "" {
		address = cfg.Serial.Port
	}
	if address == "" {
		return fmt.Errorf("no port given: use --port or set serial.port in the config file")
	}
	serialCfg := cfg.SerialConfig(address)
	if readBaud > 0 {
		serialCfg.BaudRate = readBaud
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if readDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, readDuration)
		defer cancel()
	}

	p := ui.NewPrinter(cmd.ErrOrStderr())
	label := transport.Describe(address)
	out := readOut.withDefaults(cfg)

	link, err := transport.Open(ctx, address, serialCfg)
	if err != nil {
		p.PrintFailure("Cannot open "+label, err, troubleshooting(err)...)
		return err
	}
	defer link.Close()
	if warning := checkClearToSend(link); warning != "" {
		p.PrintWarning(warning, ui.F("Port", label))
	}

	capturePath := readCapture
	if capturePath == "" {
		capturePath = cfg.Export.Capture
	}
	var recorder *capture.Recorder
	if capturePath != "" {
		f, err := os.Create(capturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		if recorder, err = capture.NewRecorder(f); err != nil {
			return err
		}
		link = recorder.Tap(link)
	}

	outs, err := openOutputs(out, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer outs.Close()

	requests := "off"
	if cfg.Requests.Enabled && !readNoRequest {
		if requests, err = sendRequests(link, protocol.NewEncoder(tables), cfg); err != nil {
			return err
		}
	}

	if !out.tui {
		fields := []ui.Field{ui.F("Port", label)}
		if !strings.Contains(address, "://") || strings.HasPrefix(address, "serial://") {
			fields = append(fields, ui.F("Line", lineSettings(serialCfg)))
		}
		fields = append(fields, ui.F("Requests", requests))
		if capturePath != "" {
			fields = append(fields, ui.F("Capture", capturePath))
		}
		p.PrintHeader("Live read", "drilink read", fields...)
	}

	stats, err := runSession(ctx, "Live read", label, link, protocol.NewDecoder(tables), outs.Handler(), out.tui)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		p.PrintFailure("Session failed", err, troubleshooting(err)...)
		return err
	}

	if !out.tui {
		details := summary(stats)
		if recorder != nil {
			details = append(details, ui.F("Captured", fmt.Sprintf("%d packets, %d bytes", recorder.Packets(), recorder.Bytes())))
		}
		p.PrintSuccess("Session ended", details...)
	}
	return nil
}

// sendRequests asks the monitor for numerics and, when configured,
// waveforms. It returns a description for the command header.
func sendRequests(w io.Writer, enc *protocol.Encoder, cfg *config.Config) (string, error) {
	subtype, err := cfg.PhdbSubtype()
	if err != nil {
		return "", err
	}
	mask, err := cfg.ClassMask()
	if err != nil {
		return "", err
	}
	channels, err := cfg.WaveformChannels()
	if err != nil {
		return "", err
	}

	frame, err := enc.BuildPhdbRequest(subtype, uint16(cfg.Requests.Interval), mask)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(frame); err != nil {
		return "", fmt.Errorf("failed to send PHDB request: %w", err)
	}
	desc := fmt.Sprintf("%s every %ds", strings.ToLower(protocol.PhdbSubtypeName(subtype)), cfg.Requests.Interval)
	logging.Info("Sent PHDB request",
		zap.String("subtype", protocol.PhdbSubtypeName(subtype)),
		zap.Int("interval", cfg.Requests.Interval),
		zap.Uint32("classes", mask),
	)

	if len(channels) == 0 {
		return desc, nil
	}
	frame, err = enc.BuildWaveformRequest(protocol.WaveRequestStart, channels...)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(frame); err != nil {
		return "", fmt.Errorf("failed to send waveform request: %w", err)
	}

	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.String()
	}
	logging.Info("Sent waveform request", zap.Strings("channels", names))
	return desc + ", waves " + strings.Join(names, " "), nil
}

// runSession decodes src until it ends or ctx is cancelled, either
// headless or under the live view.
func runSession(ctx context.Context, title, label string, src io.Reader, dec *protocol.Decoder, h protocol.Handler, tui bool) (protocol.SessionStats, error) {
	if !tui {
		sess := protocol.NewSession(label, src, dec, h)
		err := sess.Run(ctx)
		return sess.Stats(), err
	}

	var sess *protocol.Session
	m := ui.NewMonitor(title, label, func() protocol.SessionStats { return sess.Stats() })
	prog := tea.NewProgram(m, tea.WithAltScreen())
	sess = protocol.NewSession(label, src, dec, export.Multi(ui.MonitorHandler(prog), h))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := sess.Run(ctx)
		prog.Send(ui.SessionDoneMsg{Err: err})
		done <- err
	}()

	if _, err := prog.Run(); err != nil {
		return sess.Stats(), err
	}
	// user quit: stop the session and wait for it
	cancel()
	err := <-done
	return sess.Stats(), err
}

// lineSettings formats serial settings the usual way, e.g. "19200 8E1"
func lineSettings(c transport.SerialConfig) string {
	parity := "N"
	if c.Parity != "" {
		parity = strings.ToUpper(c.Parity[:1])
	}
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, parity, c.StopBits)
}

func summary(s protocol.SessionStats) []ui.Field {
	fields := []ui.Field{
		ui.F("Records", fmt.Sprintf("%d", s.Records)),
		ui.F("Values", fmt.Sprintf("%d", s.Values)),
		ui.F("Resyncs", fmt.Sprintf("%d (%d bytes skipped)", s.Sync.Failures, s.Sync.DiscardedBytes)),
	}
	if s.DecodeErrors > 0 {
		fields = append(fields, ui.F("Bad records", fmt.Sprintf("%d", s.DecodeErrors)))
	}
	return fields
}

// modemLines is implemented by links with hardware handshake lines
type modemLines interface {
	ClearToSend() (bool, error)
}

// checkClearToSend returns a warning when link is a serial port whose CTS
// line is not asserted. Links without modem lines yield no warning.
func checkClearToSend(link io.Reader) string {
	ml, ok := link.(modemLines)
	if !ok {
		return ""
	}
	cts, err := ml.ClearToSend()
	if err != nil {
		logging.Debug("CTS state unavailable", zap.Error(err))
		return ""
	}
	logging.Debug("Serial line status", zap.Bool("cts", cts))
	if !cts {
		return "CTS not asserted: check the cable carries RTS/CTS and the monitor's DRI port is enabled"
	}
	return ""
}
