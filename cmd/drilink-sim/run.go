package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/drilink/internal/capture"
	"github.com/muurk/drilink/internal/config"
	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"github.com/muurk/drilink/internal/server"
	"github.com/muurk/drilink/internal/simulator"
	"github.com/muurk/drilink/internal/transport"
	"github.com/muurk/drilink/internal/ui"
)

// Run command flags
var (
	runPort            string
	runListen          string
	runCert            string
	runKey             string
	runCapture         string
	runNumericInterval time.Duration
	runWaveInterval    time.Duration
	runChannels        []string
	runClassic         bool
	runNoAlarms        bool
	runWait            bool
	runSeed            int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the simulator",
	Long: `Start sending simulated DRI records.

With --port the records go out on a serial port, for a reader on the other
end of a null-modem cable. With --listen they are broadcast to WebSocket
clients at ws://<listen>/dri. Both may be given at once.

Settings not given on the command line come from the 'simulator' section
of the config file.`,
	Example: `  # WebSocket on the default port
  drilink-sim run --listen localhost:8765

  # Serial port, classic numerics, silent until a reader asks
  drilink-sim run --port /dev/ttyUSB1 --classic --wait

  # Fast numerics with two waveforms, recorded for later
  drilink-sim run --listen :8765 --numeric-interval 1s --channels ECG1,PLETH --capture sim.pcap

  # TLS
  drilink-sim run --listen :8443 --cert cert.pem --key key.pem`,
	RunE: runSimulator,
}

func init() {
	runCmd.Flags().StringVarP(&runPort, "port", "p", "", "Serial port to send on")
	runCmd.Flags().StringVar(&runListen, "listen", "", "host:port for the WebSocket server (default from config simulator.listen)")
	runCmd.Flags().StringVar(&runCert, "cert", "", "TLS certificate file, enables wss://")
	runCmd.Flags().StringVar(&runKey, "key", "", "TLS private key file")
	runCmd.Flags().StringVar(&runCapture, "capture", "", "Record traffic to a pcap file")
	runCmd.Flags().DurationVar(&runNumericInterval, "numeric-interval", 0, "Time between numeric records")
	runCmd.Flags().DurationVar(&runWaveInterval, "wave-interval", 0, "Time between waveform records")
	runCmd.Flags().StringSliceVar(&runChannels, "channels", nil, "Waveform channels (e.g. ECG1,PLETH,CO2)")
	runCmd.Flags().BoolVar(&runClassic, "classic", false, "Send numerics in the classic basic-class layout")
	runCmd.Flags().BoolVar(&runNoAlarms, "no-alarms", false, "Do not send alarm text")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "Stay silent until a reader sends a request")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Random seed for reproducible output (0 = time based)")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadDefault()
}

// applyFlags overrides the simulator section with the flags that were set
func applyFlags(cmd *cobra.Command, sim *config.Simulator) {
	flags := cmd.Flags()
	if flags.Changed("numeric-interval") {
		sim.NumericInterval = runNumericInterval
	}
	if flags.Changed("wave-interval") {
		sim.WaveInterval = runWaveInterval
	}
	if flags.Changed("channels") {
		sim.Channels = runChannels
	}
	if flags.Changed("classic") {
		sim.Classic = runClassic
	}
	if flags.Changed("no-alarms") {
		sim.Alarms = !runNoAlarms
	}
	if flags.Changed("wait") {
		sim.WaitForRequest = runWait
	}
	if flags.Changed("seed") {
		sim.Seed = runSeed
	}
	if flags.Changed("listen") {
		sim.Listen = runListen
	}
}

func runSimulator(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg.Simulator)

	simCfg, err := cfg.SimulatorConfig()
	if err != nil {
		return err
	}
	tables, err := cfg.Tables()
	if err != nil {
		return err
	}
	engine, err := simulator.New(simCfg, protocol.NewEncoder(tables))
	if err != nil {
		return err
	}

	// Without --port the WebSocket server runs on the configured address
	listen := cfg.Simulator.Listen
	if runPort != "" && !cmd.Flags().Changed("listen") {
		listen = ""
	}
	if runPort == "" && listen == "" {
		return fmt.Errorf("nothing to send on: use --port and/or --listen")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(cmd.OutOrStdout())
	fields := []ui.Field{}

	var recorder *capture.Recorder
	if runCapture != "" {
		f, err := os.Create(runCapture)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		if recorder, err = capture.NewRecorder(f); err != nil {
			return err
		}
	}

	var sinks []io.Writer
	errc := make(chan error, 2)

	if runPort != "" {
		conn, err := transport.OpenSerial(cfg.SerialConfig(runPort))
		if err != nil {
			p.PrintFailure("Cannot open "+runPort, err)
			return err
		}
		var link io.ReadWriteCloser = conn
		if recorder != nil {
			link = recorder.MonitorTap(link)
		}
		defer link.Close()
		context.AfterFunc(ctx, func() { _ = link.Close() })

		go func() {
			if err := readRequests(ctx, link, engine.HandleRequest); err != nil && ctx.Err() == nil {
				errc <- err
			}
		}()
		sinks = append(sinks, link)
		fields = append(fields, ui.F("Serial", runPort))
	}

	if listen != "" {
		host, portStr, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", listen, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid listen port %q: %w", portStr, err)
		}

		srv, err := server.New(&server.Config{
			Host:     host,
			Port:     port,
			CertPath: runCert,
			KeyPath:  runKey,
		}, engine.HandleRequest)
		if err != nil {
			return err
		}
		addr, err := srv.Listen()
		if err != nil {
			p.PrintFailure("Cannot listen on "+listen, err)
			return err
		}
		go func() {
			if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
				errc <- err
			}
		}()

		scheme := "ws"
		if runCert != "" {
			scheme = "wss"
		}
		sinks = append(sinks, srv)
		fields = append(fields, ui.F("WebSocket", fmt.Sprintf("%s://%s%s", scheme, addr, server.DefaultPath)))
		if recorder != nil {
			sinks = append(sinks, recorder.Writer(capture.FromMonitor))
		}
	}

	fields = append(fields,
		ui.F("Numerics", describeNumerics(simCfg)),
		ui.F("Waveforms", describeChannels(simCfg.Channels)),
	)
	if runCapture != "" {
		fields = append(fields, ui.F("Capture", runCapture))
	}
	p.PrintHeader("DRI simulator", "drilink-sim run", fields...)

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(ctx, io.MultiWriter(sinks...))
	}()

	select {
	case err = <-runErr:
	case err = <-errc:
		// a sink failed on its own; stop the engine
		stop()
		<-runErr
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		p.PrintFailure("Simulator stopped", err)
		return err
	}

	details := []ui.Field{}
	if recorder != nil {
		details = append(details, ui.F("Captured", fmt.Sprintf("%d packets, %d bytes", recorder.Packets(), recorder.Bytes())))
	}
	p.PrintSuccess("Simulator stopped", details...)
	return nil
}

// readRequests decodes transmission requests arriving on r and passes them
// to handle until r fails or ctx is cancelled. Records that are not
// requests are logged and skipped.
func readRequests(ctx context.Context, r io.Reader, handle func(protocol.Request) error) error {
	syncer := protocol.NewSynchronizer()
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			syncer.Feed(buf[:n])
			for {
				frame, ok := syncer.Next()
				if !ok {
					break
				}
				req, perr := protocol.ParseRequest(frame.Payload)
				if perr != nil {
					logging.Warn("Ignoring record from reader",
						zap.String("frame", frame.String()),
						zap.Error(perr),
					)
					continue
				}
				logging.Info("Request received", zap.String("request", req.String()))
				if herr := handle(req); herr != nil {
					logging.Warn("Request rejected",
						zap.String("request", req.String()),
						zap.Error(herr),
					)
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading requests: %w", err)
		}
	}
}

func describeNumerics(c simulator.Config) string {
	layout := "parameter lists"
	if c.Classic {
		layout = "classic layout"
	}
	s := fmt.Sprintf("every %s, %s", c.NumericInterval, layout)
	if c.Alarms {
		s += ", alarms"
	}
	if c.WaitForRequest {
		s += ", after request"
	}
	return s
}

func describeChannels(channels []protocol.ChannelID) string {
	if len(channels) == 0 {
		return "none"
	}
	s := ""
	for i, ch := range channels {
		if i > 0 {
			s += " "
		}
		s += ch.String()
	}
	return s
}
