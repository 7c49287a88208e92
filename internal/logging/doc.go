// Package logging provides structured logging for the drilink tools.
//
// This package wraps a zap logger with convenience functions so the
// protocol, transport and simulator packages log the same way without
// passing a logger around.
//
// # Log Levels
//
//   - Debug: hex dumps, every verified frame, WebSocket traffic
//   - Info: connections opened and closed, requests sent, exporter setup
//   - Warn: resynchronization, records that failed to decode
//   - Error: transport failures that end a session
//
// # Structured Logging
//
//	logging.Info("Serial port opened",
//	    zap.String("port", "/dev/ttyUSB0"),
//	    zap.Int("baud", 19200),
//	)
//
// # Specialized Logging
//
//	logging.LogConnection(addr, "opened")
//	logging.LogFrame(addr, len(frame.Payload), "PHDB", hdr.RecordNumber)
//	logging.LogResync(addr, stats.ConsecutiveFailures, stats.Failures, stats.Resets, stats.DiscardedBytes)
//	logging.LogRawBytes("Undecodable record", frame.Payload)
//
// # Configuration
//
// Logging is silent until a level is given, either through Initialize or
// the DRILINK_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// When the live monitor view owns the terminal, logs go to a file:
//
//	logging.InitializeWithOutput("info", "/tmp/drilink.log")
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. Initialize itself is
// not, and is expected to run once at startup.
package logging
