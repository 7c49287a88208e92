// Package ui provides terminal UI components for the drilink commands.
//
// This package uses Bubble Tea and Lipgloss for two kinds of output:
//
//   - One-shot output: Header and Result boxes printed through a Printer
//     before and after a command runs.
//   - Live output: the Monitor model, a full-screen view of the latest
//     vitals, waveform traces and alarms of a running session.
//
// # Live Monitor
//
// The Monitor never touches the transport. A session runs in its own
// goroutine and MonitorHandler forwards each decoded record to the
// program:
//
//	p := tea.NewProgram(ui.NewMonitor("Live read", addr, sess.Stats), tea.WithAltScreen())
//	go func() {
//	    err := sess.Run(ctx)
//	    p.Send(ui.SessionDoneMsg{Err: err})
//	}()
//	_, err := p.Run()
//
// # Logging Integration
//
// This package expects logging to be controlled via the DRILINK_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, so the
// styled output is displayed cleanly. Set DRILINK_LOG_LEVEL to "debug",
// "info", "warn", or "error" to enable logging output; avoid doing so
// while the Monitor owns the screen.
package ui
