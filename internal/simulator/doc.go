// Package simulator generates DRI traffic as a patient monitor would.
//
// The Engine keeps a bounded random walk per vital sign and a phase
// continuous generator per waveform channel. Its Run loop writes framed
// numeric records every NumericInterval, waveform records every
// WaveInterval and alarm text when a vital crosses one of the built-in
// limits. The sink is any io.Writer: a serial port, a WebSocket broadcast
// server or a capture file.
//
// HandleRequest applies transmission requests decoded from the client, so
// the engine can be driven by drilink read exactly like a real monitor.
package simulator
