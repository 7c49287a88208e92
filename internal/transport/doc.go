// Package transport opens the byte links a DRI session runs over.
//
// A monitor is normally wired to a serial port at 19200 baud, 8 data bits,
// even parity, one stop bit. For bench work the same byte stream can be
// carried over TCP from a serial device server, or over a WebSocket from
// the drilink simulator. Open picks the link from the address form:
//
//	conn, err := transport.Open(ctx, "/dev/ttyUSB0", transport.DefaultSerialConfig(""))
//	conn, err := transport.Open(ctx, "ws://localhost:8765/dri", transport.SerialConfig{})
//	conn, err := transport.Open(ctx, "tcp://10.0.0.5:4001", transport.SerialConfig{})
//
// Every link is an io.ReadWriteCloser; frames are found by the protocol
// package's synchronizer, so message boundaries on the link carry no
// meaning.
//
// Failures are returned as *Error with a category and a retry hint. Use
// GetTroubleshootingHint to turn one into advice for the user.
package transport
