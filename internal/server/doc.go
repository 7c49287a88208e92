// Package server implements the WebSocket endpoint of the DRI simulator.
//
// A Server stands in for the serial line of a monitor: the simulator
// writes framed records to it and every connected client receives them as
// binary WebSocket messages. Clients talk back the way a host talks to a
// monitor, by sending PHDB and waveform request records, which the server
// decodes and hands to a RequestHandler.
//
// # Usage Example
//
//	engine, _ := simulator.New(simulator.DefaultConfig(), protocol.NewEncoder(nil))
//	srv, err := server.New(&server.Config{Port: 8765}, engine.HandleRequest)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go engine.Run(ctx, srv)
//
//	// Start blocks until ctx is cancelled
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Readers connect with transport.Open(ctx, "ws://host:8765/dri", ...).
// Setting CertPath and KeyPath serves wss:// instead.
//
// # Logging
//
// The server provides structured logging with different levels:
//   - debug: message hex dumps, write failures
//   - info: connections, requests, start and shutdown
//   - warn: rejected requests, dropped clients
//   - error: upgrade and listener failures
//
// # Slow Clients
//
// Each client has a bounded send queue. A client that falls behind the
// simulator is disconnected rather than allowed to stall the others.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start:
//  1. Stops accepting new connections
//  2. Sends a close message to every client
//  3. Waits up to 10 seconds for the connection goroutines to finish
//
// # Thread Safety
//
// Write may be called from any goroutine. Each connection runs a read and
// a write goroutine of its own.
package server
