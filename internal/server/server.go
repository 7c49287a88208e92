package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"go.uber.org/zap"
)

// Defaults for Config fields left zero
const (
	DefaultPort       = 8765
	DefaultPath       = "/dri"
	DefaultSendBuffer = 64
)

// Config holds the server configuration
type Config struct {
	Host       string
	Port       int    // 0 picks a free port
	Path       string // WebSocket endpoint path
	CertPath   string // serve wss:// when both CertPath and KeyPath are set
	KeyPath    string
	SendBuffer int // frames queued per client before it is dropped
}

// RequestHandler is called for every transmission request a client sends
type RequestHandler func(protocol.Request) error

// Server streams DRI frames to WebSocket clients, standing in for the
// serial line of a monitor. Everything written to the Server is sent to
// every connected client; requests the clients send are decoded and
// passed to the RequestHandler.
type Server struct {
	config      *Config
	tlsConfig   *tls.Config
	upgrader    websocket.Upgrader
	onRequest   RequestHandler
	httpServer  *http.Server
	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*client
	dropped     int
}

// New creates a new Server instance. onRequest may be nil.
func New(config *Config, onRequest RequestHandler) (*Server, error) {
	cfg := *config
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}

	var tlsConfig *tls.Config
	if cfg.CertPath != "" || cfg.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	s := &Server{
		config:      &cfg,
		tlsConfig:   tlsConfig,
		onRequest:   onRequest,
		activeConns: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: protocol.MaxStuffedFrame,
			// bench tool, any origin may connect
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.serveWS)
	return mux
}

// Listen opens the listening socket and returns its address. Start calls
// it when needed.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr(), nil
	}

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves clients until ctx is cancelled, then shuts down
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.Listen()
	if err != nil {
		return err
	}

	scheme := "ws"
	if s.tlsConfig != nil {
		scheme = "wss"
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}
	logging.Info("Server listening for connections",
		zap.String("url", fmt.Sprintf("%s://%s%s", scheme, addr, s.config.Path)),
	)

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := s.httpServer, s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown requested, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := newClient(s, conn, r.RemoteAddr)
	s.mu.Lock()
	s.activeConns[c.addr] = c
	s.mu.Unlock()
	logging.LogConnection(c.addr, "connection_accepted")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
		s.remove(c)
	}()
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	if s.activeConns[c.addr] == c {
		delete(s.activeConns, c.addr)
	}
	s.mu.Unlock()
	c.close()
	logging.LogConnection(c.addr, "connection_closed")
}

// Write sends p to every connected client as one binary message. A
// client whose queue is full is disconnected. Write never fails, so the
// simulator keeps running with no one listening.
func (s *Server) Write(p []byte) (int, error) {
	msg := append([]byte(nil), p...)

	s.mu.Lock()
	var slow []*client
	for _, c := range s.activeConns {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(s.activeConns, c.addr)
		s.dropped++
	}
	s.mu.Unlock()

	for _, c := range slow {
		logging.Warn("Dropping slow client", zap.String("remote_addr", c.addr))
		c.close()
	}
	return len(p), nil
}

func (s *Server) handleRequest(addr string, req protocol.Request) {
	logging.Info("Request received",
		zap.String("remote_addr", addr),
		zap.String("request", req.String()),
	)
	if s.onRequest == nil {
		return
	}
	if err := s.onRequest(req); err != nil {
		logging.Warn("Request rejected",
			zap.String("remote_addr", addr),
			zap.String("request", req.String()),
			zap.Error(err),
		)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	s.mu.Lock()
	srv := s.httpServer
	ln := s.listener
	s.mu.Unlock()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			logging.Error("Error stopping HTTP server", zap.Error(err))
		}
	} else if ln != nil {
		if err := ln.Close(); err != nil {
			logging.Error("Error closing listener", zap.Error(err))
		}
	}

	// hijacked WebSocket connections are not closed by http.Server
	s.mu.Lock()
	for addr, c := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		c.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	case <-time.After(10 * time.Second):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Dropped returns the number of clients disconnected for falling behind
func (s *Server) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
