package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/drilink/internal/protocol"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestServer(t *testing.T, onRequest RequestHandler) (*Server, string) {
	t.Helper()
	s, err := New(&Config{}, onRequest)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, "ws" + strings.TrimPrefix(hs.URL, "http") + DefaultPath
}

func TestBroadcast(t *testing.T) {
	s, url := newTestServer(t, nil)
	a := dial(t, url)
	b := dial(t, url)
	waitFor(t, "two clients", func() bool { return s.GetActiveConnections() == 2 })

	frame, err := protocol.NewEncoder(nil).EncodeFrame(testTime, []protocol.Value{
		&protocol.Measurement{ID: protocol.ParamHeartRate, Value: 64, Valid: true},
	})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	n, err := s.Write(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("Write = %d, %v", n, err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %s ReadMessage: %v", name, err)
		}
		if msgType != websocket.BinaryMessage {
			t.Errorf("client %s got message type %d, want binary", name, msgType)
		}
		if string(msg) != string(frame) {
			t.Errorf("client %s got %x, want %x", name, msg, frame)
		}
	}
}

func TestWriteWithoutClients(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if n, err := s.Write([]byte{0x7E, 0x7E}); err != nil || n != 2 {
		t.Errorf("Write = %d, %v, want 2, nil", n, err)
	}
}

func TestRequestsReachHandler(t *testing.T) {
	got := make(chan protocol.Request, 2)
	_, url := newTestServer(t, func(req protocol.Request) error {
		got <- req
		return nil
	})
	conn := dial(t, url)

	enc := protocol.NewEncoder(nil)
	phdb, err := enc.BuildPhdbRequest(protocol.PhdbDispl, 10, 1<<protocol.ClassBasic)
	if err != nil {
		t.Fatalf("BuildPhdbRequest: %v", err)
	}
	wave, err := enc.BuildWaveformRequest(protocol.WaveRequestStart, protocol.ChannelECG1)
	if err != nil {
		t.Fatalf("BuildWaveformRequest: %v", err)
	}

	// both requests in one message, the second split across two
	both := append(append([]byte(nil), phdb...), wave[:5]...)
	if err := conn.WriteMessage(websocket.BinaryMessage, both); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, wave[5:]); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for i, check := range []func(protocol.Request){
		func(r protocol.Request) {
			p, ok := r.(*protocol.PhdbRequest)
			if !ok || p.Interval != 10 || p.Subtype != protocol.PhdbDispl {
				t.Errorf("first request = %v", r)
			}
		},
		func(r protocol.Request) {
			w, ok := r.(*protocol.WaveformRequest)
			if !ok || len(w.Channels) != 1 || w.Channels[0] != protocol.ChannelECG1 {
				t.Errorf("second request = %v", r)
			}
		},
	} {
		select {
		case r := <-got:
			check(r)
		case <-timeout:
			t.Fatalf("request %d not delivered", i)
		}
	}
}

func TestSlowClientDropped(t *testing.T) {
	s, err := New(&Config{SendBuffer: 1}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c := &client{srv: s, addr: "10.0.0.9:5000", send: make(chan []byte, 1), done: make(chan struct{})}
	s.activeConns[c.addr] = c

	_, _ = s.Write([]byte{1})
	if s.GetActiveConnections() != 1 {
		t.Fatal("client dropped before its queue was full")
	}
	_, _ = s.Write([]byte{2})

	if s.GetActiveConnections() != 0 {
		t.Error("Expected the slow client to be dropped")
	}
	if s.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", s.Dropped())
	}
	select {
	case <-c.done:
	default:
		t.Error("Expected the dropped client to be closed")
	}
}

func TestShutdownClosesClients(t *testing.T) {
	s, url := newTestServer(t, nil)
	conn := dial(t, url)
	waitFor(t, "client", func() bool { return s.GetActiveConnections() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage after shutdown = %v, want going-away close", err)
	}
	if s.GetActiveConnections() != 0 {
		t.Errorf("GetActiveConnections() = %d after shutdown", s.GetActiveConnections())
	}
}

func TestStart(t *testing.T) {
	s, err := New(&Config{Host: "127.0.0.1"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	addr, err := s.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	dial(t, "ws://"+addr.String()+DefaultPath)
	waitFor(t, "client", func() bool { return s.GetActiveConnections() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestNewTLSConfigErrors(t *testing.T) {
	if _, err := New(&Config{CertPath: "cert.pem"}, nil); err == nil {
		t.Error("Expected an error without a key")
	}
	if _, err := NewTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("Expected an error for missing files")
	}
}
