package transport

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{
			name:      "timeout",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: timeoutError{}},
			wantType:  ErrTypeTimeout,
			retryable: true,
		},
		{
			name:      "connection refused",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantType:  ErrTypeConnectionRefused,
			retryable: true,
		},
		{
			name:     "dns",
			err:      &net.DNSError{Err: "no such host", Name: "monitor.invalid", IsNotFound: true},
			wantType: ErrTypeNotFound,
		},
		{
			name:      "closed",
			err:       net.ErrClosed,
			wantType:  ErrTypeClosed,
			retryable: true,
		},
		{
			name:      "other",
			err:       errors.New("boom"),
			wantType:  ErrTypeOpen,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyNetworkError(tt.err, "10.0.0.5:4001")
			if got == nil {
				t.Fatal("Expected Error, got nil")
			}
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !errors.Is(got, tt.err) {
				t.Error("Expected the cause to be reachable with errors.Is")
			}
		})
	}

	if ClassifyNetworkError(nil, "x") != nil {
		t.Error("Expected nil for a nil error")
	}
}

func TestClassifySerialError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{"missing device", &fs.PathError{Op: "open", Path: "/dev/ttyUSB9", Err: syscall.ENOENT}, ErrTypeNotFound},
		{"no permission", &fs.PathError{Op: "open", Path: "/dev/ttyS0", Err: syscall.EACCES}, ErrTypePermission},
		{"other", errors.New("ioctl failed"), ErrTypeOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySerialError(tt.err, "/dev/ttyUSB9")
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Address != "/dev/ttyUSB9" {
				t.Errorf("Address = %q", got.Address)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&Error{Type: ErrTypeBusy, Retryable: true}) {
		t.Error("Expected busy error to be retryable")
	}
	if IsRetryable(&Error{Type: ErrTypePermission}) {
		t.Error("Expected permission error to not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("Expected a plain error to not be retryable")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	hint := GetTroubleshootingHint(&Error{Type: ErrTypePermission})
	if !strings.Contains(hint, "dialout") {
		t.Errorf("Permission hint should mention the dialout group, got %q", hint)
	}

	hint = GetTroubleshootingHint(&Error{Type: ErrTypeConnectionRefused})
	if !strings.Contains(hint, "drilink-sim") {
		t.Errorf("Refused hint should mention the simulator, got %q", hint)
	}

	if GetTroubleshootingHint(errors.New("x")) == "" {
		t.Error("Expected a generic hint")
	}
}

func TestSerialConfigMode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SerialConfig
		wantErr bool
		verify  func(*testing.T, *serial.Mode)
	}{
		{
			name: "defaults",
			cfg:  DefaultSerialConfig("/dev/ttyUSB0"),
			verify: func(t *testing.T, m *serial.Mode) {
				if m.BaudRate != 19200 || m.DataBits != 8 {
					t.Errorf("got %d baud %d bits, want 19200 8", m.BaudRate, m.DataBits)
				}
				if m.Parity != serial.EvenParity {
					t.Errorf("Parity = %v, want even", m.Parity)
				}
				if m.StopBits != serial.OneStopBit {
					t.Errorf("StopBits = %v, want one", m.StopBits)
				}
				if m.InitialStatusBits == nil || !m.InitialStatusBits.RTS {
					t.Error("Expected RTS asserted")
				}
			},
		},
		{
			name: "zero value fills in line settings",
			cfg:  SerialConfig{Parity: "none", StopBits: 2},
			verify: func(t *testing.T, m *serial.Mode) {
				if m.BaudRate != DefaultBaudRate {
					t.Errorf("BaudRate = %d", m.BaudRate)
				}
				if m.Parity != serial.NoParity {
					t.Errorf("Parity = %v, want none", m.Parity)
				}
				if m.StopBits != serial.TwoStopBits {
					t.Errorf("StopBits = %v, want two", m.StopBits)
				}
				if m.InitialStatusBits != nil {
					t.Error("Expected modem lines left alone")
				}
			},
		},
		{name: "bad parity", cfg: SerialConfig{Parity: "sometimes"}, wantErr: true},
		{name: "bad stop bits", cfg: SerialConfig{StopBits: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := tt.cfg.mode()
			if (err != nil) != tt.wantErr {
				t.Fatalf("mode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, m)
			}
		})
	}
}

func TestIsSerialName(t *testing.T) {
	tests := map[string]bool{
		"/dev/ttyUSB0":    true,
		"/dev/cu.usbser1": true,
		"COM3":            true,
		"com12":           true,
		"COM":             false,
		"COMPUTER":        false,
		"localhost:4001":  false,
		"monitor":         false,
	}
	for name, want := range tests {
		if got := isSerialName(name); got != want {
			t.Errorf("isSerialName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestOpenUnsupported(t *testing.T) {
	ctx := context.Background()
	for _, addr := range []string{"http://monitor/", "monitor", "tcp://no-port"} {
		conn, err := Open(ctx, addr, SerialConfig{})
		if !errors.Is(err, ErrUnsupportedAddress) {
			t.Errorf("Open(%q) error = %v, want ErrUnsupportedAddress", addr, err)
		}
		if conn != nil {
			t.Errorf("Open(%q) returned a connection", addr)
		}
	}
}

func TestOpenTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			done <- nil
			return
		}
		defer c.Close()
		_, _ = c.Write([]byte{0x7E, 0x01, 0x7E})
		buf := make([]byte, 3)
		_, _ = io.ReadFull(c, buf)
		done <- buf
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Open(ctx, "tcp://"+ln.Addr().String(), SerialConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	got := make([]byte, 3)
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if got[1] != 0x01 {
		t.Errorf("read %x", got)
	}
	if _, err := conn.Write([]byte{0x7E, 0x02, 0x7E}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if sent := <-done; len(sent) != 3 || sent[1] != 0x02 {
		t.Errorf("server received %x", sent)
	}
}

func TestOpenTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Open(context.Background(), "tcp://"+addr, SerialConfig{})
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if te.Type != ErrTypeConnectionRefused {
		t.Errorf("Type = %v, want %v", te.Type, ErrTypeConnectionRefused)
	}
}

func TestWebSocketConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_ = c.WriteMessage(websocket.BinaryMessage, []byte{0x7E, 0x01})
		_ = c.WriteMessage(websocket.TextMessage, []byte("ignored"))
		_ = c.WriteMessage(websocket.BinaryMessage, []byte{0x02, 0x7E})

		_, msg, err := c.ReadMessage()
		if err == nil {
			received <- msg
		}
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Open(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), SerialConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	got := make([]byte, 4)
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if want := []byte{0x7E, 0x01, 0x02, 0x7E}; string(got) != string(want) {
		t.Errorf("read %x, want %x", got, want)
	}

	if _, err := conn.Write([]byte{0x7E, 0x09, 0x7E}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case msg := <-received:
		if len(msg) != 3 || msg[1] != 0x09 {
			t.Errorf("server received %x", msg)
		}
	case <-ctx.Done():
		t.Fatal("server did not receive the message")
	}

	if _, err := conn.Read(got); err != io.EOF {
		t.Errorf("Read after close = %v, want io.EOF", err)
	}
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"/dev/ttyUSB0":            "/dev/ttyUSB0",
		"serial:///dev/ttyS1":     "/dev/ttyS1",
		"ws://localhost:8765/dri": "localhost:8765",
		"tcp://10.0.0.5:4001":     "10.0.0.5:4001",
	}
	for in, want := range tests {
		if got := Describe(in); got != want {
			t.Errorf("Describe(%q) = %q, want %q", in, got, want)
		}
	}
}
