package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/logging"
)

const dialTimeout = 10 * time.Second

// Open connects to address and returns a byte link. Supported forms:
//
//	/dev/ttyUSB0, COM3         serial port with cfg line settings
//	serial:///dev/ttyUSB0      same, explicit
//	ws://host:port/path        WebSocket (wss:// for TLS)
//	tcp://host:port            raw TCP, for serial-to-network bridges
//
// cfg.Port is ignored; the port name comes from address.
func Open(ctx context.Context, address string, cfg SerialConfig) (io.ReadWriteCloser, error) {
	scheme, rest, found := strings.Cut(address, "://")
	if !found {
		if isSerialName(address) {
			cfg.Port = address
			return openSerial(cfg)
		}
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, address)
	}

	switch strings.ToLower(scheme) {
	case "serial":
		cfg.Port = rest
		return openSerial(cfg)
	case "ws", "wss":
		conn, err := DialWebSocket(ctx, address)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "tcp":
		return DialTCP(ctx, rest)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedAddress, scheme)
	}
}

func openSerial(cfg SerialConfig) (io.ReadWriteCloser, error) {
	conn, err := OpenSerial(cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// DialTCP connects to a raw TCP byte stream, such as a serial device server
func DialTCP(ctx context.Context, hostport string) (net.Conn, error) {
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAddress, err)
	}

	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, ClassifyNetworkError(err, hostport)
	}
	logging.LogConnection(hostport, "tcp_connected")
	return conn, nil
}

func isSerialName(name string) bool {
	if strings.HasPrefix(name, "/dev/") {
		return true
	}
	upper := strings.ToUpper(name)
	if !strings.HasPrefix(upper, "COM") || len(upper) == 3 {
		return false
	}
	for _, c := range upper[3:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Describe returns a short label for address, used in logs and the UI
func Describe(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" {
		return address
	}
	if u.Scheme == "serial" {
		return u.Path
	}
	return u.Host
}
