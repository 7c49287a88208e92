package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/logging"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// DRI serial line settings
const (
	DefaultBaudRate = 19200
	DefaultDataBits = 8
	DefaultStopBits = 1
	DefaultParity   = "even"
)

// SerialConfig describes how to open a monitor's serial port
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string // none, odd, even, mark, space
	StopBits    int    // 1 or 2
	RTSCTS      bool   // assert RTS for monitors wired for hardware handshake
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns the DRI line settings, 19200 8E1 with
// RTS asserted, for port.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:     port,
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
		RTSCTS:   true,
	}
}

// Validate checks the line settings without opening the port
func (c SerialConfig) Validate() error {
	_, err := c.mode()
	return err
}

func (c SerialConfig) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = DefaultDataBits
	}

	switch strings.ToLower(c.Parity) {
	case "", "even", "e":
		mode.Parity = serial.EvenParity
	case "none", "n":
		mode.Parity = serial.NoParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("transport: unknown parity %q", c.Parity)
	}

	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("transport: unsupported stop bits %d", c.StopBits)
	}

	if c.RTSCTS {
		mode.InitialStatusBits = &serial.ModemOutputBits{RTS: true, DTR: true}
	}
	return mode, nil
}

// SerialConn is an open serial link
type SerialConn struct {
	port serial.Port
	name string
}

// OpenSerial opens the port described by cfg
func OpenSerial(cfg SerialConfig) (*SerialConn, error) {
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, ClassifySerialError(err, cfg.Port)
	}
	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, ClassifySerialError(err, cfg.Port)
		}
	}

	logging.Info("Serial port opened",
		zap.String("port", cfg.Port),
		zap.Int("baud", mode.BaudRate),
		zap.Int("data_bits", mode.DataBits),
		zap.String("parity", cfg.Parity),
		zap.Bool("rts_cts", cfg.RTSCTS),
	)
	return &SerialConn{port: port, name: cfg.Port}, nil
}

// Read implements io.Reader. With a read timeout configured, a quiet line
// returns 0, nil.
func (c *SerialConn) Read(p []byte) (int, error) {
	n, err := c.port.Read(p)
	if err != nil {
		return n, ClassifySerialError(err, c.name)
	}
	return n, nil
}

// Write implements io.Writer
func (c *SerialConn) Write(p []byte) (int, error) {
	n, err := c.port.Write(p)
	if err != nil {
		return n, ClassifySerialError(err, c.name)
	}
	return n, nil
}

// Close closes the port and unblocks a pending Read
func (c *SerialConn) Close() error {
	logging.LogConnection(c.name, "serial_closed")
	return c.port.Close()
}

// ClearToSend reports the CTS line state
func (c *SerialConn) ClearToSend() (bool, error) {
	bits, err := c.port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	return bits.CTS, nil
}

// String returns the port name
func (c *SerialConn) String() string { return c.name }

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
