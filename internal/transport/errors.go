package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"go.bug.st/serial"
)

// ErrUnsupportedAddress is returned by Open for addresses it cannot map to
// a transport.
var ErrUnsupportedAddress = errors.New("transport: unsupported address")

// ErrorType represents the category of a transport failure
type ErrorType int

const (
	// ErrTypeOpen indicates the link could not be opened
	ErrTypeOpen ErrorType = iota
	// ErrTypeNotFound indicates the serial device or host does not exist
	ErrTypeNotFound
	// ErrTypeBusy indicates another process holds the serial device
	ErrTypeBusy
	// ErrTypePermission indicates the user may not open the device
	ErrTypePermission
	// ErrTypeConnectionRefused indicates nothing listens at the address
	ErrTypeConnectionRefused
	// ErrTypeTimeout indicates a dial or I/O timeout
	ErrTypeTimeout
	// ErrTypeClosed indicates the link was closed
	ErrTypeClosed
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeOpen:
		return "Open Error"
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypeBusy:
		return "Device Busy"
	case ErrTypePermission:
		return "Permission Denied"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeClosed:
		return "Closed"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error describes a failure to open or use a link
type Error struct {
	Type      ErrorType // Category of error
	Address   string    // Port name or URL
	Message   string    // Human-readable error message
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether reopening may help
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s (caused by: %v)", e.Type, e.Message, e.Address, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Type, e.Message, e.Address)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassifySerialError maps a go.bug.st/serial error to an Error
func ClassifySerialError(err error, port string) *Error {
	if err == nil {
		return nil
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return &Error{Type: ErrTypeNotFound, Address: port, Message: "serial port not found", Err: err, Retryable: true}
		case serial.PortBusy:
			return &Error{Type: ErrTypeBusy, Address: port, Message: "serial port busy", Err: err, Retryable: true}
		case serial.PermissionDenied:
			return &Error{Type: ErrTypePermission, Address: port, Message: "no permission to open", Err: err}
		case serial.PortClosed:
			return &Error{Type: ErrTypeClosed, Address: port, Message: "serial port closed", Err: err, Retryable: true}
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return &Error{Type: ErrTypeNotFound, Address: port, Message: "serial port not found", Err: err, Retryable: true}
	}
	if errors.Is(err, os.ErrPermission) {
		return &Error{Type: ErrTypePermission, Address: port, Message: "no permission to open", Err: err}
	}
	return &Error{Type: ErrTypeOpen, Address: port, Message: "failed to open serial port", Err: err, Retryable: true}
}

// ClassifyNetworkError maps a dial error to an Error
func ClassifyNetworkError(err error, addr string) *Error {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &Error{Type: ErrTypeTimeout, Address: addr, Message: "connection timed out", Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Type: ErrTypeNotFound, Address: addr, Message: "cannot resolve host", Err: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Type: ErrTypeConnectionRefused, Address: addr, Message: "connection refused", Err: err, Retryable: true}
	}
	if errors.Is(err, net.ErrClosed) {
		return &Error{Type: ErrTypeClosed, Address: addr, Message: "connection closed", Err: err, Retryable: true}
	}

	return &Error{Type: ErrTypeOpen, Address: addr, Message: "failed to connect", Err: err, Retryable: true}
}

// IsRetryable reports whether reopening the link may succeed
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-facing advice for a transport error
func GetTroubleshootingHint(err error) string {
	var te *Error
	if !errors.As(err, &te) {
		return "An unexpected error occurred. Please try again."
	}

	switch te.Type {
	case ErrTypeNotFound:
		return strings.Join([]string{
			"The port or host does not exist.",
			"Troubleshooting:",
			"  • Run 'drilink ports' to list serial ports",
			"  • Check the USB serial adapter is plugged in",
			"  • For network sources, check the host name",
		}, "\n")

	case ErrTypeBusy:
		return strings.Join([]string{
			"Another program has the serial port open.",
			"Troubleshooting:",
			"  • Close other terminal programs using the port",
			"  • Check for a running drilink or drilink-sim",
		}, "\n")

	case ErrTypePermission:
		return strings.Join([]string{
			"You do not have permission to open the serial port.",
			"Troubleshooting:",
			"  • Add your user to the dialout (Linux) or uucp group",
			"  • Log out and back in after changing groups",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"Nothing is listening at that address.",
			"Troubleshooting:",
			"  • Start the simulator with 'drilink-sim run --listen'",
			"  • Check the port number",
		}, "\n")

	case ErrTypeTimeout:
		return "The connection timed out. Check the network path to the host."

	default:
		return "An error occurred. Please check the error message for details."
	}
}
