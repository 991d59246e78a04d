package lanet

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/signalforge/capture-core/internal/capture"
)

// Transport is the byte link a driver owns. net.Conn satisfies it
// directly; serial ports are adapted below.
type Transport interface {
	io.ReadWriteCloser

	// SetReadDeadline bounds the next Read. The zero time clears it.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds the next Write. The zero time clears it.
	SetWriteDeadline(t time.Time) error
}

// DialFunc opens a transport for a connection string. Provided as an
// option so tests can substitute an in-memory pipe.
type DialFunc func(ctx context.Context, connectionString string) (Transport, error)

// TransportTypeFor infers the transport family from a connection string:
// "host:port" is a network device, anything else is a serial device path.
func TransportTypeFor(connectionString string) capture.TransportType {
	host, port, err := net.SplitHostPort(connectionString)
	if err != nil || host == "" {
		return capture.TransportSerial
	}
	if _, err := strconv.Atoi(port); err != nil {
		return capture.TransportSerial
	}
	if strings.HasPrefix(connectionString, "/") {
		return capture.TransportSerial
	}
	return capture.TransportNetwork
}

// DialNetwork opens a TCP connection to a "host:port" connection string.
func DialNetwork(ctx context.Context, connectionString string) (Transport, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, connectionString, err)
	}
	return conn, nil
}

// DialSerial returns a DialFunc opening a serial port at the given baud
// rate. The connection string is the OS device path (e.g. /dev/ttyACM0).
func DialSerial(baudRate int) DialFunc {
	return func(_ context.Context, connectionString string) (Transport, error) {
		port, err := serial.Open(connectionString, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", ErrConnectionFailed, connectionString, err)
		}
		return &serialTransport{port: port}, nil
	}
}

// serialTransport adapts go.bug.st/serial.Port to the Transport interface.
// Serial ports expose read timeouts rather than deadlines, so deadlines
// are converted at call time.
type serialTransport struct {
	port serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error)  { return t.port.Read(p) }
func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }
func (t *serialTransport) Close() error                { return t.port.Close() }

// SetReadDeadline converts the deadline to a port read timeout. A timed-out
// serial read returns (0, nil), which the receive loop treats as a poll.
func (t *serialTransport) SetReadDeadline(deadline time.Time) error {
	if deadline.IsZero() {
		return t.port.SetReadTimeout(serial.NoTimeout)
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	return t.port.SetReadTimeout(remaining)
}

// SetWriteDeadline is a no-op: serial writes complete against the local
// UART buffer and do not block on the remote end.
func (t *serialTransport) SetWriteDeadline(time.Time) error {
	return nil
}
