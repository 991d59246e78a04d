// Package lanet implements the reference driver for signalforge capture
// devices reachable over a serial (USB-CDC) or TCP network link.
//
// # Capture State Machine
//
// A driver moves through Idle → Arming → Capturing → Completed, with Error
// reachable from Arming or Capturing. StartCapture is only valid from Idle:
// it serializes the capture-configuration command, waits for the device's
// one-byte acknowledgement, issues the start command, and then hands off to
// an asynchronous waiter that decodes the capture payload when the hardware
// signals completion. Every failure path resets the capturing flag before
// the caller can observe it.
//
// # Transports
//
// The driver owns exactly one Transport for the life of a connection. A
// reconnect always dials a fresh transport; sockets and ports are never
// shared between driver instances or reused across connection attempts.
// Serial links use go.bug.st/serial; network links use net.Dialer. The Dial
// option provides a seam for tests to substitute an in-memory transport.
//
// # Timeouts
//
// The data-read path waits a bounded few tens of seconds before failing the
// capture with a timeout; the voltage query waits a few seconds and
// degrades to the sentinel strings "TIMEOUT" and "ERROR" instead of
// raising, since it is a best-effort diagnostic. All timers are cancelled
// on the success path.
package lanet
