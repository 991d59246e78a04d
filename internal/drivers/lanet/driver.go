package lanet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
	"github.com/signalforge/capture-core/internal/protocol"
)

// Default timeouts and sizes for device communication.
const (
	// defaultConnectTimeout is the maximum time to dial and handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout bounds the wait for a capture payload.
	defaultReadTimeout = 30 * time.Second

	// defaultAckTimeout bounds the wait for the configuration ACK.
	defaultAckTimeout = 5 * time.Second

	// defaultVoltageTimeout bounds the voltage-status query.
	defaultVoltageTimeout = 3 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultSerialBaud is the baud rate for serial devices.
	defaultSerialBaud = 115200

	// readPollInterval is how often the receive loop wakes to check for
	// shutdown while no bytes arrive.
	readPollInterval = 500 * time.Millisecond

	// readBufferSize is the size of the receive loop's read buffer.
	readBufferSize = 4096

	// responseQueueSize is the buffer size for reassembled frames.
	responseQueueSize = 8

	// requiredVersionMajor is the firmware major version this driver
	// speaks. A device reporting a different major is rejected at connect.
	requiredVersionMajor = 1

	// DeviceChannels is the number of digital inputs one device exposes.
	DeviceChannels = 24
)

// Sentinel voltage-status strings per the device status contract.
const (
	voltageTimeoutSentinel = "TIMEOUT"
	voltageErrorSentinel   = "ERROR"
	voltageUnknownSentinel = "N/A"
)

// ErrResponseTimeout is returned internally when the device does not
// answer within the budget for an exchange.
var ErrResponseTimeout = errors.New("lanet: timed out waiting for device response")

// State is the driver's capture state machine position.
type State int

// Capture states.
const (
	StateIdle State = iota
	StateArming
	StateCapturing
	StateCompleted
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArming:
		return "arming"
	case StateCapturing:
		return "capturing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Driver. Zero values take the package defaults.
type Options struct {
	// SerialBaud is the baud rate used for serial connection strings.
	SerialBaud int

	// ConnectTimeout bounds dialing plus the version handshake.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for a capture payload.
	ReadTimeout time.Duration

	// AckTimeout bounds the wait for the configuration acknowledgement.
	AckTimeout time.Duration

	// VoltageTimeout bounds the voltage-status query.
	VoltageTimeout time.Duration

	// Dial overrides transport creation; used by tests. When nil the
	// driver dials by transport family (DialNetwork / DialSerial).
	Dial DialFunc

	// Logger receives driver diagnostics. Nil means silent.
	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.SerialBaud == 0 {
		o.SerialBaud = defaultSerialBaud
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = defaultReadTimeout
	}
	if o.AckTimeout == 0 {
		o.AckTimeout = defaultAckTimeout
	}
	if o.VoltageTimeout == 0 {
		o.VoltageTimeout = defaultVoltageTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// link bundles the per-connection receive state. A reconnect builds a new
// link; links are never reused.
type link struct {
	transport Transport
	responses chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// signalStop asks the link's goroutines to exit. Safe to call repeatedly.
func (l *link) signalStop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// captureRun tracks one in-flight capture.
type captureRun struct {
	session    *capture.Session
	mode       capture.Mode
	onComplete capture.CompletionHandler
	once       sync.Once
	cancel     chan struct{}
	cancelOnce sync.Once
}

// fire invokes the completion handler exactly once.
func (r *captureRun) fire(result *capture.Result, code capture.ErrorCode) {
	r.once.Do(func() {
		if r.onComplete != nil {
			r.onComplete(result, code)
		}
	})
}

// abort signals the waiter that the capture was stopped by the caller.
func (r *captureRun) abort() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

// Driver drives one capture device over a serial or network link.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Only one capture may be in flight at a time; concurrent StartCapture
//     calls beyond the first are rejected with CaptureBusy.
type Driver struct {
	connectionString string
	transportType    capture.TransportType
	framing          protocol.Framing
	opts             Options

	// mu guards transport/link/connected/version/state/run.
	mu        sync.RWMutex
	transport Transport
	lnk       *link
	connected bool
	version   string
	state     State
	run       *captureRun

	// capturing is the externally observable capture flag. It is never
	// left true after a capture fails or completes.
	capturing atomic.Bool
	disposed  atomic.Bool

	// requestMu serializes request/response exchanges on the wire so a
	// diagnostic query cannot steal a capture payload.
	requestMu sync.Mutex

	framesRx      atomic.Uint64
	framesDropped atomic.Uint64
	errorsTotal   atomic.Uint64
}

// NewDriver creates a driver for a connection string. The transport family
// (and therefore the framing) is inferred: "host:port" is a network device,
// anything else a serial device path. No I/O happens until Connect.
func NewDriver(connectionString string, opts Options) (*Driver, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("%w: empty connection string", ErrConnectionFailed)
	}

	transportType := TransportTypeFor(connectionString)
	framing := protocol.FramingSerial
	if transportType == capture.TransportNetwork {
		framing = protocol.FramingNetwork
	}

	return &Driver{
		connectionString: connectionString,
		transportType:    transportType,
		framing:          framing,
		opts:             opts.withDefaults(),
		state:            StateIdle,
	}, nil
}

// ConnectionString returns the address this driver was built for.
func (d *Driver) ConnectionString() string { return d.connectionString }

// TransportType returns the inferred transport family.
func (d *Driver) TransportType() capture.TransportType { return d.transportType }

// ChannelCount returns the number of channels the device exposes.
func (d *Driver) ChannelCount() int { return DeviceChannels }

// Version returns the device identification string from the handshake, or
// "" when never connected.
func (d *Driver) Version() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// State returns the current capture state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// IsConnected reports whether the transport is established.
func (d *Driver) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// IsCapturing reports whether a capture is in flight.
func (d *Driver) IsCapturing() bool {
	return d.capturing.Load()
}

// Connect dials the device, starts the receive loop, and performs the
// version handshake. A failed handshake tears the transport down again.
func (d *Driver) Connect(ctx context.Context) error {
	if d.disposed.Load() {
		return ErrDisposed
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return ErrAlreadyConnected
	}

	dial := d.opts.Dial
	if dial == nil {
		if d.transportType == capture.TransportNetwork {
			dial = DialNetwork
		} else {
			dial = DialSerial(d.opts.SerialBaud)
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.opts.ConnectTimeout)
	defer cancel()

	transport, err := dial(dialCtx, d.connectionString)
	if err != nil {
		return err
	}

	l := &link{
		transport: transport,
		responses: make(chan []byte, responseQueueSize),
		stop:      make(chan struct{}),
	}
	l.wg.Add(1)
	go d.receiveLoop(l)

	version, err := d.handshake(l)
	if err != nil {
		l.signalStop()
		transport.Close()
		l.wg.Wait()
		return err
	}

	d.transport = transport
	d.lnk = l
	d.connected = true
	d.version = version
	d.state = StateIdle

	d.opts.Logger.Info("device connected",
		"connection", d.connectionString,
		"transport", string(d.transportType),
		"version", version,
	)
	return nil
}

// handshake queries the device version and checks compatibility.
func (d *Driver) handshake(l *link) (string, error) {
	cmd := protocol.EncodeCommand(d.framing, protocol.OpVersion, nil)
	if err := writeFrame(l.transport, cmd); err != nil {
		return "", fmt.Errorf("%w: version query: %w", ErrConnectionFailed, err)
	}

	payload, err := awaitFrame(l, d.opts.ConnectTimeout, nil)
	if err != nil {
		return "", fmt.Errorf("%w: no version response: %w", ErrConnectionFailed, err)
	}

	ident := string(payload)
	major, _, err := protocol.ParseVersion(ident)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVersionMismatch, err)
	}
	if major != requiredVersionMajor {
		return "", fmt.Errorf("%w: device reports %q, driver requires V%d", ErrVersionMismatch, ident, requiredVersionMajor)
	}
	return ident, nil
}

// Disconnect tears down the transport and receive loop. No-op when not
// connected. A capture in flight fails with CaptureUnexpectedError.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	l := d.lnk
	d.lnk = nil
	d.transport = nil
	wasConnected := d.connected
	d.connected = false
	d.state = StateIdle
	d.mu.Unlock()

	if l != nil {
		l.signalStop()
		l.transport.Close()
		l.wg.Wait()
	}

	if wasConnected {
		d.opts.Logger.Info("device disconnected", "connection", d.connectionString)
	}
	return nil
}

// Dispose releases the driver. Safe to call multiple times and whether or
// not the driver ever connected. The driver cannot be reused afterwards.
func (d *Driver) Dispose() {
	if !d.disposed.CompareAndSwap(false, true) {
		return
	}
	if run := d.currentRun(); run != nil {
		run.abort()
	}
	_ = d.Disconnect()
}

// receiveLoop reads the transport, reassembles frames, and queues payloads
// for whichever exchange is waiting. It exits on shutdown, read failure, or
// protocol desync.
func (d *Driver) receiveLoop(l *link) {
	defer l.wg.Done()

	acc := protocol.NewFrameAccumulator(d.framing)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		_ = l.transport.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := l.transport.Read(buf)

		if n > 0 {
			frames, accErr := acc.Push(buf[:n])
			for _, payload := range frames {
				d.framesRx.Add(1)
				select {
				case l.responses <- payload:
				default:
					// Queue full: an unsolicited frame nobody waits for.
					d.framesDropped.Add(1)
				}
			}
			if accErr != nil {
				// Desync is fatal: close to force a clean reconnect.
				d.errorsTotal.Add(1)
				d.opts.Logger.Error("frame desync, closing transport", "error", accErr)
				d.failLink(l)
				return
			}
		}

		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-l.stop:
				return // Clean shutdown closed the transport under us.
			default:
			}
			d.errorsTotal.Add(1)
			d.opts.Logger.Warn("transport read failed", "error", err)
			d.failLink(l)
			return
		}
		// Serial reads return (0, nil) on timeout; treat as a poll.
	}
}

// failLink marks the connection dead after an unrecoverable read error.
func (d *Driver) failLink(l *link) {
	l.signalStop()
	l.transport.Close()

	d.mu.Lock()
	if d.lnk == l {
		d.connected = false
	}
	d.mu.Unlock()
}

// isTimeout reports whether a read error is a deadline poll expiring.
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// currentLink returns the live link, or nil when disconnected.
func (d *Driver) currentLink() *link {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.connected {
		return nil
	}
	return d.lnk
}

// currentRun returns the in-flight capture, or nil.
func (d *Driver) currentRun() *captureRun {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.run
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Driver) setRun(r *captureRun) {
	d.mu.Lock()
	d.run = r
	d.mu.Unlock()
}

// writeFrame sends an encoded frame with a bounded write deadline.
func writeFrame(t Transport, frame []byte) error {
	if err := t.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := t.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// awaitFrame waits for the next reassembled payload with a bounded timer.
// The timer is stopped on every exit path. cancel may be nil.
func awaitFrame(l *link, timeout time.Duration, cancel <-chan struct{}) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-l.responses:
		return payload, nil
	case <-timer.C:
		return nil, ErrResponseTimeout
	case <-cancel:
		return nil, ErrCaptureInFlight
	case <-l.stop:
		return nil, ErrNotConnected
	}
}

// drainResponses discards stale queued frames before a fresh exchange.
func drainResponses(l *link) {
	for {
		select {
		case <-l.responses:
		default:
			return
		}
	}
}

// StartCapture arms the device for a capture session.
//
// Valid only while no capture is in flight; a second call returns
// CaptureBusy. The configuration command is written, the device's one-byte
// acknowledgement awaited, then the start command issued; any failure on
// that path resets the capturing flag before returning. On success the
// method returns CaptureNone immediately and onComplete fires exactly once
// when the capture payload arrives, the read budget expires, or the
// connection drops.
func (d *Driver) StartCapture(session *capture.Session, onComplete capture.CompletionHandler) capture.ErrorCode {
	if d.disposed.Load() {
		return capture.CaptureUnexpectedError
	}
	if session == nil {
		return capture.CaptureBadParams
	}
	if err := session.Validate(); err != nil {
		d.opts.Logger.Warn("capture session rejected", "error", err)
		return capture.CaptureBadParams
	}

	l := d.currentLink()
	if l == nil {
		return capture.CaptureUnexpectedError
	}

	if !d.capturing.CompareAndSwap(false, true) {
		return capture.CaptureBusy
	}

	sess := session.Clone()
	if sess.ID == "" {
		sess.ID = capture.GenerateID()
	}
	mode, _ := sess.Mode() // Validated above.

	d.requestMu.Lock()
	d.setState(StateArming)
	drainResponses(l)

	cfg, err := protocol.EncodeCaptureConfig(d.framing, sess)
	if err != nil {
		return d.abortStart(capture.CaptureUnexpectedError, "encode capture config", err)
	}
	if err := writeFrame(l.transport, cfg); err != nil {
		return d.abortStart(capture.CaptureUnexpectedError, "send capture config", err)
	}

	ack, err := awaitFrame(l, d.opts.AckTimeout, nil)
	if err != nil {
		return d.abortStart(capture.CaptureUnexpectedError, "await config ack", err)
	}
	accepted, err := protocol.DecodeAck(ack)
	if err != nil {
		return d.abortStart(capture.CaptureUnexpectedError, "malformed config ack", err)
	}
	if !accepted {
		return d.abortStart(capture.CaptureHardwareError, "device rejected capture config", nil)
	}

	start := protocol.EncodeCommand(d.framing, protocol.OpStartCapture, nil)
	if err := writeFrame(l.transport, start); err != nil {
		return d.abortStart(capture.CaptureUnexpectedError, "send start command", err)
	}

	run := &captureRun{
		session:    sess,
		mode:       mode,
		onComplete: onComplete,
		cancel:     make(chan struct{}),
	}
	d.setRun(run)
	d.setState(StateCapturing)

	l.wg.Add(1)
	go d.captureWaiter(l, run)

	d.opts.Logger.Debug("capture armed",
		"session", sess.ID,
		"mode", mode.String(),
		"samples", sess.TotalSamples(),
	)
	return capture.CaptureNone
}

// abortStart unwinds a failed StartCapture: the capturing flag is reset
// before the caller can observe the return value.
func (d *Driver) abortStart(code capture.ErrorCode, msg string, err error) capture.ErrorCode {
	d.errorsTotal.Add(1)
	if err != nil {
		d.opts.Logger.Error("start capture failed: "+msg, "error", err)
	} else {
		d.opts.Logger.Error("start capture failed: " + msg)
	}
	d.setState(StateError)
	d.capturing.Store(false)
	d.requestMu.Unlock()
	return code
}

// captureWaiter waits for the capture payload and delivers the outcome.
// It owns requestMu for the duration of the capture so no other exchange
// can consume the data frame.
func (d *Driver) captureWaiter(l *link, run *captureRun) {
	defer l.wg.Done()
	defer d.requestMu.Unlock()

	timer := time.NewTimer(d.opts.ReadTimeout)
	defer timer.Stop()

	select {
	case payload := <-l.responses:
		result := protocol.DecodeResult(payload, run.mode, run.session.TotalSamples(), run.session.MeasureBursts)
		d.setState(StateCompleted)
		d.setRun(nil)
		d.capturing.Store(false)
		d.opts.Logger.Debug("capture completed",
			"session", run.session.ID,
			"samples", len(result.Samples),
			"timestamps", len(result.Timestamps),
		)
		run.fire(result, capture.CaptureNone)

	case <-timer.C:
		d.errorsTotal.Add(1)
		d.setState(StateError)
		d.setRun(nil)
		d.capturing.Store(false)
		d.opts.Logger.Warn("capture timed out", "session", run.session.ID)
		run.fire(nil, capture.CaptureTimeout)

	case <-run.cancel:
		// Stopped by the caller: the completion handler is reserved for
		// hardware-signalled completion and does not fire.
		d.setState(StateIdle)
		d.setRun(nil)
		d.capturing.Store(false)

	case <-l.stop:
		d.setState(StateError)
		d.setRun(nil)
		d.capturing.Store(false)
		run.fire(nil, capture.CaptureUnexpectedError)
	}
}

// StopCapture aborts a capture in flight. No-op when idle.
func (d *Driver) StopCapture() error {
	run := d.currentRun()
	if run == nil {
		return nil
	}

	var writeErr error
	if l := d.currentLink(); l != nil {
		stop := protocol.EncodeCommand(d.framing, protocol.OpStopCapture, nil)
		writeErr = writeFrame(l.transport, stop)
	}

	run.abort()
	return writeErr
}

// GetVoltageStatus queries the device battery/supply voltage.
//
// This is a best-effort diagnostic: it resolves to the sentinel "TIMEOUT"
// when no response arrives in time (or another exchange holds the wire)
// and "ERROR" when the write itself fails. It never blocks beyond the
// voltage budget.
func (d *Driver) GetVoltageStatus() string {
	l := d.currentLink()
	if l == nil {
		return voltageErrorSentinel
	}

	if !d.requestMu.TryLock() {
		// A capture or another query owns the wire; interleaving frames
		// would desync both exchanges.
		return voltageTimeoutSentinel
	}
	defer d.requestMu.Unlock()

	drainResponses(l)

	cmd := protocol.EncodeCommand(d.framing, protocol.OpVoltageStatus, nil)
	if err := writeFrame(l.transport, cmd); err != nil {
		d.errorsTotal.Add(1)
		return voltageErrorSentinel
	}

	payload, err := awaitFrame(l, d.opts.VoltageTimeout, nil)
	if err != nil {
		return voltageTimeoutSentinel
	}
	return string(payload)
}

// GetStatus returns a best-effort status snapshot. The voltage reads
// "N/A" when the device is unreachable.
func (d *Driver) GetStatus() capture.DeviceStatus {
	status := capture.DeviceStatus{
		Connected: d.IsConnected(),
		Capturing: d.capturing.Load(),
	}
	if !status.Connected {
		status.BatteryVoltage = voltageUnknownSentinel
		return status
	}
	status.BatteryVoltage = d.GetVoltageStatus()
	return status
}

// EnterBootloader asks the device to reboot into its bootloader for a
// firmware update. The connection is expected to drop afterwards.
func (d *Driver) EnterBootloader() error {
	l := d.currentLink()
	if l == nil {
		return ErrNotConnected
	}
	cmd := protocol.EncodeCommand(d.framing, protocol.OpEnterBootloader, nil)
	return writeFrame(l.transport, cmd)
}

// SendNetworkConfig pushes WiFi/network settings to the device.
func (d *Driver) SendNetworkConfig(accessPoint, password, ipAddress string, port uint16) error {
	l := d.currentLink()
	if l == nil {
		return ErrNotConnected
	}
	cmd, err := protocol.EncodeNetworkConfig(d.framing, accessPoint, password, ipAddress, port)
	if err != nil {
		return err
	}
	return writeFrame(l.transport, cmd)
}

// Stats are operational counters for diagnostics.
type Stats struct {
	FramesRx      uint64
	FramesDropped uint64
	ErrorsTotal   uint64
}

// Stats returns current operational counters.
func (d *Driver) Stats() Stats {
	return Stats{
		FramesRx:      d.framesRx.Load(),
		FramesDropped: d.framesDropped.Load(),
		ErrorsTotal:   d.errorsTotal.Load(),
	}
}
