package manager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/signalforge/capture-core/internal/capture"
)

// Multi-device unit limits. Two units is the minimum that makes banking
// worthwhile; five is the most the trigger fan-out hardware supports.
const (
	minMultiUnits = 2
	maxMultiUnits = 5
)

// UnitResult is one member device's share of a multi-device capture.
type UnitResult struct {
	ConnectionString string
	Result           *capture.Result
	Code             capture.ErrorCode
}

// MultiCompletionHandler fires exactly once when every unit of a
// multi-device capture has finished. code is CaptureNone only when all
// units succeeded; otherwise it carries the first failure observed.
type MultiCompletionHandler func(units []UnitResult, code capture.ErrorCode)

// MultiDriver aggregates several devices into one logical instrument.
//
// Logical channels map onto member units in banks: unit i owns logical
// channels [i*24, i*24+23] as its local channels 0-23. The first unit is
// the trigger master; the trigger condition must reference one of its
// channels. Remaining units free-run, relying on the shared clock wiring
// for alignment.
type MultiDriver struct {
	units  []Driver
	logger Logger

	capturing atomic.Bool
	run       atomic.Pointer[multiRun]
}

// NewMultiDriver builds a multi-device driver over ordered units. Between
// 2 and 5 units are supported. logger may be nil.
func NewMultiDriver(units []Driver, logger Logger) (*MultiDriver, error) {
	if len(units) < minMultiUnits || len(units) > maxMultiUnits {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidDeviceCount, len(units))
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &MultiDriver{units: units, logger: logger}, nil
}

// ChannelCount returns the combined logical channel count.
func (m *MultiDriver) ChannelCount() int {
	total := 0
	for _, u := range m.units {
		total += u.ChannelCount()
	}
	return total
}

// Units returns the member connection strings in bank order.
func (m *MultiDriver) Units() []string {
	out := make([]string, len(m.units))
	for i, u := range m.units {
		out[i] = u.ConnectionString()
	}
	return out
}

// IsCapturing reports whether a multi-device capture is in flight.
func (m *MultiDriver) IsCapturing() bool {
	return m.capturing.Load()
}

// Connect connects every unit; on any failure the already connected units
// are torn down again.
func (m *MultiDriver) Connect(ctx context.Context) error {
	for i, u := range m.units {
		if err := u.Connect(ctx); err != nil {
			for j := 0; j < i; j++ {
				_ = m.units[j].Disconnect()
			}
			return fmt.Errorf("connecting unit %d (%s): %w", i, u.ConnectionString(), err)
		}
	}
	return nil
}

// Disconnect tears every unit down. The first error is returned; all
// units are attempted regardless.
func (m *MultiDriver) Disconnect() error {
	var firstErr error
	for _, u := range m.units {
		if err := u.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dispose releases every unit. Safe to call more than once.
func (m *MultiDriver) Dispose() {
	for _, u := range m.units {
		u.Dispose()
	}
}

// Status returns each unit's status snapshot in bank order.
func (m *MultiDriver) Status() []capture.DeviceStatus {
	out := make([]capture.DeviceStatus, len(m.units))
	for i, u := range m.units {
		out[i] = u.GetStatus()
	}
	return out
}

// multiRun aggregates per-unit completions for one capture.
type multiRun struct {
	mu        sync.Mutex
	remaining int
	units     []UnitResult
	code      capture.ErrorCode
	handler   MultiCompletionHandler
	once      sync.Once
}

// complete records one unit's outcome and reports whether it was the last.
func (r *multiRun) complete(index int, result *capture.Result, code capture.ErrorCode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[index].Result = result
	r.units[index].Code = code
	if code != capture.CaptureNone && r.code == capture.CaptureNone {
		r.code = code
	}
	r.remaining--
	return r.remaining == 0
}

// fire invokes the handler exactly once.
func (r *multiRun) fire() {
	r.once.Do(func() {
		if r.handler != nil {
			r.handler(r.units, r.code)
		}
	})
}

// StartCapture splits the session across units and arms them all.
//
// The non-master units are armed first with the trigger stripped, the
// master last, so every bank is already sampling when the trigger fires.
// If any unit rejects its share the already armed units are stopped and
// the rejection code returned; the handler does not fire. On success the
// handler fires exactly once, after the last unit completes.
func (m *MultiDriver) StartCapture(session *capture.Session, onComplete MultiCompletionHandler) capture.ErrorCode {
	if session == nil {
		return capture.CaptureBadParams
	}

	unitSessions, err := m.split(session)
	if err != nil {
		m.logger.Warn("multi-device session rejected", "error", err)
		return capture.CaptureBadParams
	}

	if !m.capturing.CompareAndSwap(false, true) {
		return capture.CaptureBusy
	}

	run := &multiRun{
		remaining: len(m.units),
		units:     make([]UnitResult, len(m.units)),
		code:      capture.CaptureNone,
		handler:   onComplete,
	}
	for i, u := range m.units {
		run.units[i].ConnectionString = u.ConnectionString()
	}
	m.run.Store(run)

	// Arm units 1..n-1 first, master (unit 0) last.
	order := make([]int, 0, len(m.units))
	for i := 1; i < len(m.units); i++ {
		order = append(order, i)
	}
	order = append(order, 0)

	armed := make([]int, 0, len(m.units))
	for _, i := range order {
		i := i
		code := m.units[i].StartCapture(unitSessions[i], func(result *capture.Result, code capture.ErrorCode) {
			if run.complete(i, result, code) {
				m.run.Store(nil)
				m.capturing.Store(false)
				run.fire()
			}
		})
		if code != capture.CaptureNone {
			for _, j := range armed {
				_ = m.units[j].StopCapture()
			}
			m.run.Store(nil)
			m.capturing.Store(false)
			m.logger.Warn("multi-device arm failed",
				"unit", i,
				"connection", m.units[i].ConnectionString(),
				"code", code.String(),
			)
			return code
		}
		armed = append(armed, i)
	}

	m.logger.Debug("multi-device capture armed", "units", len(m.units))
	return capture.CaptureNone
}

// StopCapture aborts the capture on every unit.
func (m *MultiDriver) StopCapture() error {
	var firstErr error
	for _, u := range m.units {
		if err := u.StopCapture(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// split builds one per-unit session from a logical session. Logical
// channel L lives on unit L/24 as local channel L%24. The trigger stays
// on the master and is stripped from everyone else.
func (m *MultiDriver) split(session *capture.Session) ([]*capture.Session, error) {
	total := m.ChannelCount()
	perUnit := make([][]capture.Channel, len(m.units))

	for _, ch := range session.Channels {
		if int(ch.Number) >= total {
			return nil, fmt.Errorf("%w: channel %d (maximum %d)", capture.ErrInvalidChannel, ch.Number, total-1)
		}
		unit := int(ch.Number) / (capture.MaxChannel + 1)
		local := ch.Number % (capture.MaxChannel + 1)
		perUnit[unit] = append(perUnit[unit], capture.Channel{Number: local, Name: ch.Name})
	}

	if session.TriggerType != capture.TriggerNone && int(session.TriggerChannel) > capture.MaxChannel {
		return nil, fmt.Errorf("%w: trigger channel %d must live on the first unit",
			capture.ErrInvalidTrigger, session.TriggerChannel)
	}

	sessions := make([]*capture.Session, len(m.units))
	for i := range m.units {
		s := session.Clone()
		s.ID = ""
		s.Channels = perUnit[i]
		if i != 0 {
			s.TriggerType = capture.TriggerNone
			s.TriggerChannel = 0
			s.TriggerPattern = 0
			s.TriggerBitCount = 0
			s.TriggerInverted = false
		}
		if len(s.Channels) == 0 {
			// A bank nobody asked channels from still needs to run for
			// clock alignment; sample its channel 0.
			s.Channels = []capture.Channel{{Number: 0}}
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d session: %w", i, err)
		}
		sessions[i] = s
	}
	return sessions, nil
}
