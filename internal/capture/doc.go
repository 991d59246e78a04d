// Package capture defines the domain model shared by every acquisition
// component: capture sessions, decoded results, channel modes, detected
// devices, and the capture outcome codes drivers report.
//
// # Key Types
//
//   - Session: a capture request (trigger, sample counts, channel set)
//   - Result: decoded samples plus optional burst timestamps
//   - Mode: the channel-count tier (8/16/24) that fixes the per-sample
//     byte width on the wire
//   - DetectedDevice: a candidate device produced by a detector probe
//   - ErrorCode: the outcome of a StartCapture call, returned as a value
//     so callers branch without exception machinery
//
// # Capture Modes
//
// The highest channel number in a session's channel set selects the wire
// mode: channels 0-7 pack one byte per sample, 0-15 two bytes, 0-23 three
// bytes. Channel numbers of 24 or above are invalid.
//
// # Thread Safety
//
// Sessions and results are plain values. Clone() produces an independent
// deep copy; drivers clone the session they are handed so later mutation
// by the caller cannot affect a capture in flight.
package capture
