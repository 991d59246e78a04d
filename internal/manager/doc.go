// Package manager orchestrates device detection, driver selection, and
// connection lifecycles.
//
// # Architecture
//
//	┌───────────┐   Detect    ┌───────────┐   Match    ┌──────────┐
//	│ Detectors │ ──────────▶ │  Manager  │ ─────────▶ │ Registry │
//	└───────────┘             └─────┬─────┘            └──────────┘
//	                                │ Connect
//	                                ▼
//	                          ┌───────────┐
//	                          │  Drivers  │
//	                          └───────────┘
//
// The Registry holds driver registrations ordered by priority. The Manager
// fans detection probes out concurrently, merges candidates by connection
// string keeping the highest confidence, and matches each candidate to the
// best registration. Lifecycle changes are published on an event bus.
//
// # Multi-Device Capture
//
// MultiDriver aggregates two to five devices into one logical instrument.
// Logical channels map onto member units in 24-channel banks; the first
// unit carries the trigger and the rest free-run, so a synchronized
// capture needs the trigger wired to the first unit.
//
// Thread Safety: Manager and Registry are safe for concurrent use. All
// state mutations happen under one mutex and events are published in
// commit order.
package manager
