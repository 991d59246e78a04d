// Package events carries lifecycle notifications from the device manager to
// in-process subscribers and, optionally, out to an MQTT broker.
//
// # Delivery Model
//
// The Bus fans each published event out to every subscriber over a bounded
// buffered channel. Delivery is best-effort: a subscriber that stops
// draining its channel loses events rather than blocking the publisher, and
// the drop is counted. Events for one publisher arrive at each subscriber
// in publish order.
//
// # MQTT Mirror
//
// Publisher mirrors bus events onto capturecore/events/{kind} topics as
// JSON. It subscribes like any other consumer, so a broker outage never
// stalls hardware operations.
package events
