package mqtt

import "fmt"

// Topic prefixes for the Capture Core MQTT hierarchy.
//
// All topics live under a single root so external consumers can
// subscribe to everything with one wildcard:
//
//	capturecore/events/{kind}    hardware events mirrored from the in-process bus
//	capturecore/system/status    online/offline status (retained, LWT)
const (
	// TopicPrefix is the root of all Capture Core topics.
	TopicPrefix = "capturecore"

	// TopicPrefixEvents is the base for mirrored hardware events.
	TopicPrefixEvents = "capturecore/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "capturecore/system"
)

// Topics provides builders for Capture Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.Event("capture_completed")
//	// Returns: "capturecore/events/capture_completed"
type Topics struct{}

// Event returns the topic for a mirrored hardware event of the given kind.
//
// Example: capturecore/events/devices_detected
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, kind)
}

// SystemStatus returns the system status topic.
//
// Example: capturecore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: capturecore/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllEvents returns a pattern matching all mirrored hardware events.
//
// Pattern: capturecore/events/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvents)
}

// AllTopics returns a pattern matching all Capture Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: capturecore/#
func (Topics) AllTopics() string {
	return "capturecore/#"
}
