package events

import (
	"encoding/json"
	"fmt"
)

// TopicPrefix is the base for all externally visible event topics.
const TopicPrefix = "capturecore/events"

// MQTTPublisher is the broker surface the mirror needs. The infrastructure
// MQTT client satisfies it.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Topic returns the broker topic an event kind is mirrored to.
//
// Example: capturecore/events/capture_completed
func Topic(kind Kind) string {
	return fmt.Sprintf("%s/%s", TopicPrefix, kind)
}

// Publisher mirrors bus events to an MQTT broker as JSON. It runs as an
// ordinary bus subscriber so broker trouble never backpressures the
// hardware path.
type Publisher struct {
	client MQTTPublisher
	logger Logger
	cancel func()
	done   chan struct{}
}

// NewPublisher subscribes to the bus and starts mirroring. Stop releases
// the subscription. logger may be nil.
func NewPublisher(bus *Bus, client MQTTPublisher, logger Logger) *Publisher {
	if logger == nil {
		logger = noopLogger{}
	}

	ch, cancel := bus.Subscribe()
	p := &Publisher{
		client: client,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go p.run(ch)
	return p
}

func (p *Publisher) run(ch <-chan Event) {
	defer close(p.done)
	for event := range ch {
		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.Warn("event marshal failed", "kind", string(event.Kind), "error", err)
			continue
		}
		if err := p.client.Publish(Topic(event.Kind), payload, 0, false); err != nil {
			p.logger.Warn("event publish failed", "kind", string(event.Kind), "error", err)
			continue
		}
		p.logger.Debug("event mirrored", "kind", string(event.Kind))
	}
}

// Stop unsubscribes from the bus and waits for the mirror goroutine to
// drain. Safe to call more than once.
func (p *Publisher) Stop() {
	p.cancel()
	<-p.done
}
