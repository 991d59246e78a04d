package events

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalforge/capture-core/internal/capture"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	kinds := []Kind{KindDriverRegistered, KindDevicesDetected, KindDeviceConnected}
	for _, k := range kinds {
		bus.Publish(Event{Kind: k})
	}

	for i, want := range kinds {
		select {
		case got := <-ch:
			if got.Kind != want {
				t.Errorf("event %d = %q, want %q", i, got.Kind, want)
			}
			if got.Time.IsZero() {
				t.Error("event time not stamped")
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(Event{Kind: KindCaptureCompleted, SessionID: "s1"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.SessionID != "s1" {
				t.Errorf("subscriber %s: session = %q, want s1", name, got.SessionID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the event", name)
		}
	}
}

func TestBusSlowSubscriberDropsNotBlocks(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe() // Never drained.
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			bus.Publish(Event{Kind: KindDevicesDetected})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	if _, dropped := bus.Stats(); dropped == 0 {
		t.Error("expected drops for the undrained subscriber")
	}
}

func TestBusCancelIdempotent(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	bus.Publish(Event{Kind: KindDevicesDetected}) // Must not panic.
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("channel still open after bus close")
	}

	// Subscribing after close yields a closed channel.
	late, cancel := bus.Subscribe()
	defer cancel()
	if _, open := <-late; open {
		t.Error("late subscription channel should be closed")
	}
}

// recordingClient captures published topics and payloads.
type recordingClient struct {
	mu       sync.Mutex
	messages map[string][]byte
}

func (c *recordingClient) Publish(topic string, payload []byte, _ byte, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = make(map[string][]byte)
	}
	c.messages[topic] = payload
	return nil
}

func (c *recordingClient) get(topic string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages[topic]
}

func TestPublisherMirrorsToMQTT(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	client := &recordingClient{}
	pub := NewPublisher(bus, client, nil)

	bus.Publish(Event{
		Kind:             KindDeviceConnected,
		ConnectionString: "/dev/ttyACM0",
		DriverID:         "lanet-serial",
	})

	topic := Topic(KindDeviceConnected)
	deadline := time.Now().Add(2 * time.Second)
	for client.get(topic) == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	payload := client.get(topic)
	if payload == nil {
		t.Fatal("event never reached the broker client")
	}

	var got Event
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.ConnectionString != "/dev/ttyACM0" || got.DriverID != "lanet-serial" {
		t.Errorf("payload = %+v", got)
	}

	pub.Stop()
	pub.Stop()
}

func TestTopic(t *testing.T) {
	if got := Topic(KindCaptureCompleted); got != "capturecore/events/capture_completed" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestEventJSONOmitsEmpty(t *testing.T) {
	payload, err := json.Marshal(Event{Kind: KindDevicesDetected, Devices: []capture.DetectedDevice{}})
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"connection_string", "session_id", "driver_id"} {
		if strings.Contains(string(payload), `"`+field+`"`) {
			t.Errorf("empty field %q serialized: %s", field, payload)
		}
	}
}
