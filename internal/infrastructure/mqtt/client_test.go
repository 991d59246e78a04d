package mqtt

import (
	"errors"
	"strings"
	"testing"
)

// These tests exercise validation and state handling that do not require
// a running broker. End-to-end connect/publish/subscribe tests live in
// integration_test.go behind the integration build tag.

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

// =============================================================================
// Publish Validation Tests
// =============================================================================

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizePayload(t *testing.T) {
	client := &Client{}

	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("test/topic", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscribe Validation Tests
// =============================================================================

func TestSubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribeInvalidQoS(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 3, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeEmptyTopic(t *testing.T) {
	client := &Client{}

	err := client.Unsubscribe("")
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe() error = %v, want ErrInvalidTopic", err)
	}
}

func TestUnsubscribeDisconnected(t *testing.T) {
	client := &Client{}

	err := client.Unsubscribe("test/topic")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Subscription Tracking Tests
// =============================================================================

func TestSubscriptionCount_Empty(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}

func TestHasSubscription_NotSubscribed(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if client.HasSubscription("nonexistent/topic") {
		t.Error("HasSubscription() should be false for unsubscribed topic")
	}
}

// =============================================================================
// Topics Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "Event",
			builder: func() string {
				return Topics{}.Event("capture_completed")
			},
			expected: "capturecore/events/capture_completed",
		},
		{
			name: "EventDevicesDetected",
			builder: func() string {
				return Topics{}.Event("devices_detected")
			},
			expected: "capturecore/events/devices_detected",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "capturecore/system/status",
		},
		{
			name: "SystemShutdown",
			builder: func() string {
				return Topics{}.SystemShutdown()
			},
			expected: "capturecore/system/shutdown",
		},
		{
			name: "AllEvents",
			builder: func() string {
				return Topics{}.AllEvents()
			},
			expected: "capturecore/events/+",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "capturecore/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

// =============================================================================
// Payload Builder Tests
// =============================================================================

func TestBuildOnlinePayload(t *testing.T) {
	payload := buildOnlinePayload("capturecore-test")

	if !strings.Contains(payload, `"status":"online"`) {
		t.Errorf("buildOnlinePayload() missing status: %s", payload)
	}
	if !strings.Contains(payload, `"client_id":"capturecore-test"`) {
		t.Errorf("buildOnlinePayload() missing client_id: %s", payload)
	}
}

func TestBuildOfflinePayload(t *testing.T) {
	payload := buildOfflinePayload("capturecore-test")

	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("buildOfflinePayload() missing status: %s", payload)
	}
	if !strings.Contains(payload, `"reason":"graceful_shutdown"`) {
		t.Errorf("buildOfflinePayload() missing reason: %s", payload)
	}
}
