//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Tests in this file need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func integrationClient(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	c := integrationClient(t, "brickd-int-sub-track")

	topics := []string{"brickd/int/one", "brickd/int/two", Topics{}.AllDeviceEvents()}
	for _, topic := range topics {
		if err := c.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if c.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", c.SubscriptionCount(), len(topics))
	}

	if err := c.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

func TestIntegration_BridgeRoundTrip(t *testing.T) {
	server := integrationClient(t, "brickd-int-server")
	remote := integrationClient(t, "brickd-int-remote")

	proc := &fakeProcessor{calls: make(chan recordedCall, 1)}
	bridge := NewBridge(server, proc, 1)
	if err := bridge.Start(); err != nil {
		t.Fatalf("bridge Start() error = %v", err)
	}

	replies := make(chan string, 1)
	var once sync.Once
	if err := remote.Subscribe(Topics{}.ActionOut(), 1, func(_ string, p []byte) error {
		once.Do(func() { replies <- string(p) })
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := remote.PublishString(Topics{}.ActionIn(), `{"action":"ping"}`, 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	select {
	case c := <-proc.calls:
		if c.conn != bridge.ID() {
			t.Errorf("conn = %s, want bridge id", c.conn)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("inbound action not delivered")
	}

	if err := bridge.SendMessage(`{"msgTyp":"Pong"}`, uuid.Nil); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	select {
	case got := <-replies:
		if got != `{"msgTyp":"Pong"}` {
			t.Errorf("reply = %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reply not received")
	}
}

func TestIntegration_CloseIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "brickd-int-close"
	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
