package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/brickd/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "brickd-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient is a Client that never connected.
func offlineClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Error(msg string, args ...any) { l.add("ERROR", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("WARN", msg, args) }

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprint(level, " ", msg, " ", args))
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", Topics{}.SystemStatus(), "brickd/system/status"},
		{"DeviceEvent motor", Topics{}.DeviceEvent("A"), "brickd/device/A/event"},
		{"DeviceEvent sensor", Topics{}.DeviceEvent("S4"), "brickd/device/S4/event"},
		{"AllDeviceEvents", Topics{}.AllDeviceEvents(), "brickd/device/+/event"},
		{"ActionIn", Topics{}.ActionIn(), "brickd/action/in"},
		{"ActionOut", Topics{}.ActionOut(), "brickd/action/out"},
		{"AllTopics", Topics{}.AllTopics(), "brickd/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "robot", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "brickd-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "robot" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and a clean session")
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS should not be configured")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v", opts.TLSConfig)
	}
	if opts.Username != "" {
		t.Error("anonymous config should not set a username")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "brickd-test")

	if !opts.WillEnabled || opts.WillTopic != "brickd/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Fatalf("will = enabled:%v topic:%q retained:%v qos:%d",
			opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}
	var s status
	if err := json.Unmarshal(opts.WillPayload, &s); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if s.Status != "offline" || s.Reason != reasonUnexpected || s.ClientID != "brickd-test" {
		t.Errorf("will payload = %+v", s)
	}
}

func TestStatusPayload_OnlineOmitsReason(t *testing.T) {
	payload := string(statusPayload("online", "brickd", ""))
	if strings.Contains(payload, "reason") {
		t.Errorf("payload = %s, want no reason", payload)
	}
	if !strings.HasPrefix(payload, `{"status":"online","client_id":"brickd","timestamp":"`) {
		t.Errorf("payload = %s", payload)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := offlineClient()
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"qos too high", "brickd/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "brickd/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "brickd/x", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := offlineClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("brickd/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("brickd/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("brickd/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("offline error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("brickd/#") {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe empty error = %v", err)
	}
	if err := c.Unsubscribe("brickd/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe offline error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
	if err := offlineClient().Close(); err != nil {
		t.Errorf("offline Close() error = %v", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := offlineClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	c := offlineClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "brickd/action/in", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "brickd/action/in", nil)
	c.dispatch(func(string, []byte) error { return nil }, "brickd/action/in", nil)

	lines := logger.all()
	if len(lines) != 2 {
		t.Fatalf("log lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "ERROR MQTT handler panic recovered") {
		t.Errorf("first line = %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "WARN MQTT handler returned error") {
		t.Errorf("second line = %s", lines[1])
	}
}

func TestDispatch_NoLoggerStillRecovers(t *testing.T) {
	c := offlineClient()
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
}
