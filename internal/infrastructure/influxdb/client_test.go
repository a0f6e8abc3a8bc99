package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/brickd/internal/brick"
	"github.com/nerrad567/brickd/internal/infrastructure/config"
	"github.com/nerrad567/brickd/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol sent to /api/v2/write.
type fakeInflux struct {
	mu      sync.Mutex
	writes  []string
	buckets []string
	srv     *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.buckets = append(f.buckets, r.URL.Query().Get("bucket"))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) lines() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.srv.URL,
		Token:         "test-token",
		Org:           "brickd",
		Bucket:        "telemetry",
		BatchSize:     1,
		FlushInterval: 1,
	}
}

func waitForLine(t *testing.T, f *fakeInflux, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(f.lines(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("line %q not written; got:\n%s", want, f.lines())
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: true, URL: url})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthCheck(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRecord_WritesSensorReadings(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	hal := brick.NewSimHAL()
	hal.SetSample(1, brick.ModeReflected, 42)
	b := brick.New(hal)
	b.SetMonitor(client)

	s, err := b.ColorSensor("1")
	if err != nil {
		t.Fatalf("ColorSensor() error = %v", err)
	}
	if _, err := s.Read(brick.ModeReflected); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	client.Flush()

	waitForLine(t, f, "sensor_readings,kind=color-sensor,mode=reflected,port=S1 value=42 ")
	if client.Points() != 1 {
		t.Errorf("Points() = %d, want 1", client.Points())
	}
	f.mu.Lock()
	bucket := f.buckets[0]
	f.mu.Unlock()
	if bucket != "telemetry" {
		t.Errorf("bucket = %q, want telemetry", bucket)
	}
}

func TestOnDeviceEvent_WritesDeviceEvents(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.OnDeviceEvent(brick.Event{
		Type: brick.DeviceAcquired,
		Kind: brick.KindMediumMotor,
		Port: "B",
		Time: time.Unix(1700000000, 0),
	})
	client.Flush()

	waitForLine(t, f, "device_events,event=acquired,kind=medium-motor,port=B count=1i 1700000000000000000")
}

func TestWriteAfterClose_IsDropped(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	client.Record(brick.Reading{Port: "S1", Kind: brick.KindTouchSensor, Mode: "touch", Value: 1})
	client.Flush()

	if client.Points() != 0 {
		t.Errorf("Points() = %d after Close, want 0", client.Points())
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *influxdb.Client
	if err := c.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestConfigTags_AddedToEveryPoint(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.Tags = map[string]string{"brick": "lab-1"}

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.OnDeviceEvent(brick.Event{Type: brick.DeviceReleased, Kind: brick.KindTouchSensor, Port: "S4"})
	client.Flush()

	waitForLine(t, f, "brick=lab-1")
	waitForLine(t, f, "event=released")

	st := client.Stats()
	if !st.Connected || st.Points != 1 || st.WriteErrors != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestWriteErrors_Counted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, `{"code":"invalid","message":"bad point"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled: true, URL: srv.URL, Org: "o", Bucket: "b", BatchSize: 1, FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	got := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	client.OnDeviceEvent(brick.Event{Type: brick.DeviceAcquired, Port: "A", Kind: brick.KindLargeMotor})
	client.Flush()

	select {
	case <-got:
	case <-time.After(3 * time.Second):
		t.Fatal("write error not reported")
	}
	if client.Stats().WriteErrors == 0 {
		t.Error("WriteErrors = 0 after a rejected write")
	}
}
