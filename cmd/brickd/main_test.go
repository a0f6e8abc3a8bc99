package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/brickd/internal/action"
	"github.com/nerrad567/brickd/internal/brick"
	"github.com/nerrad567/brickd/internal/infrastructure/config"
	"github.com/nerrad567/brickd/internal/infrastructure/logging"
	"github.com/nerrad567/brickd/internal/script"
)

func TestGetConfigPath(t *testing.T) {
	t.Setenv("BRICKD_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("BRICKD_CONFIG", "/etc/brickd/config.yaml")
	if got := getConfigPath(); got != "/etc/brickd/config.yaml" {
		t.Errorf("getConfigPath() = %q, want the env value", got)
	}
}

func TestDispatcherConfig(t *testing.T) {
	got := dispatcherConfig(config.DispatcherConfig{
		BufferedDelivery:    true,
		FlushInitialDelayMS: 250,
		FlushPeriodMS:       20,
		WorkerQueueSize:     8,
	})
	if !got.BufferedDelivery {
		t.Error("BufferedDelivery = false")
	}
	if got.FlushInitialDelay != 250*time.Millisecond || got.FlushPeriod != 20*time.Millisecond {
		t.Errorf("flush schedule = %v/%v", got.FlushInitialDelay, got.FlushPeriod)
	}
	if got.QueueSize != 8 {
		t.Errorf("QueueSize = %d, want 8", got.QueueSize)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	t.Setenv("BRICKD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if err := run(context.Background(), ""); err == nil {
		t.Fatal("run() with a missing config should fail")
	}
}

func TestRun_ShippedConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load(configs/config.yaml) error = %v", err)
	}
	if cfg.Dispatcher.BufferedDelivery {
		t.Error("shipped config should use direct delivery")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServe_StartsAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = freePort(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "brickd.db")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, logging.Discard())
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", cfg.API.Port)
	var body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:noctx // test
		if err == nil {
			err = json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if err == nil && resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if body.Components["database"] != "ok" {
		t.Errorf("database component = %q", body.Components["database"])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}
}

func TestServe_BadDatabasePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(blocker, "brickd.db")

	if err := serve(context.Background(), cfg, logging.Discard()); err == nil {
		t.Fatal("serve() should fail when the database directory cannot be created")
	}
}

type discardTransport struct{}

func (discardTransport) SendMessage(string, uuid.UUID) error { return nil }

func TestShutdown_NoScriptStartsAfterward(t *testing.T) {
	hal := brick.NewSimHAL()
	a := &app{log: logging.Discard(), brick: brick.New(hal)}
	a.dispatcher = action.New(action.DefaultConfig(), action.Deps{Transport: discardTransport{}})
	a.scripts = script.NewManager(a.brick, nil, 0)
	a.scripts.Register(a.dispatcher)
	a.brick.RegisterActions(a.dispatcher)
	if err := a.dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	loop := `{"action":"runScript","script":"ev3.getLargeMotor('A'):forward() while ev3.isOk() do ev3.sleep(5) end"}`
	a.dispatcher.ProcessMessage(uuid.New(), loop)
	if !a.scripts.IsScriptRunning() {
		t.Fatal("script did not start")
	}

	a.shutdown()

	// A frame still in flight from a transport after shutdown.
	a.dispatcher.ProcessMessage(uuid.New(), loop)
	a.scripts.Wait()

	if a.scripts.IsScriptRunning() {
		t.Error("a script is running after shutdown")
	}
	if devices := a.brick.Devices(); len(devices) != 0 {
		t.Errorf("Devices() = %v after shutdown, want none", devices)
	}
	if hal.Opens("A") != hal.Closes("A") {
		t.Errorf("opens(A)=%d closes(A)=%d, want balanced", hal.Opens("A"), hal.Closes("A"))
	}
}

func TestMigrate_Commands(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "brickd.db"), WALMode: true, BusyTimeout: 5}

	status := func() string {
		t.Helper()
		var out strings.Builder
		if err := migrate(ctx, cfg, "status", &out); err != nil {
			t.Fatalf("migrate(status) error = %v", err)
		}
		return out.String()
	}

	if got := status(); !strings.Contains(got, "pending  20260301_090000  scripts") {
		t.Errorf("status before up = %q", got)
	}

	if err := migrate(ctx, cfg, "up", io.Discard); err != nil {
		t.Fatalf("migrate(up) error = %v", err)
	}
	if got := status(); !strings.HasPrefix(got, "applied  20260301_090000") || strings.Contains(got, "pending") {
		t.Errorf("status after up = %q", got)
	}

	if err := migrate(ctx, cfg, "down", io.Discard); err != nil {
		t.Fatalf("migrate(down) error = %v", err)
	}
	if got := status(); !strings.Contains(got, "pending  20260301_090000") {
		t.Errorf("status after down = %q", got)
	}

	if err := migrate(ctx, cfg, "sideways", io.Discard); err == nil {
		t.Error("unknown command should fail")
	}
}
