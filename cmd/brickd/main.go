// brickd exposes an EV3-style brick to remote clients.
//
// Browsers talk the JSON action protocol over a websocket; when MQTT is
// enabled the same protocol is bridged onto brickd/action/in and
// brickd/action/out, and device lifecycle events are published. Sensor
// readings can be streamed to InfluxDB. Lua scripts are stored in SQLite and
// run one at a time against the brick.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/brickd/migrations"

	"github.com/nerrad567/brickd/internal/action"
	"github.com/nerrad567/brickd/internal/api"
	"github.com/nerrad567/brickd/internal/brick"
	"github.com/nerrad567/brickd/internal/infrastructure/config"
	"github.com/nerrad567/brickd/internal/infrastructure/database"
	"github.com/nerrad567/brickd/internal/infrastructure/influxdb"
	"github.com/nerrad567/brickd/internal/infrastructure/logging"
	"github.com/nerrad567/brickd/internal/infrastructure/mqtt"
	"github.com/nerrad567/brickd/internal/script"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// eventBuffer is the number of device events the MQTT publisher may hold.
const eventBuffer = 64

func main() {
	migrateCmd := flag.String("migrate", "", "run a schema command (up, down, status) and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *migrateCmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads the configuration and serves until ctx is cancelled. With a
// non-empty migrateCmd it runs that schema command instead and returns.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, migrateCmd string) error {
	log := logging.Default()
	log.Info("starting brickd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	if migrateCmd != "" {
		return migrate(ctx, cfg.Database, migrateCmd, os.Stdout)
	}
	return serve(ctx, cfg, log)
}

// migrate runs one schema command against the configured database:
// "up" applies pending migrations, "down" rolls back the latest one and
// "status" lists applied and pending versions on out.
func migrate(ctx context.Context, cfg config.DatabaseConfig, cmd string, out io.Writer) error {
	switch cmd {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down or status)", cmd)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly command

	switch cmd {
	case "up":
		return db.Migrate(ctx)
	case "down":
		return db.MigrateDown(ctx)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// getConfigPath returns BRICKD_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("BRICKD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// dispatcherConfig converts the YAML section into the dispatcher's options.
func dispatcherConfig(cfg config.DispatcherConfig) action.Config {
	return action.Config{
		BufferedDelivery:  cfg.BufferedDelivery,
		FlushInitialDelay: cfg.FlushInitialDelay(),
		FlushPeriod:       cfg.FlushPeriod(),
		QueueSize:         cfg.WorkerQueueSize,
	}
}

// app holds every running component so shutdown can stop them in order.
type app struct {
	log *logging.Logger

	db         *database.DB
	brick      *brick.Brick
	dispatcher *action.Dispatcher
	scripts    *script.Manager
	server     *api.Server

	mqtt         *mqtt.Client
	bridge       *mqtt.Bridge
	events       *mqtt.EventPublisher
	stopEvents   context.CancelFunc
	influxClient *influxdb.Client
}

// serve wires the components described by cfg and blocks until ctx is done.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	a := &app{log: log}
	defer a.shutdown()

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := script.NewSQLiteRepository(db.DB, cfg.Scripts.MaxSourceSize)

	a.brick = brick.New(brick.NewSimHAL())
	a.brick.SetLogger(log)

	fanout := api.NewFanout()
	a.dispatcher = action.New(dispatcherConfig(cfg.Dispatcher), action.Deps{
		Transport: fanout,
		Logger:    log,
	})

	a.scripts = script.NewManager(a.brick, repo, cfg.Scripts.MaxSourceSize)
	a.scripts.SetLogger(log)
	a.scripts.Register(a.dispatcher)
	a.brick.RegisterActions(a.dispatcher)

	hub := api.NewHub(cfg.WebSocket, log, a.dispatcher)
	fanout.Add(hub)

	var observers brick.Observers
	var monitors brick.Monitors
	checks := map[string]api.HealthChecker{"database": db}
	metrics := map[string]func() any{}

	if cfg.MQTT.Enabled {
		if err := a.startMQTT(ctx, cfg.MQTT, fanout); err != nil {
			return err
		}
		observers = append(observers, a.events)
		checks["mqtt"] = a.mqtt
		metrics["mqtt"] = a.mqttMetrics
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		if err := a.startInflux(cfg.InfluxDB); err != nil {
			return err
		}
		observers = append(observers, a.influxClient)
		monitors = append(monitors, a.influxClient)
		checks["influxdb"] = a.influxClient
		metrics["influxdb"] = func() any { return a.influxClient.Stats() }
	} else {
		log.Info("InfluxDB disabled")
	}

	if len(observers) > 0 {
		a.brick.SetObserver(observers)
	}
	if len(monitors) > 0 {
		a.brick.SetMonitor(monitors)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("starting dispatcher: %w", err)
	}
	log.Info("action handlers registered", "handlers", a.dispatcher.HandlerNames())

	a.server, err = api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Dispatcher: a.dispatcher,
		Brick:      a.brick,
		Hub:        hub,
		Scripts:    repo,
		Checks:     checks,
		Metrics:    metrics,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := a.server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// startMQTT connects to the broker, starts the action bridge and the
// device event publisher.
func (a *app) startMQTT(ctx context.Context, cfg config.MQTTConfig, fanout *api.Fanout) error {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	a.mqtt = client
	client.SetLogger(a.log)
	client.SetOnConnect(func() {
		a.log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		a.log.Warn("MQTT disconnected", "error", err)
	})
	a.log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	a.bridge = mqtt.NewBridge(client, a.dispatcher, client.QoS())
	a.bridge.SetLogger(a.log)
	if err := a.bridge.Start(); err != nil {
		return fmt.Errorf("starting MQTT action bridge: %w", err)
	}
	fanout.Add(a.bridge)
	a.log.Info("MQTT action bridge started", "connection_id", a.bridge.ID().String())

	a.events = mqtt.NewEventPublisher(client, client.QoS(), eventBuffer)
	a.events.SetLogger(a.log)
	var eventsCtx context.Context
	eventsCtx, a.stopEvents = context.WithCancel(ctx)
	go a.events.Run(eventsCtx)
	return nil
}

func (a *app) startInflux(cfg config.InfluxDBConfig) error {
	client, err := influxdb.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	a.influxClient = client
	client.SetOnError(func(err error) {
		a.log.Error("InfluxDB write error", "error", err)
	})
	a.log.Info("InfluxDB connected",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket,
	)
	return nil
}

// mqttMetrics is the mqtt section of /api/v1/metrics.
func (a *app) mqttMetrics() any {
	return struct {
		Connected       bool             `json:"connected"`
		Subscriptions   int              `json:"subscriptions"`
		Bridge          mqtt.BridgeStats `json:"bridge"`
		EventsPublished uint64           `json:"events_published"`
		EventsDropped   uint64           `json:"events_dropped"`
	}{
		Connected:       a.mqtt.IsConnected(),
		Subscriptions:   a.mqtt.SubscriptionCount(),
		Bridge:          a.bridge.Stats(),
		EventsPublished: a.events.Published(),
		EventsDropped:   a.events.Dropped(),
	}
}

// shutdown first closes the inbound transports so no new action arrives,
// then stops the dispatcher, closes the script manager (which ends the
// running script and releases its devices), releases anything left, and
// finally closes the outbound sinks and storage. Components that were never
// started are skipped.
func (a *app) shutdown() {
	if a.server != nil {
		if err := a.server.Close(); err != nil {
			a.log.Error("error closing API server", "error", err)
		}
	}
	if a.bridge != nil {
		if err := a.bridge.Stop(); err != nil {
			a.log.Warn("error stopping MQTT action bridge", "error", err)
		}
	}

	if a.dispatcher != nil {
		a.log.Info("stopping dispatcher")
		a.dispatcher.Stop()
	}

	if a.scripts != nil {
		a.scripts.Close()
	}

	if a.brick != nil {
		released := a.brick.ReleaseResources()
		a.log.Info("devices released", "count", released)
	}

	if a.stopEvents != nil {
		a.stopEvents()
	}
	if a.mqtt != nil {
		a.log.Info("disconnecting from MQTT")
		if err := a.mqtt.Close(); err != nil {
			a.log.Error("error closing MQTT", "error", err)
		}
	}

	if a.influxClient != nil {
		a.log.Info("closing InfluxDB connection")
		if err := a.influxClient.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	}

	if a.db != nil {
		a.log.Info("closing database")
		if err := a.db.Close(); err != nil {
			a.log.Error("error closing database", "error", err)
		}
	}

	a.log.Info("brickd stopped")
}

// healthCheck verifies every infrastructure connection once at startup.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
