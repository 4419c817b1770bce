// Gray Logic device-set actor.
//
// This binary runs one actor that owns an ordered list of device slots and
// sends connect, disconnect and command operations to them through the
// protocol bridges on MQTT. Finished operations are stored in SQLite,
// optionally written to InfluxDB, and streamed over the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-devset/internal/actor"
	"github.com/nerrad567/gray-logic-devset/internal/api"
	"github.com/nerrad567/gray-logic-devset/internal/bridgedev"
	"github.com/nerrad567/gray-logic-devset/internal/command"
	"github.com/nerrad567/gray-logic-devset/internal/deviceset"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-devset/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-devset/internal/reactor"
	"github.com/nerrad567/gray-logic-devset/internal/runlog"
	"github.com/nerrad567/gray-logic-devset/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when GRAYLOGIC_CONFIG is unset.
	defaultConfigPath = "configs/devset.yaml"

	// shutdownDisconnectTimeout bounds the disconnect of every device on shutdown.
	shutdownDisconnectTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component, waits for ctx to be cancelled and shuts down
// in reverse order.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic device-set actor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"actor_id", cfg.Actor.ID,
		"slots", len(cfg.Actor.Slots),
	)

	// Database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)
	runs := runlog.NewSQLiteRepository(db.DB)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT, cfg.Actor.ID)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Run recorder
	recorderCfg := runlog.RecorderConfig{
		ActorID:    cfg.Actor.ID,
		Repository: runs,
		Publisher:  mqttClient,
		RunTopic:   mqtt.Topics{}.ActorRun(cfg.Actor.ID),
		Logger:     log.Component("runlog"),
	}
	if influxClient != nil {
		recorderCfg.Metrics = influxClient
	}
	recorder := runlog.NewRecorder(recorderCfg)
	recorder.Start()
	defer func() {
		log.Info("flushing run history")
		recorder.Stop()
	}()

	// Event loop
	loop := reactor.New()
	loop.SetLogger(log.Component("reactor"))
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(loopCtx) //nolint:errcheck // returns the cancellation error
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	// Devices and actor
	newDevice := deviceFactory(cfg.Actor.ID, mqttClient, loop, influxClient, log.Component("bridgedev"))
	devices, err := buildDevices(cfg.Actor, newDevice)
	if err != nil {
		return err
	}

	act, err := actor.New(actor.Options{
		ID:           cfg.Actor.ID,
		Loop:         loop,
		Slots:        cfg.Actor.SlotNames(),
		Devices:      devices,
		TimeLimit:    cfg.Actor.TimeLimit,
		Observer:     recorder,
		Publisher:    mqttClient,
		MessageTopic: mqtt.Topics{}.ActorMessage(cfg.Actor.ID),
		Logger:       log.Component("actor"),
	})
	if err != nil {
		return fmt.Errorf("creating actor: %w", err)
	}
	if err := act.Start(ctx, cfg.Actor.ConnectOnStart); err != nil {
		return fmt.Errorf("starting actor: %w", err)
	}
	defer disconnectAll(act, log)

	// HTTP API (optional)
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		server, err := api.New(api.Deps{
			Config:    cfg.API,
			WS:        cfg.WebSocket,
			Logger:    log,
			Actor:     act,
			Runs:      runs,
			RunSource: recorder,
			Devices: func(name, protocol string) (deviceset.Device, error) {
				return newDevice(name, protocol), nil
			},
			Checks:  checks,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("HTTP API disabled")
	}

	go func() {
		if err := act.WaitReady(ctx); err != nil {
			log.Warn("actor started with errors", "error", err)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, device disconnect,
	// event loop, run recorder, InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// deviceFactory returns a constructor for bridge-backed devices. Every
// finished device command is written to InfluxDB when it is enabled.
func deviceFactory(actorID string, transport bridgedev.Transport, loop bridgedev.Loop, influxClient *influxdb.Client, log *logging.Logger) func(name, protocol string) deviceset.Device {
	opts := []bridgedev.Option{bridgedev.WithLogger(log)}
	if influxClient != nil {
		opts = append(opts, bridgedev.WithFinishFunc(func(device string, cmd *command.Command, elapsed time.Duration) {
			influxClient.WriteCommandMetric(actorID, device, string(cmd.State()), elapsed)
		}))
	}
	return func(name, protocol string) deviceset.Device {
		return bridgedev.New(name, protocol, transport, loop, opts...)
	}
}

// buildDevices creates the startup device of every configured slot.
// Empty slots get a nil entry.
func buildDevices(cfg config.ActorConfig, newDevice func(name, protocol string) deviceset.Device) ([]deviceset.Device, error) {
	devices := make([]deviceset.Device, len(cfg.Slots))
	for i, slot := range cfg.Slots {
		if slot.Device == nil {
			continue
		}
		dev := newDevice(slot.Device.Name, slot.Device.Protocol)
		if dev == nil {
			return nil, fmt.Errorf("slot %q: no device for protocol %q", slot.Name, slot.Device.Protocol)
		}
		devices[i] = dev
	}
	return devices, nil
}

// disconnectAll disconnects every filled slot and waits briefly for it.
func disconnectAll(act *actor.Actor, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDisconnectTimeout)
	defer cancel()

	var (
		governing *command.Command
		setErr    error
	)
	err := act.Do(ctx, func(set *deviceset.Set) {
		governing, setErr = set.Disconnect(nil, deviceset.RunOptions{TimeLimit: shutdownDisconnectTimeout})
	})
	if err == nil {
		err = setErr
	}
	if err != nil {
		log.Warn("disconnecting devices failed", "error", err)
		return
	}

	select {
	case <-governing.Done():
		if governing.DidFail() {
			log.Warn("some devices did not disconnect cleanly", "error", governing.Message())
			return
		}
		log.Info("devices disconnected")
	case <-ctx.Done():
		log.Warn("timed out disconnecting devices")
	}
}
