// Lutron LEAP bridge gateway.
//
// leapbridge keeps one TLS session per configured Lutron bridge, projects
// bridge devices onto host devices, turns button traffic into gestures and
// publishes everything over MQTT, with an optional admin API and
// WebSocket feed.
//
// Run `leapbridge run` to start the service, or see `leapbridge --help`
// for the maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/nerrad567/gray-logic-leap/migrations"

	"github.com/nerrad567/gray-logic-leap/internal/api"
	"github.com/nerrad567/gray-logic-leap/internal/audit"
	"github.com/nerrad567/gray-logic-leap/internal/automation"
	"github.com/nerrad567/gray-logic-leap/internal/bridges/lutron"
	"github.com/nerrad567/gray-logic-leap/internal/device"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-leap/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configEnvVar overrides the default configuration path.
	configEnvVar = "LEAPBRIDGE_CONFIG"

	// historyPruneInterval is how often expired state history is deleted.
	historyPruneInterval = time.Hour
)

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the service itself, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting leapbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database ready", "path", cfg.Database.Path)

	// Device registry, seeded from the configured bridges and devices
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)
	devices.SetStateHistory(device.NewSQLiteStateHistoryRepository(db.DB))
	if refreshErr := devices.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading device registry: %w", refreshErr)
	}

	hostDevices := lutron.HostDevicesFromConfig(cfg.Lutron)
	created, err := devices.Seed(ctx, seedDevices(hostDevices))
	if err != nil {
		return fmt.Errorf("seeding devices: %w", err)
	}
	log.Info("device registry initialised",
		"devices", devices.GetDeviceCount(),
		"created", created,
	)

	if days := cfg.Database.HistoryRetentionDays; days > 0 {
		go devices.RunPruner(ctx, time.Duration(days)*24*time.Hour, historyPruneInterval)
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	triggers, linked, err := loadAutomation(ctx, db, log)
	if err != nil {
		return err
	}
	log.Info("automation loaded",
		"triggers", triggers.GetTriggerCount(),
		"linked_rules", linked.Len(),
	)

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	opts := lutron.GatewayOptions{
		Engine:         lutron.EngineOptionsFromConfig(cfg.Lutron),
		Devices:        hostDevices,
		MQTT:           mqttClient,
		Store:          devices,
		Triggers:       triggers,
		Linked:         linked,
		Events:         hub,
		Levels:         log,
		Version:        version,
		HealthInterval: time.Duration(cfg.Lutron.HealthInterval) * time.Second,
		Logger:         log,
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}

	gateway, err := lutron.NewGateway(opts)
	if err != nil {
		return fmt.Errorf("creating lutron gateway: %w", err)
	}
	if startErr := gateway.Start(ctx); startErr != nil {
		return fmt.Errorf("starting lutron gateway: %w", startErr)
	}
	defer func() {
		log.Info("stopping lutron gateway")
		gateway.Stop()
	}()

	if cfg.API.Enabled {
		srv, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log,
			Devices:  devices,
			Bridge:   gateway,
			Triggers: triggers,
			Linked:   linked,
			Audit:    audit.NewSQLiteRepository(db.DB),
			Hub:      hub,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, gateway, InfluxDB, MQTT,
	// database.
	log.Info("leapbridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LEAPBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// loadAutomation builds the trigger registry and the linked rule set from
// the database. A nil logger keeps both quiet.
func loadAutomation(ctx context.Context, db *database.DB, log automation.Logger) (*automation.Registry, *automation.LinkedRuleSet, error) {
	triggers := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
	if log != nil {
		triggers.SetLogger(log)
	}
	if err := triggers.RefreshCache(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading triggers: %w", err)
	}

	linked := automation.NewLinkedRuleSet(db, log)
	if err := linked.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("loading linked rules: %w", err)
	}
	return triggers, linked, nil
}

// seedDevices converts configured host devices into registry devices.
func seedDevices(hostDevices []lutron.HostDevice) []device.Device {
	out := make([]device.Device, 0, len(hostDevices))
	for _, d := range hostDevices {
		out = append(out, device.Device{
			ID:       d.ID,
			Name:     d.Name,
			Kind:     string(d.Kind),
			BridgeID: d.BridgeID,
			NativeID: d.NativeID,
		})
	}
	return out
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
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

	// Bridge sessions reconnect on their own and report through the
	// health topic, so they do not gate startup.
	return nil
}
