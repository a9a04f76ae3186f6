// Snooz Gateway - BLE to WebSocket bridge for Snooz noise machines
//
// This is the main entry point for the gateway. It discovers configured
// devices over BLE, maintains their control sessions, and exposes a
// correlated command/response WebSocket protocol plus unsolicited
// device_state events to clients. State history persistence and MQTT state
// mirroring are optional and enabled through configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/api"
	"github.com/nerrad567/snooz-gateway/internal/ble/bluez"
	"github.com/nerrad567/snooz-gateway/internal/fleet"
	"github.com/nerrad567/snooz-gateway/internal/history"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/config"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/database"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the cleanup work performed after the shutdown
// signal arrives.
const shutdownTimeout = 15 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Snooz gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open state history storage (optional)
	var store *history.Store
	if cfg.History.Enabled {
		db, openErr := database.Open(database.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening history database: %w", openErr)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()

		store, err = history.NewStore(ctx, db)
		if err != nil {
			return fmt.Errorf("initialising history store: %w", err)
		}
		log.Info("state history enabled", "path", cfg.History.Path)
	} else {
		log.Info("state history disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Host, cfg.MQTT.Port),
			"client_id", cfg.MQTT.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect the BLE transport
	transport, err := bluez.NewTransport(log)
	if err != nil {
		return fmt.Errorf("initialising BLE transport: %w", err)
	}
	defer func() {
		log.Info("closing BLE transport")
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing BLE transport", "error", closeErr)
		}
	}()

	// Build the fleet from configured identities
	manager := fleet.NewManager(fleet.Config{
		InitialScanTimeout: cfg.GetInitialScanTimeout(),
		RescanInterval:     cfg.GetRescanInterval(),
		RescanTimeout:      cfg.GetRescanTimeout(),
	}, transport)
	manager.SetLogger(log)

	for _, device := range cfg.Devices {
		session := snooz.NewSession(snooz.SessionConfig{
			DeviceName: device.DeviceName,
			Address:    device.Address,
			MatchName:  device.Name,
			Password:   device.Password,
			Factory:    transport,
		})
		session.SetLogger(log)
		if addErr := manager.AddDevice(session); addErr != nil {
			return fmt.Errorf("registering device %q: %w", device.DeviceName, addErr)
		}
	}
	log.Info("fleet initialised", "devices", len(manager.DeviceNames()))

	// Create the WebSocket gateway and wire event listeners
	gateway, err := api.New(api.Deps{
		Config:  cfg.WebSocket,
		Logger:  log,
		Devices: manager,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	manager.RegisterListener(gateway.EventListener())
	if store != nil {
		manager.RegisterListener(historyListener(store))
	}
	if mqttClient != nil {
		manager.RegisterListener(mqttListener(mqttClient))
	}

	// Start the gateway before discovery so clients can connect while the
	// initial scan is still running.
	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("starting fleet manager: %w", err)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, gateway, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Disconnect clients first so no command arrives for a stopping fleet,
	// then stop the rescan loop and device sessions.
	if err := gateway.Close(); err != nil {
		log.Error("error closing gateway", "error", err)
	}
	manager.Stop(shutdownCtx)

	// Deferred Close() calls will run in reverse order:
	// 1. BLE transport
	// 2. MQTT (if enabled)
	// 3. History database (if enabled)

	log.Info("Snooz gateway stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SNOOZGW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SNOOZGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// historyListener returns a fleet listener that records each debounced
// state-change event. Recording is best-effort; failures surface through the
// broadcaster's error logging.
func historyListener(store *history.Store) fleet.Listener {
	return func(ctx context.Context, event fleet.Event) error {
		return store.RecordStateChange(ctx, event.DeviceName, event.State)
	}
}

// mqttListener returns a fleet listener that mirrors each device snapshot to
// the retained per-device state topic and the non-retained event topic.
func mqttListener(client *mqtt.Client) fleet.Listener {
	return func(_ context.Context, event fleet.Event) error {
		payload, err := json.Marshal(event.State)
		if err != nil {
			return fmt.Errorf("marshalling device state: %w", err)
		}
		if err := client.PublishDeviceState(event.DeviceName, payload); err != nil {
			return err
		}
		return client.PublishDeviceEvent(event.DeviceName, payload)
	}
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - gateway: WebSocket gateway to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, gateway *api.Server, mqttClient *mqtt.Client) error {
	if err := gateway.HealthCheck(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}
