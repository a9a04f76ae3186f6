package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Snooz gateway.
type Config struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	History   HistoryConfig   `yaml:"history"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WebSocketConfig contains WebSocket gateway settings.
type WebSocketConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`

	// AuthToken is an optional bearer credential. When set, every new
	// connection must present it at upgrade time; when empty, the gateway
	// accepts unauthenticated connections.
	AuthToken string `yaml:"auth_token"`

	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DeviceConfig describes one configured device identity.
//
// Every device must carry at least one of Address/Name so discovery has
// something to match advertisements against. DeviceName is the unique key
// used in all protocol messages.
type DeviceConfig struct {
	DeviceName string `yaml:"device_name"`

	// Password is the 16-hex-character pairing secret. Normalised to
	// lowercase with separators stripped during validation.
	Password string `yaml:"password"`

	// Address is the hardware address (Linux MAC or macOS UUID).
	// Upper-cased for comparison. Optional when Name is set.
	Address string `yaml:"address"`

	// Name is the advertised-name matcher, compared case-insensitively.
	// Recommended on platforms where the hardware address is opaque.
	Name string `yaml:"name"`
}

// DiscoveryConfig contains scan and rescan timing settings (seconds).
type DiscoveryConfig struct {
	InitialScanTimeout int `yaml:"initial_scan_timeout"`
	RescanInterval     int `yaml:"rescan_interval"`
	RescanTimeout      int `yaml:"rescan_timeout"`
}

// HistoryConfig contains state-history persistence settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains optional MQTT state-mirroring settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// Environment variables follow the pattern SNOOZGW_SECTION_KEY, for example
// SNOOZGW_WEBSOCKET_AUTH_TOKEN or SNOOZGW_MQTT_PASSWORD.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// Scan timings mirror the service's discovery policy: a longer initial scan
// at startup, then shorter bounded scans on the rescan interval.
func defaultConfig() *Config {
	return &Config{
		WebSocket: WebSocketConfig{
			Host:           "0.0.0.0",
			Port:           8765,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Discovery: DiscoveryConfig{
			InitialScanTimeout: 12,
			RescanInterval:     30,
			RescanTimeout:      8,
		},
		History: HistoryConfig{
			Enabled:     false,
			Path:        "./data/snoozgw.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Host:     "localhost",
			Port:     1883,
			ClientID: "snoozgw",
			QoS:      1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SNOOZGW_WEBSOCKET_HOST"); v != "" {
		cfg.WebSocket.Host = v
	}
	if v := os.Getenv("SNOOZGW_WEBSOCKET_AUTH_TOKEN"); v != "" {
		cfg.WebSocket.AuthToken = v
	}
	if v := os.Getenv("SNOOZGW_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("SNOOZGW_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("SNOOZGW_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("SNOOZGW_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

// Validate checks the configuration for errors.
//
// Device entries are normalised in place: passwords are lowered and stripped
// of separators, addresses upper-cased.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.WebSocket.Port < 1 || c.WebSocket.Port > 65535 {
		errs = append(errs, "websocket.port must be between 1 and 65535")
	}
	if c.WebSocket.Path == "" || !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	if len(c.Devices) == 0 {
		errs = append(errs, "no devices configured (devices is empty)")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i := range c.Devices {
		d := &c.Devices[i]

		if d.DeviceName == "" {
			errs = append(errs, fmt.Sprintf("devices[%d]: device_name is required", i))
			continue
		}
		if seen[d.DeviceName] {
			errs = append(errs, fmt.Sprintf("duplicate device_name %q", d.DeviceName))
		}
		seen[d.DeviceName] = true

		if d.Address == "" && d.Name == "" {
			errs = append(errs, fmt.Sprintf("device %q must specify either address or name", d.DeviceName))
		}
		d.Address = strings.ToUpper(strings.TrimSpace(d.Address))

		normalised, err := normaliseHexPassword(d.Password)
		if err != nil {
			errs = append(errs, fmt.Sprintf("device %q: %v", d.DeviceName, err))
		} else {
			d.Password = normalised
		}
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// passwordHexLength is the expected length of a normalised pairing secret.
const passwordHexLength = 16

// normaliseHexPassword strips separators from a pairing secret and verifies
// it is exactly 16 hex characters.
func normaliseHexPassword(value string) (string, error) {
	var b strings.Builder
	for _, ch := range strings.ToLower(strings.TrimSpace(value)) {
		if (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') {
			b.WriteRune(ch)
		}
	}
	cleaned := b.String()
	if len(cleaned) != passwordHexLength {
		return "", fmt.Errorf("invalid password hex length: expected %d hex chars, got %d", passwordHexLength, len(cleaned))
	}
	return cleaned, nil
}

// GetPingInterval returns the WebSocket ping interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.WebSocket.PingInterval) * time.Second
}

// GetPongTimeout returns the WebSocket pong timeout as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.WebSocket.PongTimeout) * time.Second
}

// GetInitialScanTimeout returns the startup scan timeout as a Duration.
func (c *Config) GetInitialScanTimeout() time.Duration {
	return time.Duration(c.Discovery.InitialScanTimeout) * time.Second
}

// GetRescanInterval returns the rescan loop interval as a Duration.
func (c *Config) GetRescanInterval() time.Duration {
	return time.Duration(c.Discovery.RescanInterval) * time.Second
}

// GetRescanTimeout returns the per-rescan scan timeout as a Duration.
func (c *Config) GetRescanTimeout() time.Duration {
	return time.Duration(c.Discovery.RescanTimeout) * time.Second
}
