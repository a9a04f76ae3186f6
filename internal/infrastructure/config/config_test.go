package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
websocket:
  host: "127.0.0.1"
  port: 9001
  auth_token: "secret-token"
devices:
  - device_name: "bedroom"
    address: "aa:bb:cc:dd:ee:ff"
    password: "0123456789abcdef"
  - device_name: "nursery"
    name: "Snooz-ABC1"
    password: "fe:dc:ba:98:76:54:32:10"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WebSocket.Host != "127.0.0.1" {
		t.Errorf("WebSocket.Host = %q, want %q", cfg.WebSocket.Host, "127.0.0.1")
	}
	if cfg.WebSocket.Port != 9001 {
		t.Errorf("WebSocket.Port = %d, want 9001", cfg.WebSocket.Port)
	}
	if cfg.WebSocket.AuthToken != "secret-token" {
		t.Errorf("WebSocket.AuthToken = %q, want %q", cfg.WebSocket.AuthToken, "secret-token")
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}

	// Address is upper-cased, password normalised to bare lowercase hex.
	if cfg.Devices[0].Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Devices[0].Address = %q, want upper-cased", cfg.Devices[0].Address)
	}
	if cfg.Devices[1].Password != "fedcba9876543210" {
		t.Errorf("Devices[1].Password = %q, want %q", cfg.Devices[1].Password, "fedcba9876543210")
	}

	// Defaults survive partial files.
	if cfg.Discovery.RescanInterval != 30 {
		t.Errorf("Discovery.RescanInterval = %d, want default 30", cfg.Discovery.RescanInterval)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want default /ws", cfg.WebSocket.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SNOOZGW_WEBSOCKET_AUTH_TOKEN", "env-token")

	content := `
devices:
  - device_name: "bedroom"
    address: "AA:BB:CC:DD:EE:FF"
    password: "0123456789abcdef"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebSocket.AuthToken != "env-token" {
		t.Errorf("WebSocket.AuthToken = %q, want env override", cfg.WebSocket.AuthToken)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Devices = []DeviceConfig{
			{DeviceName: "bedroom", Address: "AA:BB:CC:DD:EE:FF", Password: "0123456789abcdef"},
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "no devices",
			mutate:  func(c *Config) { c.Devices = nil },
			wantErr: true,
		},
		{
			name: "duplicate device names",
			mutate: func(c *Config) {
				c.Devices = append(c.Devices, c.Devices[0])
			},
			wantErr: true,
		},
		{
			name: "device without matcher",
			mutate: func(c *Config) {
				c.Devices[0].Address = ""
				c.Devices[0].Name = ""
			},
			wantErr: true,
		},
		{
			name: "short password",
			mutate: func(c *Config) {
				c.Devices[0].Password = "abcdef"
			},
			wantErr: true,
		},
		{
			name: "name matcher alone is sufficient",
			mutate: func(c *Config) {
				c.Devices[0].Address = ""
				c.Devices[0].Name = "Snooz-1234"
			},
			wantErr: false,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.WebSocket.Port = 0 },
			wantErr: true,
		},
		{
			name: "invalid mqtt qos when enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormaliseHexPassword(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare hex", "0123456789abcdef", "0123456789abcdef", false},
		{"upper case", "0123456789ABCDEF", "0123456789abcdef", false},
		{"colon separated", "01:23:45:67:89:ab:cd:ef", "0123456789abcdef", false},
		{"surrounding whitespace", "  0123456789abcdef ", "0123456789abcdef", false},
		{"too short", "0123", "", true},
		{"too long", "0123456789abcdef00", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normaliseHexPassword(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normaliseHexPassword(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("normaliseHexPassword(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
