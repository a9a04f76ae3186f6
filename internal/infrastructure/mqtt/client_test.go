package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/snooz-gateway/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:  true,
		Host:     "localhost",
		Port:     1883,
		ClientID: "snoozgw-test",
		QoS:      1,
	}
}

// newDisconnectedClient builds a client that has never dialled the broker.
func newDisconnectedClient() *Client {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	return &Client{
		client:  pahomqtt.NewClient(opts),
		options: opts,
		cfg:     cfg,
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState("bedroom"), "snoozgw/state/bedroom"},
		{"device event", topics.DeviceEvent("bedroom"), "snoozgw/event/bedroom"},
		{"system status", topics.SystemStatus(), "snoozgw/system/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s topic = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain tcp broker", func(t *testing.T) {
		opts := buildClientOptions(testConfig())
		servers := opts.Servers
		if len(servers) != 1 {
			t.Fatalf("len(Servers) = %d, want 1", len(servers))
		}
		if got := servers[0].String(); got != "tcp://localhost:1883" {
			t.Errorf("broker URL = %q, want tcp://localhost:1883", got)
		}
	})

	t.Run("tls broker uses ssl scheme", func(t *testing.T) {
		cfg := testConfig()
		cfg.TLS = true
		cfg.Port = 8883
		opts := buildClientOptions(cfg)
		if got := opts.Servers[0].String(); got != "ssl://localhost:8883" {
			t.Errorf("broker URL = %q, want ssl://localhost:8883", got)
		}
	})

	t.Run("credentials applied when set", func(t *testing.T) {
		cfg := testConfig()
		cfg.Username = "gateway"
		cfg.Password = "secret"
		opts := buildClientOptions(cfg)
		if opts.Username != "gateway" {
			t.Errorf("Username = %q, want gateway", opts.Username)
		}
		if opts.Password != "secret" {
			t.Errorf("Password not applied")
		}
	})
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "snoozgw-test")

	if opts.WillTopic != "snoozgw/system/status" {
		t.Errorf("WillTopic = %q, want snoozgw/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("LWT must be retained")
	}

	var payload struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("LWT payload is not valid JSON: %v", err)
	}
	if payload.Status != "offline" {
		t.Errorf("LWT status = %q, want offline", payload.Status)
	}
	if payload.Reason != "unexpected_disconnect" {
		t.Errorf("LWT reason = %q, want unexpected_disconnect", payload.Reason)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("snoozgw-test")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload missing status: %s", online)
	}

	offline := buildOfflinePayload("snoozgw-test")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing graceful reason: %s", offline)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Publish("", []byte("{}"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("snoozgw/state/bedroom", []byte("{}"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("QoS 3 error = %v, want ErrInvalidQoS", err)
	}

	huge := make([]byte, maxPayloadSize+1)
	if err := c.Publish("snoozgw/state/bedroom", huge, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload error = %v, want ErrPublishFailed", err)
	}

	if err := c.PublishDeviceState("bedroom", []byte("{}")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := newDisconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestCloseWithoutConnect(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v", err)
	}
}
