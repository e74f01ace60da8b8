package mqtt

import (
	"strings"
	"testing"

	"github.com/poolsync/poolsync-core/internal/infrastructure/config"
)

// optionsConfig returns a valid MQTT configuration for option-building
// tests. No broker is contacted.
func optionsConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "poolsync-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	var client *Client

	// Should not panic
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := optionsConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("Servers length = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "poolsync-test" {
		t.Errorf("ClientID = %q, want poolsync-test", opts.ClientID)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := optionsConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig = nil, want configured")
	}
}

func TestBuildClientOptionsAuth(t *testing.T) {
	cfg := optionsConfig()
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "secret"
	opts := buildClientOptions(cfg)

	if opts.Username != "core" {
		t.Errorf("Username = %q, want core", opts.Username)
	}
	if opts.Password != "secret" {
		t.Errorf("Password = %q, want secret", opts.Password)
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := optionsConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "poolsync/system/status" {
		t.Errorf("WillTopic = %q, want poolsync/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s, want offline status", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("poolsync-test")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "poolsync-test") {
		t.Errorf("online payload = %s", online)
	}

	offline := buildOfflinePayload("poolsync-test")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "DeviceState",
			builder: func() string {
				return Topics{}.DeviceState("E30500883")
			},
			expected: "poolsync/device/E30500883/state",
		},
		{
			name: "DeviceCommand",
			builder: func() string {
				return Topics{}.DeviceCommand("E30500883", "power")
			},
			expected: "poolsync/device/E30500883/command/power",
		},
		{
			name: "DeviceAck",
			builder: func() string {
				return Topics{}.DeviceAck("E30500883", "power")
			},
			expected: "poolsync/device/E30500883/ack/power",
		},
		{
			name: "PoolState",
			builder: func() string {
				return Topics{}.PoolState("pool-1")
			},
			expected: "poolsync/pool/pool-1/state",
		},
		{
			name: "PoolWaterQuality",
			builder: func() string {
				return Topics{}.PoolWaterQuality("pool-1")
			},
			expected: "poolsync/pool/pool-1/water_quality",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "poolsync/system/status",
		},
		{
			name: "SystemCycle",
			builder: func() string {
				return Topics{}.SystemCycle()
			},
			expected: "poolsync/system/cycle",
		},
		{
			name: "AllDeviceCommands",
			builder: func() string {
				return Topics{}.AllDeviceCommands()
			},
			expected: "poolsync/device/+/command/+",
		},
		{
			name: "AllDeviceStates",
			builder: func() string {
				return Topics{}.AllDeviceStates()
			},
			expected: "poolsync/device/+/state",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "poolsync/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}
