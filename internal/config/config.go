// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/batteread/pkg/bms"
)

type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Transport TransportConfig `yaml:"transport"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Retry     RetryConfig     `yaml:"retry"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"` // optional, wins over name

	ServiceUUID string `yaml:"service_uuid"`
	WriteUUID   string `yaml:"write_uuid"`
	NotifyUUID  string `yaml:"notify_uuid"`

	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

// ---- TRANSPORT ----

const (
	TransportBLE       = "ble"
	TransportSerial    = "serial"
	TransportWebSocket = "websocket"
	TransportSim       = "sim"
)

type TransportConfig struct {
	Kind      string          `yaml:"kind"`
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// Password is never read from the file; see BATTEREAD_PASSWORD
type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// ---- PROTOCOL ----

type ProtocolConfig struct {
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	DrainWindow       time.Duration `yaml:"drain_window"`
}

// ---- RETRY ----

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	Format   string        `yaml:"format"` // text, json or cbor
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker   string        `yaml:"broker"` // empty disables publishing
	Topic    string        `yaml:"topic"`
	ClientID string        `yaml:"client_id"`
	QoS      int           `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Username string        `yaml:"username"` // password from BATTEREAD_MQTT_PASSWORD
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Name:             bms.DefaultDeviceName,
			ServiceUUID:      bms.NordicUARTServiceID,
			WriteUUID:        bms.NordicUARTWriteCharacterID,
			NotifyUUID:       bms.NordicUARTNotifyCharacterID,
			DiscoveryTimeout: bms.DefaultDiscoveryTimeout,
		},
		Transport: TransportConfig{
			Kind:   TransportBLE,
			Serial: SerialConfig{BaudRate: 9600},
		},
		Protocol: ProtocolConfig{
			InactivityTimeout: bms.DefaultInactivityTimeout,
			DrainWindow:       bms.DefaultDrainWindow,
		},
		Retry: RetryConfig{
			MaxAttempts: bms.DefaultConnectAttempts,
		},
		Monitor: MonitorConfig{
			Interval: 10 * time.Second,
			Format:   "text",
		},
		MQTT: MQTTConfig{
			Topic:    "batteread/state",
			ClientID: "batteread",
			QoS:      1,
			Timeout:  10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set
func Parse(data []byte, cfg *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
