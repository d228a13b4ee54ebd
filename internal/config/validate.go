// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Validate checks configuration correctness and reports every problem found.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if cfg.Device.Name == "" && cfg.Device.Address == "" {
		add("device: name or address is required")
	}
	for _, f := range []struct{ name, value string }{
		{"service_uuid", cfg.Device.ServiceUUID},
		{"write_uuid", cfg.Device.WriteUUID},
		{"notify_uuid", cfg.Device.NotifyUUID},
	} {
		if !uuidPattern.MatchString(f.value) {
			add("device: %s %q is not a 128-bit UUID", f.name, f.value)
		}
	}
	if cfg.Device.DiscoveryTimeout < 0 {
		add("device: discovery_timeout must not be negative")
	}

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Kind)) {
	case TransportBLE, TransportSim:
	case TransportSerial:
		if cfg.Transport.Serial.Port == "" {
			add("transport: serial requires serial.port")
		}
		if cfg.Transport.Serial.BaudRate <= 0 {
			add("transport: serial.baud_rate must be positive")
		}
	case TransportWebSocket:
		u := cfg.Transport.WebSocket.URL
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			add("transport: websocket.url %q must use ws:// or wss://", u)
		}
	default:
		add("transport: unknown kind %q (use ble, serial, websocket or sim)", cfg.Transport.Kind)
	}

	// ------------------------------------------------------------
	// PROTOCOL / RETRY
	// ------------------------------------------------------------

	if cfg.Protocol.InactivityTimeout <= 0 {
		add("protocol: inactivity_timeout must be positive")
	}
	if cfg.Protocol.DrainWindow < 0 {
		add("protocol: drain_window must not be negative")
	}
	if cfg.Retry.MaxAttempts < 0 {
		add("retry: max_attempts must not be negative")
	}
	if cfg.Retry.Delay < 0 {
		add("retry: delay must not be negative")
	}
	if cfg.Retry.Multiplier < 0 {
		add("retry: multiplier must not be negative")
	}

	// ------------------------------------------------------------
	// MONITOR / MQTT
	// ------------------------------------------------------------

	if cfg.Monitor.Interval <= 0 {
		add("monitor: interval must be positive")
	}
	switch strings.ToLower(cfg.Monitor.Format) {
	case "text", "json", "cbor":
	default:
		add("monitor: unknown format %q", cfg.Monitor.Format)
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			add("mqtt: topic is required when broker is set")
		}
		if strings.ContainsAny(cfg.MQTT.Topic, "+#") {
			add("mqtt: topic %q must not contain wildcards", cfg.MQTT.Topic)
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			add("mqtt: qos %d out of range 0..2", cfg.MQTT.QoS)
		}
	}

	return errors.Join(errs...)
}
