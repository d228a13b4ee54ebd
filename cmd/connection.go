// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/Thermoquad/batteread/internal/config"
	"github.com/Thermoquad/batteread/pkg/bms"
	"github.com/Thermoquad/batteread/pkg/publish"
	"github.com/Thermoquad/batteread/pkg/transport"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("BATTEREAD_PASSWORD"); pw != "" {
		return pw, nil
	}

	// Prompt user for password (hide input)
	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// MQTTPasswordEnv holds the broker password when mqtt.username is set
const MQTTPasswordEnv = "BATTEREAD_MQTT_PASSWORD"

func mqttConfig(c config.Config) publish.MQTTConfig {
	mc := publish.MQTTConfig{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Topic:    c.MQTT.Topic,
		QoS:      byte(c.MQTT.QoS),
		Retain:   c.MQTT.Retain,
		Format:   publish.FormatJSON,
		Timeout:  c.MQTT.Timeout,
		Username: c.MQTT.Username,
	}
	if mc.Username != "" {
		mc.Password = os.Getenv(MQTTPasswordEnv)
	}
	return mc
}

// OpenTransport builds the transport selected by the configuration
func OpenTransport(c config.Config, log zerolog.Logger) (bms.Transport, string, error) {
	switch c.Transport.Kind {
	case config.TransportBLE:
		tr := transport.NewBLE(transport.BLEConfig{
			WriteCharacteristic:  c.Device.WriteUUID,
			NotifyCharacteristic: c.Device.NotifyUUID,
			QueueDepth:           transport.DefaultQueueDepth,
		}, log)
		target := c.Device.Name
		if c.Device.Address != "" {
			target = c.Device.Address
		}
		return tr, fmt.Sprintf("BLE: %s", target), nil

	case config.TransportSerial:
		s := c.Transport.Serial
		tr := transport.NewSerial(transport.SerialConfig{Port: s.Port, BaudRate: s.BaudRate}, log)
		return tr, fmt.Sprintf("Serial: %s @ %d baud", s.Port, s.BaudRate), nil

	case config.TransportWebSocket:
		ws := c.Transport.WebSocket
		password := ""
		if ws.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		tr := transport.NewWebSocket(transport.WebSocketConfig{
			URL:           ws.URL,
			Username:      ws.Username,
			Password:      password,
			SkipSSLVerify: ws.NoSSLVerify,
		}, log)
		return tr, fmt.Sprintf("WebSocket: %s", ws.URL), nil

	case config.TransportSim:
		return transport.NewSimulator(transport.DefaultSimConfig(), log), "Simulator", nil
	}

	return nil, "", fmt.Errorf("unknown transport %q", c.Transport.Kind)
}

// clientOptions translates the configuration into client options
func clientOptions(c config.Config, log zerolog.Logger) []bms.Option {
	return []bms.Option{
		bms.WithTarget(bms.Target{
			ServiceID:  c.Device.ServiceUUID,
			DeviceName: c.Device.Name,
			Address:    c.Device.Address,
			Timeout:    c.Device.DiscoveryTimeout,
		}),
		bms.WithRetryPolicy(bms.RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			Delay:       c.Retry.Delay,
			Multiplier:  c.Retry.Multiplier,
		}),
		bms.WithInactivityTimeout(c.Protocol.InactivityTimeout),
		bms.WithDrainWindow(c.Protocol.DrainWindow),
		bms.WithLogger(log),
	}
}

// OpenClient builds the transport and a client over it
func OpenClient(c config.Config, log zerolog.Logger) (*bms.Client, string, error) {
	tr, info, err := OpenTransport(c, log)
	if err != nil {
		return nil, "", err
	}
	return bms.NewClient(tr, clientOptions(c, log)...), info, nil
}
