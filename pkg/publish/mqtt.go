// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/batteread/pkg/bms"
)

// MQTTConfig configures the telemetry publisher
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	Format   Format
	Timeout  time.Duration
	Username string
	Password string
}

// MQTT publishes snapshots to a broker
type MQTT struct {
	client mqtt.Client
	config MQTTConfig
	log    zerolog.Logger
}

// NewMQTT creates a publisher; Connect must be called before Publish
func NewMQTT(config MQTTConfig, log zerolog.Logger) *MQTT {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(config.Timeout).
		SetWriteTimeout(config.Timeout).
		SetCleanSession(true)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	return newMQTT(mqtt.NewClient(opts), config, log)
}

func newMQTT(client mqtt.Client, config MQTTConfig, log zerolog.Logger) *MQTT {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &MQTT{
		client: client,
		config: config,
		log:    log.With().Str("component", "mqtt").Str("broker", config.Broker).Logger(),
	}
}

// Connect opens the broker session
func (m *MQTT) Connect(ctx context.Context) error {
	if err := m.wait(ctx, m.client.Connect(), "connect"); err != nil {
		return err
	}
	m.log.Info().Str("topic", m.config.Topic).Msg("mqtt connected")
	return nil
}

// Publish encodes and sends one snapshot
func (m *MQTT) Publish(ctx context.Context, state bms.BatteryState) error {
	payload, err := Encode(state, m.config.Format)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.config.Topic, m.config.QoS, m.config.Retain, payload)
	if err := m.wait(ctx, token, "publish"); err != nil {
		return err
	}
	m.log.Debug().Int("bytes", len(payload)).Msg("snapshot published")
	return nil
}

// Close disconnects from the broker
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func (m *MQTT) wait(ctx context.Context, token mqtt.Token, tag string) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	select {
	case <-token.Done():
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("mqtt %s timeout", tag)
		}
		return fmt.Errorf("mqtt %s: %w", tag, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", tag, err)
	}
	return nil
}
