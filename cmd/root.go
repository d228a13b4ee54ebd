// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/internal/config"
	"github.com/Thermoquad/batteread/pkg/bms"
)

// Version is the release version, overridden at build time
var Version = "0.3.0"

var (
	configPath string
	verbose    bool
	quiet      bool

	// Transport selection
	transportKind string
	deviceName    string
	deviceAddress string

	// Serial bridge flags
	portName string
	baudRate int

	// WebSocket bridge flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Protocol flags
	inactivityTimeout time.Duration
	drainWindow       time.Duration
	connectAttempts   int
)

// Effective configuration and logger, set before any subcommand runs
var (
	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "batteread",
	Short: "BMS telemetry reader",
	Long: `Batteread - read state of charge and cell voltages from a battery
management system over its serial-over-BLE link.

Connection modes:
  BLE:       --transport ble [--device BT_HC6172 | --address C0:D6:3C:58:A4:10]
  Serial:    --transport serial --port /dev/rfcomm0 [--baud 9600]
  WebSocket: --transport websocket --url ws://host/path [--username user]
  Simulator: --transport sim

Settings may also come from a YAML file (--config); flags override it.

For WebSocket authentication, the password is read from the BATTEREAD_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Exit codes:
  0 - Success
  1 - Fetch or protocol failure
  2 - Connection error`,
	Version:           Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log protocol traces")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Log warnings and errors only")

	flags.StringVarP(&transportKind, "transport", "t", config.TransportBLE, "Transport: ble, serial, websocket or sim")
	flags.StringVarP(&deviceName, "device", "d", bms.DefaultDeviceName, "Advertised BLE name of the BMS")
	flags.StringVar(&deviceAddress, "address", "", "BLE address of the BMS (overrides --device)")

	// Serial bridge flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket bridge flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Protocol flags
	flags.DurationVar(&inactivityTimeout, "timeout", bms.DefaultInactivityTimeout, "Silence that ends a response")
	flags.DurationVar(&drainWindow, "drain", bms.DefaultDrainWindow, "Quiet period before each request (0 discards only queued data)")
	flags.IntVar(&connectAttempts, "retries", bms.DefaultConnectAttempts, "Connect attempts")
}

// loadSettings layers defaults, the config file and explicitly set flags
func loadSettings(cmd *cobra.Command, args []string) error {
	logger = newLogger()

	cfg = config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlags(cmd, &cfg)

	if err := config.Validate(&cfg); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	config.Normalize(&cfg)
	return nil
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	changed := cmd.Flags().Changed

	if changed("transport") {
		c.Transport.Kind = transportKind
	}
	if changed("device") {
		c.Device.Name = deviceName
	}
	if changed("address") {
		c.Device.Address = deviceAddress
	}
	if changed("port") {
		c.Transport.Serial.Port = portName
		if !changed("transport") {
			c.Transport.Kind = config.TransportSerial
		}
	}
	if changed("baud") {
		c.Transport.Serial.BaudRate = baudRate
	}
	if changed("url") {
		c.Transport.WebSocket.URL = wsURL
		if !changed("transport") {
			c.Transport.Kind = config.TransportWebSocket
		}
	}
	if changed("username") {
		c.Transport.WebSocket.Username = wsUsername
	}
	if changed("no-ssl-verify") {
		c.Transport.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if changed("timeout") {
		c.Protocol.InactivityTimeout = inactivityTimeout
	}
	if changed("drain") {
		c.Protocol.DrainWindow = drainWindow
	}
	if changed("retries") {
		c.Retry.MaxAttempts = connectAttempts
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbose:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.WarnLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		discErr *bms.DiscoveryError
		connErr *bms.ConnectError
	)
	if errors.As(err, &discErr) || errors.As(err, &connErr) {
		return 2
	}
	return 1
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
