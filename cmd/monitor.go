// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/bms"
	"github.com/Thermoquad/batteread/pkg/publish"
)

var (
	monitorInterval time.Duration
	monitorFormat   string
	monitorCount    int
	mqttBroker      string
	mqttTopic       string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the BMS periodically",
	Long: `Fetch a battery snapshot every interval and print it.

A failed cycle is logged and the loop continues. When the link drops,
the next cycle reconnects. With --mqtt-broker every snapshot is also
published to the broker.

Press Ctrl+C to stop; session statistics are printed on exit.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 10*time.Second, "Time between fetches")
	monitorCmd.Flags().StringVarP(&monitorFormat, "format", "f", "text", "Output format: text or json")
	monitorCmd.Flags().IntVarP(&monitorCount, "count", "n", 0, "Stop after this many cycles (0 runs until interrupted)")
	monitorCmd.Flags().StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker URL (tcp://host:1883)")
	monitorCmd.Flags().StringVar(&mqttTopic, "mqtt-topic", "", "MQTT topic for snapshots")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("interval") {
		cfg.Monitor.Interval = monitorInterval
	}
	if cmd.Flags().Changed("format") {
		cfg.Monitor.Format = monitorFormat
	}
	if cmd.Flags().Changed("mqtt-broker") {
		cfg.MQTT.Broker = mqttBroker
	}
	if cmd.Flags().Changed("mqtt-topic") {
		cfg.MQTT.Topic = mqttTopic
	}
	if cfg.Monitor.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	format, err := publish.ParseFormat(cfg.Monitor.Format)
	if err != nil {
		return err
	}
	// Raw CBOR is not printable between log lines
	if format == publish.FormatCBOR {
		format = publish.FormatJSON
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, connInfo, err := OpenClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	var publisher *publish.MQTT
	if cfg.MQTT.Broker != "" {
		publisher = publish.NewMQTT(mqttConfig(cfg), logger)
		if err := publisher.Connect(ctx); err != nil {
			return err
		}
		defer publisher.Close()
	}

	fmt.Printf("Batteread - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Interval: %s\n", cfg.Monitor.Interval)
	if publisher != nil {
		fmt.Printf("MQTT: %s -> %s\n", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ticker := time.NewTicker(cfg.Monitor.Interval)
	defer ticker.Stop()

	cycles := 0
loop:
	for {
		monitorCycle(ctx, client, publisher, format)
		cycles++
		if monitorCount > 0 && cycles >= monitorCount {
			break
		}

		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}
	}

	stats := client.Stats()
	fmt.Printf("\n%s", stats.String())
	return nil
}

// monitorCycle performs one fetch; failures are logged, never fatal
func monitorCycle(ctx context.Context, client *bms.Client, publisher *publish.MQTT, format publish.Format) {
	state, err := client.FetchState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("fetch failed")
		return
	}

	data, err := publish.Encode(state, format)
	if err != nil {
		logger.Error().Err(err).Msg("encode failed")
		return
	}
	fmt.Print(string(data))
	if format == publish.FormatJSON {
		fmt.Println()
	}

	if publisher != nil {
		if err := publisher.Publish(ctx, state); err != nil {
			logger.Warn().Err(err).Msg("publish failed")
		}
	}
}
