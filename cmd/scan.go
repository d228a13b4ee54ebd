// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/transport"
)

var scanDuration time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby BLE peripherals",
	Long: `Scan for advertising BLE peripherals and print each named device once.

Use this to find the advertised name or address of the BMS for --device
or --address.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().DurationVar(&scanDuration, "duration", 10*time.Second, "Scan duration")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, scanDuration)
	defer cancel()

	ble := transport.NewBLE(transport.DefaultBLEConfig(), logger)

	fmt.Printf("Scanning for %s...\n\n", scanDuration)
	fmt.Printf("%-20s %-24s %s\n", "ADDRESS", "NAME", "RSSI")

	count := 0
	err := ble.Scan(ctx, func(e transport.ScanEntry) {
		marker := ""
		if e.Name == cfg.Device.Name {
			marker = "  <- target"
		}
		fmt.Printf("%-20s %-24s %d dBm%s\n", e.Address, e.Name, e.RSSI, marker)
		count++
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%d device(s) found\n", count)
	return nil
}
