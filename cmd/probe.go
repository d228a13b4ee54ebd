// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/bms"
)

var (
	probeCount   int
	probeRequest string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test link quality with repeated exchanges",
	Long: `Send one request repeatedly and report the round-trip time of every
exchange, similar to ping.

This command verifies that:
  - The device is found and the link is established
  - Commands reach the BMS
  - Responses arrive complete and pass the checksum

Exit codes:
  0 - All exchanges successful
  1 - One or more exchanges failed
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeCount, "count", 5, "Number of exchanges")
	probeCmd.Flags().StringVar(&probeRequest, "request", "soc", "Request to send: soc or voltages")
}

// errProbeFailed reports lost exchanges after the summary was printed
var errProbeFailed = errors.New("one or more exchanges failed")

func runProbe(cmd *cobra.Command, args []string) error {
	req, ok := bms.RequestByName(probeRequest)
	if !ok {
		return fmt.Errorf("unknown request %q (use soc or voltages)", probeRequest)
	}
	if probeCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, connInfo, err := OpenClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	fmt.Printf("Batteread - Link Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: %s (%X)\n", req.Name, req.Command)
	fmt.Printf("Count: %d exchanges\n\n", probeCount)

	// Connection failures are fatal, unlike failed exchanges
	if err := client.Connect(ctx); err != nil {
		return err
	}

	successCount := 0
	failCount := 0
	var total time.Duration

	for i := 1; i <= probeCount && ctx.Err() == nil; i++ {
		fmt.Printf("Exchange %d/%d: ", i, probeCount)

		startTime := time.Now()
		payload, err := client.Exchange(ctx, req)
		rtt := time.Since(startTime)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			continue
		}

		fmt.Printf("%d bytes, rtt=%v\n", len(payload), rtt.Round(time.Millisecond))
		successCount++
		total += rtt
	}

	// Summary
	sent := successCount + failCount
	fmt.Printf("\n--- Probe statistics ---\n")
	if sent > 0 {
		fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
			sent, successCount, float64(failCount)/float64(sent)*100)
	}
	if successCount > 0 {
		fmt.Printf("average rtt=%v\n", (total / time.Duration(successCount)).Round(time.Millisecond))
	}
	stats := client.Stats()
	if stats.DuplicatesDropped > 0 || stats.StaleDiscarded > 0 {
		fmt.Printf("%d duplicate chunks dropped, %d stale chunks discarded\n", stats.DuplicatesDropped, stats.StaleDiscarded)
	}

	if failCount > 0 {
		return errProbeFailed
	}
	return nil
}
