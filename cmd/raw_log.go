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

	"github.com/Thermoquad/batteread/pkg/bms"
)

var rawLogInterval time.Duration

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw response payloads in human-readable format",
	Long: `Continuously exchange both requests and display every response
payload as a hex dump followed by the decoded record.

Use --verbose to also trace every received chunk and the assembler
state. Useful for checking record layouts against new firmware.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVarP(&rawLogInterval, "interval", "i", 5*time.Second, "Time between rounds")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, connInfo, err := OpenClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	fmt.Printf("Batteread - Raw Payload Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		for _, req := range bms.Requests() {
			payload, err := client.Exchange(ctx, req)
			if ctx.Err() != nil {
				return nil
			}
			timestamp := time.Now().Format("15:04:05.000")
			if err != nil {
				fmt.Printf("[%s] \033[1;31m%s ERROR:\033[0m %v\n\n", timestamp, req.Name, err)
				continue
			}

			fmt.Printf("[%s] %s (%d bytes)\n", timestamp, req.Name, len(payload))
			fmt.Print(bms.FormatHex(payload))
			if text, err := bms.FormatRecord(req, payload); err == nil {
				fmt.Print(text)
			}
			fmt.Println()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rawLogInterval):
		}
	}
}
