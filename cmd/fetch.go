// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/publish"
)

var fetchFormat string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read one battery snapshot",
	Long: `Connect to the BMS, read state of charge and cell voltages, print the
snapshot and disconnect.

Output formats:
  text - human-readable summary (default)
  json - one JSON object
  cbor - raw CBOR bytes, for piping into other tools`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "text", "Output format: text, json or cbor")
}

func runFetch(cmd *cobra.Command, args []string) error {
	format, err := publish.ParseFormat(fetchFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, connInfo, err := OpenClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect()

	logger.Info().Str("connection", connInfo).Msg("fetching battery state")

	state, err := client.FetchState(ctx)
	if err != nil {
		return err
	}

	data, err := publish.Encode(state, format)
	if err != nil {
		return err
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return err
	}
	if format == publish.FormatJSON {
		fmt.Println()
	}
	return nil
}
